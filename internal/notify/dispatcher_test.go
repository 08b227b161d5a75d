package notify

import (
	"context"
	"strings"
	"testing"
	"time"

	"cronward/internal/engine"
	"cronward/internal/task"
	"cronward/pkg/logx"
)

type recordingSink struct {
	calls []sinkCall
	ok    bool
}

type sinkCall struct {
	title    string
	body     string
	severity Severity
}

func newRecordingSink() *recordingSink { return &recordingSink{ok: true} }

func (s *recordingSink) Send(_ context.Context, title, body string, severity Severity) bool {
	s.calls = append(s.calls, sinkCall{title: title, body: body, severity: severity})
	return s.ok
}

func (s *recordingSink) Endpoint() string { return "recording" }

func successOutcome(name string) engine.RunOutcome {
	return engine.RunOutcome{
		TaskName:         name,
		Succeeded:        true,
		Duration:         1234 * time.Millisecond,
		HasDuration:      true,
		AggregatedOutput: "Step 1: echo hi\nhi\n",
	}
}

func failureOutcome(name, output string) engine.RunOutcome {
	return engine.RunOutcome{
		TaskName:         name,
		Succeeded:        false,
		Duration:         2 * time.Second,
		HasDuration:      true,
		AggregatedOutput: output,
	}
}

func TestDispatchNotifyPolicy(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		notifyOn  task.NotifyPolicy
		succeeded bool
		wantSent  bool
	}{
		{name: "never success", notifyOn: task.NotifyNever, succeeded: true, wantSent: false},
		{name: "never failure", notifyOn: task.NotifyNever, succeeded: false, wantSent: false},
		{name: "failure-only success", notifyOn: task.NotifyFailureOnly, succeeded: true, wantSent: false},
		{name: "failure-only failure", notifyOn: task.NotifyFailureOnly, succeeded: false, wantSent: true},
		{name: "all success", notifyOn: task.NotifyAll, succeeded: true, wantSent: true},
		{name: "all failure", notifyOn: task.NotifyAll, succeeded: false, wantSent: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			sink := newRecordingSink()
			out := successOutcome("job")
			if !tt.succeeded {
				out = failureOutcome("job", "bad")
			}
			NewDispatcher(logx.Nop()).Dispatch(context.Background(), out, tt.notifyOn, task.OutputAll, sink)
			if sent := len(sink.calls) > 0; sent != tt.wantSent {
				t.Fatalf("sent = %v, want %v", sent, tt.wantSent)
			}
		})
	}
}

func TestDispatchIncludeOutputFailureOnly(t *testing.T) {
	t.Parallel()
	d := NewDispatcher(logx.Nop())

	sink := newRecordingSink()
	d.Dispatch(context.Background(), successOutcome("backup"), task.NotifyAll, task.OutputFailureOnly, sink)
	if len(sink.calls) != 1 {
		t.Fatalf("expected one send, got %d", len(sink.calls))
	}
	if strings.Contains(sink.calls[0].body, "Output:") {
		t.Fatalf("success body must exclude output, got %q", sink.calls[0].body)
	}

	sink = newRecordingSink()
	d.Dispatch(context.Background(), failureOutcome("backup", "disk full"), task.NotifyAll, task.OutputFailureOnly, sink)
	if len(sink.calls) != 1 {
		t.Fatalf("expected one send, got %d", len(sink.calls))
	}
	if !strings.Contains(sink.calls[0].body, "disk full") {
		t.Fatalf("failure body must include output, got %q", sink.calls[0].body)
	}
}

func TestDispatchIncludeOutputNever(t *testing.T) {
	t.Parallel()
	sink := newRecordingSink()
	NewDispatcher(logx.Nop()).Dispatch(context.Background(), failureOutcome("job", "secret output"), task.NotifyAll, task.OutputNever, sink)
	if len(sink.calls) != 1 {
		t.Fatalf("expected one send, got %d", len(sink.calls))
	}
	if strings.Contains(sink.calls[0].body, "secret output") {
		t.Fatalf("body must not carry output under never, got %q", sink.calls[0].body)
	}
}

func TestDispatchMessageShape(t *testing.T) {
	t.Parallel()
	d := NewDispatcher(logx.Nop())

	sink := newRecordingSink()
	d.Dispatch(context.Background(), successOutcome("backup"), task.NotifyAll, task.OutputAll, sink)
	call := sink.calls[0]
	if call.title != "✓ Task Complete: backup" {
		t.Fatalf("unexpected success title %q", call.title)
	}
	if !strings.Contains(call.body, "completed successfully in 1.23s") {
		t.Fatalf("expected two-decimal duration, got %q", call.body)
	}
	if call.severity != SeveritySuccess {
		t.Fatalf("severity = %s", call.severity)
	}

	sink = newRecordingSink()
	d.Dispatch(context.Background(), failureOutcome("backup", "err"), task.NotifyAll, task.OutputAll, sink)
	call = sink.calls[0]
	if call.title != "✗ Task Failed: backup" {
		t.Fatalf("unexpected failure title %q", call.title)
	}
	if !strings.Contains(call.body, "failed after 2.00s") {
		t.Fatalf("expected duration in failure body, got %q", call.body)
	}
	if call.severity != SeverityFailure {
		t.Fatalf("severity = %s", call.severity)
	}
}

func TestDispatchFailureWithoutDuration(t *testing.T) {
	t.Parallel()
	sink := newRecordingSink()
	out := engine.RunOutcome{TaskName: "crashed", Succeeded: false, ErrorDetail: "internal error: boom"}
	NewDispatcher(logx.Nop()).Dispatch(context.Background(), out, task.NotifyAll, task.OutputAll, sink)
	if len(sink.calls) != 1 {
		t.Fatalf("expected one send, got %d", len(sink.calls))
	}
	body := sink.calls[0].body
	if strings.Contains(body, " after ") {
		t.Fatalf("body must omit duration when unknown, got %q", body)
	}
	if !strings.Contains(body, "boom") {
		t.Fatalf("error detail missing from body %q", body)
	}
}

func TestDispatchTruncatesFailureOutput(t *testing.T) {
	t.Parallel()
	detail := strings.Repeat("a", 1000) + strings.Repeat("b", 1000)
	sink := newRecordingSink()
	NewDispatcher(logx.Nop()).Dispatch(context.Background(), failureOutcome("big", detail), task.NotifyAll, task.OutputAll, sink)

	body := sink.calls[0].body
	if !strings.Contains(body, strings.Repeat("a", 1000)) {
		t.Fatal("first 1000 chars must survive truncation")
	}
	if strings.Contains(body, "b") {
		t.Fatal("nothing beyond the 1000-char cap may appear")
	}
}

func TestDispatchTruncatesSuccessOutput(t *testing.T) {
	t.Parallel()
	out := successOutcome("big")
	out.AggregatedOutput = strings.Repeat("x", 500) + strings.Repeat("y", 100)
	sink := newRecordingSink()
	NewDispatcher(logx.Nop()).Dispatch(context.Background(), out, task.NotifyAll, task.OutputAll, sink)

	body := sink.calls[0].body
	if !strings.Contains(body, strings.Repeat("x", 500)) {
		t.Fatal("first 500 chars must survive truncation")
	}
	if strings.Contains(body, "y") {
		t.Fatal("success output is capped at 500 chars")
	}
}

func TestDispatchSwallowsSinkFailure(t *testing.T) {
	t.Parallel()
	sink := newRecordingSink()
	sink.ok = false
	// Must not panic or propagate anything.
	NewDispatcher(logx.Nop()).Dispatch(context.Background(), failureOutcome("job", "x"), task.NotifyAll, task.OutputAll, sink)
	if len(sink.calls) != 1 {
		t.Fatalf("send attempted exactly once, got %d", len(sink.calls))
	}
}
