package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"cronward/pkg/logx"
)

func TestExecutorCapturesStdout(t *testing.T) {
	t.Parallel()
	ex := NewExecutor(logx.Nop())
	ok, out := ex.Run(context.Background(), "echo hello", 0)
	if !ok {
		t.Fatalf("expected success, got output %q", out)
	}
	if out != "hello\n" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestExecutorMarksStderrSection(t *testing.T) {
	t.Parallel()
	ex := NewExecutor(logx.Nop())
	ok, out := ex.Run(context.Background(), "echo visible; echo hidden 1>&2", 0)
	if !ok {
		t.Fatalf("expected success, got output %q", out)
	}
	if !strings.Contains(out, "visible\n") {
		t.Fatalf("stdout missing from output %q", out)
	}
	if !strings.Contains(out, "STDERR:\nhidden\n") {
		t.Fatalf("stderr section missing from output %q", out)
	}
}

func TestExecutorNonZeroExitIsFailure(t *testing.T) {
	t.Parallel()
	ex := NewExecutor(logx.Nop())
	ok, out := ex.Run(context.Background(), "echo partial; exit 3", 0)
	if ok {
		t.Fatal("exit 3 must be a failure")
	}
	// Output produced before the failure is still captured.
	if !strings.Contains(out, "partial") {
		t.Fatalf("expected captured output, got %q", out)
	}
}

func TestExecutorTimeoutKillsProcess(t *testing.T) {
	t.Parallel()
	ex := NewExecutor(logx.Nop())
	start := time.Now()
	ok, out := ex.Run(context.Background(), "sleep 30", 100*time.Millisecond)
	if ok {
		t.Fatal("timed-out command must fail")
	}
	if !strings.Contains(out, "timed out") {
		t.Fatalf("expected timeout message, got %q", out)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("process not killed promptly, took %v", elapsed)
	}
}

func TestExecutorCancelDuringRun(t *testing.T) {
	t.Parallel()
	ex := NewExecutor(logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	ok, out := ex.Run(ctx, "sleep 30", 0)
	if ok {
		t.Fatal("canceled command must fail")
	}
	if !strings.Contains(out, "canceled") {
		t.Fatalf("expected cancel message, got %q", out)
	}
}

func TestExecutorLaunchFailure(t *testing.T) {
	t.Parallel()
	ex := NewExecutor(logx.Nop())
	ex.Shell = "/nonexistent/shell"
	ok, out := ex.Run(context.Background(), "echo hi", 0)
	if ok {
		t.Fatal("launch failure must be reported as failed, not raised")
	}
	if !strings.Contains(out, "execution error") {
		t.Fatalf("expected execution error text, got %q", out)
	}
}

func TestCombineOutput(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		stdout string
		stderr string
		want   string
	}{
		{name: "stdout only", stdout: "a\n", stderr: "", want: "a\n"},
		{name: "both", stdout: "a\n", stderr: "e\n", want: "a\n\nSTDERR:\ne\n"},
		{name: "stderr only", stdout: "", stderr: "e\n", want: "\nSTDERR:\ne\n"},
		{name: "blank stderr ignored", stdout: "a\n", stderr: "  \n", want: "a\n"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := combineOutput(tt.stdout, tt.stderr); got != tt.want {
				t.Fatalf("combineOutput() = %q, want %q", got, tt.want)
			}
		})
	}
}
