package notify

import (
	"context"
	"fmt"

	"cronward/internal/engine"
	"cronward/internal/task"
	"cronward/pkg/logx"
)

// Output caps applied before final message assembly. Success output is
// kept short; failure output gets more room because it is what an
// operator debugs from.
const (
	successOutputCap = 500
	failureOutputCap = 1000
)

// Dispatcher turns a run outcome into zero or one notification according
// to the task's notify/output policies. Sink failures are logged and
// swallowed; dispatch never reports an error to its caller.
type Dispatcher struct {
	log logx.Logger
}

func NewDispatcher(log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{log: log}
}

// Dispatch applies the notification policy and hands the shaped message
// to the sink.
func (d *Dispatcher) Dispatch(ctx context.Context, out engine.RunOutcome, notifyOn task.NotifyPolicy, includeOutput task.OutputPolicy, sink Sink) {
	if notifyOn == task.NotifyNever {
		return
	}
	if notifyOn == task.NotifyFailureOnly && out.Succeeded {
		return
	}

	include := false
	switch includeOutput {
	case task.OutputAll:
		include = true
	case task.OutputFailureOnly:
		include = !out.Succeeded
	}

	var (
		title    string
		body     string
		severity Severity
	)
	if out.Succeeded {
		title, body = successMessage(out, include)
		severity = SeveritySuccess
	} else {
		title, body = failureMessage(out, include)
		severity = SeverityFailure
	}

	if !sink.Send(ctx, title, body, severity) {
		d.log.Warn("notification not delivered", logx.String("task", out.TaskName), logx.Bool("succeeded", out.Succeeded))
	}
}

func successMessage(out engine.RunOutcome, include bool) (title, body string) {
	title = fmt.Sprintf("✓ Task Complete: %s", out.TaskName)
	body = fmt.Sprintf("Task '%s' completed successfully in %.2fs", out.TaskName, out.Seconds())
	if include && out.AggregatedOutput != "" {
		body += "\n\nOutput:\n" + truncate(out.AggregatedOutput, successOutputCap)
	}
	return title, body
}

func failureMessage(out engine.RunOutcome, include bool) (title, body string) {
	title = fmt.Sprintf("✗ Task Failed: %s", out.TaskName)
	body = fmt.Sprintf("Task '%s' failed", out.TaskName)
	if out.HasDuration {
		body += fmt.Sprintf(" after %.2fs", out.Seconds())
	}
	if include {
		detail := out.ErrorDetail
		if detail == "" {
			detail = out.AggregatedOutput
		}
		if detail != "" {
			body += "\n\nError:\n" + truncate(detail, failureOutputCap)
		}
	}
	return title, body
}

// truncate hard-caps s to max bytes. Applied after labeling, before
// final assembly.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
