// Package task defines the immutable task descriptor consumed by the
// execution engine. Descriptors are built and validated by the config
// layer; by the time one reaches the engine, every policy field holds a
// concrete value (global fallbacks already resolved).
package task

import (
	"fmt"
	"time"
)

// FailurePolicy controls what happens when a step fails.
type FailurePolicy int

const (
	// FailStop aborts the task on the first failing step.
	FailStop FailurePolicy = iota
	// FailContinue records the failure and moves on to the next step.
	// A task under this policy never fails because of individual steps.
	FailContinue
	// FailRetry re-attempts the failing step up to RetryCount times;
	// exhaustion aborts the task like FailStop.
	FailRetry
)

func (p FailurePolicy) String() string {
	switch p {
	case FailStop:
		return "stop"
	case FailContinue:
		return "continue"
	case FailRetry:
		return "retry"
	default:
		return fmt.Sprintf("failurepolicy(%d)", int(p))
	}
}

// ParseFailurePolicy maps a config string to a policy. Empty means stop.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch s {
	case "", "stop":
		return FailStop, nil
	case "continue":
		return FailContinue, nil
	case "retry":
		return FailRetry, nil
	default:
		return FailStop, fmt.Errorf("unknown on_failure policy %q", s)
	}
}

// NotifyPolicy controls when a notification is dispatched.
type NotifyPolicy int

const (
	NotifyAll NotifyPolicy = iota
	NotifyFailureOnly
	NotifyNever
)

func (p NotifyPolicy) String() string {
	switch p {
	case NotifyAll:
		return "all"
	case NotifyFailureOnly:
		return "failure"
	case NotifyNever:
		return "never"
	default:
		return fmt.Sprintf("notifypolicy(%d)", int(p))
	}
}

// ParseNotifyPolicy maps a config string to a policy. Empty means all.
func ParseNotifyPolicy(s string) (NotifyPolicy, error) {
	switch s {
	case "", "all":
		return NotifyAll, nil
	case "failure":
		return NotifyFailureOnly, nil
	case "never":
		return NotifyNever, nil
	default:
		return NotifyAll, fmt.Errorf("unknown notify_on policy %q", s)
	}
}

// OutputPolicy controls when command output is included in notifications.
type OutputPolicy int

const (
	OutputAll OutputPolicy = iota
	OutputFailureOnly
	OutputNever
)

func (p OutputPolicy) String() string {
	switch p {
	case OutputAll:
		return "all"
	case OutputFailureOnly:
		return "failure"
	case OutputNever:
		return "never"
	default:
		return fmt.Sprintf("outputpolicy(%d)", int(p))
	}
}

// ParseOutputPolicy maps a config string to a policy. Empty means all.
func ParseOutputPolicy(s string) (OutputPolicy, error) {
	switch s {
	case "", "all":
		return OutputAll, nil
	case "failure":
		return OutputFailureOnly, nil
	case "never":
		return OutputNever, nil
	default:
		return OutputAll, fmt.Errorf("unknown include_output policy %q", s)
	}
}

// Step is one shell command within a task.
type Step struct {
	Command string
}

// Task is the validated, immutable descriptor for one scheduled unit of
// work. The engine treats it as read-only for the duration of a run.
type Task struct {
	Name     string
	Schedule string // cron spec, owned by the scheduler, opaque to the engine
	Steps    []Step

	OnFailure  FailurePolicy
	RetryCount int // meaningful only under FailRetry

	NotifyOn      NotifyPolicy
	IncludeOutput OutputPolicy

	// Endpoints, when non-empty, replaces the global endpoint set for this
	// task's notifications (complete override, not a merge).
	Endpoints []string

	// CommandTimeout bounds each step's wall-clock time. Zero means the
	// executor default (one hour).
	CommandTimeout time.Duration
}

// MaxAttempts returns how many times a single step may be attempted
// under the task's failure policy.
func (t Task) MaxAttempts() int {
	if t.OnFailure == FailRetry && t.RetryCount > 0 {
		return t.RetryCount
	}
	return 1
}
