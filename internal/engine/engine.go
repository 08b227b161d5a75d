// Package engine turns a task descriptor into a deterministic sequence of
// command executions with stop/continue/retry semantics, output
// aggregation and timeout enforcement.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cronward/internal/task"
	"cronward/pkg/logx"
)

// RetryBackoff is the fixed wait between attempts of the same step under
// the retry policy. It is the only internally generated delay.
const RetryBackoff = 2 * time.Second

// stepDisposition tells the outer step loop what to do after a step has
// finished its attempt loop.
type stepDisposition int

const (
	// stepAdvance moves on to the next step. It covers both a successful
	// step and a continue-tolerated failure.
	stepAdvance stepDisposition = iota
	// stepHalt aborts the task: stop policy, or retry exhaustion.
	stepHalt
)

// Engine executes one task invocation synchronously: steps in declared
// order, one command at a time. It holds no mutable state across runs, so
// a single Engine may serve concurrent runs of different tasks.
type Engine struct {
	runner  CommandRunner
	backoff time.Duration
	log     logx.Logger
}

type Option func(*Engine)

// WithRetryBackoff overrides the fixed inter-attempt wait. Intended for
// tests; production keeps the 2s default.
func WithRetryBackoff(d time.Duration) Option {
	return func(e *Engine) { e.backoff = d }
}

func New(runner CommandRunner, log logx.Logger, opts ...Option) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	e := &Engine{runner: runner, backoff: RetryBackoff, log: log}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes the task and always returns an outcome, never an error.
// Anything unexpected (including panics below this frame) is captured
// into a failed outcome with ErrorDetail set, so the scheduler can treat
// every invocation uniformly.
func (e *Engine) Run(ctx context.Context, t task.Task) (out RunOutcome) {
	start := time.Now()
	log := e.log.With(logx.String("task", t.Name))

	var (
		agg   []string
		steps []StepOutcome
	)

	defer func() {
		if r := recover(); r != nil {
			log.Error("task run aborted by internal error", logx.Any("panic", r))
			out = RunOutcome{
				TaskName:         t.Name,
				Succeeded:        false,
				Duration:         time.Since(start),
				HasDuration:      true,
				AggregatedOutput: joinAggregate(agg),
				ErrorDetail:      fmt.Sprintf("internal error: %v", r),
				Steps:            steps,
			}
		}
	}()

	log.Info("task started", logx.Int("steps", len(t.Steps)), logx.String("on_failure", t.OnFailure.String()))

	for i, step := range t.Steps {
		disp := e.runStep(ctx, log, t, i, step, &agg, &steps)
		if disp == stepHalt {
			dur := time.Since(start)
			log.Error("task failed", logx.Duration("dur", dur), logx.Int("step", i+1))
			return RunOutcome{
				TaskName:         t.Name,
				Succeeded:        false,
				Duration:         dur,
				HasDuration:      true,
				AggregatedOutput: joinAggregate(agg),
				Steps:            steps,
			}
		}
	}

	dur := time.Since(start)
	log.Info("task completed", logx.Duration("dur", dur))
	return RunOutcome{
		TaskName:         t.Name,
		Succeeded:        true,
		Duration:         dur,
		HasDuration:      true,
		AggregatedOutput: joinAggregate(agg),
		Steps:            steps,
	}
}

// runStep drives the attempt loop for a single step and maps the final
// attempt result through the task's failure policy.
func (e *Engine) runStep(ctx context.Context, log logx.Logger, t task.Task, idx int, step task.Step, agg *[]string, steps *[]StepOutcome) stepDisposition {
	maxAttempts := t.MaxAttempts()
	label := fmt.Sprintf("Step %d: %s", idx+1, step.Command)
	log.Info("step started", logx.Int("step", idx+1), logx.Int("total", len(t.Steps)), logx.String("command", step.Command))

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ok, output := e.runner.Run(ctx, step.Command, t.CommandTimeout)

		// Output is recorded for every attempt that ran, pass or fail.
		*agg = append(*agg, label+"\n"+output)
		*steps = append(*steps, StepOutcome{
			Command:   step.Command,
			Succeeded: ok,
			Output:    output,
			Attempt:   attempt,
		})

		if ok {
			log.Info("step completed", logx.Int("step", idx+1), logx.Int("attempt", attempt))
			return stepAdvance
		}

		log.Warn("step failed",
			logx.Int("step", idx+1),
			logx.Int("attempt", attempt),
			logx.Int("max_attempts", maxAttempts))

		if attempt < maxAttempts {
			// Fixed backoff between attempts of the same step only.
			if !e.waitBackoff(ctx) {
				log.Warn("retry wait interrupted by shutdown", logx.Int("step", idx+1))
				return stepHalt
			}
			continue
		}
	}

	// Attempts exhausted: policy decides.
	switch t.OnFailure {
	case task.FailContinue:
		log.Warn("continuing despite step failure", logx.Int("step", idx+1))
		return stepAdvance
	case task.FailRetry:
		log.Error("retry attempts exhausted", logx.Int("step", idx+1), logx.Int("attempts", maxAttempts))
		return stepHalt
	default: // task.FailStop
		log.Error("stopping task due to step failure", logx.Int("step", idx+1))
		return stepHalt
	}
}

// waitBackoff sleeps the fixed retry interval, honoring cancellation.
// Returns false if the context ended first.
func (e *Engine) waitBackoff(ctx context.Context) bool {
	if e.backoff <= 0 {
		return ctx.Err() == nil
	}
	tmr := time.NewTimer(e.backoff)
	defer tmr.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-tmr.C:
		return true
	}
}

func joinAggregate(parts []string) string {
	return strings.Join(parts, "\n\n")
}
