package engine

import "time"

// StepOutcome records one command attempt that actually ran.
type StepOutcome struct {
	Command   string
	Succeeded bool
	Output    string
	Attempt   int
}

// RunOutcome is the result record produced by one task invocation. It is
// handed to the notification dispatcher and (via the event bus) to the
// run-history recorder, then discarded.
type RunOutcome struct {
	TaskName  string
	Succeeded bool

	Duration time.Duration
	// HasDuration is false only when timing never completed (an internal
	// error before the clock could be read). Dispatch still builds a
	// failure message in that case, just without the duration line.
	HasDuration bool

	// AggregatedOutput holds the labeled output of every step that was
	// attempted, separated by blank lines. Steps skipped after a stop
	// contribute nothing.
	AggregatedOutput string

	// ErrorDetail is set when an unexpected engine error (not a command
	// failure) ended the run.
	ErrorDetail string

	Steps []StepOutcome
}

// Seconds returns the run duration in seconds for display.
func (o RunOutcome) Seconds() float64 { return o.Duration.Seconds() }
