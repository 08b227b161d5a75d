// Package notify decides whether and how a run outcome turns into a
// notification, and delivers it best-effort to the configured endpoints.
package notify

import (
	"context"
	"strings"

	"golang.org/x/time/rate"

	"cronward/pkg/logx"
)

// Severity classifies a notification for the delivery channel.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityFailure Severity = "failure"
)

// ParseSeverity maps a string to a severity; anything unrecognized
// defaults to info.
func ParseSeverity(s string) Severity {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case SeveritySuccess:
		return SeveritySuccess
	case SeverityWarning:
		return SeverityWarning
	case SeverityFailure:
		return SeverityFailure
	default:
		return SeverityInfo
	}
}

// Sink delivers one formatted message. Send reports whether delivery
// succeeded; callers must treat a false return as log-and-move-on, never
// as a reason to fail the surrounding task run.
type Sink interface {
	Send(ctx context.Context, title, body string, severity Severity) bool
	// Endpoint returns a redacted identifier for logging.
	Endpoint() string
}

// Fanout delivers to every child sink, rate-limited across the set.
//
// A fanout with zero sinks accepts sends as successful no-ops: having
// nothing configured is not a delivery failure.
type Fanout struct {
	sinks   []Sink
	limiter *rate.Limiter
	log     logx.Logger
}

// NewFanout builds a fanout over sinks. ratePerSec bounds outbound sends
// per second across all endpoints (<=0 means a conservative default of 3,
// matching chat-API friendly limits).
func NewFanout(sinks []Sink, ratePerSec int, log logx.Logger) *Fanout {
	if ratePerSec <= 0 {
		ratePerSec = 3
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Fanout{
		sinks:   sinks,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
		log:     log,
	}
}

func (f *Fanout) Endpoint() string { return "fanout" }

// Send delivers to all endpoints and reports true when every configured
// endpoint accepted the message (trivially true for zero endpoints).
func (f *Fanout) Send(ctx context.Context, title, body string, severity Severity) bool {
	if len(f.sinks) == 0 {
		f.log.Debug("no notification endpoints configured; skipping send", logx.String("title", title))
		return true
	}

	allOK := true
	for _, s := range f.sinks {
		if err := f.limiter.Wait(ctx); err != nil {
			f.log.Warn("notification rate wait aborted", logx.Err(err))
			return false
		}
		if !s.Send(ctx, title, body, severity) {
			f.log.Warn("notification delivery failed", logx.String("endpoint", s.Endpoint()), logx.String("title", title))
			allOK = false
			continue
		}
		f.log.Debug("notification delivered", logx.String("endpoint", s.Endpoint()), logx.String("title", title))
	}
	return allOK
}
