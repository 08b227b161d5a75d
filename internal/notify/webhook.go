package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"cronward/pkg/logx"
)

// WebhookSink POSTs a JSON payload to an http(s) endpoint.
//
// Delivery failures are retried with capped exponential backoff; a
// circuit breaker stops hammering an endpoint that keeps refusing, since
// the same endpoint is hit again on every scheduled run.
type WebhookSink struct {
	url     string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	log     logx.Logger

	maxRetries uint64
}

type webhookPayload struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	Severity string `json:"severity"`
}

func NewWebhookSink(rawURL string, log logx.Logger) (*WebhookSink, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("webhook endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("webhook endpoint: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("webhook endpoint: missing host")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	cbs := gobreaker.Settings{
		Name:        "webhook:" + u.Host,
		MaxRequests: 2,
		Interval:    60 * time.Second,
		Timeout:     120 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}

	return &WebhookSink{
		url:        rawURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		breaker:    gobreaker.NewCircuitBreaker(cbs),
		log:        log,
		maxRetries: 2,
	}, nil
}

func (s *WebhookSink) Endpoint() string {
	if u, err := url.Parse(s.url); err == nil {
		return u.Scheme + "://" + u.Host
	}
	return "webhook"
}

func (s *WebhookSink) Send(ctx context.Context, title, body string, severity Severity) bool {
	payload, err := json.Marshal(webhookPayload{Title: title, Body: body, Severity: string(severity)})
	if err != nil {
		s.log.Error("webhook payload marshal failed", logx.Err(err))
		return false
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 5 * time.Second

	op := func() error {
		_, err := s.breaker.Execute(func() (any, error) {
			return nil, s.post(ctx, payload)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			// Breaker is shedding load; retrying inside this send is pointless.
			return backoff.Permanent(err)
		}
		return err
	}

	err = backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, s.maxRetries), ctx))
	if err != nil {
		s.log.Warn("webhook delivery failed", logx.String("endpoint", s.Endpoint()), logx.Err(err))
		return false
	}
	return true
}

func (s *WebhookSink) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}
