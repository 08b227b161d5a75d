package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"cronward/pkg/logx"
)

func TestWebhookSinkDelivers(t *testing.T) {
	t.Parallel()
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %s", ct)
		}
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink, err := NewWebhookSink(srv.URL, logx.Nop())
	if err != nil {
		t.Fatalf("NewWebhookSink: %v", err)
	}
	if !sink.Send(context.Background(), "✓ Task Complete: backup", "done in 1.00s", SeveritySuccess) {
		t.Fatal("send failed")
	}
	if got.Title != "✓ Task Complete: backup" || got.Severity != "success" {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestWebhookSinkRetriesThenSucceeds(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink, err := NewWebhookSink(srv.URL, logx.Nop())
	if err != nil {
		t.Fatalf("NewWebhookSink: %v", err)
	}
	if !sink.Send(context.Background(), "t", "b", SeverityFailure) {
		t.Fatal("expected success after retry")
	}
	if hits.Load() < 2 {
		t.Fatalf("expected at least 2 attempts, got %d", hits.Load())
	}
}

func TestWebhookSinkReportsPersistentFailure(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sink, err := NewWebhookSink(srv.URL, logx.Nop())
	if err != nil {
		t.Fatalf("NewWebhookSink: %v", err)
	}
	if sink.Send(context.Background(), "t", "b", SeverityFailure) {
		t.Fatal("expected delivery failure")
	}
}
