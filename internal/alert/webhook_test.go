package alert

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestDispatchMatchesEvents(t *testing.T) {
	var called atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher([]Config{
		{URL: srv.URL, Format: "generic", Events: []string{EventDeny}},
	})

	d.Dispatch(Event{Type: EventDeny, EntityID: "agent-1", Action: "secrets.read"})
	time.Sleep(200 * time.Millisecond)

	if called.Load() != 1 {
		t.Errorf("expected 1 call, got %d", called.Load())
	}
}

func TestDispatchSkipsUnsubscribedEvents(t *testing.T) {
	var called atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher([]Config{
		{URL: srv.URL, Format: "generic", Events: []string{EventChainBreach}},
	})

	d.Dispatch(Event{Type: EventDeny, EntityID: "agent-1"})
	time.Sleep(200 * time.Millisecond)

	if called.Load() != 0 {
		t.Errorf("expected 0 calls, got %d", called.Load())
	}
}

func TestNilDispatcherIsSafe(t *testing.T) {
	var d *Dispatcher
	d.Dispatch(Event{Type: EventDeny})

	if NewDispatcher(nil) != nil {
		t.Error("empty config should produce a nil dispatcher")
	}
}

func TestSendGenericPayload(t *testing.T) {
	var got Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		if r.Header.Get("X-Auth") != "token" {
			t.Errorf("missing custom header")
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := Config{URL: srv.URL, Format: "generic", Headers: map[string]string{"X-Auth": "token"}}
	event := Event{Type: EventEscalate, EntityID: "agent-7", Action: "payment.send", RiskScore: 72, Reason: "risk score 72 requires human approval"}
	if err := Send(cfg, event); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.EntityID != "agent-7" || got.RiskScore != 72 {
		t.Errorf("payload mismatch: %+v", got)
	}
}

func TestSendRetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := Send(Config{URL: srv.URL, Format: "generic"}, Event{Type: EventDeny}); err != nil {
		t.Fatalf("Send should succeed after retries: %v", err)
	}
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestSendDoesNotRetryClientErrors(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	if err := Send(Config{URL: srv.URL, Format: "generic"}, Event{Type: EventDeny}); err == nil {
		t.Fatal("expected error on 403")
	}
	if attempts.Load() != 1 {
		t.Errorf("4xx must not be retried, got %d attempts", attempts.Load())
	}
}

func TestFormatPagerDutySeverity(t *testing.T) {
	body, err := FormatPayload("pagerduty", Event{Type: EventChainBreach, Reason: "content hash does not match payload"})
	if err != nil {
		t.Fatalf("FormatPayload: %v", err)
	}
	var payload struct {
		Payload struct {
			Severity string `json:"severity"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload.Payload.Severity != "critical" {
		t.Errorf("chain breach should be critical, got %q", payload.Payload.Severity)
	}
}
