package resilience

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestHTTPClientRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "payload" {
			t.Errorf("retried request lost its body: %q", body)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cl := HTTPClient{
		Client:      srv.Client(),
		MaxAttempts: 3,
		BaseBackoff: time.Millisecond,
	}
	req, err := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader("payload"))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := cl.Do(context.Background(), req)
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestHTTPClientStopsAtMaxAttempts(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cl := HTTPClient{
		Client:      srv.Client(),
		MaxAttempts: 2,
		BaseBackoff: time.Millisecond,
	}
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	if _, err := cl.Do(context.Background(), req); err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
}

func TestHTTPClientDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	cl := HTTPClient{Client: srv.Client(), MaxAttempts: 3, BaseBackoff: time.Millisecond}
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := cl.Do(context.Background(), req)
	if err != nil {
		t.Fatalf("4xx should surface as a response, got error %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected a single attempt, got %d", got)
	}
}

func TestHTTPClientRespectsOpenBreaker(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	breaker := NewBreaker(1, 0.5, time.Minute)
	breaker.Report(false)

	cl := HTTPClient{Client: srv.Client(), Breaker: breaker, MaxAttempts: 3, BaseBackoff: time.Millisecond}
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	_, err := cl.Do(context.Background(), req)
	if err != ErrOpenCircuit {
		t.Fatalf("expected ErrOpenCircuit, got %v", err)
	}
	if got := calls.Load(); got != 0 {
		t.Fatalf("expected no requests through an open breaker, got %d", got)
	}
}
