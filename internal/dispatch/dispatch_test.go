package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"wishwell/internal/storage"
	"wishwell/internal/wish"
)

type mockJobQueue struct {
	jobs      []storage.Job
	enqueueFn func(job storage.Job) error
}

func (m *mockJobQueue) EnqueueJob(job storage.Job) error {
	if m.enqueueFn != nil {
		return m.enqueueFn(job)
	}
	m.jobs = append(m.jobs, job)
	return nil
}

var testReq = wish.EnrichmentRequest{
	ItemID: "item-1",
	URL:    "https://shop.example/widget",
	User:   wish.Owner{ID: "alice"},
	ListID: "list-1",
	Source: "wishwell",
}

func TestQueue_Dispatch(t *testing.T) {
	jobs := &mockJobQueue{}
	q := NewQueue(jobs)

	if err := q.Dispatch(context.Background(), testReq); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if len(jobs.jobs) != 1 {
		t.Fatalf("enqueued %d jobs, want 1", len(jobs.jobs))
	}
	job := jobs.jobs[0]
	if job.Type != JobEnrichItem {
		t.Errorf("job type = %q, want %q", job.Type, JobEnrichItem)
	}
	if job.ID == "" {
		t.Error("job has no id")
	}

	var decoded wish.EnrichmentRequest
	if err := json.Unmarshal([]byte(job.PayloadJSON), &decoded); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if decoded.ItemID != "item-1" || decoded.URL != testReq.URL || decoded.User.ID != "alice" {
		t.Errorf("payload = %+v", decoded)
	}
}

// A configured retry cap must survive all the way into the stored job;
// the zero value leaves the storage default in place.
func TestQueue_MaxAttemptsReachesJob(t *testing.T) {
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	defer store.Close()

	q := NewQueue(store)
	q.MaxAttempts = 5
	if err := q.Dispatch(context.Background(), testReq); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	job, err := store.ClaimNextJob([]string{JobEnrichItem})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if job == nil {
		t.Fatal("no job enqueued")
	}
	if job.MaxAttempts != 5 {
		t.Errorf("max attempts = %d, want 5", job.MaxAttempts)
	}

	unconfigured := NewQueue(store)
	if err := unconfigured.Dispatch(context.Background(), testReq); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	job, err = store.ClaimNextJob([]string{JobEnrichItem})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if job == nil {
		t.Fatal("no job enqueued")
	}
	if job.MaxAttempts != 3 {
		t.Errorf("default max attempts = %d, want 3", job.MaxAttempts)
	}
}

func TestWebhook_Dispatch(t *testing.T) {
	var received wish.EnrichmentRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decoding body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, srv.Client())
	if err := wh.Dispatch(context.Background(), testReq); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if received.ItemID != "item-1" {
		t.Errorf("received = %+v", received)
	}
}

func TestWebhook_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, srv.Client())
	if err := wh.Dispatch(context.Background(), testReq); err == nil {
		t.Fatal("Dispatch = nil, want error for non-2xx status")
	}
}

// Multi attempts every channel even when an earlier one fails, and reports
// the first failure.
func TestMulti_AttemptsAll(t *testing.T) {
	failing := &mockJobQueue{enqueueFn: func(storage.Job) error { return errors.New("queue full") }}
	working := &mockJobQueue{}
	m := Multi{NewQueue(failing), NewQueue(working)}

	err := m.Dispatch(context.Background(), testReq)
	if err == nil {
		t.Fatal("Dispatch = nil, want the first error reported")
	}
	if len(working.jobs) != 1 {
		t.Errorf("second channel got %d dispatches, want 1", len(working.jobs))
	}
}

func TestInstrumented_CountsFailures(t *testing.T) {
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_dispatch_failures"})
	failing := &mockJobQueue{enqueueFn: func(storage.Job) error { return errors.New("down") }}
	d := &Instrumented{Next: NewQueue(failing), Failures: counter}

	if err := d.Dispatch(context.Background(), testReq); err == nil {
		t.Fatal("Dispatch = nil, want propagated error")
	}
	if got := testutil.ToFloat64(counter); got != 1 {
		t.Errorf("failure count = %v, want 1", got)
	}

	ok := &Instrumented{Next: NewQueue(&mockJobQueue{}), Failures: counter}
	if err := ok.Dispatch(context.Background(), testReq); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if got := testutil.ToFloat64(counter); got != 1 {
		t.Errorf("failure count after success = %v, want still 1", got)
	}
}
