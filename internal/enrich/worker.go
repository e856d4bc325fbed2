// Package enrich runs the out-of-band half of the submission pipeline: it
// claims queued enrichment jobs, scrapes the product page, and writes the
// result back onto the still-pending placeholder item.
package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"wishwell/internal/dispatch"
	"wishwell/internal/extract"
	"wishwell/internal/storage"
	"wishwell/internal/wish"
)

// JobStore abstracts the queue and write-back operations.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	CompleteEnrichment(id, name, price, image string) error
	MarkEnrichmentFailed(id string) error
}

// PageExtractor derives commerce metadata from a product URL.
type PageExtractor interface {
	Extract(ctx context.Context, url string) (extract.Result, error)
}

// Worker processes enrich_item jobs from the job queue.
type Worker struct {
	store     JobStore
	extractor PageExtractor
	poll      time.Duration
	logger    *slog.Logger

	// WriteBacks, when set, counts successful enrichment write-backs.
	WriteBacks prometheus.Counter
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, extractor PageExtractor, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:     store,
		extractor: extractor,
		poll:      pollInterval,
		logger:    slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single enrich_item job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{dispatch.JobEnrichItem})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("enrichment job failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		w.settleItemOnFailure(job, err)
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var req wish.EnrichmentRequest
	if err := json.Unmarshal([]byte(job.PayloadJSON), &req); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	res, err := w.extractor.Extract(ctx, req.URL)
	if err != nil {
		return fmt.Errorf("extracting %s: %w", req.URL, err)
	}

	// A name the owner typed stays; the scraped title only fills the default.
	name := res.Title
	if req.NameLocked {
		name = ""
	}

	err = w.store.CompleteEnrichment(req.ItemID, name, res.Price, res.Image)
	if errors.Is(err, storage.ErrNotFound) {
		// Item deleted or already settled; the write-back is a no-op.
		w.logger.Debug("enrichment write-back skipped", "item_id", req.ItemID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("writing back enrichment for item %s: %w", req.ItemID, err)
	}

	if w.WriteBacks != nil {
		w.WriteBacks.Inc()
	}
	w.logger.Info("item enriched", "item_id", req.ItemID, "price", res.Price)
	return nil
}

// settleItemOnFailure marks the item failed once retries are exhausted or the
// failure is permanent. A failed item keeps its placeholder and stays
// visible; that is its terminal state, not an error the owner sees.
func (w *Worker) settleItemOnFailure(job *storage.Job, cause error) {
	var req wish.EnrichmentRequest
	if err := json.Unmarshal([]byte(job.PayloadJSON), &req); err != nil || req.ItemID == "" {
		return
	}

	lastAttempt := job.Attempts+1 >= job.MaxAttempts
	permanent := errors.Is(cause, extract.ErrInvalidURL)
	if !lastAttempt && !permanent {
		return
	}

	if err := w.store.MarkEnrichmentFailed(req.ItemID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		w.logger.Error("failed to settle item after enrichment failure", "item_id", req.ItemID, "error", err)
	}
}
