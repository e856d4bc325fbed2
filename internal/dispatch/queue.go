// Package dispatch provides the enrichment channel implementations: a durable
// local job queue (the write-back path) and an at-most-once outbound webhook
// for an external processor.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"wishwell/internal/storage"
	"wishwell/internal/wish"
)

// JobEnrichItem is the queue job type consumed by the enrich worker.
const JobEnrichItem = "enrich_item"

// JobQueue is the slice of storage the queue dispatcher needs.
type JobQueue interface {
	EnqueueJob(job storage.Job) error
}

// Queue dispatches enrichment requests onto the durable job queue.
type Queue struct {
	jobs JobQueue

	// MaxAttempts caps retries for the jobs this queue creates. Zero leaves
	// the storage default in place.
	MaxAttempts int
}

func NewQueue(jobs JobQueue) *Queue {
	return &Queue{jobs: jobs}
}

func (q *Queue) Dispatch(ctx context.Context, req wish.EnrichmentRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshalling enrichment payload: %w", err)
	}
	job := storage.Job{
		ID:          uuid.New().String(),
		Type:        JobEnrichItem,
		PayloadJSON: string(payload),
		MaxAttempts: q.MaxAttempts,
	}
	if err := q.jobs.EnqueueJob(job); err != nil {
		return fmt.Errorf("enqueueing enrichment job: %w", err)
	}
	return nil
}
