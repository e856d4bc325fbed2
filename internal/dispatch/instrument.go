package dispatch

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"wishwell/internal/wish"
)

// Instrumented counts delivery failures on the wrapped dispatcher. The error
// still propagates so the caller's handling is unchanged.
type Instrumented struct {
	Next     wish.Dispatcher
	Failures prometheus.Counter
}

func (i *Instrumented) Dispatch(ctx context.Context, req wish.EnrichmentRequest) error {
	err := i.Next.Dispatch(ctx, req)
	if err != nil && i.Failures != nil {
		i.Failures.Inc()
	}
	return err
}
