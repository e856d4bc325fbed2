// Package reconcile implements the cache-then-revalidate list read-path and
// the partial-failure-tolerant fan-out over friends' lists. Readers may
// transiently observe stale data but converge to the remote state once a
// refresh completes; identical refreshes never trigger a re-render.
package reconcile

import (
	"context"
	"log/slog"

	"wishwell/internal/storage"
)

// Remote is the durable store's list read surface.
type Remote interface {
	ListItems(ctx context.Context, ownerID string) ([]storage.Item, error)
}

// Cache is the local snapshot tier.
type Cache interface {
	GetItems(ownerID string) ([]storage.Item, bool)
	PutItems(ownerID string, items []storage.Item) error
}

// Reader serves list views.
type Reader struct {
	remote Remote
	cache  Cache
	logger *slog.Logger
}

func NewReader(remote Remote, cache Cache, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{remote: remote, cache: cache, logger: logger}
}

// Read renders the cached snapshot immediately when one exists, then
// refreshes from the remote store. The refreshed list is rendered (and
// cached) only when it structurally differs from what was already shown, so
// an unchanged remote causes no second render.
//
// A remote failure degrades to the stale cached view; it is an error only
// when there was nothing to show at all.
func (r *Reader) Read(ctx context.Context, ownerID string, render func([]storage.Item)) error {
	cached, hasCache := r.cache.GetItems(ownerID)
	if hasCache {
		render(cached)
	}

	remote, err := r.remote.ListItems(ctx, ownerID)
	if err != nil {
		if hasCache {
			r.logger.Warn("list refresh failed, serving cached snapshot", "owner_id", ownerID, "error", err)
			return nil
		}
		return err
	}

	if hasCache && ItemsEqual(cached, remote) {
		return nil
	}

	render(remote)
	if err := r.cache.PutItems(ownerID, remote); err != nil {
		r.logger.Warn("failed to cache list snapshot", "owner_id", ownerID, "error", err)
	}
	return nil
}

// ItemsEqual is the cheap structural comparison behind the re-render
// short-circuit. Order matters: lists are already newest-first on both sides.
func ItemsEqual(a, b []storage.Item) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !itemEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

func itemEqual(a, b storage.Item) bool {
	return a.ID == b.ID &&
		a.OwnerID == b.OwnerID &&
		a.ListID == b.ListID &&
		a.Name == b.Name &&
		a.Price == b.Price &&
		a.Image == b.Image &&
		a.Link == b.Link &&
		a.EnrichmentStatus == b.EnrichmentStatus &&
		a.ClaimedBy == b.ClaimedBy &&
		a.ClaimedAt.Equal(b.ClaimedAt) &&
		a.CreatedAt.Equal(b.CreatedAt) &&
		a.UpdatedAt.Equal(b.UpdatedAt)
}
