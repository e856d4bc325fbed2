package reconcile

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"wishwell/internal/storage"
)

const fanOutLimit = 4

// LoadFriendItems fetches several friends' lists in parallel and merges the
// results after all fetches settle. Failures are logged and skipped; the
// returned map holds only the successful fetches.
func (r *Reader) LoadFriendItems(ctx context.Context, friendIDs []string) map[string][]storage.Item {
	results := make(map[string][]storage.Item, len(friendIDs))
	if len(friendIDs) == 0 {
		return results
	}

	var mu sync.Mutex
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(fanOutLimit)

	for _, id := range friendIDs {
		g.Go(func() error {
			items, err := r.remote.ListItems(gCtx, id)
			if err != nil {
				// Partial-failure tolerant: record nothing, keep going.
				r.logger.Warn("friend list fetch failed", "friend_id", id, "error", err)
				return nil
			}
			mu.Lock()
			results[id] = items
			mu.Unlock()
			return nil
		})
	}

	// Workers never return errors; Wait only orders the merge after all settle.
	g.Wait()
	return results
}
