package reconcile

import (
	"context"

	"wishwell/internal/storage"
)

// StoreRemote adapts the durable store to the Remote read surface. The store
// is local, so the context is unused.
type StoreRemote struct {
	Store *storage.Store
}

func (s StoreRemote) ListItems(_ context.Context, ownerID string) ([]storage.Item, error) {
	return s.Store.ListItems(ownerID)
}
