// Package wish coordinates wish submissions: the durable placeholder write
// happens first, the enrichment dispatch is fire-and-forget, and the caller
// always gets back an item it can display immediately.
package wish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"wishwell/internal/storage"
)

// ErrEmptyURL is returned when a linked submission has no URL.
var ErrEmptyURL = errors.New("url is required")

// ErrEmptyFields is returned when a manual submission carries no content.
var ErrEmptyFields = errors.New("at least one of name, price, or image is required")

// PersistenceError wraps a failed durable write. This is the only failure
// that aborts a submission; the caller must not show the item as added.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("persisting item: %v", e.Err) }
func (e *PersistenceError) Unwrap() error { return e.Err }

// Owner identifies the submitting user. The identity fields travel with the
// enrichment dispatch so an external processor can attribute the request.
type Owner struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Username  string `json:"username"`
}

// EnrichmentRequest is the message sent over the enrichment channel.
type EnrichmentRequest struct {
	ItemID  string `json:"itemId"`
	URL     string `json:"url"`
	User    Owner  `json:"user"`
	ListID  string `json:"listId"`
	Message string `json:"message"`
	// NameLocked marks an owner-supplied name the write-back must keep.
	NameLocked bool `json:"nameLocked"`
	Source     string `json:"source"`
}

// ManualFields carries a manual (no-link) submission.
type ManualFields struct {
	Name  string
	Price string
	Image string
}

// ItemStore is the slice of storage the coordinator needs.
type ItemStore interface {
	SaveItem(item storage.Item) error
}

// Dispatcher delivers an enrichment request out-of-band, at most once.
type Dispatcher interface {
	Dispatch(ctx context.Context, req EnrichmentRequest) error
}

// Coordinator materializes wishes. Construction order inside a submission is
// fixed: durable write, then dispatch, so a dispatch failure never costs the
// item its visibility.
type Coordinator struct {
	store      ItemStore
	dispatcher Dispatcher
	logger     *slog.Logger
	now        func() time.Time
}

func NewCoordinator(store ItemStore, dispatcher Dispatcher, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:      store,
		dispatcher: dispatcher,
		logger:     logger,
		now:        time.Now,
	}
}

// SubmitLinkedWish persists a placeholder item for url and dispatches an
// enrichment request. The returned item is durable and displayable whether or
// not the dispatch succeeded; dispatch failures are logged and swallowed.
func (c *Coordinator) SubmitLinkedWish(ctx context.Context, url string, owner Owner, listID, message string) (storage.Item, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return storage.Item{}, ErrEmptyURL
	}

	name := strings.TrimSpace(message)
	nameLocked := name != ""
	if name == "" {
		name = storage.DefaultName
	}

	now := c.now().UTC()
	item := storage.Item{
		ID:               uuid.New().String(),
		OwnerID:          owner.ID,
		ListID:           listID,
		Name:             name,
		Price:            storage.PlaceholderPrice,
		Link:             url,
		EnrichmentStatus: storage.EnrichPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	// Phase 1: the placeholder must be durable before anything else happens.
	if err := c.store.SaveItem(item); err != nil {
		return storage.Item{}, &PersistenceError{Err: err}
	}

	// Phase 2: best-effort dispatch. The item already exists, so a channel
	// failure degrades to a placeholder that simply never enriches.
	req := EnrichmentRequest{
		ItemID:     item.ID,
		URL:        url,
		User:       owner,
		ListID:     listID,
		Message:    message,
		NameLocked: nameLocked,
		Source:     "wishwell",
	}
	if err := c.dispatcher.Dispatch(ctx, req); err != nil {
		c.logger.Warn("enrichment dispatch failed, item stays as placeholder",
			"item_id", item.ID, "url", url, "error", err)
	} else {
		c.logger.Debug("enrichment dispatched", "item_id", item.ID, "url", url)
	}

	return item, nil
}

// SubmitManualWish persists a complete item from user-supplied fields.
// Manual items never trigger enrichment.
func (c *Coordinator) SubmitManualWish(ctx context.Context, fields ManualFields, owner Owner, listID string) (storage.Item, error) {
	name := strings.TrimSpace(fields.Name)
	price := strings.TrimSpace(fields.Price)
	image := strings.TrimSpace(fields.Image)
	if name == "" && price == "" && image == "" {
		return storage.Item{}, ErrEmptyFields
	}
	if name == "" {
		name = storage.DefaultName
	}
	if price == "" {
		price = "0"
	}

	now := c.now().UTC()
	item := storage.Item{
		ID:               uuid.New().String(),
		OwnerID:          owner.ID,
		ListID:           listID,
		Name:             name,
		Price:            price,
		Image:            image,
		EnrichmentStatus: storage.EnrichEnriched,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := c.store.SaveItem(item); err != nil {
		return storage.Item{}, &PersistenceError{Err: err}
	}
	return item, nil
}
