package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyClaimed is returned when a claim loses the race to an earlier one.
var ErrAlreadyClaimed = errors.New("item already claimed")

// Enrichment states for an item. A linked submission starts pending and moves
// exactly once, either to enriched by the write-back or to failed when the
// extraction gives up. Manual items are created enriched.
const (
	EnrichPending  = "pending"
	EnrichEnriched = "enriched"
	EnrichFailed   = "failed"
)

// PlaceholderPrice is the display value a pending item carries until the
// enrichment write-back replaces it.
const PlaceholderPrice = "fetching"

// DefaultName is used when neither the owner nor the extractor provided one.
const DefaultName = "New Wish"

// Item is a wishlist entry. Price stays a string: currency formatting varies
// by source site and the value is display-only.
type Item struct {
	ID               string    `json:"id"`
	OwnerID          string    `json:"owner_id"`
	ListID           string    `json:"list_id"`
	Name             string    `json:"name"`
	Price            string    `json:"price"`
	Image            string    `json:"image,omitempty"`
	Link             string    `json:"link,omitempty"`
	EnrichmentStatus string    `json:"enrichment_status"`
	ClaimedBy        string    `json:"claimed_by,omitempty"`
	ClaimedAt        time.Time `json:"claimed_at,omitzero"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Claimed reports whether any claimer has reserved the item.
func (i Item) Claimed() bool { return i.ClaimedBy != "" }

type List struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Profile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

type Friend struct {
	UserID    string    `json:"user_id"`
	FriendID  string    `json:"friend_id"`
	CreatedAt time.Time `json:"created_at"`
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
