package storage

import "github.com/google/uuid"

// newID mints a durable identifier.
func newID() string {
	return uuid.New().String()
}
