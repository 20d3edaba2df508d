package platform

import (
	"github.com/google/uuid"
)

// NewID returns a UUIDv7 string used as a primary key. v7 ids sort by
// creation time, which keeps the id tie-break of list queries consistent
// with created_at.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}
