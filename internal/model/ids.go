package model

import "github.com/google/uuid"

// NewID generates an opaque identifier for a new row. Callers that already
// have a natural key (a Role's Key, a ResourceType's Name) may still supply
// their own id; NewID exists for the common case where none is given.
func NewID() string {
	return uuid.NewString()
}
