// Package uid generates identifiers for requests and dispatch runs.
package uid

import "github.com/google/uuid"

// StringID generates string identifiers.
type StringID interface {
	Generate() string
}

// UUID generates time-ordered UUIDs.
type UUID struct{}

func NewUUID() *UUID {
	return &UUID{}
}

// Generate returns a version 7 UUID, or a random version 4 UUID when the
// clock source fails.
func (*UUID) Generate() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}
