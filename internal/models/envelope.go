package models

import (
	"time"

	"github.com/google/uuid"
)

// Envelope wraps a Rating with the metadata needed to route it asynchronously
type Envelope struct {
	ID     string `json:"id"`
	Scheme Scheme `json:"scheme"`
	Rating Rating `json:"rating"`

	// Internal processing metadata
	ReceivedAt time.Time `json:"received_at"`
	Source     string    `json:"source"` // "http", "kafka"
}

// NewEnvelope creates a new envelope for a rating
func NewEnvelope(r Rating, scheme Scheme, source string) *Envelope {
	return &Envelope{
		ID:         uuid.New().String(),
		Scheme:     scheme,
		Rating:     r,
		ReceivedAt: time.Now().UTC(),
		Source:     source,
	}
}
