package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Interaction is one archived question-answering request. Finished jobs are
// written here so their outcome survives eviction of the in-memory record.
type Interaction struct {
	ID               string
	CreatedAt        time.Time
	Question         string
	Answer           string
	Citations        string // JSON array stored as text
	Themes           string
	Status           string // "completed" or "failed"
	Error            string
	ProcessingTimeMs int64
}
