// Package jobs tracks asynchronous question-answering requests from
// submission through completion and eviction.
package jobs

import "time"

// Status is the lifecycle state of a job.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether a job in this status will never change again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Result is the payload of a successfully answered question.
type Result struct {
	Answer           string
	Citations        []string
	Themes           string
	ProcessingTimeMs int64
}

// Job is one tracked question-answering request. Result is non-nil exactly
// when Status is completed; Error is non-empty exactly when Status is failed.
type Job struct {
	ID           string
	Question     string
	Context      string
	WeakConcepts []string
	Status       Status
	Progress     int
	Message      string
	Result       *Result
	Error        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
