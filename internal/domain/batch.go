package domain

import "time"

// BatchStatus enumerates generation batch lifecycle states. A batch only ever
// leaves PROCESSING for a terminal state and never re-enters PENDING.
type BatchStatus string

const (
	BatchStatusPending    BatchStatus = "PENDING"
	BatchStatusProcessing BatchStatus = "PROCESSING"
	BatchStatusCompleted  BatchStatus = "COMPLETED"
	BatchStatusFailed     BatchStatus = "FAILED"
)

// IsTerminal reports whether the status is final.
func (s BatchStatus) IsTerminal() bool {
	return s == BatchStatusCompleted || s == BatchStatusFailed
}

// GenerationBatch is the parent record a polling client reads to learn the
// outcome of one generation job.
type GenerationBatch struct {
	ID              string
	UserID          string
	ProfileID       string
	Status          BatchStatus
	ErrorMessage    string
	CancelRequested bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
