package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// JobType tags a job row with the handler responsible for it.
type JobType string

const (
	JobTypeGenerate JobType = "generate"
)

// JobStatus enumerates job lifecycle states. The only legal edges are
// pending -> processing -> {completed, failed}.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Job is a unit of background work persisted in the job store. The payload is
// opaque to the store; DecodePayload interprets it according to Type.
type Job struct {
	ID           string
	Type         JobType
	Payload      json.RawMessage
	Status       JobStatus
	Attempts     int
	ResultJSON   json.RawMessage
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsTerminal reports whether the job has reached a final state.
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// GeneratePayload is the payload carried by JobTypeGenerate jobs.
type GeneratePayload struct {
	UserID    string `json:"user_id"`
	ProfileID string `json:"profile_id"`
	BatchID   string `json:"batch_id"`
}

// Validate checks that all identifiers are present.
func (p GeneratePayload) Validate() error {
	if strings.TrimSpace(p.UserID) == "" {
		return fmt.Errorf("generate payload: user_id is required")
	}
	if strings.TrimSpace(p.ProfileID) == "" {
		return fmt.Errorf("generate payload: profile_id is required")
	}
	if strings.TrimSpace(p.BatchID) == "" {
		return fmt.Errorf("generate payload: batch_id is required")
	}
	return nil
}

// EncodeGeneratePayload marshals a generate payload for persistence.
func EncodeGeneratePayload(p GeneratePayload) (json.RawMessage, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode generate payload: %w", err)
	}
	return raw, nil
}

// DecodeGeneratePayload unmarshals and validates a generate payload.
func DecodeGeneratePayload(raw json.RawMessage) (GeneratePayload, error) {
	var p GeneratePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return GeneratePayload{}, fmt.Errorf("decode generate payload: %w", err)
	}
	if err := p.Validate(); err != nil {
		return GeneratePayload{}, err
	}
	return p, nil
}

// DecodePayload dispatches on the job type. New job types extend this switch
// together with the worker registry.
func DecodePayload(j *Job) (any, error) {
	switch j.Type {
	case JobTypeGenerate:
		return DecodeGeneratePayload(j.Payload)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownJobType, j.Type)
	}
}
