package domain

import (
	"context"
	"encoding/json"
	"time"
)

// JobRepository defines persistence for job entities. Claim and the terminal
// transitions rely on single-row conditional updates; no application-level
// locks are involved.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	// Claim transitions pending -> processing and increments attempts.
	// Returns ErrAlreadyClaimed when the row exists but is not pending and
	// ErrNotFound when it does not exist.
	Claim(ctx context.Context, jobID string) (*Job, error)
	// ClaimNextPending claims the oldest pending job older than minAge.
	// Returns (nil, nil) when no such job exists.
	ClaimNextPending(ctx context.Context, minAge time.Duration) (*Job, error)
	// Complete and Fail are idempotent: calling them on an already-terminal
	// job is a no-op.
	Complete(ctx context.Context, jobID string, result json.RawMessage) error
	Fail(ctx context.Context, jobID string, errMsg string) error
	GetByID(ctx context.Context, jobID string) (*Job, error)
}

// BatchRepository defines persistence for generation batches. Terminal writes
// are idempotent and must not resurrect a finished batch.
type BatchRepository interface {
	Create(ctx context.Context, batch *GenerationBatch) error
	GetByID(ctx context.Context, batchID string) (*GenerationBatch, error)
	MarkProcessing(ctx context.Context, batchID string) error
	MarkCompleted(ctx context.Context, batchID string) error
	MarkFailed(ctx context.Context, batchID string, errMsg string) error
	RequestCancel(ctx context.Context, batchID string) error
}

// ProfileRepository supplies read-only profile access to the handler.
type ProfileRepository interface {
	GetByID(ctx context.Context, profileID string) (*Profile, error)
}

// ContentRepository persists generated content rows.
type ContentRepository interface {
	InsertAll(ctx context.Context, ideas []ContentIdea) error
	ListByBatchID(ctx context.Context, batchID string) ([]ContentIdea, error)
}
