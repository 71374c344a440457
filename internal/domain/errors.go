package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyClaimed = errors.New("job already claimed")
	ErrUnknownJobType = errors.New("unknown job type")
	ErrBatchCancelled = errors.New("batch cancelled")
	ErrProfileMissing = errors.New("profile not found")
)
