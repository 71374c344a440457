// Package queue provides the wake-signal channel between the API and the
// worker. A delivered signal is only a hint that a job id may be pending: the
// worker always re-checks the job store before acting, and a periodic sweep
// covers signals that were lost entirely.
package queue

import "context"

// Notifier publishes a wake signal carrying a job identifier.
type Notifier interface {
	Notify(ctx context.Context, jobID string) error
}

// Subscriber blocks until a wake signal arrives or the context is cancelled.
type Subscriber interface {
	Receive(ctx context.Context) (jobID string, err error)
	Close() error
}
