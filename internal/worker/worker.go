// Package worker runs the background job loop: it subscribes to the wake
// channel, claims jobs from the store, and dispatches them to registered
// handlers. A wake signal is only a hint; the claim is what decides.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/queue"
	"server/internal/retry"
)

// Handler executes one job of a given type. Errors (and panics, which the
// worker converts to errors) mark the job failed; they never escape the
// worker boundary.
type Handler interface {
	Type() domain.JobType
	Handle(ctx context.Context, job *domain.Job) (json.RawMessage, error)
}

// Config tunes the worker loop.
type Config struct {
	Concurrency   int
	SweepInterval time.Duration
	SweepMinAge   time.Duration
	StatusRetry   retry.Policy
}

// jobWriteTimeout bounds the detached terminal job-status write.
const jobWriteTimeout = 30 * time.Second

// receiveBackoff is the pause after a subscriber error before listening again.
const receiveBackoff = time.Second

// Worker is the long-running job processor. Distinct jobs run concurrently up
// to Concurrency; the same job id never runs twice at once in one process.
type Worker struct {
	jobs        domain.JobRepository
	sub         queue.Subscriber
	handlers    map[domain.JobType]Handler
	logger      infra.Logger
	cfg         Config
	statusRetry retry.Policy

	sem      chan struct{}
	mu       sync.Mutex
	inflight map[string]struct{}
	wg       sync.WaitGroup
}

// New constructs a worker. Register handlers before calling Run.
func New(jobs domain.JobRepository, sub queue.Subscriber, logger infra.Logger, cfg Config) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	statusRetry := cfg.StatusRetry
	if statusRetry == (retry.Policy{}) {
		statusRetry = retry.DefaultStatusWrite
	}
	return &Worker{
		jobs:        jobs,
		sub:         sub,
		handlers:    map[domain.JobType]Handler{},
		logger:      logger,
		cfg:         cfg,
		statusRetry: statusRetry,
		sem:         make(chan struct{}, cfg.Concurrency),
		inflight:    map[string]struct{}{},
	}
}

// Register adds a handler for its job type.
func (w *Worker) Register(h Handler) {
	w.handlers[h.Type()] = h
}

// Run blocks until ctx is cancelled, then drains in-flight jobs before
// returning.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info().Int("concurrency", w.cfg.Concurrency).Msg("worker: started")

	if w.cfg.SweepInterval > 0 {
		w.wg.Add(1)
		go w.sweepLoop(ctx)
	}

	for {
		jobID, err := w.sub.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			w.logger.Error().Err(err).Msg("worker: receive failed")
			time.Sleep(receiveBackoff)
			continue
		}
		w.handleSignal(ctx, jobID)
	}

	w.wg.Wait()
	w.logger.Info().Msg("worker: drained")
	return ctx.Err()
}

// handleSignal claims the job named by a wake signal and starts it. Signals
// for jobs that are unknown, already claimed, or already in flight here are
// dropped.
func (w *Worker) handleSignal(ctx context.Context, jobID string) {
	if !w.markInflight(jobID) {
		w.logger.Debug().Str("job_id", jobID).Msg("worker: job already in flight, signal dropped")
		return
	}
	if !w.acquire(ctx) {
		w.clearInflight(jobID)
		return
	}

	job, err := w.jobs.Claim(ctx, jobID)
	if err != nil {
		w.release()
		w.clearInflight(jobID)
		switch {
		case ctx.Err() != nil:
		case err == domain.ErrAlreadyClaimed || err == domain.ErrNotFound:
			w.logger.Debug().Str("job_id", jobID).Err(err).Msg("worker: signal dropped")
		default:
			w.logger.Error().Err(err).Str("job_id", jobID).Msg("worker: claim failed")
		}
		return
	}

	w.wg.Add(1)
	go w.process(ctx, job)
}

// process runs one claimed job inside an isolated failure boundary.
func (w *Worker) process(ctx context.Context, job *domain.Job) {
	defer w.wg.Done()
	defer w.release()
	defer w.clearInflight(job.ID)

	logger := w.logger.With().Str("job_id", job.ID).Str("job_type", string(job.Type)).Logger()
	logger.Info().Int("attempt", job.Attempts).Msg("worker: picked job")

	result, err := w.invoke(ctx, job)
	if err != nil {
		logger.Error().Err(err).Msg("worker: job failed")
		w.finalize(ctx, logger, "fail", func(fctx context.Context) error {
			return w.jobs.Fail(fctx, job.ID, err.Error())
		})
		return
	}

	w.finalize(ctx, logger, "complete", func(fctx context.Context) error {
		return w.jobs.Complete(fctx, job.ID, result)
	})
	logger.Info().Msg("worker: job completed")
}

func (w *Worker) invoke(ctx context.Context, job *domain.Job) (result json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	h, ok := w.handlers[job.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownJobType, job.Type)
	}
	return h.Handle(ctx, job)
}

// finalize performs a terminal job-status write, detached from the caller's
// cancellation and retried with backoff: losing this write would strand the
// job in processing.
func (w *Worker) finalize(ctx context.Context, logger infra.Logger, verb string, write func(context.Context) error) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), jobWriteTimeout)
	defer cancel()
	if err := w.statusRetry.Do(fctx, func() error { return write(fctx) }); err != nil {
		logger.Error().Err(err).Str("transition", verb).Msg("worker: job status write failed")
	}
}

// sweepLoop periodically claims pending jobs older than the configured age.
// It is the safety net for wake signals that were never delivered.
func (w *Worker) sweepLoop(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *Worker) sweep(ctx context.Context) {
	for {
		job, err := w.jobs.ClaimNextPending(ctx, w.cfg.SweepMinAge)
		if err != nil {
			if ctx.Err() == nil {
				w.logger.Error().Err(err).Msg("worker: sweep claim failed")
			}
			return
		}
		if job == nil {
			return
		}
		w.logger.Info().Str("job_id", job.ID).Msg("worker: sweep recovered job")

		// ClaimNextPending already owns the row, so a concurrent wake
		// signal holding the in-flight mark will fail its own claim and
		// drop out. The mark is only dedup; never abandon a claimed job
		// because of it.
		w.markInflight(job.ID)
		if !w.acquire(ctx) {
			w.clearInflight(job.ID)
			return
		}
		w.wg.Add(1)
		go w.process(ctx, job)
	}
}

func (w *Worker) acquire(ctx context.Context) bool {
	select {
	case w.sem <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

func (w *Worker) release() {
	<-w.sem
}

func (w *Worker) markInflight(jobID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.inflight[jobID]; ok {
		return false
	}
	w.inflight[jobID] = struct{}{}
	return true
}

func (w *Worker) clearInflight(jobID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.inflight, jobID)
}
