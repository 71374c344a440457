// Package generation implements the handler behind "generate" jobs: it loads
// the brand profile, asks the text provider for content ideas, and drives the
// batch through its state machine.
package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/retry"
)

// TextGenerator produces raw model output for a rendered prompt.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// statusWriteTimeout bounds the detached terminal status write during
// shutdown.
const statusWriteTimeout = 30 * time.Second

// Handler executes generate jobs. Any error surfaces as a FAILED batch; the
// worker boundary above converts the returned error into job state.
type Handler struct {
	batches     domain.BatchRepository
	profiles    domain.ProfileRepository
	content     domain.ContentRepository
	generator   TextGenerator
	logger      infra.Logger
	itemCount   int
	statusRetry retry.Policy
}

// HandlerOptions tunes the handler beyond its collaborators.
type HandlerOptions struct {
	ItemCount   int
	StatusRetry retry.Policy
}

// NewHandler wires a generation handler.
func NewHandler(
	batches domain.BatchRepository,
	profiles domain.ProfileRepository,
	content domain.ContentRepository,
	generator TextGenerator,
	logger infra.Logger,
	opts HandlerOptions,
) *Handler {
	itemCount := opts.ItemCount
	if itemCount <= 0 {
		itemCount = 5
	}
	statusRetry := opts.StatusRetry
	if statusRetry == (retry.Policy{}) {
		statusRetry = retry.DefaultStatusWrite
	}
	return &Handler{
		batches:     batches,
		profiles:    profiles,
		content:     content,
		generator:   generator,
		logger:      logger,
		itemCount:   itemCount,
		statusRetry: statusRetry,
	}
}

// Type reports the job type this handler serves.
func (h *Handler) Type() domain.JobType {
	return domain.JobTypeGenerate
}

// Handle runs one generate job. The returned result records how many items
// were persisted; on error the batch has already been marked FAILED.
func (h *Handler) Handle(ctx context.Context, job *domain.Job) (json.RawMessage, error) {
	payload, err := domain.DecodeGeneratePayload(job.Payload)
	if err != nil {
		return nil, err
	}

	count, err := h.run(ctx, payload)
	if err != nil {
		h.failBatch(ctx, payload.BatchID, err)
		return nil, err
	}

	result, err := json.Marshal(map[string]int{"items": count})
	if err != nil {
		return nil, fmt.Errorf("encode job result: %w", err)
	}
	return result, nil
}

func (h *Handler) run(ctx context.Context, p domain.GeneratePayload) (int, error) {
	batch, err := h.batches.GetByID(ctx, p.BatchID)
	if err != nil {
		return 0, fmt.Errorf("load batch %s: %w", p.BatchID, err)
	}
	if batch.Status.IsTerminal() {
		// Redelivered signal for a finished batch; nothing to do.
		h.logger.Info().Str("batch_id", p.BatchID).Str("status", string(batch.Status)).Msg("generation: batch already terminal")
		return 0, nil
	}
	if batch.CancelRequested {
		return 0, domain.ErrBatchCancelled
	}

	if err := h.statusRetry.Do(ctx, func() error {
		return h.batches.MarkProcessing(ctx, p.BatchID)
	}); err != nil {
		return 0, fmt.Errorf("mark batch processing: %w", err)
	}

	profile, err := h.profiles.GetByID(ctx, p.ProfileID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, fmt.Errorf("%w: %s", domain.ErrProfileMissing, p.ProfileID)
		}
		return 0, fmt.Errorf("load profile %s: %w", p.ProfileID, err)
	}

	prompt := BuildPrompt(profile, h.itemCount)

	// Last cancellation check before the expensive provider call.
	if current, err := h.batches.GetByID(ctx, p.BatchID); err == nil && current.CancelRequested {
		return 0, domain.ErrBatchCancelled
	}

	raw, err := h.generator.GenerateText(ctx, prompt)
	if err != nil {
		return 0, fmt.Errorf("generate content: %w", err)
	}

	items, dropped, err := ParseContentItems(raw)
	if err != nil {
		return 0, err
	}
	if dropped > 0 {
		h.logger.Warn().Str("batch_id", p.BatchID).Int("dropped", dropped).Msg("generation: dropped malformed items")
	}

	ideas := make([]domain.ContentIdea, len(items))
	for i, item := range items {
		ideas[i] = domain.ContentIdea{
			ID:             uuid.NewString(),
			UserID:         p.UserID,
			BatchID:        p.BatchID,
			Title:          item.Title,
			Body:           item.Body,
			Tags:           item.Tags,
			SuggestedMedia: item.SuggestedMedia,
			ReviewStatus:   domain.ReviewStatusAwaiting,
		}
	}
	if err := h.content.InsertAll(ctx, ideas); err != nil {
		return 0, fmt.Errorf("insert content: %w", err)
	}

	if err := h.statusRetry.Do(ctx, func() error {
		return h.batches.MarkCompleted(ctx, p.BatchID)
	}); err != nil {
		return 0, fmt.Errorf("mark batch completed: %w", err)
	}

	h.logger.Info().Str("batch_id", p.BatchID).Int("items", len(ideas)).Msg("generation: batch completed")
	return len(ideas), nil
}

// failBatch records the terminal failure. It runs detached from the caller's
// cancellation so a shutdown mid-job cannot strand the batch in PROCESSING,
// and the write itself is retried with backoff.
func (h *Handler) failBatch(ctx context.Context, batchID string, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
	defer cancel()

	msg := cause.Error()
	if err := h.statusRetry.Do(ctx, func() error {
		return h.batches.MarkFailed(ctx, batchID, msg)
	}); err != nil {
		h.logger.Error().Err(err).Str("batch_id", batchID).Msg("generation: failed to record batch failure")
		return
	}
	h.logger.Warn().Str("batch_id", batchID).Str("reason", msg).Msg("generation: batch failed")
}
