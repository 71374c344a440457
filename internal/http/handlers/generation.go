package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"server/internal/domain"
)

type generationRequest struct {
	UserID    string `json:"user_id"`
	ProfileID string `json:"profile_id"`
}

// GenerationsCreate enqueues a content generation batch and wakes the worker.
func (a *App) GenerationsCreate(w http.ResponseWriter, r *http.Request) {
	var req generationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.UserID == "" || req.ProfileID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "user_id and profile_id are required")
		return
	}

	profile, err := a.Profiles.GetByID(r.Context(), req.ProfileID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "profile not found")
			return
		}
		a.Logger.Error().Err(err).Str("profile_id", req.ProfileID).Msg("load profile")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load profile")
		return
	}
	if profile.UserID != req.UserID {
		a.error(w, http.StatusNotFound, "not_found", "profile not found")
		return
	}

	batch := &domain.GenerationBatch{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		ProfileID: req.ProfileID,
		Status:    domain.BatchStatusPending,
	}
	if err := a.Batches.Create(r.Context(), batch); err != nil {
		a.Logger.Error().Err(err).Msg("create batch")
		a.error(w, http.StatusInternalServerError, "internal", "failed to create batch")
		return
	}

	payload, err := domain.EncodeGeneratePayload(domain.GeneratePayload{
		UserID:    req.UserID,
		ProfileID: req.ProfileID,
		BatchID:   batch.ID,
	})
	if err != nil {
		a.Logger.Error().Err(err).Msg("encode job payload")
		a.failEnqueue(r, w, batch.ID)
		return
	}
	job := &domain.Job{
		ID:      uuid.NewString(),
		Type:    domain.JobTypeGenerate,
		Payload: payload,
		Status:  domain.JobStatusPending,
	}
	if err := a.Jobs.Create(r.Context(), job); err != nil {
		a.Logger.Error().Err(err).Str("batch_id", batch.ID).Msg("create job")
		a.failEnqueue(r, w, batch.ID)
		return
	}

	// The wake signal is best effort. A lost signal is picked up by the
	// worker's reconciliation sweep, so the request still succeeds.
	if err := a.Notifier.Notify(r.Context(), job.ID); err != nil {
		a.Logger.Warn().Err(err).Str("job_id", job.ID).Msg("notify worker")
	}

	a.json(w, http.StatusAccepted, map[string]any{
		"batch_id": batch.ID,
		"status":   batch.Status,
	})
}

// failEnqueue closes out a batch whose job never made it into the store.
// Nothing will ever pick up such a batch, so leaving it PENDING would strand
// it.
func (a *App) failEnqueue(r *http.Request, w http.ResponseWriter, batchID string) {
	if err := a.Batches.MarkFailed(r.Context(), batchID, "failed to enqueue generation job"); err != nil {
		a.Logger.Error().Err(err).Str("batch_id", batchID).Msg("mark batch failed")
	}
	a.error(w, http.StatusInternalServerError, "internal", "failed to enqueue job")
}

// GenerationsGet returns the status of a batch, including accepted items
// once the batch has completed.
func (a *App) GenerationsGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	batch, err := a.Batches.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "batch not found")
			return
		}
		a.Logger.Error().Err(err).Str("batch_id", id).Msg("load batch")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load batch")
		return
	}

	resp := map[string]any{
		"id":         batch.ID,
		"status":     batch.Status,
		"created_at": batch.CreatedAt.UTC().Format(time.RFC3339),
	}
	if batch.ErrorMessage != "" {
		resp["error_message"] = batch.ErrorMessage
	}
	if batch.CancelRequested {
		resp["cancel_requested"] = true
	}
	if batch.Status == domain.BatchStatusCompleted {
		ideas, err := a.Content.ListByBatchID(r.Context(), batch.ID)
		if err != nil {
			a.Logger.Error().Err(err).Str("batch_id", id).Msg("load content ideas")
			a.error(w, http.StatusInternalServerError, "internal", "failed to load items")
			return
		}
		items := make([]map[string]any, 0, len(ideas))
		for _, idea := range ideas {
			items = append(items, map[string]any{
				"id":              idea.ID,
				"title":           idea.Title,
				"body":            idea.Body,
				"tags":            idea.Tags,
				"suggested_media": idea.SuggestedMedia,
				"review_status":   idea.ReviewStatus,
			})
		}
		resp["items"] = items
	}
	a.json(w, http.StatusOK, resp)
}

// GenerationsCancel flags a batch for cooperative cancellation. The worker
// honors the flag at its next checkpoint; a batch already past the provider
// call finishes normally.
func (a *App) GenerationsCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	batch, err := a.Batches.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "batch not found")
			return
		}
		a.Logger.Error().Err(err).Str("batch_id", id).Msg("load batch")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load batch")
		return
	}
	if batch.Status.IsTerminal() {
		a.error(w, http.StatusConflict, "conflict", "batch already finished")
		return
	}
	if err := a.Batches.RequestCancel(r.Context(), id); err != nil {
		a.Logger.Error().Err(err).Str("batch_id", id).Msg("request cancel")
		a.error(w, http.StatusInternalServerError, "internal", "failed to request cancellation")
		return
	}
	a.json(w, http.StatusAccepted, map[string]any{
		"id":               id,
		"cancel_requested": true,
	})
}
