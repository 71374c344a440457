package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/queue"
)

// Pinger reports whether the backing database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type App struct {
	Batches  domain.BatchRepository
	Jobs     domain.JobRepository
	Profiles domain.ProfileRepository
	Content  domain.ContentRepository
	Notifier queue.Notifier
	DB       Pinger
	Logger   infra.Logger
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]any{
		"error":   code,
		"message": message,
	})
}
