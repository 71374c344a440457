package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"server/internal/http/handlers"
	appmw "server/internal/middleware"
)

func NewRouter(app *handlers.App, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Logger,
	)
	if len(allowedOrigins) > 0 {
		r.Use(appmw.CORS(allowedOrigins))
	}

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/generations", func(r chi.Router) {
		r.Post("/", app.GenerationsCreate)
		r.Get("/{id}", app.GenerationsGet)
		r.Post("/{id}/cancel", app.GenerationsCancel)
	})

	return r
}
