package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/lakshayybhati/liftor-sub005/internal/http/handlers"
	"github.com/lakshayybhati/liftor-sub005/internal/middleware"
)

// Options tunes the cross-cutting middleware around the plan routes.
type Options struct {
	RateLimitPerMin    int
	CORSAllowedOrigins []string
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimiddleware.RealIP,
		chimiddleware.Recoverer,
		middleware.Logger(app.Logger),
	)
	if len(opts.CORSAllowedOrigins) > 0 {
		r.Use(middleware.CORS(opts.CORSAllowedOrigins))
	}

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/plans", func(r chi.Router) {
		r.Use(middleware.Owner)
		if opts.RateLimitPerMin > 0 {
			r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))
		}
		r.Post("/", app.PlansCreate)
		r.Get("/active", app.PlansActive)
		r.Get("/{id}", app.PlansGet)
		r.Get("/{id}/artifact", app.PlansArtifact)
		r.Post("/{id}/cancel", app.PlansCancel)
		r.Post("/{id}/reset", app.PlansReset)
	})

	return r
}
