package httpapi

import (
	"crypto/subtle"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"reelsmith/internal/http/handlers"
	"reelsmith/internal/infra"
	"reelsmith/internal/middleware"
)

type Options struct {
	JWTSecret      string
	AdminToken     string
	AllowedOrigins []string
	DefaultLocale  string
	// SubmitPerSecond bounds per-user job submissions; reads share it.
	SubmitPerSecond float64
	SubmitBurst     int
	Logger          infra.Logger
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	if opts.SubmitPerSecond <= 0 {
		opts.SubmitPerSecond = 2
	}
	if opts.SubmitBurst <= 0 {
		opts.SubmitBurst = 5
	}

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimiddleware.RealIP,
		chimiddleware.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.AllowedOrigins),
	)

	r.Get("/v1/healthz", app.Health)

	r.Group(func(r chi.Router) {
		r.Use(
			middleware.Auth(opts.JWTSecret),
			middleware.Locale(opts.DefaultLocale),
			middleware.RateLimit(opts.SubmitPerSecond, opts.SubmitBurst),
		)
		r.Route("/v1/jobs", func(r chi.Router) {
			r.Post("/", app.JobsSubmit)
			r.Get("/{job_id}", app.JobStatus)
			r.Get("/{job_id}/artifacts", app.JobArtifacts)
			r.Post("/{job_id}/cancel", app.JobCancel)
			r.Post("/{job_id}/cancel-video", app.JobCancelVideo)
		})
		r.Route("/v1/credits", func(r chi.Router) {
			r.Get("/balance", app.CreditsBalance)
			r.Get("/transactions", app.CreditsTransactions)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(adminToken(opts.AdminToken))
		r.Post("/v1/admin/sweep", app.AdminSweep)
		r.Post("/v1/admin/jobs/{job_id}/requeue", app.AdminRequeue)
		r.Post("/v1/admin/credits/{user_id}/rebuild", app.AdminRebuildAccount)
		r.Put("/v1/admin/integrations/{provider}", app.AdminSetToken)
	})

	return r
}

// adminToken gates operational endpoints on a static shared token. An empty
// configured token disables the endpoints entirely.
func adminToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("X-Admin-Token")
			if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
