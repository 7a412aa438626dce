package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/MrJamesThe3rd/cryptofund/internal/http/auth"
	"github.com/MrJamesThe3rd/cryptofund/internal/http/export"
	"github.com/MrJamesThe3rd/cryptofund/internal/http/invoice"
	"github.com/MrJamesThe3rd/cryptofund/internal/http/rates"
	"github.com/MrJamesThe3rd/cryptofund/internal/metrics"
)

type Options struct {
	JWTSecret      string
	AllowedOrigins []string
	StoreDriver    string
}

func New(
	opts Options,
	invoicesV1 *invoice.Handler,
	ratesV1 *rates.Handler,
	exportV1 *export.Handler,
) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	router.Get("/api/health", health(opts.StoreDriver))
	router.Method(http.MethodGet, "/metrics", metrics.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Middleware(opts.JWTSecret))

		r.Route("/invoices", func(r chi.Router) {
			r.Use(middleware.AllowContentType("application/json"))
			invoicesV1.Routes(r)
		})

		r.Route("/dashboard", invoicesV1.DashboardRoutes)

		r.Route("/rates", ratesV1.Routes)

		r.Route("/export", func(r chi.Router) {
			r.Use(middleware.AllowContentType("application/json"))
			exportV1.Routes(r)
		})
	})

	return router
}

func health(driver string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if err := json.NewEncoder(w).Encode(map[string]string{"status": "ok", "store": driver}); err != nil {
			slog.Error("failed to encode response", "error", err)
		}
	}
}
