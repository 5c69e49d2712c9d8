package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-billing/internal/auth"
	"github.com/odyssey-erp/odyssey-billing/internal/billing/invoices"
	"github.com/odyssey-erp/odyssey-billing/internal/billing/quotes"
	"github.com/odyssey-erp/odyssey-billing/internal/companies"
	"github.com/odyssey-erp/odyssey-billing/internal/customers"
	"github.com/odyssey-erp/odyssey-billing/internal/observability"
	"github.com/odyssey-erp/odyssey-billing/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-billing/internal/products"
	"github.com/odyssey-erp/odyssey-billing/internal/rbac"
	"github.com/odyssey-erp/odyssey-billing/internal/shared"
	"github.com/odyssey-erp/odyssey-billing/jobs"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger     *slog.Logger
	Config     *Config
	Services   *Services
	Metrics    *observability.Metrics
	JobHandler *jobs.Handler
	// Checks are probed by /readyz; a failing check returns 503.
	Checks map[string]Pinger
}

// NewRouter constructs the chi.Router: public health and metrics endpoints,
// the public login route, and the bearer-authenticated /api/v1 surface.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readiness(params.Checks, params.Logger))
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	svc := params.Services
	guard := rbac.Middleware{Policy: svc.Policy, Logger: params.Logger}

	r.Route("/api/v1", func(r chi.Router) {
		auth.NewHandler(svc.Auth).MountRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(svc.Auth))
			rbac.NewPermissionsHandler(svc.Policy).MountRoutes(r)
			companies.NewHandler(svc.Companies, guard).MountRoutes(r)
			customers.NewHandler(svc.Customers, guard).MountRoutes(r)
			products.NewHandler(svc.Products, guard).MountRoutes(r)
			invoices.NewHandler(svc.Invoices, guard).MountRoutes(r)
			quotes.NewHandler(svc.Quotes, guard).MountRoutes(r)
			if params.JobHandler != nil {
				r.With(guard.Require(shared.ResourceCompany, shared.ActionUpdate)).Group(params.JobHandler.MountRoutes)
			}
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, httpx.ProblemDetail{Title: "Not Found", Status: http.StatusNotFound, Code: "NOT_FOUND"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, httpx.ProblemDetail{Title: "Method Not Allowed", Status: http.StatusMethodNotAllowed, Code: "METHOD_NOT_ALLOWED"})
	})

	return r
}

func readiness(checks map[string]Pinger, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		status := http.StatusOK
		result := map[string]string{}
		for name, check := range checks {
			if err := check.Ping(ctx); err != nil {
				if logger != nil {
					logger.Warn("readiness check failed", slog.String("check", name), slog.Any("error", err))
				}
				result[name] = "unavailable"
				status = http.StatusServiceUnavailable
				continue
			}
			result[name] = "ok"
		}
		httpx.JSON(w, status, result)
	}
}
