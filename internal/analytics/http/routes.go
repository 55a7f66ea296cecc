package analytichttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/loja-gestor/loja-gestor/internal/platform/httpx"
	"github.com/loja-gestor/loja-gestor/internal/shared"
)

// ExportLimit bounds CSV exports per tenant per minute.
const ExportLimit = 10

// MountRoutes registers the analytics endpoints onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(ExportLimit, time.Minute,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.RespondError(w, httpx.ErrTooManyRequests)
		}),
	)

	r.Route("/api/analytics", func(r chi.Router) {
		r.Get("/", h.handleAnalytics)
		r.With(limiter).Get("/export.csv", h.handleCSV)
		r.Put("/targets", h.handleSetTargets)
		r.Put("/targets/{kpi}", h.handleSetTarget)
		r.Post("/invalidate", h.handleInvalidate)
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	if tenant, ok := shared.TenantFromContext(r.Context()); ok {
		return "tenant:" + tenant.String(), nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
