package analytichttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/text/language"

	"github.com/loja-gestor/loja-gestor/internal/analytics"
	"github.com/loja-gestor/loja-gestor/internal/analytics/export"
	"github.com/loja-gestor/loja-gestor/internal/platform/httpx"
	"github.com/loja-gestor/loja-gestor/internal/shared"
)

const defaultRequestTimeout = 5 * time.Second

// AnalyticsService is the engine contract used by the handler.
type AnalyticsService interface {
	ComputeAnalytics(ctx context.Context, w analytics.Window) (analytics.Result, error)
	SetTarget(ctx context.Context, tenant uuid.UUID, name string, target float64) error
	SetTargets(ctx context.Context, tenant uuid.UUID, targets map[string]float64) error
	Invalidate(ctx context.Context, tenant uuid.UUID, tag string) error
}

// Handler serves the analytics API.
type Handler struct {
	logger    *slog.Logger
	service   AnalyticsService
	formatter *export.Formatter
	validate  *validator.Validate
	timeout   time.Duration
	csvPool   sync.Pool
	now       func() time.Time
}

// NewHandler constructs the analytics HTTP handler. A non-positive timeout
// uses the default.
func NewHandler(logger *slog.Logger, service AnalyticsService, timeout time.Duration) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	h := &Handler{
		logger:    logger,
		service:   service,
		formatter: export.NewFormatter(export.DefaultLocale),
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		timeout:   timeout,
		now:       time.Now,
	}
	h.csvPool.New = func() interface{} { return new(bytes.Buffer) }
	return h
}

// WithNow overrides the handler clock for testing.
func (h *Handler) WithNow(fn func() time.Time) {
	if fn != nil {
		h.now = fn
	}
}

type analyticsResponse struct {
	Tenant      uuid.UUID                     `json:"tenant"`
	Months      int                           `json:"months"`
	GeneratedAt time.Time                     `json:"generatedAt"`
	Buckets     []analytics.MonthlyBucket     `json:"buckets"`
	Totals      analytics.Totals              `json:"totals"`
	KPIs        []analytics.KPIMetric         `json:"kpis"`
	Deltas      map[string]analytics.KpiDelta `json:"deltas"`
	Warnings    []string                      `json:"warnings"`
}

func (h *Handler) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	result, ok := h.compute(w, r)
	if !ok {
		return
	}
	warnings := result.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	httpx.JSON(w, http.StatusOK, analyticsResponse{
		Tenant:      result.Tenant,
		Months:      result.Months,
		GeneratedAt: result.GeneratedAt,
		Buckets:     result.Buckets,
		Totals:      result.Totals,
		KPIs:        result.KPIs,
		Deltas:      result.Deltas,
		Warnings:    warnings,
	})
}

func (h *Handler) handleCSV(w http.ResponseWriter, r *http.Request) {
	result, ok := h.compute(w, r)
	if !ok {
		return
	}

	buf := h.csvPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer func() {
		buf.Reset()
		h.csvPool.Put(buf)
	}()

	formatter := h.formatter
	if tag := preferredLanguage(r); tag != language.Und {
		formatter = export.NewFormatter(tag)
	}
	if err := formatter.WriteResult(buf, result); err != nil {
		h.respondError(w, "write analytics csv", err)
		return
	}

	filename := fmt.Sprintf("analytics-%s-%dm.csv", h.now().Format("2006-01-02"), result.Months)
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logError("stream csv", err)
	}
}

type targetRequest struct {
	Target *float64 `json:"target" validate:"required"`
}

func (h *Handler) handleSetTarget(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.tenant(w, r)
	if !ok {
		return
	}
	name := strings.TrimSpace(chi.URLParam(r, "kpi"))
	var req targetRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: target is required", httpx.ErrValidation))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	if err := h.service.SetTarget(ctx, tenant, name, *req.Target); err != nil {
		h.respondError(w, "set kpi target", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type targetsRequest struct {
	Targets map[string]float64 `json:"targets" validate:"required,min=1,max=16"`
}

func (h *Handler) handleSetTargets(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.tenant(w, r)
	if !ok {
		return
	}
	var req targetsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: targets must hold between 1 and 16 entries", httpx.ErrValidation))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	if err := h.service.SetTargets(ctx, tenant, req.Targets); err != nil {
		h.respondError(w, "set kpi targets", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type invalidateRequest struct {
	Tag string `json:"tag" validate:"required,oneof=sales purchases expenses orders clients products kpi_targets"`
}

func (h *Handler) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.tenant(w, r)
	if !ok {
		return
	}
	var req invalidateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	req.Tag = strings.TrimSpace(req.Tag)
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: unknown tag %q", httpx.ErrValidation, req.Tag))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	if err := h.service.Invalidate(ctx, tenant, req.Tag); err != nil {
		h.respondError(w, "invalidate analytics", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) compute(w http.ResponseWriter, r *http.Request) (analytics.Result, bool) {
	tenant, ok := h.tenant(w, r)
	if !ok {
		return analytics.Result{}, false
	}
	months, err := parseMonths(r)
	if err != nil {
		httpx.RespondError(w, err)
		return analytics.Result{}, false
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	result, err := h.service.ComputeAnalytics(ctx, analytics.Window{Tenant: tenant, Months: months})
	if err != nil {
		h.respondError(w, "compute analytics", err)
		return analytics.Result{}, false
	}
	return result, true
}

func (h *Handler) tenant(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	tenant, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrUnauthorized, shared.ErrMissingTenant))
		return uuid.Nil, false
	}
	return tenant, true
}

func parseMonths(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("months"))
	if raw == "" {
		return 0, nil
	}
	months, err := strconv.Atoi(raw)
	if err != nil || months <= 0 || months > analytics.MaxWindowMonths {
		return 0, fmt.Errorf("%w: months must be between 1 and %d", httpx.ErrValidation, analytics.MaxWindowMonths)
	}
	return months, nil
}

func preferredLanguage(r *http.Request) language.Tag {
	header := r.Header.Get("Accept-Language")
	if header == "" {
		return language.Und
	}
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return language.Und
	}
	return tags[0]
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, analytics.ErrInvalidWindow):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
	case errors.Is(err, analytics.ErrUnknownKPI):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrNotFound, err))
	case errors.Is(err, context.DeadlineExceeded):
		h.logError(op, err)
		httpx.Problem(w, http.StatusGatewayTimeout, "Timeout", "")
	default:
		h.logError(op, err)
		httpx.RespondError(w, err)
	}
}

func (h *Handler) logError(op string, err error) {
	h.logger.Error(op, slog.Any("error", err))
}
