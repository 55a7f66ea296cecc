package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Repository is the read side the engine depends on. Implementations return
// only non-deleted rows of the given tenant.
type Repository interface {
	ListTransactions(ctx context.Context, tenant uuid.UUID, kind Kind, r DateRange) ([]Transaction, error)
	CountDistinctClients(ctx context.Context, tenant uuid.UUID) (int64, error)
	CountActiveProducts(ctx context.Context, tenant uuid.UUID) (int64, error)
	KpiTargets(ctx context.Context, tenant uuid.UUID) (map[string]float64, error)
}

// TargetWriter persists KPI targets. A batch is stored atomically.
type TargetWriter interface {
	UpsertKpiTargets(ctx context.Context, tenant uuid.UUID, targets map[string]float64) error
}

// Notifier broadcasts invalidations to other processes.
type Notifier interface {
	Publish(ctx context.Context, tenant uuid.UUID, tag string) error
}

// Recorder receives engine instrumentation.
type Recorder interface {
	CacheHit()
	CacheMiss()
	Recompute(d time.Duration)
	PartialFailure(source string)
}

// Result is the full analytics payload for one window.
type Result struct {
	Tenant      uuid.UUID           `json:"tenant"`
	Months      int                 `json:"months"`
	GeneratedAt time.Time           `json:"generatedAt"`
	Buckets     []MonthlyBucket     `json:"buckets"`
	Totals      Totals              `json:"totals"`
	KPIs        []KPIMetric         `json:"kpis"`
	Deltas      map[string]KpiDelta `json:"deltas"`
	Warnings    []string            `json:"warnings,omitempty"`
}

func (r Result) clone() Result {
	out := r
	out.Buckets = slices.Clone(r.Buckets)
	out.KPIs = slices.Clone(r.KPIs)
	for i, m := range out.KPIs {
		if m.PreviousValue != nil {
			prev := *m.PreviousValue
			out.KPIs[i].PreviousValue = &prev
		}
	}
	out.Deltas = maps.Clone(r.Deltas)
	out.Warnings = slices.Clone(r.Warnings)
	return out
}

// DefaultComputeTimeout bounds a shared recomputation once it no longer
// follows any caller's context.
const DefaultComputeTimeout = 30 * time.Second

// ServiceConfig carries optional collaborators.
type ServiceConfig struct {
	Logger        *slog.Logger
	Location      *time.Location
	DefaultMonths int
	Metrics       Recorder
	Notifier      Notifier
	Targets       TargetWriter
	// ComputeTimeout bounds one recomputation. Defaults to DefaultComputeTimeout.
	ComputeTimeout time.Duration
}

// Service runs the analytics pipeline behind the staleness cache.
type Service struct {
	repo          Repository
	cache         Cache
	validator     *Validator
	logger        *slog.Logger
	loc           *time.Location
	defaultMonths int
	metrics       Recorder
	notifier      Notifier
	targets       TargetWriter
	timeout       time.Duration
	flight        singleflight.Group
	now           func() time.Time
}

// NewService wires a Repository with a Cache. A nil cache recomputes on
// every call.
func NewService(repo Repository, cache Cache, cfg ServiceConfig) *Service {
	s := &Service{
		repo:          repo,
		cache:         cache,
		validator:     NewValidator(),
		logger:        cfg.Logger,
		loc:           cfg.Location,
		defaultMonths: cfg.DefaultMonths,
		metrics:       cfg.Metrics,
		notifier:      cfg.Notifier,
		targets:       cfg.Targets,
		timeout:       cfg.ComputeTimeout,
		now:           time.Now,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.defaultMonths <= 0 {
		s.defaultMonths = DefaultWindowMonths
	}
	if s.metrics == nil {
		s.metrics = noopRecorder{}
	}
	if s.timeout <= 0 {
		s.timeout = DefaultComputeTimeout
	}
	return s
}

// WithNow overrides the service clock for testing.
func (s *Service) WithNow(fn func() time.Time) {
	if fn != nil {
		s.now = fn
	}
}

// ComputeAnalytics returns buckets, KPIs and deltas for w, served from the
// cache while fresh. Concurrent misses on the same window and cache
// generation share one recomputation, which runs detached from the callers'
// contexts: a caller that gives up gets ctx.Err() while the others keep
// waiting. Repository failures never fail the call; they surface as warnings
// on a result computed from the remaining data.
func (s *Service) ComputeAnalytics(ctx context.Context, w Window) (Result, error) {
	if s.repo == nil {
		return Result{}, errors.New("analytics: repository not configured")
	}
	if w.Months == 0 {
		w.Months = s.defaultMonths
	}
	w, err := w.Normalize()
	if err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	if s.cache != nil {
		value, ok, err := s.cache.Get(ctx, w)
		switch {
		case err != nil:
			s.logger.Warn("analytics cache read", slog.String("key", w.Key()), slog.Any("error", err))
		case ok:
			s.metrics.CacheHit()
			return value, nil
		}
		s.metrics.CacheMiss()
	}

	flightKey, stamp := w.Key(), ""
	if s.cache != nil {
		stamp, err = s.cache.Stamp(ctx, w)
		if err != nil {
			s.logger.Warn("analytics cache stamp", slog.String("key", w.Key()), slog.Any("error", err))
		} else {
			flightKey += "@" + stamp
		}
	}

	ch := s.flight.DoChan(flightKey, func() (interface{}, error) {
		computeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		result, err := s.compute(computeCtx, w)
		if err != nil {
			return nil, err
		}
		if stamp != "" {
			if err := s.cache.Store(computeCtx, w, stamp, result); err != nil {
				s.logger.Warn("analytics cache write", slog.String("key", w.Key()), slog.Any("error", err))
			}
		}
		return result, nil
	})

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Result{}, res.Err
		}
		result := res.Val.(Result)
		if res.Shared {
			result = result.clone()
		}
		return result, nil
	}
}

// Invalidate forces the next read of tenant's windows to recompute and tells
// the other processes to do the same.
func (s *Service) Invalidate(ctx context.Context, tenant uuid.UUID, tag string) error {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, tenant, tag); err != nil {
			return fmt.Errorf("analytics: invalidate cache: %w", err)
		}
	}
	if s.notifier != nil {
		if err := s.notifier.Publish(ctx, tenant, tag); err != nil {
			return fmt.Errorf("analytics: publish invalidation: %w", err)
		}
	}
	s.logger.Info("analytics invalidated", slog.String("tenant", tenant.String()), slog.String("tag", tag))
	return nil
}

// SetTarget stores a KPI target and invalidates the tenant's results.
func (s *Service) SetTarget(ctx context.Context, tenant uuid.UUID, name string, target float64) error {
	return s.SetTargets(ctx, tenant, map[string]float64{name: target})
}

// SetTargets stores several KPI targets at once. Nothing is written when any
// name is unknown or any value is not finite.
func (s *Service) SetTargets(ctx context.Context, tenant uuid.UUID, targets map[string]float64) error {
	if s.targets == nil {
		return errors.New("analytics: target store not configured")
	}
	if len(targets) == 0 {
		return errors.New("analytics: no targets given")
	}
	for name, target := range targets {
		if _, ok := LookupKPI(name); !ok {
			return fmt.Errorf("%w: %s", ErrUnknownKPI, name)
		}
		if math.IsNaN(target) || math.IsInf(target, 0) {
			return fmt.Errorf("analytics: target for %s must be finite", name)
		}
	}
	if err := s.targets.UpsertKpiTargets(ctx, tenant, targets); err != nil {
		return fmt.Errorf("analytics: store targets: %w", err)
	}
	return s.Invalidate(ctx, tenant, TagKPITargets)
}

func (s *Service) compute(ctx context.Context, w Window) (Result, error) {
	start := time.Now()
	now := s.now().In(s.loc)
	deltaWindows := DeltaWindowsAt(now)
	span := windowRange(now, w.Months).Union(deltaWindows.Span())

	batch := s.load(ctx, w.Tenant, span)
	// A recomputation past its deadline discards what was loaded.
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	txs, issues := s.sanitize(batch.transactions)

	buckets, totals := Aggregate(BucketTransactions(txs, now, w.Months))
	kpis := ComputeKPIs(KPIInput{Totals: totals, ClientCount: batch.clients, ProductCount: batch.products})
	previous := ComputeKPIs(KPIInput{
		Totals:       AggregateRange(txs, deltaWindows.PreviousMonth),
		ClientCount:  batch.clients,
		ProductCount: batch.products,
	})
	kpis = ApplyTargets(WithPrevious(kpis, previous), batch.targets)

	result := Result{
		Tenant:      w.Tenant,
		Months:      w.Months,
		GeneratedAt: now,
		Buckets:     buckets,
		Totals:      totals,
		KPIs:        kpis,
		Deltas:      ComputeDeltas(txs, now),
		Warnings:    append(batch.warnings, issues...),
	}
	s.metrics.Recompute(time.Since(start))
	return result, nil
}

type loadBatch struct {
	transactions []Transaction
	clients      int64
	products     int64
	targets      map[string]float64
	warnings     []string
}

// load fans the repository reads out concurrently and joins them. A failed
// read is logged and treated as empty.
func (s *Service) load(ctx context.Context, tenant uuid.UUID, span DateRange) loadBatch {
	byKind := make([][]Transaction, len(Kinds))
	kindErrs := make([]error, len(Kinds))
	var (
		clients, products     int64
		targets               map[string]float64
		clientErr, productErr error
		targetErr             error
	)

	var g errgroup.Group
	for i, kind := range Kinds {
		g.Go(func() error {
			byKind[i], kindErrs[i] = s.repo.ListTransactions(ctx, tenant, kind, span)
			return nil
		})
	}
	g.Go(func() error {
		clients, clientErr = s.repo.CountDistinctClients(ctx, tenant)
		return nil
	})
	g.Go(func() error {
		products, productErr = s.repo.CountActiveProducts(ctx, tenant)
		return nil
	})
	g.Go(func() error {
		targets, targetErr = s.repo.KpiTargets(ctx, tenant)
		return nil
	})
	_ = g.Wait()

	var batch loadBatch
	for i, kind := range Kinds {
		if err := kindErrs[i]; err != nil {
			batch.warnings = append(batch.warnings, s.partialFailure(tenant, string(kind), err))
			continue
		}
		batch.transactions = append(batch.transactions, byKind[i]...)
	}
	if clientErr != nil {
		batch.warnings = append(batch.warnings, s.partialFailure(tenant, "clients", clientErr))
	} else {
		batch.clients = clients
	}
	if productErr != nil {
		batch.warnings = append(batch.warnings, s.partialFailure(tenant, "products", productErr))
	} else {
		batch.products = products
	}
	if targetErr != nil {
		batch.warnings = append(batch.warnings, s.partialFailure(tenant, "kpi_targets", targetErr))
	} else {
		batch.targets = targets
	}
	return batch
}

func (s *Service) partialFailure(tenant uuid.UUID, source string, err error) string {
	s.metrics.PartialFailure(source)
	s.logger.Warn("analytics load failed", slog.String("tenant", tenant.String()), slog.String("source", source), slog.Any("error", err))
	return fmt.Sprintf("%s unavailable", source)
}

// sanitize drops structurally invalid transactions and reports clamped
// discounts, so one bad row never sinks the aggregation.
func (s *Service) sanitize(txs []Transaction) ([]Transaction, []string) {
	clean := make([]Transaction, 0, len(txs))
	var issues []string
	for _, tx := range txs {
		if err := s.validator.Transaction(tx); err != nil {
			s.logger.Warn("analytics skipped transaction", slog.String("id", tx.ID.String()), slog.Any("error", err))
			issues = append(issues, fmt.Sprintf("transaction %s skipped", tx.ID))
			continue
		}
		for _, issue := range tx.DiscountIssues() {
			s.logger.Warn("analytics clamped discount", slog.String("id", tx.ID.String()), slog.String("issue", issue))
			issues = append(issues, fmt.Sprintf("transaction %s: %s", tx.ID, issue))
		}
		clean = append(clean, tx)
	}
	return clean, issues
}

type noopRecorder struct{}

func (noopRecorder) CacheHit()               {}
func (noopRecorder) CacheMiss()              {}
func (noopRecorder) Recompute(time.Duration) {}
func (noopRecorder) PartialFailure(string)   {}
