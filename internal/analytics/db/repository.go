package analyticsdb

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/loja-gestor/loja-gestor/internal/analytics"
	platformdb "github.com/loja-gestor/loja-gestor/internal/platform/db"
)

// Repository adapts Queries to analytics.Repository. Rows that fail
// validation are dropped here so the engine only sees well-formed records.
type Repository struct {
	db        DBTX
	queries   *Queries
	validator *analytics.Validator
	logger    *slog.Logger
}

// NewRepository constructs a Repository over db.
func NewRepository(db DBTX, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{db: db, queries: New(db), validator: analytics.NewValidator(), logger: logger}
}

// ListTransactions implements analytics.Repository.
func (r *Repository) ListTransactions(ctx context.Context, tenant uuid.UUID, kind analytics.Kind, rng analytics.DateRange) ([]analytics.Transaction, error) {
	rows, err := r.queries.ListTransactionLines(ctx, ListTransactionLinesParams{TenantID: tenant, Kind: kind, Range: rng})
	if err != nil {
		return nil, fmt.Errorf("analyticsdb: list %s: %w", kind, err)
	}
	txs := AssembleTransactions(kind, rows)
	valid := txs[:0]
	for _, tx := range txs {
		if err := r.validator.Transaction(tx); err != nil {
			r.logger.Warn("analyticsdb dropped row",
				slog.String("tenant", tenant.String()),
				slog.String("kind", string(kind)),
				slog.Any("error", err),
			)
			continue
		}
		valid = append(valid, tx)
	}
	return valid, nil
}

// CountDistinctClients implements analytics.Repository.
func (r *Repository) CountDistinctClients(ctx context.Context, tenant uuid.UUID) (int64, error) {
	n, err := r.queries.CountClients(ctx, tenant)
	if err != nil {
		return 0, fmt.Errorf("analyticsdb: count clients: %w", err)
	}
	return n, nil
}

// CountActiveProducts implements analytics.Repository.
func (r *Repository) CountActiveProducts(ctx context.Context, tenant uuid.UUID) (int64, error) {
	n, err := r.queries.CountActiveProducts(ctx, tenant)
	if err != nil {
		return 0, fmt.Errorf("analyticsdb: count products: %w", err)
	}
	return n, nil
}

// KpiTargets implements analytics.Repository.
func (r *Repository) KpiTargets(ctx context.Context, tenant uuid.UUID) (map[string]float64, error) {
	targets, err := r.queries.ListKpiTargets(ctx, tenant)
	if err != nil {
		return nil, fmt.Errorf("analyticsdb: kpi targets: %w", err)
	}
	return targets, nil
}

// UpsertKpiTargets implements analytics.TargetWriter. When the underlying
// handle can open transactions the batch is written in one.
func (r *Repository) UpsertKpiTargets(ctx context.Context, tenant uuid.UUID, targets map[string]float64) error {
	write := func(q *Queries) error {
		names := make([]string, 0, len(targets))
		for name := range targets {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if err := q.UpsertKpiTarget(ctx, tenant, name, targets[name]); err != nil {
				return fmt.Errorf("analyticsdb: upsert kpi target %s: %w", name, err)
			}
		}
		return nil
	}
	beginner, ok := r.db.(platformdb.Beginner)
	if !ok {
		return write(r.queries)
	}
	return platformdb.WithTx(ctx, beginner, func(tx pgx.Tx) error {
		return write(r.queries.WithTx(tx))
	})
}

// ActiveTenants lists the tenants the warmup job iterates.
func (r *Repository) ActiveTenants(ctx context.Context) ([]uuid.UUID, error) {
	ids, err := r.queries.ListActiveTenants(ctx)
	if err != nil {
		return nil, fmt.Errorf("analyticsdb: active tenants: %w", err)
	}
	return ids, nil
}

// AssembleTransactions folds consecutive rows of the same document into one
// Transaction. Rows must arrive grouped by document, as ListTransactionLines
// orders them.
func AssembleTransactions(kind analytics.Kind, rows []LineRow) []analytics.Transaction {
	var out []analytics.Transaction
	for _, row := range rows {
		id := uuid.UUID(row.DocumentID.Bytes)
		if n := len(out); n == 0 || out[n-1].ID != id {
			tx := analytics.Transaction{
				ID:                      id,
				Date:                    row.Date,
				Kind:                    kind,
				DocumentDiscountPercent: numericToDecimal(row.DocumentDiscount),
			}
			if row.ClientID.Valid {
				client := uuid.UUID(row.ClientID.Bytes)
				tx.ClientID = &client
			}
			out = append(out, tx)
		}
		if !row.Quantity.Valid && !row.UnitPrice.Valid {
			continue
		}
		current := &out[len(out)-1]
		current.Lines = append(current.Lines, analytics.Line{
			ProductID:       uuid.UUID(row.ProductID.Bytes),
			Quantity:        row.Quantity.Int64,
			UnitPrice:       numericToDecimal(row.UnitPrice),
			DiscountPercent: numericToDecimal(row.LineDiscount),
		})
	}
	return out
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.NaN || n.InfinityModifier != pgtype.Finite || n.Int == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}
