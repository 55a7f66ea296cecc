// Package analyticsdb reads the transactional tables feeding the analytics
// engine. Every query is tenant scoped and skips soft-deleted rows.
package analyticsdb

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/loja-gestor/loja-gestor/internal/analytics"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries runs the raw statements.
type Queries struct {
	db DBTX
}

// New wraps db.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx binds the queries to tx.
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

type documentSource struct {
	header   string
	items    string
	fk       string
	date     string
	client   string
	criteria string
}

var documentSources = map[analytics.Kind]documentSource{
	analytics.KindSale:     {header: "stock_exits", items: "stock_exit_items", fk: "exit_id", date: "exit_date", client: "d.client_id"},
	analytics.KindPurchase: {header: "stock_entries", items: "stock_entry_items", fk: "entry_id", date: "entry_date", client: "NULL::uuid"},
	analytics.KindExpense:  {header: "expenses", items: "expense_items", fk: "expense_id", date: "expense_date", client: "NULL::uuid"},
	analytics.KindOrder:    {header: "orders", items: "order_items", fk: "order_id", date: "order_date", client: "d.client_id", criteria: " AND d.status = 'pending'"},
}

var listLineQueries = buildListLineQueries()

func buildListLineQueries() map[analytics.Kind]string {
	out := make(map[analytics.Kind]string, len(documentSources))
	for kind, src := range documentSources {
		out[kind] = fmt.Sprintf(`SELECT d.id, %[5]s, d.%[4]s, COALESCE(d.discount_percent, 0),
       i.product_id, i.quantity::bigint, i.unit_price, COALESCE(i.discount_percent, 0)
FROM %[1]s d
LEFT JOIN %[2]s i ON i.%[3]s = d.id AND i.deleted_at IS NULL
WHERE d.tenant_id = $1
  AND d.deleted_at IS NULL%[6]s
  AND d.%[4]s >= $2
  AND (d.%[4]s < $3 OR (NOT $4 AND d.%[4]s = $3))
ORDER BY d.%[4]s, d.id, i.position`, src.header, src.items, src.fk, src.date, src.client, src.criteria)
	}
	return out
}

// LineRow is one document line joined with its header. Documents without
// lines yield a single row whose line columns are NULL.
type LineRow struct {
	DocumentID       pgtype.UUID
	ClientID         pgtype.UUID
	Date             time.Time
	DocumentDiscount pgtype.Numeric
	ProductID        pgtype.UUID
	Quantity         pgtype.Int8
	UnitPrice        pgtype.Numeric
	LineDiscount     pgtype.Numeric
}

// ListTransactionLinesParams scopes ListTransactionLines.
type ListTransactionLinesParams struct {
	TenantID uuid.UUID
	Kind     analytics.Kind
	Range    analytics.DateRange
}

// ListTransactionLines returns the lines of every live document of the kind
// in the range.
func (q *Queries) ListTransactionLines(ctx context.Context, arg ListTransactionLinesParams) ([]LineRow, error) {
	query, ok := listLineQueries[arg.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", analytics.ErrUnknownKind, arg.Kind)
	}
	rows, err := q.db.Query(ctx, query, pgUUID(arg.TenantID), arg.Range.From, arg.Range.To, arg.Range.OpenEnd)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LineRow
	for rows.Next() {
		var row LineRow
		if err := rows.Scan(
			&row.DocumentID,
			&row.ClientID,
			&row.Date,
			&row.DocumentDiscount,
			&row.ProductID,
			&row.Quantity,
			&row.UnitPrice,
			&row.LineDiscount,
		); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

const countClients = `SELECT COUNT(*) FROM clients WHERE tenant_id = $1 AND deleted_at IS NULL`

// CountClients counts live clients of the tenant.
func (q *Queries) CountClients(ctx context.Context, tenant uuid.UUID) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countClients, pgUUID(tenant)).Scan(&n)
	return n, err
}

const countActiveProducts = `SELECT COUNT(*) FROM products WHERE tenant_id = $1 AND deleted_at IS NULL AND active`

// CountActiveProducts counts live, active products of the tenant.
func (q *Queries) CountActiveProducts(ctx context.Context, tenant uuid.UUID) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countActiveProducts, pgUUID(tenant)).Scan(&n)
	return n, err
}

const listKpiTargets = `SELECT kpi_name, target::float8 FROM kpi_targets WHERE tenant_id = $1`

// ListKpiTargets returns the tenant's configured targets.
func (q *Queries) ListKpiTargets(ctx context.Context, tenant uuid.UUID) (map[string]float64, error) {
	rows, err := q.db.Query(ctx, listKpiTargets, pgUUID(tenant))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]float64)
	for rows.Next() {
		var (
			name   string
			target float64
		)
		if err := rows.Scan(&name, &target); err != nil {
			return nil, err
		}
		out[name] = target
	}
	return out, rows.Err()
}

const upsertKpiTarget = `INSERT INTO kpi_targets (tenant_id, kpi_name, target, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (tenant_id, kpi_name) DO UPDATE SET target = EXCLUDED.target, updated_at = EXCLUDED.updated_at`

// UpsertKpiTarget stores one target.
func (q *Queries) UpsertKpiTarget(ctx context.Context, tenant uuid.UUID, name string, target float64) error {
	_, err := q.db.Exec(ctx, upsertKpiTarget, pgUUID(tenant), name, target)
	return err
}

const listActiveTenants = `SELECT id FROM tenants WHERE deleted_at IS NULL ORDER BY id`

// ListActiveTenants returns every live tenant.
func (q *Queries) ListActiveTenants(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := q.db.Query(ctx, listActiveTenants)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []uuid.UUID
	for rows.Next() {
		var id pgtype.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, uuid.UUID(id.Bytes))
	}
	return out, rows.Err()
}

func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}
