package analyticsdb

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loja-gestor/loja-gestor/internal/analytics"
)

func numeric(unscaled int64, exp int32) pgtype.Numeric {
	return pgtype.Numeric{Int: big.NewInt(unscaled), Exp: exp, Valid: true}
}

func TestAssembleTransactionsGroupsLines(t *testing.T) {
	docA, docB, client := uuid.New(), uuid.New(), uuid.New()
	date := time.Date(2026, 10, 3, 9, 30, 0, 0, time.UTC)
	rows := []LineRow{
		{
			DocumentID:       pgUUID(docA),
			ClientID:         pgUUID(client),
			Date:             date,
			DocumentDiscount: numeric(5, 0),
			ProductID:        pgUUID(uuid.New()),
			Quantity:         pgtype.Int8{Int64: 10, Valid: true},
			UnitPrice:        numeric(500, -2),
			LineDiscount:     numeric(10, 0),
		},
		{
			DocumentID:       pgUUID(docA),
			ClientID:         pgUUID(client),
			Date:             date,
			DocumentDiscount: numeric(5, 0),
			ProductID:        pgUUID(uuid.New()),
			Quantity:         pgtype.Int8{Int64: 1, Valid: true},
			UnitPrice:        numeric(1999, -2),
			LineDiscount:     numeric(0, 0),
		},
		{
			DocumentID:       pgUUID(docB),
			Date:             date.Add(time.Hour),
			DocumentDiscount: numeric(0, 0),
		},
	}

	txs := AssembleTransactions(analytics.KindSale, rows)
	require.Len(t, txs, 2)

	a := txs[0]
	assert.Equal(t, docA, a.ID)
	assert.Equal(t, analytics.KindSale, a.Kind)
	require.NotNil(t, a.ClientID)
	assert.Equal(t, client, *a.ClientID)
	require.Len(t, a.Lines, 2)
	assert.True(t, a.Lines[0].UnitPrice.Equal(decimal.RequireFromString("5.00")))
	assert.True(t, a.Lines[1].UnitPrice.Equal(decimal.RequireFromString("19.99")))
	// (45 + 19.99) * 0.95
	assert.True(t, analytics.TransactionValue(a).Equal(decimal.RequireFromString("61.7405")))

	b := txs[1]
	assert.Equal(t, docB, b.ID)
	assert.Nil(t, b.ClientID)
	assert.Empty(t, b.Lines)
	assert.True(t, analytics.TransactionValue(b).IsZero())
}

func TestNumericToDecimal(t *testing.T) {
	assert.True(t, numericToDecimal(numeric(12345, -3)).Equal(decimal.RequireFromString("12.345")))
	assert.True(t, numericToDecimal(pgtype.Numeric{}).IsZero())
	assert.True(t, numericToDecimal(pgtype.Numeric{NaN: true, Valid: true}).IsZero())
	assert.True(t, numericToDecimal(pgtype.Numeric{InfinityModifier: pgtype.Infinity, Valid: true}).IsZero())
}

func TestListQueriesCoverEveryKind(t *testing.T) {
	for _, kind := range analytics.Kinds {
		query, ok := listLineQueries[kind]
		require.True(t, ok, kind)
		assert.Contains(t, query, "d.deleted_at IS NULL")
		assert.Contains(t, query, "i.deleted_at IS NULL")
		assert.Contains(t, query, "d.tenant_id = $1")
	}
	assert.True(t, strings.Contains(listLineQueries[analytics.KindOrder], "d.status = 'pending'"))
}

type execRecorder struct {
	args [][]any
	err  error
}

func (e *execRecorder) Exec(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	if e.err != nil {
		return pgconn.CommandTag{}, e.err
	}
	e.args = append(e.args, args)
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (e *execRecorder) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (e *execRecorder) QueryRow(context.Context, string, ...any) pgx.Row {
	return nil
}

func TestUpsertKpiTargetsWritesInNameOrder(t *testing.T) {
	db := &execRecorder{}
	repo := NewRepository(db, nil)
	tenant := uuid.New()

	err := repo.UpsertKpiTargets(context.Background(), tenant, map[string]float64{
		analytics.KPIROI:          150,
		analytics.KPIProfitMargin: 30,
	})
	require.NoError(t, err)
	require.Len(t, db.args, 2)
	assert.Equal(t, pgUUID(tenant), db.args[0][0])
	assert.Equal(t, analytics.KPIProfitMargin, db.args[0][1])
	assert.Equal(t, analytics.KPIROI, db.args[1][1])
	assert.Equal(t, 150.0, db.args[1][2])

	db.err = errors.New("conn reset")
	err = repo.UpsertKpiTargets(context.Background(), tenant, map[string]float64{analytics.KPIROI: 1})
	assert.ErrorContains(t, err, "conn reset")
}
