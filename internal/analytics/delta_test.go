package analytics

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentChangeConventions(t *testing.T) {
	cases := []struct {
		name      string
		current   string
		baseline  string
		wantValue string
	}{
		{"zero baseline growth", "200", "0", "100"},
		{"both zero", "0", "0", "0"},
		{"zero baseline loss", "-50", "0", "-100"},
		{"growth", "150", "100", "50"},
		{"drop", "75", "100", "-25"},
		{"negative baseline improving", "-50", "-100", "50"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := PercentChange(dec(tc.current), dec(tc.baseline))
			assert.True(t, got.Equal(dec(tc.wantValue)), "got %s", got)
		})
	}
}

func TestDeltaWindowsAt(t *testing.T) {
	w := DeltaWindowsAt(testNow)

	assert.Equal(t, testNow.AddDate(0, 0, -30), w.Last30.From)
	assert.Equal(t, testNow, w.Last30.To)
	assert.True(t, w.Prev30.OpenEnd)
	assert.Equal(t, w.Last30.From, w.Prev30.To)
	assert.Equal(t, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), w.CurrentMonth.From)
	assert.Equal(t, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), w.PreviousMonth.From)
	assert.Equal(t, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond), w.PreviousMonth.To)

	span := w.Span()
	assert.Equal(t, testNow.AddDate(0, 0, -60), span.From)
	assert.Equal(t, testNow, span.To)
}

func TestComputeDeltasFromZeroBaseline(t *testing.T) {
	txs := []Transaction{sale(testNow.AddDate(0, 0, -10), "200")}
	deltas := ComputeDeltas(txs, testNow)

	sales := deltas[DeltaSales]
	assert.Equal(t, 100.0, sales.Pct30d)
	assert.Equal(t, 200.0, sales.Value30d)
}

func TestComputeDeltasGrowth(t *testing.T) {
	txs := []Transaction{
		sale(testNow.AddDate(0, 0, -45), "100"),
		sale(testNow.AddDate(0, 0, -5), "150"),
	}
	deltas := ComputeDeltas(txs, testNow)

	sales := deltas[DeltaSales]
	assert.Equal(t, 50.0, sales.Pct30d)
	assert.Equal(t, 150.0, sales.Value30d)
	// 2026-09-02 sits in the full previous month, 2026-10-12 in the current one.
	assert.Equal(t, 50.0, sales.PctMoM)
	assert.Equal(t, 150.0, sales.ValueMoM)
}

func TestComputeDeltasBoundaryBelongsToLast30(t *testing.T) {
	txs := []Transaction{sale(testNow.AddDate(0, 0, -30), "80")}
	deltas := ComputeDeltas(txs, testNow)
	assert.Equal(t, 80.0, deltas[DeltaSales].Value30d)
	assert.Equal(t, 100.0, deltas[DeltaSales].Pct30d)
}

func TestComputeDeltasMonthOverMonthIsAsymmetric(t *testing.T) {
	now := time.Date(2026, 10, 2, 10, 0, 0, 0, time.UTC)
	txs := []Transaction{
		sale(time.Date(2026, 9, 25, 12, 0, 0, 0, time.UTC), "300"),
		sale(time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC), "100"),
	}
	deltas := ComputeDeltas(txs, now)
	assert.Equal(t, -66.67, deltas[DeltaSales].PctMoM)
	assert.Equal(t, 100.0, deltas[DeltaSales].ValueMoM)
}

func TestComputeDeltasSpentProfitAndMargin(t *testing.T) {
	txs := []Transaction{
		sale(testNow.AddDate(0, 0, -40), "100"),
		txn(KindPurchase, testNow.AddDate(0, 0, -40), line(1, "80", "0")),
		sale(testNow.AddDate(0, 0, -3), "200"),
		txn(KindExpense, testNow.AddDate(0, 0, -3), line(1, "100", "0")),
	}
	deltas := ComputeDeltas(txs, testNow)
	require.Len(t, deltas, 4)

	assert.Equal(t, 100.0, deltas[DeltaSpent].Value30d)
	assert.Equal(t, 25.0, deltas[DeltaSpent].Pct30d)
	assert.Equal(t, 100.0, deltas[DeltaProfit].Value30d)
	assert.Equal(t, 400.0, deltas[DeltaProfit].Pct30d)
	// margin 20% -> 50%
	assert.Equal(t, 50.0, deltas[DeltaMargin].Value30d)
	assert.Equal(t, 150.0, deltas[DeltaMargin].Pct30d)
}

func TestComputeDeltasEmpty(t *testing.T) {
	deltas := ComputeDeltas(nil, testNow)
	require.Len(t, deltas, 4)
	for name, d := range deltas {
		assert.Equal(t, KpiDelta{}, d, name)
	}
}

func TestAggregateRangeHonoursOpenEnd(t *testing.T) {
	edge := testNow.AddDate(0, 0, -30)
	txs := []Transaction{sale(edge, "10"), sale(edge.Add(-time.Second), "5")}
	r := DateRange{From: testNow.AddDate(0, 0, -60), To: edge, OpenEnd: true}
	totals := AggregateRange(txs, r)
	assert.True(t, totals.Sales.Equal(decimal.NewFromInt(5)))
}
