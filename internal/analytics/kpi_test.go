package analytics

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func metricsByName(metrics []KPIMetric) map[string]KPIMetric {
	out := make(map[string]KPIMetric, len(metrics))
	for _, m := range metrics {
		out[m.Name] = m
	}
	return out
}

func sampleTotals() Totals {
	t := zeroTotals()
	t.Sales = dec("1000")
	t.Purchases = dec("400")
	t.Expenses = dec("200")
	t.SalesCount = 4
	t.PurchaseCount = 3
	t.ExpenseCount = 1
	t.OrderCount = 2
	t.finish()
	return t
}

func TestComputeKPIsCatalog(t *testing.T) {
	metrics := ComputeKPIs(KPIInput{Totals: sampleTotals(), ClientCount: 8, ProductCount: 0})
	require.Len(t, metrics, len(Catalog()))
	byName := metricsByName(metrics)

	roi := byName[KPIROI]
	assert.Equal(t, 66.67, roi.Value)
	assert.InDelta(t, 66.666666, roi.Raw, 0.0001)
	assert.Equal(t, UnitPercent, roi.Unit)

	assert.Equal(t, 40.0, byName[KPIProfitMargin].Value)
	assert.Equal(t, 50.0, byName[KPIConversionRate].Value)
	assert.Equal(t, 250.0, byName[KPIAverageSale].Value)
	assert.Equal(t, 133.33, byName[KPIAveragePurchase].Value)
	assert.Equal(t, 50.0, byName[KPIProfitPerClient].Value)
	assert.Equal(t, 0.0, byName[KPISalesPerProduct].Value)
	assert.Equal(t, 20.0, byName[KPIExpenseRatio].Value)
	assert.Equal(t, 2.0, byName[KPIPendingOrders].Value)
	assert.Equal(t, UnitCount, byName[KPIPendingOrders].Unit)
}

func TestComputeKPIsDefaultTargetFlags(t *testing.T) {
	byName := metricsByName(ComputeKPIs(KPIInput{Totals: sampleTotals(), ClientCount: 8}))

	assert.False(t, byName[KPIROI].BelowTarget)
	assert.False(t, byName[KPIConversionRate].BelowTarget, "equal to target is not below")
	assert.True(t, byName[KPIProfitPerClient].BelowTarget)
	assert.True(t, byName[KPISalesPerProduct].BelowTarget)
	assert.True(t, byName[KPIExpenseRatio].BelowTarget, "inverse kpi above target")
	assert.False(t, byName[KPIAveragePurchase].BelowTarget)
	assert.False(t, byName[KPIPendingOrders].BelowTarget)
}

func TestAveragePurchaseIgnoresExpenses(t *testing.T) {
	totals := zeroTotals()
	totals.Expenses = dec("900")
	totals.ExpenseCount = 3
	totals.finish()
	byName := metricsByName(ComputeKPIs(KPIInput{Totals: totals}))
	assert.Equal(t, 0.0, byName[KPIAveragePurchase].Value)

	totals.Purchases = dec("300")
	totals.PurchaseCount = 2
	totals.finish()
	byName = metricsByName(ComputeKPIs(KPIInput{Totals: totals}))
	assert.Equal(t, 150.0, byName[KPIAveragePurchase].Value)
}

func TestComputeKPIsEmptyTotalsAreZero(t *testing.T) {
	metrics := ComputeKPIs(KPIInput{Totals: zeroTotals()})
	for _, m := range metrics {
		assert.Equal(t, 0.0, m.Value, m.Name)
		assert.False(t, math.IsNaN(m.Raw) || math.IsInf(m.Raw, 0), m.Name)
	}
}

func TestConversionRateWithoutClientsIsZero(t *testing.T) {
	totals := zeroTotals()
	totals.SalesCount = 5
	byName := metricsByName(ComputeKPIs(KPIInput{Totals: totals, ClientCount: 0}))
	assert.Equal(t, 0.0, byName[KPIConversionRate].Value)
}

func TestSafeDivideByZero(t *testing.T) {
	for _, x := range []string{"1", "-3.5", "1000000"} {
		assert.True(t, SafeDivide(dec(x), decimal.Zero).IsZero(), x)
		assert.True(t, SafePercent(dec(x), decimal.Zero).IsZero(), x)
	}
	assert.True(t, SafeDivide(dec("9"), dec("3")).Equal(dec("3")))
}

func TestWithPreviousMatchesByName(t *testing.T) {
	current := ComputeKPIs(KPIInput{Totals: sampleTotals(), ClientCount: 8})
	prevTotals := zeroTotals()
	prevTotals.Sales = dec("100")
	prevTotals.finish()
	previous := ComputeKPIs(KPIInput{Totals: prevTotals, ClientCount: 8})

	out := WithPrevious(current, previous)
	byName := metricsByName(out)
	require.NotNil(t, byName[KPIProfitMargin].PreviousValue)
	assert.Equal(t, 100.0, *byName[KPIProfitMargin].PreviousValue)
	assert.Nil(t, current[0].PreviousValue, "input must not be mutated")
}

func TestLookupKPI(t *testing.T) {
	def, ok := LookupKPI(KPIExpenseRatio)
	require.True(t, ok)
	assert.True(t, def.Inverse)

	_, ok = LookupKPI("nope")
	assert.False(t, ok)
}
