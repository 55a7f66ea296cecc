package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyTargetsOverridesAndRecomputes(t *testing.T) {
	metrics := ComputeKPIs(KPIInput{Totals: sampleTotals(), ClientCount: 8})
	out := ApplyTargets(metrics, map[string]float64{
		KPIROI:           80,
		KPIExpenseRatio:  25,
		"unknown_metric": 1,
	})
	byName := metricsByName(out)

	assert.Equal(t, 80.0, byName[KPIROI].Target)
	assert.True(t, byName[KPIROI].BelowTarget)
	assert.Equal(t, 25.0, byName[KPIExpenseRatio].Target)
	assert.False(t, byName[KPIExpenseRatio].BelowTarget)

	// untouched entries keep the catalog default
	assert.Equal(t, 25.0, byName[KPIProfitMargin].Target)
	assert.Len(t, out, len(metrics))
	assert.Equal(t, 20.0, metricsByName(metrics)[KPIROI].Target, "input must not be mutated")
}

func TestBelowTargetRule(t *testing.T) {
	cases := []struct {
		value, target float64
		inverse       bool
		want          bool
	}{
		{10, 20, false, true},
		{20, 20, false, false},
		{30, 20, false, false},
		{10, 20, true, false},
		{20, 20, true, false},
		{30, 20, true, true},
	}
	for _, tc := range cases {
		got := ApplyTargets([]KPIMetric{{Name: "x", Value: tc.value, IsInverse: tc.inverse}}, map[string]float64{"x": tc.target})
		assert.Equal(t, tc.want, got[0].BelowTarget, "value=%v target=%v inverse=%v", tc.value, tc.target, tc.inverse)
	}
}

func TestApplyTargetsWithNilMap(t *testing.T) {
	metrics := ComputeKPIs(KPIInput{Totals: sampleTotals(), ClientCount: 8})
	out := ApplyTargets(metrics, nil)
	assert.Equal(t, metrics, out)
}
