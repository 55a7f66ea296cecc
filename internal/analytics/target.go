package analytics

// ApplyTargets overrides catalog targets with the externally configured ones
// and recomputes BelowTarget. Names missing from targets keep their default.
func ApplyTargets(metrics []KPIMetric, targets map[string]float64) []KPIMetric {
	out := make([]KPIMetric, len(metrics))
	for i, m := range metrics {
		if target, ok := targets[m.Name]; ok {
			m.Target = target
		}
		m.BelowTarget = belowTarget(m.Value, m.Target, m.IsInverse)
		out[i] = m
	}
	return out
}

// belowTarget flags under-performance; for inverse KPIs higher is worse.
func belowTarget(value, target float64, inverse bool) bool {
	if inverse {
		return value > target
	}
	return value < target
}
