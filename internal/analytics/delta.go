package analytics

import (
	"time"

	"github.com/shopspring/decimal"
)

// Headline metrics tracked by the delta engine.
const (
	DeltaSales  = "sales"
	DeltaSpent  = "spent"
	DeltaProfit = "profit"
	DeltaMargin = "margin"
)

// KpiDelta is the trend indicator of one headline metric.
type KpiDelta struct {
	Pct30d   float64 `json:"pct30d"`
	PctMoM   float64 `json:"pctMoM"`
	Value30d float64 `json:"value30d"`
	ValueMoM float64 `json:"valueMoM"`
}

// DeltaWindows are the comparison ranges anchored at one instant.
//
// CurrentMonth stops at now while PreviousMonth covers the whole previous
// calendar month, so early in a month the month-over-month change reads low.
// The asymmetry is kept as is pending a product decision.
type DeltaWindows struct {
	Last30        DateRange
	Prev30        DateRange
	CurrentMonth  DateRange
	PreviousMonth DateRange
}

// DeltaWindowsAt builds the comparison ranges for now.
func DeltaWindowsAt(now time.Time) DeltaWindows {
	thirtyAgo := now.AddDate(0, 0, -30)
	current := monthStart(now)
	previous := current.AddDate(0, -1, 0)
	return DeltaWindows{
		Last30:        DateRange{From: thirtyAgo, To: now},
		Prev30:        DateRange{From: now.AddDate(0, 0, -60), To: thirtyAgo, OpenEnd: true},
		CurrentMonth:  DateRange{From: current, To: now},
		PreviousMonth: DateRange{From: previous, To: monthEnd(previous)},
	}
}

// Span is the closed range covering every comparison window.
func (w DeltaWindows) Span() DateRange {
	return w.Last30.Union(w.Prev30).Union(w.CurrentMonth).Union(w.PreviousMonth)
}

// ComputeDeltas re-aggregates txs over the four comparison windows anchored
// at now and derives the change of each headline metric.
func ComputeDeltas(txs []Transaction, now time.Time) map[string]KpiDelta {
	w := DeltaWindowsAt(now)
	last30 := headline(AggregateRange(txs, w.Last30))
	prev30 := headline(AggregateRange(txs, w.Prev30))
	currentMonth := headline(AggregateRange(txs, w.CurrentMonth))
	previousMonth := headline(AggregateRange(txs, w.PreviousMonth))

	deltas := make(map[string]KpiDelta, len(last30))
	for name, value30d := range last30 {
		valueMoM := currentMonth[name]
		deltas[name] = KpiDelta{
			Pct30d:   display(PercentChange(value30d, prev30[name])),
			PctMoM:   display(PercentChange(valueMoM, previousMonth[name])),
			Value30d: display(value30d),
			ValueMoM: display(valueMoM),
		}
	}
	return deltas
}

func headline(t Totals) map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		DeltaSales:  t.Sales,
		DeltaSpent:  t.Spent,
		DeltaProfit: t.Profit,
		DeltaMargin: SafePercent(t.Profit, t.Sales),
	}
}
