package analytics

import (
	"github.com/shopspring/decimal"
)

// Totals are the window-wide sums behind the KPI catalog.
type Totals struct {
	Sales             decimal.Decimal `json:"sales"`
	Purchases         decimal.Decimal `json:"purchases"`
	Expenses          decimal.Decimal `json:"expenses"`
	Spent             decimal.Decimal `json:"spent"`
	Profit            decimal.Decimal `json:"profit"`
	PendingOrderValue decimal.Decimal `json:"pendingOrderValue"`
	SalesCount        int             `json:"salesCount"`
	PurchaseCount     int             `json:"purchaseCount"`
	ExpenseCount      int             `json:"expenseCount"`
	OrderCount        int             `json:"orderCount"`
}

// Aggregate fills each bucket's profit and sums the window. The input slice is
// left untouched.
func Aggregate(buckets []MonthlyBucket) ([]MonthlyBucket, Totals) {
	out := make([]MonthlyBucket, len(buckets))
	totals := zeroTotals()
	for i, b := range buckets {
		b.Profit = b.SalesValue.Sub(b.PurchaseValue).Sub(b.ExpenseValue)
		out[i] = b
		totals.add(b)
	}
	totals.finish()
	return out, totals
}

// AggregateRange sums every transaction inside r into one Totals.
func AggregateRange(txs []Transaction, r DateRange) Totals {
	var b MonthlyBucket
	b.SalesValue, b.PurchaseValue, b.ExpenseValue, b.PendingOrderValue = decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero
	for _, tx := range txs {
		if r.Contains(tx.Date) {
			accumulate(&b, tx)
		}
	}
	totals := zeroTotals()
	totals.add(b)
	totals.finish()
	return totals
}

func zeroTotals() Totals {
	return Totals{
		Sales:             decimal.Zero,
		Purchases:         decimal.Zero,
		Expenses:          decimal.Zero,
		Spent:             decimal.Zero,
		Profit:            decimal.Zero,
		PendingOrderValue: decimal.Zero,
	}
}

func (t *Totals) add(b MonthlyBucket) {
	t.Sales = t.Sales.Add(b.SalesValue)
	t.Purchases = t.Purchases.Add(b.PurchaseValue)
	t.Expenses = t.Expenses.Add(b.ExpenseValue)
	t.PendingOrderValue = t.PendingOrderValue.Add(b.PendingOrderValue)
	t.SalesCount += b.SalesCount
	t.PurchaseCount += b.PurchaseCount
	t.ExpenseCount += b.ExpenseCount
	t.OrderCount += b.OrderCount
}

func (t *Totals) finish() {
	t.Spent = t.Purchases.Add(t.Expenses)
	t.Profit = t.Sales.Sub(t.Spent)
}
