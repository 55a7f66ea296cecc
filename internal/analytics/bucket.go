package analytics

import (
	"time"

	"github.com/shopspring/decimal"
)

// MonthlyBucket holds one calendar month of aggregated values.
type MonthlyBucket struct {
	Month             string          `json:"month"`
	Start             time.Time       `json:"start"`
	End               time.Time       `json:"end"`
	SalesValue        decimal.Decimal `json:"salesValue"`
	PurchaseValue     decimal.Decimal `json:"purchaseValue"`
	ExpenseValue      decimal.Decimal `json:"expenseValue"`
	Profit            decimal.Decimal `json:"profit"`
	PendingOrderValue decimal.Decimal `json:"pendingOrderValue"`
	SalesCount        int             `json:"salesCount"`
	PurchaseCount     int             `json:"purchaseCount"`
	ExpenseCount      int             `json:"expenseCount"`
	OrderCount        int             `json:"orderCount"`
}

// Range returns the inclusive span of the bucket.
func (b MonthlyBucket) Range() DateRange {
	return DateRange{From: b.Start, To: b.End}
}

// EmptyBuckets lays out months buckets ending with the month of now, oldest
// first. Every bucket spans its whole month except the newest, which stops at
// now.
func EmptyBuckets(now time.Time, months int) []MonthlyBucket {
	if months <= 0 {
		months = DefaultWindowMonths
	}
	current := monthStart(now)
	buckets := make([]MonthlyBucket, 0, months)
	for i := months - 1; i >= 0; i-- {
		start := current.AddDate(0, -i, 0)
		end := monthEnd(start)
		if i == 0 {
			end = now
		}
		buckets = append(buckets, MonthlyBucket{
			Month:             formatMonth(start),
			Start:             start,
			End:               end,
			SalesValue:        decimal.Zero,
			PurchaseValue:     decimal.Zero,
			ExpenseValue:      decimal.Zero,
			Profit:            decimal.Zero,
			PendingOrderValue: decimal.Zero,
		})
	}
	return buckets
}

// BucketTransactions accumulates txs into the monthly buckets of the window
// anchored at now. Transactions outside the window are ignored. Dates are
// compared in now's location, so a transaction stamped 00:00:00 on the first
// of a month lands in that month.
func BucketTransactions(txs []Transaction, now time.Time, months int) []MonthlyBucket {
	buckets := EmptyBuckets(now, months)
	index := make(map[string]int, len(buckets))
	for i, b := range buckets {
		index[b.Month] = i
	}
	loc := now.Location()
	for _, tx := range txs {
		date := tx.Date.In(loc)
		i, ok := index[formatMonth(date)]
		if !ok || !buckets[i].Range().Contains(date) {
			continue
		}
		accumulate(&buckets[i], tx)
	}
	return buckets
}

func accumulate(b *MonthlyBucket, tx Transaction) {
	value := TransactionValue(tx)
	switch tx.Kind {
	case KindSale:
		b.SalesValue = b.SalesValue.Add(value)
		b.SalesCount++
	case KindPurchase:
		b.PurchaseValue = b.PurchaseValue.Add(value)
		b.PurchaseCount++
	case KindExpense:
		b.ExpenseValue = b.ExpenseValue.Add(value)
		b.ExpenseCount++
	case KindOrder:
		b.PendingOrderValue = b.PendingOrderValue.Add(value)
		b.OrderCount++
	}
}
