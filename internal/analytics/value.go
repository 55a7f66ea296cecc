package analytics

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind identifies the transaction shape feeding the engine.
type Kind string

const (
	// KindSale is a stock exit invoiced to a client.
	KindSale Kind = "sale"
	// KindPurchase is a stock entry bought from a supplier.
	KindPurchase Kind = "purchase"
	// KindExpense is an operating expense document.
	KindExpense Kind = "expense"
	// KindOrder is a pending client order; it only contributes provisional totals.
	KindOrder Kind = "order"
)

// Kinds lists every transaction kind in load order.
var Kinds = []Kind{KindSale, KindPurchase, KindExpense, KindOrder}

var (
	// ErrUnknownKind is returned for a transaction kind outside Kinds.
	ErrUnknownKind = errors.New("analytics: unknown transaction kind")
	// ErrInvalidTransaction marks a record rejected at the repository boundary.
	ErrInvalidTransaction = errors.New("analytics: invalid transaction")
)

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindSale, KindPurchase, KindExpense, KindOrder:
		return true
	}
	return false
}

// ParseKind converts a raw kind string.
func ParseKind(raw string) (Kind, error) {
	k := Kind(raw)
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, raw)
	}
	return k, nil
}

// Line is a single transaction line.
type Line struct {
	ProductID       uuid.UUID       `json:"productId"`
	Quantity        int64           `json:"quantity" validate:"gte=0"`
	UnitPrice       decimal.Decimal `json:"unitPrice" validate:"gte=0"`
	DiscountPercent decimal.Decimal `json:"discountPercent"`
}

// Transaction is a clean, non-deleted document handed over by the repository.
type Transaction struct {
	ID                      uuid.UUID       `json:"id" validate:"required"`
	ClientID                *uuid.UUID      `json:"clientId,omitempty"`
	Date                    time.Time       `json:"date" validate:"required"`
	Kind                    Kind            `json:"kind" validate:"required,oneof=sale purchase expense order"`
	DocumentDiscountPercent decimal.Decimal `json:"documentDiscountPercent"`
	Lines                   []Line          `json:"lines" validate:"dive"`
}

// ClampPercent bounds a discount percentage to [0, 100].
func ClampPercent(p decimal.Decimal) decimal.Decimal {
	if p.IsNegative() {
		return decimal.Zero
	}
	if p.GreaterThan(hundred) {
		return hundred
	}
	return p
}

func percentInRange(p decimal.Decimal) bool {
	return !p.IsNegative() && !p.GreaterThan(hundred)
}

// discountFactor returns 1 - p/100 with p clamped.
func discountFactor(p decimal.Decimal) decimal.Decimal {
	return one.Sub(ClampPercent(p).Div(hundred))
}

// LineValue computes quantity * unitPrice * (1 - discount/100).
// Discounts outside [0, 100] are clamped and a negative quantity or price
// yields zero, so the result is never negative.
func LineValue(l Line) decimal.Decimal {
	if l.Quantity <= 0 || !l.UnitPrice.IsPositive() {
		return decimal.Zero
	}
	return decimal.NewFromInt(l.Quantity).Mul(l.UnitPrice).Mul(discountFactor(l.DiscountPercent))
}

// TransactionValue sums the line values and applies the document discount.
// A transaction without lines is worth zero.
func TransactionValue(t Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, l := range t.Lines {
		total = total.Add(LineValue(l))
	}
	if total.IsZero() {
		return total
	}
	return total.Mul(discountFactor(t.DocumentDiscountPercent))
}

// DiscountIssues lists the discounts of t that fall outside [0, 100].
func (t Transaction) DiscountIssues() []string {
	var issues []string
	if !percentInRange(t.DocumentDiscountPercent) {
		issues = append(issues, fmt.Sprintf("document discount %s clamped", t.DocumentDiscountPercent.String()))
	}
	for i, l := range t.Lines {
		if !percentInRange(l.DiscountPercent) {
			issues = append(issues, fmt.Sprintf("line %d discount %s clamped", i, l.DiscountPercent.String()))
		}
	}
	return issues
}
