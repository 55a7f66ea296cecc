package analytics

import "github.com/shopspring/decimal"

// DisplayPrecision is the number of decimals kept on published ratios.
const DisplayPrecision = 2

// SafeDivide returns num/den, or zero when den is zero.
func SafeDivide(num, den decimal.Decimal) decimal.Decimal {
	if den.IsZero() {
		return decimal.Zero
	}
	return num.Div(den)
}

// SafePercent returns num/den*100, or zero when den is zero.
func SafePercent(num, den decimal.Decimal) decimal.Decimal {
	return SafeDivide(num, den).Mul(hundred)
}

// PercentChange is the signed change from baseline to current in percent.
// A zero baseline yields 100 when current grew, -100 when it fell below zero
// and 0 when both are zero. Negative baselines divide by their magnitude so
// an improvement always reads as a positive change.
func PercentChange(current, baseline decimal.Decimal) decimal.Decimal {
	if baseline.IsZero() {
		switch current.Sign() {
		case 1:
			return hundred
		case -1:
			return hundred.Neg()
		default:
			return decimal.Zero
		}
	}
	return current.Sub(baseline).Div(baseline.Abs()).Mul(hundred)
}

func display(d decimal.Decimal) float64 {
	return d.Round(DisplayPrecision).InexactFloat64()
}

func raw(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}
