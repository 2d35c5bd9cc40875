package utils

import "github.com/shopspring/decimal"

var decimalOneHundred = decimal.NewFromInt(100)

// Monetary amounts are kept at 2dp, quantities at 4dp.
func RoundMoney(d decimal.Decimal) decimal.Decimal { return d.Round(2) }

func RoundQty(d decimal.Decimal) decimal.Decimal { return d.Round(4) }

// CalculateDiscountAmount resolves a line discount. A positive absolute
// amount wins over the percentage; otherwise the percentage applies to the
// gross amount.
func CalculateDiscountAmount(gross decimal.Decimal, discountAmount decimal.Decimal, discountPercent decimal.Decimal) decimal.Decimal {

	if discountAmount.GreaterThan(decimal.Zero) {
		return RoundMoney(discountAmount)
	}
	if discountPercent.GreaterThan(decimal.Zero) {
		return RoundMoney(gross.Mul(discountPercent).Div(decimalOneHundred))
	}
	return decimal.Zero
}

// CalculatePercentAmount returns base * percent / 100 rounded to money.
func CalculatePercentAmount(base decimal.Decimal, percent decimal.Decimal) decimal.Decimal {
	return RoundMoney(base.Mul(percent).Div(decimalOneHundred))
}

// ClampNonNegative floors a decimal at zero.
func ClampNonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
