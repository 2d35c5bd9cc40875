package models

import (
	"bitbucket.org/mmdatafocus/hims_backend/utils"
	"github.com/shopspring/decimal"
)

var (
	decimalTwo = decimal.NewFromInt(2)
	// one cent: invoice differences at or past this need a reason
	mismatchTolerance = decimal.New(1, -2)
)

// CalculateLineAmounts recomputes the derived amount columns of a GRN line
// from its entered values. Runs at post time only; pure so the tax math is
// testable without a database.
//
// discount_amount, when positive, wins over discount_percent. When any of
// the cgst/sgst/igst percentages is set the three taxes are computed
// independently ("split" interstate entry); otherwise a flat tax_percent
// is halved into cgst/sgst with sgst taking the rounding remainder, so
// cgst+sgst always equals the rounded total tax.
func (line *GrnItem) CalculateLineAmounts() {

	line.Quantity = utils.RoundQty(line.Quantity)
	line.FreeQuantity = utils.RoundQty(line.FreeQuantity)
	line.UnitCost = utils.RoundMoney(line.UnitCost)

	gross := utils.RoundMoney(line.Quantity.Mul(line.UnitCost))
	discount := utils.CalculateDiscountAmount(gross, line.DiscountAmount, line.DiscountPercent)
	taxable := utils.ClampNonNegative(gross.Sub(discount))

	var cgst, sgst, igst decimal.Decimal
	if line.CgstPercent.GreaterThan(decimal.Zero) ||
		line.SgstPercent.GreaterThan(decimal.Zero) ||
		line.IgstPercent.GreaterThan(decimal.Zero) {
		cgst = utils.CalculatePercentAmount(taxable, line.CgstPercent)
		sgst = utils.CalculatePercentAmount(taxable, line.SgstPercent)
		igst = utils.CalculatePercentAmount(taxable, line.IgstPercent)
	} else if line.TaxPercent.GreaterThan(decimal.Zero) {
		taxTotal := utils.CalculatePercentAmount(taxable, line.TaxPercent)
		cgst = utils.CalculatePercentAmount(taxable, line.TaxPercent.Div(decimalTwo))
		sgst = taxTotal.Sub(cgst)
	}

	line.GrossAmount = gross
	line.DiscountAmount = discount
	line.TaxableAmount = taxable
	line.CgstAmount = cgst
	line.SgstAmount = sgst
	line.IgstAmount = igst
	line.LineTotal = taxable.Add(cgst).Add(sgst).Add(igst)
}

// EffectiveTaxPercent is the combined tax rate of the line regardless of
// entry mode, used when writing latest-purchase values back to the item
// and batch masters.
func (line *GrnItem) EffectiveTaxPercent() decimal.Decimal {
	if line.TaxPercent.GreaterThan(decimal.Zero) {
		return line.TaxPercent
	}
	return line.CgstPercent.Add(line.SgstPercent).Add(line.IgstPercent)
}

// GrnTotals is the header-level aggregation of a GRN's computed lines.
type GrnTotals struct {
	GrossAmount         decimal.Decimal `json:"gross_amount"`
	DiscountAmount      decimal.Decimal `json:"discount_amount"`
	TaxableAmount       decimal.Decimal `json:"taxable_amount"`
	CgstAmount          decimal.Decimal `json:"cgst_amount"`
	SgstAmount          decimal.Decimal `json:"sgst_amount"`
	IgstAmount          decimal.Decimal `json:"igst_amount"`
	LineTotalSum        decimal.Decimal `json:"line_total_sum"`
	CalculatedGrnAmount decimal.Decimal `json:"calculated_grn_amount"`
	AmountDifference    decimal.Decimal `json:"amount_difference"`
}

// CalculateGrnTotals aggregates already-computed lines and derives the
// header amounts. calculated_grn_amount adds freight, other charges and
// round-off on top of the line totals; amount_difference is what the
// supplier's declared invoice amount disagrees by.
func CalculateGrnTotals(lines []GrnItem, freightAmount, otherCharges, roundOff, supplierInvoiceAmount decimal.Decimal) GrnTotals {

	totals := GrnTotals{}
	for _, line := range lines {
		totals.GrossAmount = totals.GrossAmount.Add(line.GrossAmount)
		totals.DiscountAmount = totals.DiscountAmount.Add(line.DiscountAmount)
		totals.TaxableAmount = totals.TaxableAmount.Add(line.TaxableAmount)
		totals.CgstAmount = totals.CgstAmount.Add(line.CgstAmount)
		totals.SgstAmount = totals.SgstAmount.Add(line.SgstAmount)
		totals.IgstAmount = totals.IgstAmount.Add(line.IgstAmount)
		totals.LineTotalSum = totals.LineTotalSum.Add(line.LineTotal)
	}

	totals.CalculatedGrnAmount = utils.RoundMoney(totals.LineTotalSum.
		Add(freightAmount).Add(otherCharges).Add(roundOff))
	totals.AmountDifference = utils.RoundMoney(supplierInvoiceAmount.Sub(totals.CalculatedGrnAmount))

	return totals
}

// NeedsDifferenceReason reports whether the invoice mismatch is big enough
// (one cent or more) to demand an explanation before posting.
func (totals GrnTotals) NeedsDifferenceReason(supplierInvoiceAmount decimal.Decimal) bool {
	if !supplierInvoiceAmount.GreaterThan(decimal.Zero) {
		return false
	}
	return totals.AmountDifference.Abs().GreaterThanOrEqual(mismatchTolerance)
}
