package models_test

import (
	"testing"

	"bitbucket.org/mmdatafocus/hims_backend/models"
	"github.com/shopspring/decimal"
)

func dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func TestFlatTaxSplitsEvenlyBetweenCgstAndSgst(t *testing.T) {
	line := models.GrnItem{
		Quantity:   decimal.NewFromInt(10),
		UnitCost:   dec("5.00"),
		TaxPercent: decimal.NewFromInt(12),
	}
	line.CalculateLineAmounts()

	if !line.GrossAmount.Equal(dec("50.00")) {
		t.Fatalf("expected gross 50.00 got %s", line.GrossAmount)
	}
	if !line.TaxableAmount.Equal(dec("50.00")) {
		t.Fatalf("expected taxable 50.00 got %s", line.TaxableAmount)
	}
	if !line.CgstAmount.Equal(dec("3.00")) || !line.SgstAmount.Equal(dec("3.00")) {
		t.Fatalf("expected cgst/sgst 3.00/3.00 got %s/%s", line.CgstAmount, line.SgstAmount)
	}
	if !line.IgstAmount.IsZero() {
		t.Fatalf("expected igst 0 got %s", line.IgstAmount)
	}
	if !line.LineTotal.Equal(dec("56.00")) {
		t.Fatalf("expected line total 56.00 got %s", line.LineTotal)
	}
}

func TestFlatTaxSgstAbsorbsRoundingRemainder(t *testing.T) {
	// taxable 10.25 at 5%: total tax rounds to 0.51, the half rounds to
	// 0.26, so sgst has to come out one cent lower for the sum to hold
	line := models.GrnItem{
		Quantity:   decimal.NewFromInt(1),
		UnitCost:   dec("10.25"),
		TaxPercent: decimal.NewFromInt(5),
	}
	line.CalculateLineAmounts()

	if !line.CgstAmount.Equal(dec("0.26")) {
		t.Fatalf("expected cgst 0.26 got %s", line.CgstAmount)
	}
	if !line.SgstAmount.Equal(dec("0.25")) {
		t.Fatalf("expected sgst 0.25 got %s", line.SgstAmount)
	}
	if !line.CgstAmount.Add(line.SgstAmount).Equal(dec("0.51")) {
		t.Fatalf("expected cgst+sgst to equal the rounded tax total 0.51 got %s", line.CgstAmount.Add(line.SgstAmount))
	}
	if !line.LineTotal.Equal(dec("10.76")) {
		t.Fatalf("expected line total 10.76 got %s", line.LineTotal)
	}
}

func TestDiscountAmountWinsOverPercent(t *testing.T) {
	line := models.GrnItem{
		Quantity:        decimal.NewFromInt(10),
		UnitCost:        decimal.NewFromInt(10),
		DiscountAmount:  decimal.NewFromInt(5),
		DiscountPercent: decimal.NewFromInt(50),
	}
	line.CalculateLineAmounts()

	if !line.DiscountAmount.Equal(dec("5")) {
		t.Fatalf("expected the absolute discount 5 to win got %s", line.DiscountAmount)
	}
	if !line.TaxableAmount.Equal(dec("95")) {
		t.Fatalf("expected taxable 95 got %s", line.TaxableAmount)
	}
}

func TestDiscountPercentAppliesWhenNoAmountGiven(t *testing.T) {
	line := models.GrnItem{
		Quantity:        decimal.NewFromInt(2),
		UnitCost:        decimal.NewFromInt(100),
		DiscountPercent: decimal.NewFromInt(10),
	}
	line.CalculateLineAmounts()

	if !line.DiscountAmount.Equal(dec("20")) {
		t.Fatalf("expected discount 20 got %s", line.DiscountAmount)
	}
	if !line.TaxableAmount.Equal(dec("180")) {
		t.Fatalf("expected taxable 180 got %s", line.TaxableAmount)
	}
}

func TestDiscountLargerThanGrossClampsTaxableToZero(t *testing.T) {
	line := models.GrnItem{
		Quantity:       decimal.NewFromInt(1),
		UnitCost:       decimal.NewFromInt(50),
		DiscountAmount: decimal.NewFromInt(80),
		TaxPercent:     decimal.NewFromInt(12),
	}
	line.CalculateLineAmounts()

	if !line.TaxableAmount.IsZero() {
		t.Fatalf("expected taxable clamped to 0 got %s", line.TaxableAmount)
	}
	if !line.LineTotal.IsZero() {
		t.Fatalf("expected line total 0 got %s", line.LineTotal)
	}
}

func TestSplitPercentagesTakePrecedenceOverFlatRate(t *testing.T) {
	line := models.GrnItem{
		Quantity:    decimal.NewFromInt(1),
		UnitCost:    decimal.NewFromInt(200),
		TaxPercent:  decimal.NewFromInt(12),
		CgstPercent: decimal.NewFromInt(9),
		SgstPercent: decimal.NewFromInt(9),
	}
	line.CalculateLineAmounts()

	if !line.CgstAmount.Equal(dec("18")) || !line.SgstAmount.Equal(dec("18")) {
		t.Fatalf("expected split entry 18/18 got %s/%s", line.CgstAmount, line.SgstAmount)
	}
	if !line.LineTotal.Equal(dec("236")) {
		t.Fatalf("expected line total 236 got %s", line.LineTotal)
	}
}

func TestInterstateEntryUsesIgstAlone(t *testing.T) {
	line := models.GrnItem{
		Quantity:    decimal.NewFromInt(1),
		UnitCost:    decimal.NewFromInt(200),
		IgstPercent: decimal.NewFromInt(18),
	}
	line.CalculateLineAmounts()

	if !line.IgstAmount.Equal(dec("36")) {
		t.Fatalf("expected igst 36 got %s", line.IgstAmount)
	}
	if !line.CgstAmount.IsZero() || !line.SgstAmount.IsZero() {
		t.Fatalf("expected no cgst/sgst on an igst line got %s/%s", line.CgstAmount, line.SgstAmount)
	}
	if !line.LineTotal.Equal(dec("236")) {
		t.Fatalf("expected line total 236 got %s", line.LineTotal)
	}
}

func TestEffectiveTaxPercentCombinesEntryModes(t *testing.T) {
	flat := models.GrnItem{TaxPercent: decimal.NewFromInt(12)}
	if !flat.EffectiveTaxPercent().Equal(dec("12")) {
		t.Fatalf("expected 12 got %s", flat.EffectiveTaxPercent())
	}

	split := models.GrnItem{CgstPercent: decimal.NewFromInt(9), SgstPercent: decimal.NewFromInt(9)}
	if !split.EffectiveTaxPercent().Equal(dec("18")) {
		t.Fatalf("expected 18 got %s", split.EffectiveTaxPercent())
	}

	both := models.GrnItem{TaxPercent: decimal.NewFromInt(12), CgstPercent: decimal.NewFromInt(9), SgstPercent: decimal.NewFromInt(9)}
	if !both.EffectiveTaxPercent().Equal(dec("12")) {
		t.Fatalf("expected the flat rate to win got %s", both.EffectiveTaxPercent())
	}

	var none models.GrnItem
	if !none.EffectiveTaxPercent().IsZero() {
		t.Fatalf("expected 0 got %s", none.EffectiveTaxPercent())
	}
}

func TestGrnTotalsIncludeChargesAndRoundOff(t *testing.T) {
	taxed := models.GrnItem{
		Quantity:   decimal.NewFromInt(10),
		UnitCost:   dec("5.00"),
		TaxPercent: decimal.NewFromInt(12),
	}
	taxed.CalculateLineAmounts()

	discounted := models.GrnItem{
		Quantity:        decimal.NewFromInt(2),
		UnitCost:        decimal.NewFromInt(25),
		DiscountPercent: decimal.NewFromInt(10),
	}
	discounted.CalculateLineAmounts()

	totals := models.CalculateGrnTotals(
		[]models.GrnItem{taxed, discounted},
		dec("10"), dec("5"), dec("-0.40"), dec("115.60"))

	if !totals.LineTotalSum.Equal(dec("101.00")) {
		t.Fatalf("expected line total sum 101.00 got %s", totals.LineTotalSum)
	}
	if !totals.CalculatedGrnAmount.Equal(dec("115.60")) {
		t.Fatalf("expected calculated amount 115.60 got %s", totals.CalculatedGrnAmount)
	}
	if !totals.AmountDifference.IsZero() {
		t.Fatalf("expected no difference got %s", totals.AmountDifference)
	}
	if totals.NeedsDifferenceReason(dec("115.60")) {
		t.Fatalf("matching invoice should not demand a reason")
	}
}

func TestInvoiceMismatchOfOneCentNeedsReason(t *testing.T) {
	line := models.GrnItem{
		Quantity:   decimal.NewFromInt(10),
		UnitCost:   dec("5.00"),
		TaxPercent: decimal.NewFromInt(12),
	}
	line.CalculateLineAmounts()
	lines := []models.GrnItem{line}

	cases := []struct {
		declared string
		needs    bool
	}{
		{"56.00", false},
		{"56.01", true},
		{"55.99", true},
		{"56.004", false}, // rounds away
		{"0", false},      // no declared amount, nothing to reconcile
	}
	for _, tc := range cases {
		totals := models.CalculateGrnTotals(lines, decimal.Zero, decimal.Zero, decimal.Zero, dec(tc.declared))
		if got := totals.NeedsDifferenceReason(dec(tc.declared)); got != tc.needs {
			t.Fatalf("declared %s: expected needs-reason %v got %v (difference %s)",
				tc.declared, tc.needs, got, totals.AmountDifference)
		}
	}
}
