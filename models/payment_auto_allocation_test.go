package models_test

import (
	"testing"

	"bitbucket.org/mmdatafocus/hims_backend/models"
	"github.com/shopspring/decimal"
)

func openInvoice(id int, invoiceDate string, outstanding string) *models.SupplierInvoice {
	invoice := &models.SupplierInvoice{
		ID:                id,
		OutstandingAmount: dec(outstanding),
		Status:            models.InvoiceStatusUnpaid,
	}
	if invoiceDate != "" {
		invoice.InvoiceDate = dateOf(invoiceDate)
	}
	return invoice
}

func TestAutoAllocationSettlesOldestInvoicesFirst(t *testing.T) {
	// given newest first to prove the planner sorts by invoice date
	invoices := []*models.SupplierInvoice{
		openInvoice(2, "2025-02-10", "80"),
		openInvoice(1, "2025-01-10", "50"),
	}
	plan := models.PlanPaymentAutoAllocation(invoices, decimal.NewFromInt(100))

	if len(plan) != 2 {
		t.Fatalf("expected 2 allocations got %d", len(plan))
	}
	if plan[0].InvoiceId != 1 || !plan[0].Amount.Equal(dec("50")) {
		t.Fatalf("expected the older invoice settled in full first got invoice %d amount %s", plan[0].InvoiceId, plan[0].Amount)
	}
	if plan[1].InvoiceId != 2 || !plan[1].Amount.Equal(dec("50")) {
		t.Fatalf("expected the remainder 50 on invoice 2 got invoice %d amount %s", plan[1].InvoiceId, plan[1].Amount)
	}
}

func TestAutoAllocationTakesUndatedInvoicesLast(t *testing.T) {
	invoices := []*models.SupplierInvoice{
		openInvoice(1, "", "70"),
		openInvoice(2, "2025-03-01", "40"),
	}
	plan := models.PlanPaymentAutoAllocation(invoices, decimal.NewFromInt(60))

	if len(plan) != 2 {
		t.Fatalf("expected 2 allocations got %d", len(plan))
	}
	if plan[0].InvoiceId != 2 || !plan[0].Amount.Equal(dec("40")) {
		t.Fatalf("expected dated invoice first got invoice %d amount %s", plan[0].InvoiceId, plan[0].Amount)
	}
	if plan[1].InvoiceId != 1 || !plan[1].Amount.Equal(dec("20")) {
		t.Fatalf("expected undated invoice to take the rest got invoice %d amount %s", plan[1].InvoiceId, plan[1].Amount)
	}
}

func TestAutoAllocationBreaksDateTiesById(t *testing.T) {
	invoices := []*models.SupplierInvoice{
		openInvoice(5, "2025-01-01", "10"),
		openInvoice(3, "2025-01-01", "10"),
	}
	plan := models.PlanPaymentAutoAllocation(invoices, decimal.NewFromInt(15))

	if len(plan) != 2 || plan[0].InvoiceId != 3 || plan[1].InvoiceId != 5 {
		t.Fatalf("expected id order 3 then 5 got %+v", plan)
	}
	if !plan[1].Amount.Equal(dec("5")) {
		t.Fatalf("expected 5 left for invoice 5 got %s", plan[1].Amount)
	}
}

func TestAutoAllocationSkipsSettledInvoices(t *testing.T) {
	invoices := []*models.SupplierInvoice{
		openInvoice(1, "2025-01-01", "30"),
		openInvoice(2, "2025-01-15", "0"),
		openInvoice(3, "2025-02-01", "30"),
	}
	plan := models.PlanPaymentAutoAllocation(invoices, decimal.NewFromInt(60))

	if len(plan) != 2 {
		t.Fatalf("expected the settled invoice skipped got %+v", plan)
	}
	if plan[0].InvoiceId != 1 || plan[1].InvoiceId != 3 {
		t.Fatalf("expected invoices 1 and 3 got %d and %d", plan[0].InvoiceId, plan[1].InvoiceId)
	}
}

func TestAutoAllocationStopsWhenAmountExhausted(t *testing.T) {
	invoices := []*models.SupplierInvoice{
		openInvoice(1, "2025-01-01", "50"),
		openInvoice(2, "2025-02-01", "50"),
	}
	plan := models.PlanPaymentAutoAllocation(invoices, decimal.NewFromInt(30))

	if len(plan) != 1 {
		t.Fatalf("expected a single partial allocation got %+v", plan)
	}
	if plan[0].InvoiceId != 1 || !plan[0].Amount.Equal(dec("30")) {
		t.Fatalf("expected 30 on invoice 1 got invoice %d amount %s", plan[0].InvoiceId, plan[0].Amount)
	}
}
