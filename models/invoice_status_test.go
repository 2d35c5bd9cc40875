package models_test

import (
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/hims_backend/models"
	"github.com/shopspring/decimal"
)

func TestInvoiceStatusFollowsPaidAmount(t *testing.T) {
	today := time.Date(2025, 8, 25, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		paid        string
		status      models.SupplierInvoiceStatus
		outstanding string
	}{
		{"0", models.InvoiceStatusUnpaid, "100"},
		{"40", models.InvoiceStatusPartial, "60"},
		{"100", models.InvoiceStatusPaid, "0"},
		{"120", models.InvoiceStatusPaid, "0"}, // overshoot never reports negative
	}
	for _, tc := range cases {
		invoice := models.SupplierInvoice{
			InvoiceAmount: decimal.NewFromInt(100),
			PaidAmount:    dec(tc.paid),
		}
		invoice.ComputeInvoiceStatus(today)

		if invoice.Status != tc.status {
			t.Fatalf("paid %s: expected status %s got %s", tc.paid, tc.status, invoice.Status)
		}
		if !invoice.OutstandingAmount.Equal(dec(tc.outstanding)) {
			t.Fatalf("paid %s: expected outstanding %s got %s", tc.paid, tc.outstanding, invoice.OutstandingAmount)
		}
	}
}

func TestCancelledInvoiceKeepsItsNumbers(t *testing.T) {
	today := time.Date(2025, 8, 25, 0, 0, 0, 0, time.UTC)
	invoice := models.SupplierInvoice{
		Status:            models.InvoiceStatusCancelled,
		InvoiceAmount:     decimal.NewFromInt(100),
		PaidAmount:        decimal.Zero,
		OutstandingAmount: decimal.NewFromInt(77),
		DueDate:           dateOf("2025-01-01"),
	}
	invoice.ComputeInvoiceStatus(today)

	if invoice.Status != models.InvoiceStatusCancelled {
		t.Fatalf("expected a cancelled invoice to stay cancelled got %s", invoice.Status)
	}
	if !invoice.OutstandingAmount.Equal(dec("77")) {
		t.Fatalf("expected outstanding untouched got %s", invoice.OutstandingAmount)
	}
	if invoice.IsOverdue {
		t.Fatalf("a cancelled invoice is never overdue")
	}
}

func TestOverdueNeedsBothPastDueDateAndBalance(t *testing.T) {
	today := time.Date(2025, 8, 25, 0, 0, 0, 0, time.UTC)

	pastDue := models.SupplierInvoice{
		InvoiceAmount: decimal.NewFromInt(100),
		DueDate:       dateOf("2025-08-24"),
	}
	pastDue.ComputeInvoiceStatus(today)
	if !pastDue.IsOverdue {
		t.Fatalf("expected overdue when the due date is past and money is open")
	}

	dueToday := models.SupplierInvoice{
		InvoiceAmount: decimal.NewFromInt(100),
		DueDate:       dateOf("2025-08-25"),
	}
	dueToday.ComputeInvoiceStatus(today)
	if dueToday.IsOverdue {
		t.Fatalf("an invoice due today is not overdue yet")
	}

	settled := models.SupplierInvoice{
		InvoiceAmount: decimal.NewFromInt(100),
		PaidAmount:    decimal.NewFromInt(100),
		DueDate:       dateOf("2025-08-24"),
	}
	settled.ComputeInvoiceStatus(today)
	if settled.IsOverdue {
		t.Fatalf("a settled invoice is not overdue")
	}

	noDueDate := models.SupplierInvoice{
		InvoiceAmount: decimal.NewFromInt(100),
	}
	noDueDate.ComputeInvoiceStatus(today)
	if noDueDate.IsOverdue {
		t.Fatalf("without a due date there is nothing to be overdue against")
	}
}
