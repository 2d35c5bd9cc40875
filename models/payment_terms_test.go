package models

import (
	"testing"
	"time"
)

func TestParsePaymentTermsReadsFirstInteger(t *testing.T) {
	cases := []struct {
		terms string
		days  int
	}{
		{"Net 30", 30},
		{"30 days", 30},
		{"credit 45d", 45},
		{"NET-15", 15},
		{"due on receipt", 0},
		{"", 0},
	}
	for _, tc := range cases {
		if got := parsePaymentTermsDays(tc.terms); got != tc.days {
			t.Fatalf("%q: expected %d days got %d", tc.terms, tc.days, got)
		}
	}
}

func TestDueDatePrefersOrderTermsOverSupplierDefault(t *testing.T) {
	invoiceDate := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)

	due := calculateDueDate(invoiceDate, "Net 15", "Net 30")
	if due == nil || !due.Equal(time.Date(2025, 8, 16, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected the order terms to win (2025-08-16) got %v", due)
	}

	due = calculateDueDate(invoiceDate, "", "Net 30")
	if due == nil || !due.Equal(time.Date(2025, 8, 31, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected supplier fallback (2025-08-31) got %v", due)
	}

	// terms without a number fall through to the supplier's
	due = calculateDueDate(invoiceDate, "due on receipt", "Net 30")
	if due == nil || !due.Equal(time.Date(2025, 8, 31, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected numberless order terms to fall through got %v", due)
	}

	if due := calculateDueDate(invoiceDate, "", ""); due != nil {
		t.Fatalf("expected no due date without terms got %v", due)
	}
}
