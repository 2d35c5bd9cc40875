package models_test

import (
	"testing"

	"bitbucket.org/mmdatafocus/hims_backend/models"
)

func TestDocumentNumberPadsSequenceToFourDigits(t *testing.T) {
	cases := []struct {
		series string
		date   string
		seq    int
		want   string
	}{
		{models.SeriesKeyGrn, "20250825", 7, "GRN202508250007"},
		{models.SeriesKeyPo, "20250101", 1, "PO202501010001"},
		{models.SeriesKeyPayment, "20251231", 9999, "PAY202512319999"},
		{models.SeriesKeyDispense, "20250825", 42, "DSP202508250042"},
	}
	for _, tc := range cases {
		if got := models.FormatDocumentNumber(tc.series, tc.date, tc.seq); got != tc.want {
			t.Fatalf("(%s, %s, %d): expected %s got %s", tc.series, tc.date, tc.seq, tc.want, got)
		}
	}
}

func TestDocumentNumberWidensPastFourDigits(t *testing.T) {
	if got := models.FormatDocumentNumber(models.SeriesKeyGrn, "20250825", 12345); got != "GRN2025082512345" {
		t.Fatalf("expected GRN2025082512345 got %s", got)
	}
}
