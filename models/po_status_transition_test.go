package models_test

import (
	"testing"

	"bitbucket.org/mmdatafocus/hims_backend/models"
)

func TestPurchaseOrderLifecycleMatrix(t *testing.T) {
	cases := []struct {
		from    models.PurchaseOrderStatus
		to      models.PurchaseOrderStatus
		allowed bool
	}{
		{models.PoStatusDraft, models.PoStatusApproved, true},
		{models.PoStatusDraft, models.PoStatusCancelled, true},
		{models.PoStatusDraft, models.PoStatusSent, false},
		{models.PoStatusDraft, models.PoStatusCompleted, false},
		{models.PoStatusDraft, models.PoStatusClosed, false},

		{models.PoStatusApproved, models.PoStatusSent, true},
		{models.PoStatusApproved, models.PoStatusCancelled, true},
		{models.PoStatusApproved, models.PoStatusDraft, false},
		{models.PoStatusApproved, models.PoStatusCompleted, false},

		{models.PoStatusSent, models.PoStatusPartiallyReceived, true},
		{models.PoStatusSent, models.PoStatusCompleted, true},
		{models.PoStatusSent, models.PoStatusCancelled, true},
		{models.PoStatusSent, models.PoStatusClosed, false},
		{models.PoStatusSent, models.PoStatusDraft, false},

		{models.PoStatusPartiallyReceived, models.PoStatusCompleted, true},
		{models.PoStatusPartiallyReceived, models.PoStatusClosed, true},
		// a partially received order can no longer be cancelled outright
		{models.PoStatusPartiallyReceived, models.PoStatusCancelled, false},

		{models.PoStatusCompleted, models.PoStatusClosed, true},
		{models.PoStatusCompleted, models.PoStatusCancelled, false},
		{models.PoStatusCompleted, models.PoStatusSent, false},
	}

	for _, tc := range cases {
		po := models.PurchaseOrder{Status: tc.from}
		if got := po.CanTransitionTo(tc.to); got != tc.allowed {
			t.Fatalf("%s -> %s: expected %v got %v", tc.from, tc.to, tc.allowed, got)
		}
	}
}

func TestTerminalStatusesAllowNoTransition(t *testing.T) {
	targets := []models.PurchaseOrderStatus{
		models.PoStatusDraft, models.PoStatusApproved, models.PoStatusSent,
		models.PoStatusPartiallyReceived, models.PoStatusCompleted,
		models.PoStatusClosed, models.PoStatusCancelled,
	}
	for _, terminal := range []models.PurchaseOrderStatus{models.PoStatusClosed, models.PoStatusCancelled} {
		po := models.PurchaseOrder{Status: terminal}
		for _, target := range targets {
			if po.CanTransitionTo(target) {
				t.Fatalf("%s is terminal but allowed a move to %s", terminal, target)
			}
		}
	}
}

func TestUnknownStatusAllowsNothing(t *testing.T) {
	po := models.PurchaseOrder{Status: models.PurchaseOrderStatus("GARBAGE")}
	if po.CanTransitionTo(models.PoStatusApproved) {
		t.Fatalf("an unknown status must not allow transitions")
	}
}
