package models_test

import (
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/hims_backend/models"
	"github.com/shopspring/decimal"
)

func dateOf(value string) *time.Time {
	day, _ := time.Parse("2006-01-02", value)
	return &day
}

func fefoBatch(id int, expiry string, qty int64) *models.ItemBatch {
	batch := &models.ItemBatch{
		ID:         id,
		CurrentQty: decimal.NewFromInt(qty),
	}
	if expiry != "" {
		batch.ExpiryDate = dateOf(expiry)
	}
	return batch
}

func TestFefoSortPutsEarliestExpiryFirstAndNoExpiryLast(t *testing.T) {
	batches := []*models.ItemBatch{
		fefoBatch(1, "2025-06-01", 5),
		fefoBatch(2, "2025-01-01", 5),
		fefoBatch(3, "", 5),
		fefoBatch(4, "2025-01-01", 5),
	}
	models.SortBatchesFefo(batches)

	want := []int{2, 4, 1, 3}
	for i, batch := range batches {
		if batch.ID != want[i] {
			got := make([]int, len(batches))
			for j, b := range batches {
				got[j] = b.ID
			}
			t.Fatalf("expected order %v got %v", want, got)
		}
	}
}

func TestFefoAllocationDrainsEarliestExpiryFirst(t *testing.T) {
	near := fefoBatch(2, "2025-01-01", 10)
	near.BatchNo = "NEAR"
	near.UnitCost = dec("4")
	near.Mrp = dec("6")
	mid := fefoBatch(1, "2025-06-01", 5)
	mid.BatchNo = "MID"
	open := fefoBatch(3, "", 20)
	open.BatchNo = "OPEN"

	plan := models.PlanFefoAllocation([]*models.ItemBatch{mid, near, open}, decimal.NewFromInt(18))

	if len(plan) != 3 {
		t.Fatalf("expected 3 slices got %d", len(plan))
	}
	if plan[0].BatchId != 2 || !plan[0].Quantity.Equal(dec("10")) {
		t.Fatalf("expected first slice 10 from batch 2 got %d qty %s", plan[0].BatchId, plan[0].Quantity)
	}
	if plan[1].BatchId != 1 || !plan[1].Quantity.Equal(dec("5")) {
		t.Fatalf("expected second slice 5 from batch 1 got %d qty %s", plan[1].BatchId, plan[1].Quantity)
	}
	if plan[2].BatchId != 3 || !plan[2].Quantity.Equal(dec("3")) {
		t.Fatalf("expected third slice 3 from batch 3 got %d qty %s", plan[2].BatchId, plan[2].Quantity)
	}
	// slices carry the batch costing snapshot for the document lines
	if !plan[0].UnitCost.Equal(dec("4")) || !plan[0].Mrp.Equal(dec("6")) || plan[0].BatchNo != "NEAR" {
		t.Fatalf("expected slice to carry batch cost/mrp/number got %+v", plan[0])
	}
}

func TestFefoAllocationReturnsShortPlanWhenStockRunsOut(t *testing.T) {
	plan := models.PlanFefoAllocation([]*models.ItemBatch{
		fefoBatch(1, "2025-01-01", 10),
		fefoBatch(2, "2025-06-01", 5),
	}, decimal.NewFromInt(100))

	if len(plan) != 2 {
		t.Fatalf("expected 2 slices got %d", len(plan))
	}
	total := decimal.Zero
	for _, slice := range plan {
		total = total.Add(slice.Quantity)
	}
	if !total.Equal(dec("15")) {
		t.Fatalf("expected short plan to cover 15 got %s", total)
	}
}

func TestFefoAllocationSkipsDrainedBatches(t *testing.T) {
	plan := models.PlanFefoAllocation([]*models.ItemBatch{
		fefoBatch(1, "2025-01-01", 4),
		fefoBatch(2, "2025-02-01", 0),
		fefoBatch(3, "2025-03-01", 4),
	}, decimal.NewFromInt(6))

	if len(plan) != 2 {
		t.Fatalf("expected the empty batch to be skipped, got %d slices", len(plan))
	}
	if plan[0].BatchId != 1 || plan[1].BatchId != 3 {
		t.Fatalf("expected slices from batches 1 and 3 got %d and %d", plan[0].BatchId, plan[1].BatchId)
	}
}

func TestBatchExpiringTodayIsStillGood(t *testing.T) {
	today := time.Date(2025, 8, 25, 0, 0, 0, 0, time.UTC)

	expiresToday := fefoBatch(1, "2025-08-25", 1)
	if expiresToday.IsExpiredAt(today) {
		t.Fatalf("a batch expiring today must still be usable")
	}

	expiredYesterday := fefoBatch(2, "2025-08-24", 1)
	if !expiredYesterday.IsExpiredAt(today) {
		t.Fatalf("a batch expired yesterday must count as expired")
	}

	noExpiry := fefoBatch(3, "", 1)
	if noExpiry.IsExpiredAt(today) {
		t.Fatalf("a batch without expiry never expires")
	}
}
