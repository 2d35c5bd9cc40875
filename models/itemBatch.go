package models

import (
	"context"
	"sort"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/hims_backend/config"
	"bitbucket.org/mmdatafocus/hims_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ItemBatch is the stock ledger grain: one row per physical batch of an
// item at a location. current_qty is only ever changed through
// AdjustBatchQty inside a transaction that also writes a StockTransaction,
// so the ledger stays replayable.
type ItemBatch struct {
	ID         int        `gorm:"primary_key" json:"id"`
	ItemId     int        `gorm:"uniqueIndex:idx_item_batches_identity,priority:1;not null" json:"item_id"`
	Item       *Item      `json:"item,omitempty"`
	LocationId int        `gorm:"uniqueIndex:idx_item_batches_identity,priority:2;not null" json:"location_id"`
	Location   *Location  `json:"location,omitempty"`
	BatchNo    string     `gorm:"size:100;uniqueIndex:idx_item_batches_identity,priority:3;not null" json:"batch_no"`
	ExpiryDate *time.Time `json:"expiry_date"`
	// ExpiryKey mirrors ExpiryDate as yyyymmdd ("99991231" when no expiry)
	// so the unique index can include it without tripping over NULLs.
	ExpiryKey  string          `gorm:"size:8;uniqueIndex:idx_item_batches_identity,priority:4;not null;default:99991231" json:"-"`
	UnitCost   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_cost"`
	Mrp        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"mrp"`
	TaxPercent decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"tax_percent"`
	CurrentQty decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"current_qty"`
	Status     BatchStatus     `gorm:"type:enum('ACTIVE','EXPIRED','RETURNED','WRITTEN_OFF','QUARANTINE');default:ACTIVE" json:"status"`
	IsActive   *bool           `gorm:"default:true" json:"is_active"`
	IsSaleable *bool           `gorm:"default:true" json:"is_saleable"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ItemBatch) TableName() string { return "inv_item_batches" }

const noExpiryKey = "99991231"

func (batch *ItemBatch) BeforeSave(tx *gorm.DB) error {
	if batch.ExpiryDate != nil {
		batch.ExpiryKey = batch.ExpiryDate.Format("20060102")
	} else {
		batch.ExpiryKey = noExpiryKey
	}
	return nil
}

// IsExpiredAt reports whether the batch is past its expiry on the given
// date. A batch expiring today is still good.
func (batch *ItemBatch) IsExpiredAt(date time.Time) bool {
	if batch.ExpiryDate == nil {
		return false
	}
	return batch.ExpiryDate.Before(date)
}

func expiryKeyFor(expiryDate *time.Time) string {
	if expiryDate == nil {
		return noExpiryKey
	}
	return expiryDate.Format("20060102")
}

// GetOrCreateItemBatch resolves the batch identified by
// (item, location, batch_no, expiry) under a row lock, creating it with
// zero quantity when it does not exist yet. Receipts of the same physical
// batch from different deliveries land on the same row.
func GetOrCreateItemBatch(ctx context.Context, tx *gorm.DB, itemId int, locationId int, batchNo string, expiryDate *time.Time) (*ItemBatch, error) {

	batchNo = strings.TrimSpace(batchNo)
	if batchNo == "" {
		return nil, utils.ValidationErrorf("batch number must not be blank")
	}

	batch := ItemBatch{
		ItemId:     itemId,
		LocationId: locationId,
		BatchNo:    batchNo,
		ExpiryDate: expiryDate,
	}
	result := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("item_id = ? AND location_id = ? AND batch_no = ? AND expiry_key = ?",
			itemId, locationId, batchNo, expiryKeyFor(expiryDate)).
		FirstOrCreate(&batch)
	if result.Error != nil {
		return nil, result.Error
	}

	return &batch, nil
}

// AdjustBatchQty moves the batch balance by delta (negative for issues)
// under a row lock and returns the batch with the new quantity. The
// balance is never allowed below zero.
func AdjustBatchQty(ctx context.Context, tx *gorm.DB, batchId int, delta decimal.Decimal) (*ItemBatch, error) {

	batch, err := utils.FetchModelForUpdate[ItemBatch](ctx, tx, batchId)
	if err != nil {
		return nil, err
	}

	newQty := batch.CurrentQty.Add(delta)
	if newQty.IsNegative() {
		return nil, utils.InsufficientStockErrorf("insufficient stock in batch %s: on hand %s, requested %s",
			batch.BatchNo, batch.CurrentQty.String(), delta.Neg().String())
	}

	if err := tx.WithContext(ctx).Exec("UPDATE inv_item_batches SET current_qty = current_qty + ? WHERE id = ?",
		delta, batch.ID).Error; err != nil {
		return nil, err
	}
	batch.CurrentQty = newQty

	return batch, nil
}

// updateBatchPurchaseInfo refreshes the costing snapshot on a batch after
// a receipt. Last write wins, no averaging.
func updateBatchPurchaseInfo(ctx context.Context, tx *gorm.DB, batchId int, unitCost decimal.Decimal, mrp decimal.Decimal, taxPercent decimal.Decimal) error {
	return tx.WithContext(ctx).Model(&ItemBatch{}).Where("id = ?", batchId).
		Updates(map[string]interface{}{
			"UnitCost":   unitCost,
			"Mrp":        mrp,
			"TaxPercent": taxPercent,
		}).Error
}

// BatchAllocation is one slice of a stock issue, pinned to the batch it
// came from.
type BatchAllocation struct {
	BatchId    int             `json:"batch_id"`
	BatchNo    string          `json:"batch_no"`
	ExpiryDate *time.Time      `json:"expiry_date"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	Mrp        decimal.Decimal `json:"mrp"`
}

// SortBatchesFefo orders batches first-expiry-first-out: earliest expiry
// first, batches without an expiry last, ties broken by id so the order
// is stable across calls.
func SortBatchesFefo(batches []*ItemBatch) {
	sort.SliceStable(batches, func(i, j int) bool {
		a, b := batches[i], batches[j]
		if a.ExpiryDate == nil && b.ExpiryDate == nil {
			return a.ID < b.ID
		}
		if a.ExpiryDate == nil {
			return false
		}
		if b.ExpiryDate == nil {
			return true
		}
		if a.ExpiryDate.Equal(*b.ExpiryDate) {
			return a.ID < b.ID
		}
		return a.ExpiryDate.Before(*b.ExpiryDate)
	})
}

// PlanFefoAllocation drains the requested quantity greedily across the
// given batches in FEFO order. The plan may cover less than requested
// when stock runs short; callers that need full coverage check the total
// themselves.
func PlanFefoAllocation(batches []*ItemBatch, requestedQty decimal.Decimal) []BatchAllocation {

	SortBatchesFefo(batches)

	allocations := make([]BatchAllocation, 0, len(batches))
	remainingQty := requestedQty
	for _, batch := range batches {
		if !remainingQty.GreaterThan(decimal.Zero) {
			break
		}
		takeQty := decimal.Min(batch.CurrentQty, remainingQty)
		if !takeQty.GreaterThan(decimal.Zero) {
			continue
		}
		allocations = append(allocations, BatchAllocation{
			BatchId:    batch.ID,
			BatchNo:    batch.BatchNo,
			ExpiryDate: batch.ExpiryDate,
			Quantity:   takeQty,
			UnitCost:   batch.UnitCost,
			Mrp:        batch.Mrp,
		})
		remainingQty = remainingQty.Sub(takeQty)
	}
	return allocations
}

// AllocateBatchesFefo locks the saleable batches of an item at a location
// and plans a FEFO issue against them. Saleable means active, marked
// saleable, status ACTIVE, positive balance and not expired (expiring
// today still counts). Errors only when there is no saleable stock at
// all; a short plan is returned as-is.
func AllocateBatchesFefo(ctx context.Context, tx *gorm.DB, itemId int, locationId int, requestedQty decimal.Decimal) ([]BatchAllocation, error) {

	if !requestedQty.GreaterThan(decimal.Zero) {
		return nil, utils.ValidationErrorf("requested quantity must be positive")
	}

	var batches []*ItemBatch
	err := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("item_id = ? AND location_id = ?", itemId, locationId).
		Where("is_active = ? AND is_saleable = ? AND status = ?", true, true, BatchStatusActive).
		Where("current_qty > 0").
		Where("expiry_date IS NULL OR expiry_date >= ?", todayDate()).
		Find(&batches).Error
	if err != nil {
		return nil, err
	}

	if len(batches) == 0 {
		return nil, utils.InsufficientStockErrorf("no saleable stock for item %d at location %d", itemId, locationId)
	}

	return PlanFefoAllocation(batches, requestedQty), nil
}

// PreviewFefoAllocation plans a FEFO issue without locking anything, for
// the stock enquiry screens. The plan is advisory; posting re-reads under
// lock.
func PreviewFefoAllocation(ctx context.Context, itemId int, locationId int, requestedQty decimal.Decimal) ([]BatchAllocation, error) {
	db := config.GetDB()

	if !requestedQty.GreaterThan(decimal.Zero) {
		return nil, utils.ValidationErrorf("requested quantity must be positive")
	}

	var batches []*ItemBatch
	err := db.WithContext(ctx).
		Where("item_id = ? AND location_id = ?", itemId, locationId).
		Where("is_active = ? AND is_saleable = ? AND status = ?", true, true, BatchStatusActive).
		Where("current_qty > 0").
		Where("expiry_date IS NULL OR expiry_date >= ?", todayDate()).
		Find(&batches).Error
	if err != nil {
		return nil, err
	}
	return PlanFefoAllocation(batches, requestedQty), nil
}

// GetItemBatch returns one batch by id, cache-aside like the other masters.
func GetItemBatch(ctx context.Context, id int) (*ItemBatch, error) {
	return GetResource[ItemBatch](ctx, id)
}

type ItemBatchFilter struct {
	ItemId        int
	LocationId    int
	Status        BatchStatus
	SaleableOnly  bool
	WithStockOnly bool
	ExpiringOn    *time.Time // batches expiring on or before this date
}

// ListItemBatch lists batches for stock enquiry screens.
func ListItemBatch(ctx context.Context, filter ItemBatchFilter) ([]*ItemBatch, error) {
	var batches []*ItemBatch
	db := config.GetDB()

	dbCtx := db.WithContext(ctx).Preload("Item").Preload("Location")
	if filter.ItemId > 0 {
		dbCtx = dbCtx.Where("item_id = ?", filter.ItemId)
	}
	if filter.LocationId > 0 {
		dbCtx = dbCtx.Where("location_id = ?", filter.LocationId)
	}
	if filter.Status != "" {
		dbCtx = dbCtx.Where("status = ?", filter.Status)
	}
	if filter.SaleableOnly {
		dbCtx = dbCtx.Where("is_active = ? AND is_saleable = ? AND status = ?", true, true, BatchStatusActive)
	}
	if filter.WithStockOnly {
		dbCtx = dbCtx.Where("current_qty > 0")
	}
	if filter.ExpiringOn != nil {
		dbCtx = dbCtx.Where("expiry_date IS NOT NULL AND expiry_date <= ?", *filter.ExpiringOn)
	}

	if err := dbCtx.Order("expiry_key, id").Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}
