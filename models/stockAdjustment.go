package models

import (
	"context"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/hims_backend/config"
	"bitbucket.org/mmdatafocus/hims_backend/utils"
	"github.com/shopspring/decimal"
)

// StockAdjustment is a manual signed correction against one batch, used
// for count differences, breakage and data fixes. The reason is mandatory
// so the audit trail explains every hand adjustment.
type StockAdjustment struct {
	ID               int             `gorm:"primary_key" json:"id"`
	AdjustmentNumber string          `gorm:"size:30;uniqueIndex;not null" json:"adjustment_number"`
	BatchId          int             `gorm:"index;not null" json:"batch_id"`
	Batch            *ItemBatch      `gorm:"foreignKey:BatchId" json:"batch,omitempty"`
	ItemId           int             `gorm:"index;not null" json:"item_id"`
	LocationId       int             `gorm:"index;not null" json:"location_id"`
	QuantityDelta    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity_delta"`
	Reason           string          `gorm:"size:255;not null" json:"reason"`
	Notes            string          `gorm:"size:255" json:"notes"`
	CreatedBy        int             `json:"created_by"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (StockAdjustment) TableName() string { return "inv_stock_adjustments" }

type NewStockAdjustment struct {
	BatchId       int             `json:"batch_id" binding:"required"`
	QuantityDelta decimal.Decimal `json:"quantity_delta"`
	Reason        string          `json:"reason" binding:"required"`
	Notes         string          `json:"notes"`
}

// CreateStockAdjustment applies a signed correction immediately: batch
// balance and ledger row move together or not at all. Negative deltas that
// would overdraw the batch are refused by the ledger adjustment.
func CreateStockAdjustment(ctx context.Context, input *NewStockAdjustment) (*StockAdjustment, error) {
	db := config.GetDB()

	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, utils.ValidationErrorf("an adjustment reason is required")
	}
	delta := utils.RoundQty(input.QuantityDelta)
	if delta.IsZero() {
		return nil, utils.ValidationErrorf("quantity delta must not be zero")
	}

	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()

	batch, err := utils.FetchModelForUpdate[ItemBatch](ctx, tx, input.BatchId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	adjustment := StockAdjustment{
		BatchId:       batch.ID,
		ItemId:        batch.ItemId,
		LocationId:    batch.LocationId,
		QuantityDelta: delta,
		Reason:        reason,
		Notes:         input.Notes,
	}
	if userId, ok := utils.GetUserIdFromContext(ctx); ok {
		adjustment.CreatedBy = userId
	}

	adjustmentNumber, err := NextDocumentNumber(ctx, tx, SeriesKeyAdjustment, time.Now())
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	adjustment.AdjustmentNumber = adjustmentNumber

	if err := tx.WithContext(ctx).Create(&adjustment).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if _, err := AdjustBatchQty(ctx, tx, batch.ID, delta); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := RecordStockTransaction(ctx, tx, &StockTransaction{
		ItemId:     batch.ItemId,
		BatchId:    batch.ID,
		LocationId: batch.LocationId,
		TxnType:    StockTxnTypeAdjustment,
		Quantity:   delta,
		UnitCost:   batch.UnitCost,
		Mrp:        batch.Mrp,
		RefType:    StockRefTypeAdjustment,
		RefId:      adjustment.ID,
		Notes:      reason,
	}); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return GetStockAdjustment(ctx, adjustment.ID)
}

func GetStockAdjustment(ctx context.Context, id int) (*StockAdjustment, error) {
	return utils.FetchModel[StockAdjustment](ctx, id, "Batch")
}

type StockAdjustmentFilter struct {
	BatchId    int
	ItemId     int
	LocationId int
	FromDate   *time.Time
	ToDate     *time.Time
}

func ListStockAdjustment(ctx context.Context, filter StockAdjustmentFilter) ([]*StockAdjustment, error) {
	var adjustments []*StockAdjustment
	db := config.GetDB()

	dbCtx := db.WithContext(ctx).Preload("Batch")
	if filter.BatchId > 0 {
		dbCtx = dbCtx.Where("batch_id = ?", filter.BatchId)
	}
	if filter.ItemId > 0 {
		dbCtx = dbCtx.Where("item_id = ?", filter.ItemId)
	}
	if filter.LocationId > 0 {
		dbCtx = dbCtx.Where("location_id = ?", filter.LocationId)
	}
	if filter.FromDate != nil {
		dbCtx = dbCtx.Where("created_at >= ?", *filter.FromDate)
	}
	if filter.ToDate != nil {
		dbCtx = dbCtx.Where("created_at <= ?", *filter.ToDate)
	}

	if err := dbCtx.Order("id DESC").Find(&adjustments).Error; err != nil {
		return nil, err
	}
	return adjustments, nil
}
