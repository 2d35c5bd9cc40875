package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/hims_backend/config"
	"bitbucket.org/mmdatafocus/hims_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StockTransaction is the append-only movement log. Rows are only ever
// inserted, in the same transaction as the batch quantity change they
// describe, so summing quantity per batch reproduces current_qty.
type StockTransaction struct {
	ID            int             `gorm:"primary_key" json:"id"`
	ItemId        int             `gorm:"index:idx_stock_txns_item_date,priority:1;not null" json:"item_id"`
	BatchId       int             `gorm:"index;not null" json:"batch_id"`
	LocationId    int             `gorm:"index;not null" json:"location_id"`
	TxnType       StockTxnType    `gorm:"size:30;not null" json:"txn_type"`
	Quantity      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	UnitCost      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_cost"`
	Mrp           decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"mrp"`
	RefType       StockRefType    `gorm:"size:20" json:"ref_type"`
	RefId         int             `gorm:"index" json:"ref_id"`
	RefLineId     int             `json:"ref_line_id"`
	PatientId     int             `gorm:"index" json:"patient_id"`
	VisitId       int             `json:"visit_id"`
	DoctorId      int             `json:"doctor_id"`
	Notes         string          `gorm:"size:255" json:"notes"`
	CorrelationId string          `gorm:"size:64;index" json:"correlation_id"`
	CreatedBy     int             `json:"created_by"`
	CreatedAt     time.Time       `gorm:"autoCreateTime;index:idx_stock_txns_item_date,priority:2" json:"created_at"`
}

func (StockTransaction) TableName() string { return "inv_stock_txns" }

// RecordStockTransaction appends one movement row inside the caller's
// transaction. Callers adjust the batch balance themselves; this never
// touches inv_item_batches.
func RecordStockTransaction(ctx context.Context, tx *gorm.DB, txn *StockTransaction) error {

	if txn.Quantity.IsZero() {
		return utils.ValidationErrorf("stock transaction quantity must not be zero")
	}
	if txn.CorrelationId == "" {
		txn.CorrelationId = correlationIdFromContextOrNew(ctx)
	}
	if txn.CreatedBy == 0 {
		if userId, ok := utils.GetUserIdFromContext(ctx); ok {
			txn.CreatedBy = userId
		}
	}

	return tx.WithContext(ctx).Create(txn).Error
}

type StockTransactionFilter struct {
	ItemId     int
	BatchId    int
	LocationId int
	TxnType    StockTxnType
	RefType    StockRefType
	RefId      int
	PatientId  int
	FromDate   *time.Time
	ToDate     *time.Time
	Limit      int
}

// ListStockTransactions reads the movement log for audit screens, newest
// first.
func ListStockTransactions(ctx context.Context, filter StockTransactionFilter) ([]*StockTransaction, error) {
	var txns []*StockTransaction
	db := config.GetDB()

	dbCtx := db.WithContext(ctx)
	if filter.ItemId > 0 {
		dbCtx = dbCtx.Where("item_id = ?", filter.ItemId)
	}
	if filter.BatchId > 0 {
		dbCtx = dbCtx.Where("batch_id = ?", filter.BatchId)
	}
	if filter.LocationId > 0 {
		dbCtx = dbCtx.Where("location_id = ?", filter.LocationId)
	}
	if filter.TxnType != "" {
		dbCtx = dbCtx.Where("txn_type = ?", filter.TxnType)
	}
	if filter.RefType != "" {
		dbCtx = dbCtx.Where("ref_type = ?", filter.RefType)
	}
	if filter.RefId > 0 {
		dbCtx = dbCtx.Where("ref_id = ?", filter.RefId)
	}
	if filter.PatientId > 0 {
		dbCtx = dbCtx.Where("patient_id = ?", filter.PatientId)
	}
	if filter.FromDate != nil {
		dbCtx = dbCtx.Where("created_at >= ?", *filter.FromDate)
	}
	if filter.ToDate != nil {
		dbCtx = dbCtx.Where("created_at <= ?", *filter.ToDate)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 200
	}

	if err := dbCtx.Order("id DESC").Limit(limit).Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

// SumBatchTxnQty replays the movement log for one batch. Used by the
// ledger consistency check to compare against inv_item_batches.current_qty.
func SumBatchTxnQty(ctx context.Context, batchId int) (decimal.Decimal, error) {
	db := config.GetDB()
	var total decimal.Decimal
	err := db.WithContext(ctx).Model(&StockTransaction{}).
		Where("batch_id = ?", batchId).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&total).Error
	if err != nil {
		return decimal.Zero, err
	}
	return total, nil
}
