package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/hims_backend/config"
	"bitbucket.org/mmdatafocus/hims_backend/utils"
	"github.com/shopspring/decimal"
)

// Dispense issues stock FEFO to a patient or cost centre. There is no
// draft stage: the document is created and applied in one transaction,
// one row per batch actually drawn from.
type Dispense struct {
	ID             int             `gorm:"primary_key" json:"id"`
	DispenseNumber string          `gorm:"size:30;uniqueIndex;not null" json:"dispense_number"`
	LocationId     int             `gorm:"index;not null" json:"location_id"`
	Location       *Location       `json:"location,omitempty"`
	PatientId      int             `gorm:"index" json:"patient_id"`
	VisitId        int             `json:"visit_id"`
	DoctorId       int             `json:"doctor_id"`
	DispenseDate   time.Time       `gorm:"not null" json:"dispense_date"`
	TotalAmount    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	Notes          string          `gorm:"size:255" json:"notes"`
	CreatedBy      int             `json:"created_by"`
	Items          []DispenseItem  `gorm:"foreignKey:DispenseId" json:"items"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Dispense) TableName() string { return "inv_dispenses" }

// DispenseItem is one issued slice: a requested item line fans out into
// one row per batch the FEFO plan drew from.
type DispenseItem struct {
	ID         int             `gorm:"primary_key" json:"id"`
	DispenseId int             `gorm:"index;not null" json:"dispense_id"`
	ItemId     int             `gorm:"index;not null" json:"item_id"`
	Item       *Item           `json:"item,omitempty"`
	BatchId    int             `gorm:"index;not null" json:"batch_id"`
	BatchNo    string          `gorm:"size:100" json:"batch_no"`
	ExpiryDate *time.Time      `gorm:"default:null" json:"expiry_date"`
	Quantity   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	UnitCost   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_cost"`
	Mrp        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"mrp"`
	Amount     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
}

func (DispenseItem) TableName() string { return "inv_dispense_items" }

type NewDispense struct {
	LocationId   int               `json:"location_id" binding:"required"`
	PatientId    int               `json:"patient_id"`
	VisitId      int               `json:"visit_id"`
	DoctorId     int               `json:"doctor_id"`
	DispenseDate time.Time         `json:"dispense_date" binding:"required"`
	Notes        string            `json:"notes"`
	Items        []NewDispenseItem `json:"items" binding:"required"`
}

type NewDispenseItem struct {
	ItemId   int             `json:"item_id" binding:"required"`
	Quantity decimal.Decimal `json:"quantity"`
}

func (input *NewDispense) validate(ctx context.Context) error {
	if err := utils.ValidateResourceId[Location](ctx, input.LocationId); err != nil {
		return utils.NotFoundErrorf("location %d not found", input.LocationId)
	}
	if len(input.Items) == 0 {
		return utils.ValidationErrorf("at least one line is required")
	}
	for i, line := range input.Items {
		if err := utils.ValidateResourceId[Item](ctx, line.ItemId); err != nil {
			return utils.NotFoundErrorf("line %d: item %d not found", i+1, line.ItemId)
		}
		if !line.Quantity.GreaterThan(decimal.Zero) {
			return utils.ValidationErrorf("line %d: quantity must be positive", i+1)
		}
	}
	return nil
}

// CreateDispense issues every requested line FEFO in one transaction. A
// line the ledger cannot fully cover fails the whole document with the
// available quantity in the message; the mrp is charged when the batch
// has one, the cost otherwise.
func CreateDispense(ctx context.Context, input *NewDispense) (*Dispense, error) {
	db := config.GetDB()

	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	dispense := Dispense{
		LocationId:   input.LocationId,
		PatientId:    input.PatientId,
		VisitId:      input.VisitId,
		DoctorId:     input.DoctorId,
		DispenseDate: input.DispenseDate,
		Notes:        input.Notes,
	}
	if userId, ok := utils.GetUserIdFromContext(ctx); ok {
		dispense.CreatedBy = userId
	}

	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()

	dispenseNumber, err := NextDocumentNumber(ctx, tx, SeriesKeyDispense, input.DispenseDate)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	dispense.DispenseNumber = dispenseNumber

	if err := tx.WithContext(ctx).Create(&dispense).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	totalAmount := decimal.Zero
	for i, line := range input.Items {
		requestedQty := utils.RoundQty(line.Quantity)

		allocations, err := AllocateBatchesFefo(ctx, tx, line.ItemId, input.LocationId, requestedQty)
		if err != nil {
			tx.Rollback()
			return nil, err
		}

		allocatedQty := decimal.Zero
		for _, allocation := range allocations {
			allocatedQty = allocatedQty.Add(allocation.Quantity)
		}
		if allocatedQty.LessThan(requestedQty) {
			tx.Rollback()
			return nil, utils.InsufficientStockErrorf("line %d: insufficient saleable stock for item %d: requested %s, available %s",
				i+1, line.ItemId, requestedQty.String(), allocatedQty.String())
		}

		for _, allocation := range allocations {
			if _, err := AdjustBatchQty(ctx, tx, allocation.BatchId, allocation.Quantity.Neg()); err != nil {
				tx.Rollback()
				return nil, err
			}

			price := allocation.Mrp
			if !price.GreaterThan(decimal.Zero) {
				price = allocation.UnitCost
			}
			amount := utils.RoundMoney(allocation.Quantity.Mul(price))

			dispenseItem := DispenseItem{
				DispenseId: dispense.ID,
				ItemId:     line.ItemId,
				BatchId:    allocation.BatchId,
				BatchNo:    allocation.BatchNo,
				ExpiryDate: allocation.ExpiryDate,
				Quantity:   allocation.Quantity,
				UnitCost:   allocation.UnitCost,
				Mrp:        allocation.Mrp,
				Amount:     amount,
			}
			if err := tx.WithContext(ctx).Create(&dispenseItem).Error; err != nil {
				tx.Rollback()
				return nil, err
			}

			if err := RecordStockTransaction(ctx, tx, &StockTransaction{
				ItemId:     line.ItemId,
				BatchId:    allocation.BatchId,
				LocationId: input.LocationId,
				TxnType:    StockTxnTypeDispense,
				Quantity:   allocation.Quantity.Neg(),
				UnitCost:   allocation.UnitCost,
				Mrp:        allocation.Mrp,
				RefType:    StockRefTypeDispense,
				RefId:      dispense.ID,
				RefLineId:  dispenseItem.ID,
				PatientId:  input.PatientId,
				VisitId:    input.VisitId,
				DoctorId:   input.DoctorId,
			}); err != nil {
				tx.Rollback()
				return nil, err
			}

			totalAmount = totalAmount.Add(amount)
		}
	}

	if err := tx.WithContext(ctx).Model(&dispense).UpdateColumn("TotalAmount", totalAmount).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return GetDispense(ctx, dispense.ID)
}

func GetDispense(ctx context.Context, id int) (*Dispense, error) {
	return utils.FetchModel[Dispense](ctx, id, "Items", "Items.Item", "Location")
}

type DispenseFilter struct {
	LocationId int
	PatientId  int
	FromDate   *time.Time
	ToDate     *time.Time
}

func ListDispense(ctx context.Context, filter DispenseFilter) ([]*Dispense, error) {
	var dispenses []*Dispense
	db := config.GetDB()

	dbCtx := db.WithContext(ctx).Preload("Items").Preload("Location")
	if filter.LocationId > 0 {
		dbCtx = dbCtx.Where("location_id = ?", filter.LocationId)
	}
	if filter.PatientId > 0 {
		dbCtx = dbCtx.Where("patient_id = ?", filter.PatientId)
	}
	if filter.FromDate != nil {
		dbCtx = dbCtx.Where("dispense_date >= ?", *filter.FromDate)
	}
	if filter.ToDate != nil {
		dbCtx = dbCtx.Where("dispense_date <= ?", *filter.ToDate)
	}

	if err := dbCtx.Order("dispense_date DESC, id DESC").Find(&dispenses).Error; err != nil {
		return nil, err
	}
	return dispenses, nil
}
