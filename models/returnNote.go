package models

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/hims_backend/config"
	"bitbucket.org/mmdatafocus/hims_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReturnNote moves stock out of (or back into) the ledger outside the
// purchase flow: back to the supplier, written off internally, or taken
// back from a customer. The type decides the sign of the movement and
// what happens to the batch afterwards.
type ReturnNote struct {
	ID           int              `gorm:"primary_key" json:"id"`
	ReturnNumber string           `gorm:"size:30;uniqueIndex;not null" json:"return_number"`
	ReturnType   ReturnNoteType   `gorm:"type:enum('TO_SUPPLIER','FROM_CUSTOMER','INTERNAL');not null" json:"return_type"`
	LocationId   int              `gorm:"index;not null" json:"location_id"`
	Location     *Location        `json:"location,omitempty"`
	SupplierId   int              `gorm:"index" json:"supplier_id"`
	Supplier     *Supplier        `json:"supplier,omitempty"`
	PatientId    int              `gorm:"index" json:"patient_id"`
	ReturnDate   time.Time        `gorm:"not null" json:"return_date"`
	Reason       string           `gorm:"size:255" json:"reason"`
	Notes        string           `gorm:"size:255" json:"notes"`
	Status       ReturnNoteStatus `gorm:"type:enum('DRAFT','POSTED','CANCELLED');default:DRAFT;not null" json:"status"`
	CancelReason string           `gorm:"size:255" json:"cancel_reason"`
	PostedBy     int              `json:"posted_by"`
	PostedAt     *time.Time       `gorm:"default:null" json:"posted_at"`
	CreatedBy    int              `json:"created_by"`
	Items        []ReturnNoteItem `gorm:"foreignKey:ReturnNoteId" json:"items"`
	CreatedAt    time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ReturnNote) TableName() string { return "inv_return_notes" }

// ReturnNoteItem names the stock to move: either a batch id directly or a
// batch number resolved against the note's location at post time.
type ReturnNoteItem struct {
	ID           int             `gorm:"primary_key" json:"id"`
	ReturnNoteId int             `gorm:"index;not null" json:"return_note_id"`
	ItemId       int             `gorm:"index;not null" json:"item_id"`
	Item         *Item           `json:"item,omitempty"`
	BatchId      int             `gorm:"index" json:"batch_id"`
	BatchNo      string          `gorm:"size:100" json:"batch_no"`
	Quantity     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	UnitCost     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_cost"`
	Reason       string          `gorm:"size:255" json:"reason"`
}

func (ReturnNoteItem) TableName() string { return "inv_return_note_items" }

type NewReturnNote struct {
	ReturnType ReturnNoteType      `json:"return_type" binding:"required"`
	LocationId int                 `json:"location_id" binding:"required"`
	SupplierId int                 `json:"supplier_id"`
	PatientId  int                 `json:"patient_id"`
	ReturnDate time.Time           `json:"return_date" binding:"required"`
	Reason     string              `json:"reason"`
	Notes      string              `json:"notes"`
	Items      []NewReturnNoteItem `json:"items"`
}

type NewReturnNoteItem struct {
	ItemId   int             `json:"item_id" binding:"required"`
	BatchId  int             `json:"batch_id"`
	BatchNo  string          `json:"batch_no"`
	Quantity decimal.Decimal `json:"quantity"`
	UnitCost decimal.Decimal `json:"unit_cost"`
	Reason   string          `json:"reason"`
}

func (input *NewReturnNote) validate(ctx context.Context) error {
	if !input.ReturnType.IsValid() {
		return utils.ValidationErrorf("invalid return type %s", input.ReturnType)
	}
	if err := utils.ValidateResourceId[Location](ctx, input.LocationId); err != nil {
		return utils.NotFoundErrorf("location %d not found", input.LocationId)
	}
	if input.ReturnType == ReturnTypeToSupplier {
		if input.SupplierId == 0 {
			return utils.ValidationErrorf("a supplier is required for a return to supplier")
		}
		if err := utils.ValidateResourceId[Supplier](ctx, input.SupplierId); err != nil {
			return utils.NotFoundErrorf("supplier %d not found", input.SupplierId)
		}
	}
	for i, line := range input.Items {
		if err := utils.ValidateResourceId[Item](ctx, line.ItemId); err != nil {
			return utils.NotFoundErrorf("line %d: item %d not found", i+1, line.ItemId)
		}
		if line.Quantity.IsNegative() {
			return utils.ValidationErrorf("line %d: quantity must not be negative", i+1)
		}
		if line.BatchId == 0 && strings.TrimSpace(line.BatchNo) == "" {
			return utils.ValidationErrorf("line %d: a batch id or batch number is required", i+1)
		}
	}
	return nil
}

// CreateReturnNote stores a draft with a number from the RET series.
func CreateReturnNote(ctx context.Context, input *NewReturnNote) (*ReturnNote, error) {
	db := config.GetDB()

	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	note := ReturnNote{
		ReturnType: input.ReturnType,
		LocationId: input.LocationId,
		SupplierId: input.SupplierId,
		PatientId:  input.PatientId,
		ReturnDate: input.ReturnDate,
		Reason:     input.Reason,
		Notes:      input.Notes,
		Status:     ReturnStatusDraft,
	}
	if userId, ok := utils.GetUserIdFromContext(ctx); ok {
		note.CreatedBy = userId
	}
	for _, line := range input.Items {
		note.Items = append(note.Items, ReturnNoteItem{
			ItemId:   line.ItemId,
			BatchId:  line.BatchId,
			BatchNo:  strings.TrimSpace(line.BatchNo),
			Quantity: utils.RoundQty(line.Quantity),
			UnitCost: utils.RoundMoney(line.UnitCost),
			Reason:   line.Reason,
		})
	}

	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()

	returnNumber, err := NextDocumentNumber(ctx, tx, SeriesKeyReturn, input.ReturnDate)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	note.ReturnNumber = returnNumber

	if err := tx.WithContext(ctx).Create(&note).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &note, nil
}

// resolveReturnBatch locks the batch a line refers to. A batch number may
// exist several times for one item and location (different expiries), in
// which case the caller has to name the batch id.
func resolveReturnBatch(ctx context.Context, tx *gorm.DB, note *ReturnNote, line *ReturnNoteItem) (*ItemBatch, error) {

	if line.BatchId > 0 {
		batch, err := utils.FetchModelForUpdate[ItemBatch](ctx, tx, line.BatchId)
		if err != nil {
			return nil, err
		}
		if batch.ItemId != line.ItemId || batch.LocationId != note.LocationId {
			return nil, utils.ValidationErrorf("batch %d does not hold item %d at location %d", batch.ID, line.ItemId, note.LocationId)
		}
		return batch, nil
	}

	var batches []*ItemBatch
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("item_id = ? AND location_id = ? AND batch_no = ?", line.ItemId, note.LocationId, line.BatchNo).
		Order("expiry_key, id").
		Find(&batches).Error
	if err != nil {
		return nil, err
	}
	if len(batches) == 0 {
		return nil, utils.NotFoundErrorf("batch %s of item %d not found at location %d", line.BatchNo, line.ItemId, note.LocationId)
	}
	if len(batches) > 1 {
		return nil, utils.ValidationErrorf("batch number %s is ambiguous for item %d; specify the batch id", line.BatchNo, line.ItemId)
	}
	return batches[0], nil
}

func returnTxnType(returnType ReturnNoteType) StockTxnType {
	switch returnType {
	case ReturnTypeToSupplier:
		return StockTxnTypeReturnToSupplier
	case ReturnTypeFromCustomer:
		return StockTxnTypeReturnFromCustomer
	default:
		return StockTxnTypeReturnInternal
	}
}

// applyReturnToBatch moves the line quantity and settles the batch state
// for one posted return line. Outbound types rely on the ledger adjustment
// to refuse overdrawn quantities.
func applyReturnToBatch(ctx context.Context, tx *gorm.DB, note *ReturnNote, batch *ItemBatch, quantity decimal.Decimal) (*ItemBatch, error) {

	today := todayDate()
	falseValue := false
	trueValue := true

	switch note.ReturnType {
	case ReturnTypeToSupplier:
		if batch.IsActive == nil || !*batch.IsActive {
			return nil, utils.ValidationErrorf("batch %s is not active and cannot be returned to the supplier", batch.BatchNo)
		}
		updated, err := AdjustBatchQty(ctx, tx, batch.ID, quantity.Neg())
		if err != nil {
			return nil, err
		}
		if updated.CurrentQty.IsZero() {
			if err := tx.WithContext(ctx).Model(updated).Updates(map[string]interface{}{
				"IsSaleable": &falseValue,
				"IsActive":   &falseValue,
				"Status":     BatchStatusReturned,
			}).Error; err != nil {
				return nil, err
			}
		}
		return updated, nil

	case ReturnTypeInternal:
		if batch.IsActive == nil || !*batch.IsActive {
			return nil, utils.ValidationErrorf("batch %s is not active and cannot be written off", batch.BatchNo)
		}
		updated, err := AdjustBatchQty(ctx, tx, batch.ID, quantity.Neg())
		if err != nil {
			return nil, err
		}
		status := BatchStatusQuarantine
		if updated.IsExpiredAt(today) {
			status = BatchStatusWrittenOff
		}
		updates := map[string]interface{}{
			"IsSaleable": &falseValue,
			"Status":     status,
		}
		if updated.CurrentQty.IsZero() {
			updates["IsActive"] = &falseValue
		}
		if err := tx.WithContext(ctx).Model(updated).Updates(updates).Error; err != nil {
			return nil, err
		}
		return updated, nil

	default: // FROM_CUSTOMER
		if batch.IsExpiredAt(today) {
			return nil, utils.ValidationErrorf("batch %s is expired and cannot be returned to saleable stock", batch.BatchNo)
		}
		updated, err := AdjustBatchQty(ctx, tx, batch.ID, quantity)
		if err != nil {
			return nil, err
		}
		if err := tx.WithContext(ctx).Model(updated).Updates(map[string]interface{}{
			"IsActive":   &trueValue,
			"IsSaleable": &trueValue,
			"Status":     BatchStatusActive,
		}).Error; err != nil {
			return nil, err
		}
		return updated, nil
	}
}

// PostReturnNote applies a draft: every line resolves to a batch, moves
// its quantity with the sign of the return type and writes one ledger row.
// All lines go through or none do.
func PostReturnNote(ctx context.Context, returnNoteId int) (*ReturnNote, error) {
	db := config.GetDB()

	lock, err := utils.DocumentLock(ctx, fmt.Sprintf("returnPost:%d", returnNoteId), "returnNote.go", "PostReturnNote")
	if err != nil {
		return nil, err
	}
	if lock != nil {
		defer lock.Release(ctx)
	}

	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()

	note, err := utils.FetchModelForUpdate[ReturnNote](ctx, tx, returnNoteId, "Items")
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if note.Status != ReturnStatusDraft {
		tx.Rollback()
		return nil, utils.ConflictErrorf("return %s is %s; only drafts can be posted", note.ReturnNumber, note.Status)
	}
	if len(note.Items) == 0 {
		tx.Rollback()
		return nil, utils.ValidationErrorf("return %s has no lines to post", note.ReturnNumber)
	}

	direction := decimal.NewFromInt(-1)
	if note.ReturnType == ReturnTypeFromCustomer {
		direction = decimal.NewFromInt(1)
	}

	for i := range note.Items {
		line := &note.Items[i]
		if !line.Quantity.GreaterThan(decimal.Zero) {
			tx.Rollback()
			return nil, utils.ValidationErrorf("line %d: quantity must be positive", i+1)
		}

		batch, err := resolveReturnBatch(ctx, tx, note, line)
		if err != nil {
			tx.Rollback()
			return nil, err
		}

		updated, err := applyReturnToBatch(ctx, tx, note, batch, line.Quantity)
		if err != nil {
			tx.Rollback()
			return nil, err
		}

		if err := RecordStockTransaction(ctx, tx, &StockTransaction{
			ItemId:     line.ItemId,
			BatchId:    updated.ID,
			LocationId: note.LocationId,
			TxnType:    returnTxnType(note.ReturnType),
			Quantity:   direction.Mul(line.Quantity),
			UnitCost:   updated.UnitCost,
			Mrp:        updated.Mrp,
			RefType:    StockRefTypeReturn,
			RefId:      note.ID,
			RefLineId:  line.ID,
			PatientId:  note.PatientId,
			Notes:      line.Reason,
		}); err != nil {
			tx.Rollback()
			return nil, err
		}

		lineUpdates := map[string]interface{}{
			"BatchId": updated.ID,
			"BatchNo": updated.BatchNo,
		}
		if line.UnitCost.IsZero() {
			lineUpdates["UnitCost"] = updated.UnitCost
		}
		if err := tx.WithContext(ctx).Model(line).Updates(lineUpdates).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	now := time.Now()
	postedBy := 0
	if userId, ok := utils.GetUserIdFromContext(ctx); ok {
		postedBy = userId
	}
	if err := tx.WithContext(ctx).Model(note).Updates(map[string]interface{}{
		"Status":   ReturnStatusPosted,
		"PostedBy": postedBy,
		"PostedAt": &now,
	}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return GetReturnNote(ctx, note.ID)
}

// CancelReturnNote voids a draft with a mandatory reason.
func CancelReturnNote(ctx context.Context, returnNoteId int, cancelReason string) (*ReturnNote, error) {
	db := config.GetDB()

	cancelReason = strings.TrimSpace(cancelReason)
	if cancelReason == "" {
		return nil, utils.ValidationErrorf("cancel reason is required")
	}

	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()

	note, err := utils.FetchModelForUpdate[ReturnNote](ctx, tx, returnNoteId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if note.Status != ReturnStatusDraft {
		tx.Rollback()
		return nil, utils.ConflictErrorf("return %s is %s; only drafts can be cancelled", note.ReturnNumber, note.Status)
	}

	if err := tx.WithContext(ctx).Model(note).Updates(map[string]interface{}{
		"Status":       ReturnStatusCancelled,
		"CancelReason": cancelReason,
	}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	note.Status = ReturnStatusCancelled
	note.CancelReason = cancelReason

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return note, nil
}

func GetReturnNote(ctx context.Context, id int) (*ReturnNote, error) {
	return utils.FetchModel[ReturnNote](ctx, id, "Items", "Items.Item", "Location", "Supplier")
}

type ReturnNoteFilter struct {
	ReturnType ReturnNoteType
	LocationId int
	SupplierId int
	Status     ReturnNoteStatus
	FromDate   *time.Time
	ToDate     *time.Time
}

func ListReturnNote(ctx context.Context, filter ReturnNoteFilter) ([]*ReturnNote, error) {
	var notes []*ReturnNote
	db := config.GetDB()

	dbCtx := db.WithContext(ctx).Preload("Items").Preload("Location").Preload("Supplier")
	if filter.ReturnType != "" {
		dbCtx = dbCtx.Where("return_type = ?", filter.ReturnType)
	}
	if filter.LocationId > 0 {
		dbCtx = dbCtx.Where("location_id = ?", filter.LocationId)
	}
	if filter.SupplierId > 0 {
		dbCtx = dbCtx.Where("supplier_id = ?", filter.SupplierId)
	}
	if filter.Status != "" {
		dbCtx = dbCtx.Where("status = ?", filter.Status)
	}
	if filter.FromDate != nil {
		dbCtx = dbCtx.Where("return_date >= ?", *filter.FromDate)
	}
	if filter.ToDate != nil {
		dbCtx = dbCtx.Where("return_date <= ?", *filter.ToDate)
	}

	if err := dbCtx.Order("return_date DESC, id DESC").Find(&notes).Error; err != nil {
		return nil, err
	}
	return notes, nil
}
