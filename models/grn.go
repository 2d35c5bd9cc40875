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
)

// Grn records a goods receipt. DRAFT rows are freely editable; posting is
// one-way and applies every side effect (stock, PO receipt, supplier
// invoice) in a single transaction; CANCELLED is only reachable from
// DRAFT since a posted receipt can only be undone by a return document.
type Grn struct {
	ID                    int             `gorm:"primary_key" json:"id"`
	GrnNumber             string          `gorm:"size:30;uniqueIndex;not null" json:"grn_number"`
	SupplierId            int             `gorm:"index;not null" json:"supplier_id"`
	Supplier              *Supplier       `json:"supplier,omitempty"`
	LocationId            int             `gorm:"index;not null" json:"location_id"`
	Location              *Location       `json:"location,omitempty"`
	PurchaseOrderId       int             `gorm:"index" json:"purchase_order_id"`
	PurchaseOrder         *PurchaseOrder  `json:"purchase_order,omitempty"`
	GrnDate               time.Time       `gorm:"not null" json:"grn_date"`
	SupplierInvoiceNo     string          `gorm:"size:100" json:"supplier_invoice_no"`
	SupplierInvoiceDate   *time.Time      `gorm:"default:null" json:"supplier_invoice_date"`
	SupplierInvoiceAmount decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"supplier_invoice_amount"`
	FreightAmount         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"freight_amount"`
	OtherCharges          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"other_charges"`
	RoundOff              decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"round_off"`
	Status                GrnStatus       `gorm:"type:enum('DRAFT','POSTED','CANCELLED');default:DRAFT;not null" json:"status"`
	Notes                 string          `gorm:"size:255" json:"notes"`
	DifferenceReason      string          `gorm:"size:255" json:"difference_reason"`
	CancelReason          string          `gorm:"size:255" json:"cancel_reason"`
	// derived at post time
	GrossAmount         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"gross_amount"`
	DiscountAmount      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"discount_amount"`
	TaxableAmount       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"taxable_amount"`
	CgstAmount          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"cgst_amount"`
	SgstAmount          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"sgst_amount"`
	IgstAmount          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"igst_amount"`
	CalculatedGrnAmount decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"calculated_grn_amount"`
	AmountDifference    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount_difference"`
	PostedBy            int             `json:"posted_by"`
	PostedAt            *time.Time      `gorm:"default:null" json:"posted_at"`
	CreatedBy           int             `json:"created_by"`
	Items               []GrnItem       `gorm:"foreignKey:GrnId" json:"items"`
	CreatedAt           time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Grn) TableName() string { return "inv_grns" }

type GrnItem struct {
	ID           int             `gorm:"primary_key" json:"id"`
	GrnId        int             `gorm:"index;not null" json:"grn_id"`
	ItemId       int             `gorm:"index;not null" json:"item_id"`
	Item         *Item           `json:"item,omitempty"`
	PoItemId     int             `gorm:"index" json:"po_item_id"`
	BatchId      int             `gorm:"index" json:"batch_id"`
	BatchNo      string          `gorm:"size:100" json:"batch_no"`
	ExpiryDate   *time.Time      `gorm:"default:null" json:"expiry_date"`
	Quantity     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"quantity"`
	FreeQuantity decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"free_quantity"`
	UnitCost     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_cost"`
	Mrp          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"mrp"`

	DiscountPercent decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"discount_percent"`
	DiscountAmount  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"discount_amount"`
	TaxPercent      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"tax_percent"`
	CgstPercent     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"cgst_percent"`
	SgstPercent     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"sgst_percent"`
	IgstPercent     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"igst_percent"`
	// derived at post time
	GrossAmount   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"gross_amount"`
	TaxableAmount decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"taxable_amount"`
	CgstAmount    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"cgst_amount"`
	SgstAmount    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"sgst_amount"`
	IgstAmount    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"igst_amount"`
	LineTotal     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"line_total"`
}

func (GrnItem) TableName() string { return "inv_grn_items" }

type NewGrn struct {
	SupplierId            int             `json:"supplier_id" binding:"required"`
	LocationId            int             `json:"location_id" binding:"required"`
	PurchaseOrderId       int             `json:"purchase_order_id"`
	GrnDate               time.Time       `json:"grn_date" binding:"required"`
	SupplierInvoiceNo     string          `json:"supplier_invoice_no"`
	SupplierInvoiceDate   *time.Time      `json:"supplier_invoice_date"`
	SupplierInvoiceAmount decimal.Decimal `json:"supplier_invoice_amount"`
	FreightAmount         decimal.Decimal `json:"freight_amount"`
	OtherCharges          decimal.Decimal `json:"other_charges"`
	RoundOff              decimal.Decimal `json:"round_off"`
	DifferenceReason      string          `json:"difference_reason"`
	Notes                 string          `json:"notes"`
	Items                 []NewGrnItem    `json:"items"`
}

type NewGrnItem struct {
	ItemId          int             `json:"item_id" binding:"required"`
	PoItemId        int             `json:"po_item_id"`
	BatchNo         string          `json:"batch_no"`
	ExpiryDate      *time.Time      `json:"expiry_date"`
	Quantity        decimal.Decimal `json:"quantity"`
	FreeQuantity    decimal.Decimal `json:"free_quantity"`
	UnitCost        decimal.Decimal `json:"unit_cost"`
	Mrp             decimal.Decimal `json:"mrp"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	TaxPercent      decimal.Decimal `json:"tax_percent"`
	CgstPercent     decimal.Decimal `json:"cgst_percent"`
	SgstPercent     decimal.Decimal `json:"sgst_percent"`
	IgstPercent     decimal.Decimal `json:"igst_percent"`
}

// Drafts stay lenient: referenced ids must exist and numbers must not be
// negative, but blank batch numbers and zero quantities are fine until
// posting.
func (input *NewGrn) validate(ctx context.Context) error {

	if err := utils.ValidateResourceId[Supplier](ctx, input.SupplierId); err != nil {
		return utils.NotFoundErrorf("supplier %d not found", input.SupplierId)
	}
	if err := utils.ValidateResourceId[Location](ctx, input.LocationId); err != nil {
		return utils.NotFoundErrorf("location %d not found", input.LocationId)
	}

	var poItemIds map[int]bool
	if input.PurchaseOrderId > 0 {
		purchaseOrder, err := GetPurchaseOrder(ctx, input.PurchaseOrderId)
		if err != nil {
			return utils.NotFoundErrorf("purchase order %d not found", input.PurchaseOrderId)
		}
		if purchaseOrder.SupplierId != input.SupplierId {
			return utils.ValidationErrorf("purchase order %s belongs to a different supplier", purchaseOrder.OrderNumber)
		}
		poItemIds = make(map[int]bool, len(purchaseOrder.Items))
		for _, line := range purchaseOrder.Items {
			poItemIds[line.ID] = true
		}
	}

	for i, line := range input.Items {
		if err := utils.ValidateResourceId[Item](ctx, line.ItemId); err != nil {
			return utils.NotFoundErrorf("line %d: item %d not found", i+1, line.ItemId)
		}
		if line.Quantity.IsNegative() || line.FreeQuantity.IsNegative() {
			return utils.ValidationErrorf("line %d: quantities must not be negative", i+1)
		}
		if line.UnitCost.IsNegative() || line.Mrp.IsNegative() {
			return utils.ValidationErrorf("line %d: unit cost and mrp must not be negative", i+1)
		}
		if line.PoItemId > 0 {
			if input.PurchaseOrderId == 0 {
				return utils.ValidationErrorf("line %d references a purchase order line but the receipt has no purchase order", i+1)
			}
			if !poItemIds[line.PoItemId] {
				return utils.ValidationErrorf("line %d: purchase order line %d does not belong to purchase order %d",
					i+1, line.PoItemId, input.PurchaseOrderId)
			}
		}
	}
	return nil
}

func buildGrnItems(input *NewGrn) []GrnItem {
	items := make([]GrnItem, 0, len(input.Items))
	for _, line := range input.Items {
		items = append(items, GrnItem{
			ItemId:          line.ItemId,
			PoItemId:        line.PoItemId,
			BatchNo:         strings.TrimSpace(line.BatchNo),
			ExpiryDate:      line.ExpiryDate,
			Quantity:        utils.RoundQty(line.Quantity),
			FreeQuantity:    utils.RoundQty(line.FreeQuantity),
			UnitCost:        utils.RoundMoney(line.UnitCost),
			Mrp:             utils.RoundMoney(line.Mrp),
			DiscountPercent: line.DiscountPercent,
			DiscountAmount:  line.DiscountAmount,
			TaxPercent:      line.TaxPercent,
			CgstPercent:     line.CgstPercent,
			SgstPercent:     line.SgstPercent,
			IgstPercent:     line.IgstPercent,
		})
	}
	return items
}

// CreateGrn stores a draft receipt with a number from the GRN series. No
// stock moves until the draft is posted.
func CreateGrn(ctx context.Context, input *NewGrn) (*Grn, error) {
	db := config.GetDB()

	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	grn := Grn{
		SupplierId:            input.SupplierId,
		LocationId:            input.LocationId,
		PurchaseOrderId:       input.PurchaseOrderId,
		GrnDate:               input.GrnDate,
		SupplierInvoiceNo:     strings.TrimSpace(input.SupplierInvoiceNo),
		SupplierInvoiceDate:   input.SupplierInvoiceDate,
		SupplierInvoiceAmount: input.SupplierInvoiceAmount,
		FreightAmount:         input.FreightAmount,
		OtherCharges:          input.OtherCharges,
		RoundOff:              input.RoundOff,
		Status:                GrnStatusDraft,
		Notes:                 input.Notes,
		DifferenceReason:      strings.TrimSpace(input.DifferenceReason),
		Items:                 buildGrnItems(input),
	}
	if userId, ok := utils.GetUserIdFromContext(ctx); ok {
		grn.CreatedBy = userId
	}

	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()

	grnNumber, err := NextDocumentNumber(ctx, tx, SeriesKeyGrn, input.GrnDate)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	grn.GrnNumber = grnNumber

	if err := tx.WithContext(ctx).Create(&grn).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &grn, nil
}

// CreateGrnFromPurchaseOrder drafts a receipt for everything still pending
// on the order: one line per PO line with ordered_qty - received_qty > 0,
// quantity defaulted to the full pending amount. Batch numbers start blank
// and must be filled in before posting.
func CreateGrnFromPurchaseOrder(ctx context.Context, purchaseOrderId int) (*Grn, error) {

	purchaseOrder, err := GetPurchaseOrder(ctx, purchaseOrderId)
	if err != nil {
		return nil, err
	}

	switch purchaseOrder.Status {
	case PoStatusApproved, PoStatusSent, PoStatusPartiallyReceived:
	default:
		return nil, utils.ConflictErrorf("purchase order %s is %s; receipts can only be drafted for approved or sent orders",
			purchaseOrder.OrderNumber, purchaseOrder.Status)
	}

	input := NewGrn{
		SupplierId:      purchaseOrder.SupplierId,
		LocationId:      purchaseOrder.LocationId,
		PurchaseOrderId: purchaseOrder.ID,
		GrnDate:         time.Now(),
	}
	for _, line := range purchaseOrder.Items {
		pendingQty := line.OrderedQty.Sub(line.ReceivedQty)
		if !pendingQty.GreaterThan(decimal.Zero) {
			continue
		}
		input.Items = append(input.Items, NewGrnItem{
			ItemId:   line.ItemId,
			PoItemId: line.ID,
			Quantity: pendingQty,
			UnitCost: line.UnitCost,
		})
	}
	if len(input.Items) == 0 {
		return nil, utils.ValidationErrorf("purchase order %s has nothing left to receive", purchaseOrder.OrderNumber)
	}

	return CreateGrn(ctx, &input)
}

// UpdateGrn replaces the header and lines of a draft. Posted and cancelled
// receipts are immutable.
func UpdateGrn(ctx context.Context, grnId int, input *NewGrn) (*Grn, error) {
	db := config.GetDB()

	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()

	grn, err := utils.FetchModelForUpdate[Grn](ctx, tx, grnId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if grn.Status != GrnStatusDraft {
		tx.Rollback()
		return nil, utils.ConflictErrorf("grn %s is %s and can no longer be edited", grn.GrnNumber, grn.Status)
	}

	if err := tx.WithContext(ctx).Where("grn_id = ?", grn.ID).Delete(&GrnItem{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	items := buildGrnItems(input)
	if len(items) > 0 {
		for i := range items {
			items[i].GrnId = grn.ID
		}
		if err := tx.WithContext(ctx).Create(&items).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.WithContext(ctx).Model(grn).Updates(map[string]interface{}{
		"SupplierId":            input.SupplierId,
		"LocationId":            input.LocationId,
		"PurchaseOrderId":       input.PurchaseOrderId,
		"GrnDate":               input.GrnDate,
		"SupplierInvoiceNo":     strings.TrimSpace(input.SupplierInvoiceNo),
		"SupplierInvoiceDate":   input.SupplierInvoiceDate,
		"SupplierInvoiceAmount": input.SupplierInvoiceAmount,
		"FreightAmount":         input.FreightAmount,
		"OtherCharges":          input.OtherCharges,
		"RoundOff":              input.RoundOff,
		"DifferenceReason":      strings.TrimSpace(input.DifferenceReason),
		"Notes":                 input.Notes,
	}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return GetGrn(ctx, grn.ID)
}

type PostGrnInput struct {
	DifferenceReason string `json:"difference_reason"`
}

// checkGrnPostable runs every posting precondition against the locked
// draft. Each violation is a hard failure.
func checkGrnPostable(grn *Grn) error {
	if grn.Status != GrnStatusDraft {
		return utils.ConflictErrorf("grn %s is %s; only drafts can be posted", grn.GrnNumber, grn.Status)
	}
	if len(grn.Items) == 0 {
		return utils.ValidationErrorf("grn %s has no lines to post", grn.GrnNumber)
	}
	for i, line := range grn.Items {
		if strings.TrimSpace(line.BatchNo) == "" {
			return utils.ValidationErrorf("line %d: batch number is required before posting", i+1)
		}
		if !line.Quantity.Add(line.FreeQuantity).GreaterThan(decimal.Zero) {
			return utils.ValidationErrorf("line %d: received quantity must be positive", i+1)
		}
	}
	if !grn.SupplierInvoiceAmount.GreaterThan(decimal.Zero) {
		return utils.ValidationErrorf("supplier invoice amount must be positive to post")
	}
	return nil
}

// PostGrn applies a draft receipt: recompute line and header amounts,
// enforce the invoice mismatch rule, move stock batch by batch with one
// ledger row each, bump PO receipts, upsert the supplier invoice and mark
// the document POSTED. Everything happens in one transaction; any failure
// leaves no trace.
func PostGrn(ctx context.Context, grnId int, input *PostGrnInput) (*Grn, error) {
	db := config.GetDB()

	if input == nil {
		input = &PostGrnInput{}
	}

	// double-submit gate; the row locks below are the real guard
	lock, err := utils.DocumentLock(ctx, fmt.Sprintf("grnPost:%d", grnId), "grn.go", "PostGrn")
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

	grn, err := utils.FetchModelForUpdate[Grn](ctx, tx, grnId, "Items")
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := checkGrnPostable(grn); err != nil {
		tx.Rollback()
		return nil, err
	}

	for i := range grn.Items {
		grn.Items[i].CalculateLineAmounts()
	}
	totals := CalculateGrnTotals(grn.Items, grn.FreightAmount, grn.OtherCharges, grn.RoundOff, grn.SupplierInvoiceAmount)

	differenceReason := strings.TrimSpace(input.DifferenceReason)
	if differenceReason == "" {
		differenceReason = strings.TrimSpace(grn.DifferenceReason)
	}
	if totals.NeedsDifferenceReason(grn.SupplierInvoiceAmount) && differenceReason == "" {
		tx.Rollback()
		return nil, utils.ValidationErrorf("supplier invoice differs from the calculated amount by %s; a difference reason is required",
			totals.AmountDifference.Abs().StringFixed(2))
	}

	var purchaseOrder *PurchaseOrder
	if grn.PurchaseOrderId > 0 {
		purchaseOrder, err = utils.FetchModelForUpdate[PurchaseOrder](ctx, tx, grn.PurchaseOrderId)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	for i := range grn.Items {
		line := &grn.Items[i]

		batch, err := GetOrCreateItemBatch(ctx, tx, line.ItemId, grn.LocationId, line.BatchNo, line.ExpiryDate)
		if err != nil {
			tx.Rollback()
			return nil, err
		}

		receivedQty := line.Quantity.Add(line.FreeQuantity)
		if _, err := AdjustBatchQty(ctx, tx, batch.ID, receivedQty); err != nil {
			tx.Rollback()
			return nil, err
		}
		if err := updateBatchPurchaseInfo(ctx, tx, batch.ID, line.UnitCost, line.Mrp, line.EffectiveTaxPercent()); err != nil {
			tx.Rollback()
			return nil, err
		}

		if err := RecordStockTransaction(ctx, tx, &StockTransaction{
			ItemId:     line.ItemId,
			BatchId:    batch.ID,
			LocationId: grn.LocationId,
			TxnType:    StockTxnTypeGrn,
			Quantity:   receivedQty,
			UnitCost:   line.UnitCost,
			Mrp:        line.Mrp,
			RefType:    StockRefTypeGrn,
			RefId:      grn.ID,
			RefLineId:  line.ID,
		}); err != nil {
			tx.Rollback()
			return nil, err
		}

		line.BatchId = batch.ID
		if err := tx.WithContext(ctx).Model(line).Updates(map[string]interface{}{
			"BatchId":        batch.ID,
			"Quantity":       line.Quantity,
			"FreeQuantity":   line.FreeQuantity,
			"UnitCost":       line.UnitCost,
			"GrossAmount":    line.GrossAmount,
			"DiscountAmount": line.DiscountAmount,
			"TaxableAmount":  line.TaxableAmount,
			"CgstAmount":     line.CgstAmount,
			"SgstAmount":     line.SgstAmount,
			"IgstAmount":     line.IgstAmount,
			"LineTotal":      line.LineTotal,
		}).Error; err != nil {
			tx.Rollback()
			return nil, err
		}

		// free quantity never counts against the order
		if line.PoItemId > 0 && purchaseOrder != nil {
			if err := applyPurchaseOrderReceipt(ctx, tx, purchaseOrder.ID, line.PoItemId, line.Quantity); err != nil {
				tx.Rollback()
				return nil, err
			}
		}

		if err := updateItemPurchaseInfo(ctx, tx, line.ItemId, line.UnitCost, line.Mrp, line.EffectiveTaxPercent()); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if purchaseOrder != nil {
		if err := RecomputePurchaseOrderStatus(ctx, tx, purchaseOrder.ID); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if _, err := upsertSupplierInvoiceForGrn(ctx, tx, grn, totals); err != nil {
		tx.Rollback()
		return nil, err
	}

	now := time.Now()
	postedBy := 0
	if userId, ok := utils.GetUserIdFromContext(ctx); ok {
		postedBy = userId
	}
	if err := tx.WithContext(ctx).Model(grn).Updates(map[string]interface{}{
		"GrossAmount":         totals.GrossAmount,
		"DiscountAmount":      totals.DiscountAmount,
		"TaxableAmount":       totals.TaxableAmount,
		"CgstAmount":          totals.CgstAmount,
		"SgstAmount":          totals.SgstAmount,
		"IgstAmount":          totals.IgstAmount,
		"CalculatedGrnAmount": totals.CalculatedGrnAmount,
		"AmountDifference":    totals.AmountDifference,
		"DifferenceReason":    differenceReason,
		"Status":              GrnStatusPosted,
		"PostedBy":            postedBy,
		"PostedAt":            &now,
	}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return GetGrn(ctx, grn.ID)
}

// CancelGrn voids a draft. A posted receipt cannot be cancelled; stock
// taken in has to leave through a return note. The invoice guard covers a
// cross-path inconsistency: money recorded against a receipt that never
// posted means something upstream went wrong, so refuse to bury it.
func CancelGrn(ctx context.Context, grnId int, cancelReason string) (*Grn, error) {
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

	grn, err := utils.FetchModelForUpdate[Grn](ctx, tx, grnId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if grn.Status != GrnStatusDraft {
		tx.Rollback()
		return nil, utils.ConflictErrorf("grn %s is %s; only drafts can be cancelled", grn.GrnNumber, grn.Status)
	}

	var invoice SupplierInvoice
	err = tx.WithContext(ctx).Where("grn_id = ?", grn.ID).First(&invoice).Error
	if err != nil && err != gorm.ErrRecordNotFound {
		tx.Rollback()
		return nil, err
	}
	if err == nil && invoice.PaidAmount.GreaterThan(decimal.Zero) {
		tx.Rollback()
		return nil, utils.ConflictErrorf("grn %s has supplier payments recorded against its invoice and cannot be cancelled", grn.GrnNumber)
	}

	if err := tx.WithContext(ctx).Model(grn).Updates(map[string]interface{}{
		"Status":       GrnStatusCancelled,
		"CancelReason": cancelReason,
	}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	grn.Status = GrnStatusCancelled
	grn.CancelReason = cancelReason

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return grn, nil
}

// GetGrn loads one receipt with lines and masters.
func GetGrn(ctx context.Context, id int) (*Grn, error) {
	return utils.FetchModel[Grn](ctx, id, "Items", "Items.Item", "Supplier", "Location", "PurchaseOrder")
}

type GrnFilter struct {
	SupplierId      int
	LocationId      int
	PurchaseOrderId int
	Status          GrnStatus
	FromDate        *time.Time
	ToDate          *time.Time
}

func ListGrn(ctx context.Context, filter GrnFilter) ([]*Grn, error) {
	var grns []*Grn
	db := config.GetDB()

	dbCtx := db.WithContext(ctx).Preload("Items").Preload("Supplier").Preload("Location")
	if filter.SupplierId > 0 {
		dbCtx = dbCtx.Where("supplier_id = ?", filter.SupplierId)
	}
	if filter.LocationId > 0 {
		dbCtx = dbCtx.Where("location_id = ?", filter.LocationId)
	}
	if filter.PurchaseOrderId > 0 {
		dbCtx = dbCtx.Where("purchase_order_id = ?", filter.PurchaseOrderId)
	}
	if filter.Status != "" {
		dbCtx = dbCtx.Where("status = ?", filter.Status)
	}
	if filter.FromDate != nil {
		dbCtx = dbCtx.Where("grn_date >= ?", *filter.FromDate)
	}
	if filter.ToDate != nil {
		dbCtx = dbCtx.Where("grn_date <= ?", *filter.ToDate)
	}

	if err := dbCtx.Order("grn_date DESC, id DESC").Find(&grns).Error; err != nil {
		return nil, err
	}
	return grns, nil
}
