package models

import (
	"context"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/hims_backend/config"
	"bitbucket.org/mmdatafocus/hims_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type PurchaseOrder struct {
	ID                   int                 `gorm:"primary_key" json:"id"`
	OrderNumber          string              `gorm:"size:30;uniqueIndex;not null" json:"order_number"`
	SupplierId           int                 `gorm:"index;not null" json:"supplier_id"`
	Supplier             *Supplier           `json:"supplier,omitempty"`
	LocationId           int                 `gorm:"index;not null" json:"location_id"`
	Location             *Location           `json:"location,omitempty"`
	OrderDate            time.Time           `gorm:"not null" json:"order_date"`
	ExpectedDeliveryDate *time.Time          `gorm:"default:null" json:"expected_delivery_date"`
	PaymentTerms         string              `gorm:"size:100" json:"payment_terms"`
	Status               PurchaseOrderStatus `gorm:"type:enum('DRAFT','APPROVED','SENT','PARTIALLY_RECEIVED','COMPLETED','CLOSED','CANCELLED');default:DRAFT;not null" json:"status"`
	Notes                string              `gorm:"size:255" json:"notes"`
	CancelReason         string              `gorm:"size:255" json:"cancel_reason"`
	OrderTotal           decimal.Decimal     `gorm:"type:decimal(20,4);default:0" json:"order_total"`
	CreatedBy            int                 `json:"created_by"`
	Items                []PurchaseOrderItem `gorm:"foreignKey:PurchaseOrderId" json:"items"`
	CreatedAt            time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

func (PurchaseOrder) TableName() string { return "inv_purchase_orders" }

type PurchaseOrderItem struct {
	ID              int             `gorm:"primary_key" json:"id"`
	PurchaseOrderId int             `gorm:"index;not null" json:"purchase_order_id"`
	ItemId          int             `gorm:"index;not null" json:"item_id"`
	Item            *Item           `json:"item,omitempty"`
	OrderedQty      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"ordered_qty"`
	ReceivedQty     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"received_qty"`
	UnitCost        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_cost"`
}

func (PurchaseOrderItem) TableName() string { return "inv_purchase_order_items" }

type NewPurchaseOrder struct {
	SupplierId           int                    `json:"supplier_id" binding:"required"`
	LocationId           int                    `json:"location_id" binding:"required"`
	OrderDate            time.Time              `json:"order_date" binding:"required"`
	ExpectedDeliveryDate *time.Time             `json:"expected_delivery_date"`
	PaymentTerms         string                 `json:"payment_terms"`
	Notes                string                 `json:"notes"`
	Items                []NewPurchaseOrderItem `json:"items" binding:"required,dive"`
}

type NewPurchaseOrderItem struct {
	ItemId     int             `json:"item_id" binding:"required"`
	OrderedQty decimal.Decimal `json:"ordered_qty" binding:"required"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
}

// poStatusTransitions is the full lifecycle map; anything not listed is
// rejected. CLOSED and CANCELLED are terminal.
var poStatusTransitions = map[PurchaseOrderStatus][]PurchaseOrderStatus{
	PoStatusDraft:             {PoStatusApproved, PoStatusCancelled},
	PoStatusApproved:          {PoStatusSent, PoStatusCancelled},
	PoStatusSent:              {PoStatusPartiallyReceived, PoStatusCompleted, PoStatusCancelled},
	PoStatusPartiallyReceived: {PoStatusCompleted, PoStatusClosed},
	PoStatusCompleted:         {PoStatusClosed},
	PoStatusClosed:            {},
	PoStatusCancelled:         {},
}

// CanTransitionTo reports whether the lifecycle allows moving from the
// current status to target.
func (po *PurchaseOrder) CanTransitionTo(target PurchaseOrderStatus) bool {
	for _, allowed := range poStatusTransitions[po.Status] {
		if allowed == target {
			return true
		}
	}
	return false
}

func (input *NewPurchaseOrder) validate(ctx context.Context) error {

	if err := utils.ValidateResourceId[Supplier](ctx, input.SupplierId); err != nil {
		return utils.NotFoundErrorf("supplier %d not found", input.SupplierId)
	}
	if err := utils.ValidateResourceId[Location](ctx, input.LocationId); err != nil {
		return utils.NotFoundErrorf("location %d not found", input.LocationId)
	}
	if len(input.Items) == 0 {
		return utils.ValidationErrorf("purchase order needs at least one line")
	}
	for i, line := range input.Items {
		if err := utils.ValidateResourceId[Item](ctx, line.ItemId); err != nil {
			return utils.NotFoundErrorf("line %d: item %d not found", i+1, line.ItemId)
		}
		if !line.OrderedQty.GreaterThan(decimal.Zero) {
			return utils.ValidationErrorf("line %d: ordered quantity must be positive", i+1)
		}
		if line.UnitCost.IsNegative() {
			return utils.ValidationErrorf("line %d: unit cost must not be negative", i+1)
		}
	}
	return nil
}

func buildPurchaseOrderItems(input *NewPurchaseOrder) ([]PurchaseOrderItem, decimal.Decimal) {
	items := make([]PurchaseOrderItem, 0, len(input.Items))
	orderTotal := decimal.Zero
	for _, line := range input.Items {
		items = append(items, PurchaseOrderItem{
			ItemId:     line.ItemId,
			OrderedQty: utils.RoundQty(line.OrderedQty),
			UnitCost:   utils.RoundMoney(line.UnitCost),
		})
		orderTotal = orderTotal.Add(line.OrderedQty.Mul(line.UnitCost))
	}
	return items, utils.RoundMoney(orderTotal)
}

// CreatePurchaseOrder stores a new order in DRAFT with a number drawn from
// the PO series.
func CreatePurchaseOrder(ctx context.Context, input *NewPurchaseOrder) (*PurchaseOrder, error) {
	db := config.GetDB()

	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	items, orderTotal := buildPurchaseOrderItems(input)

	purchaseOrder := PurchaseOrder{
		SupplierId:           input.SupplierId,
		LocationId:           input.LocationId,
		OrderDate:            input.OrderDate,
		ExpectedDeliveryDate: input.ExpectedDeliveryDate,
		PaymentTerms:         input.PaymentTerms,
		Status:               PoStatusDraft,
		Notes:                input.Notes,
		OrderTotal:           orderTotal,
		Items:                items,
	}
	if userId, ok := utils.GetUserIdFromContext(ctx); ok {
		purchaseOrder.CreatedBy = userId
	}

	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()

	orderNumber, err := NextDocumentNumber(ctx, tx, SeriesKeyPo, input.OrderDate)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	purchaseOrder.OrderNumber = orderNumber

	if err := tx.WithContext(ctx).Create(&purchaseOrder).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &purchaseOrder, nil
}

// UpdatePurchaseOrder replaces the header fields and lines of an order.
// Only DRAFT and APPROVED orders are editable; from SENT onward the order
// is what the supplier saw, so it is frozen.
func UpdatePurchaseOrder(ctx context.Context, purchaseOrderId int, input *NewPurchaseOrder) (*PurchaseOrder, error) {
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

	existingOrder, err := utils.FetchModelForUpdate[PurchaseOrder](ctx, tx, purchaseOrderId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if existingOrder.Status != PoStatusDraft && existingOrder.Status != PoStatusApproved {
		tx.Rollback()
		return nil, utils.ConflictErrorf("purchase order %s is %s and can no longer be edited",
			existingOrder.OrderNumber, existingOrder.Status)
	}

	items, orderTotal := buildPurchaseOrderItems(input)

	if err := tx.WithContext(ctx).Where("purchase_order_id = ?", existingOrder.ID).
		Delete(&PurchaseOrderItem{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	for i := range items {
		items[i].PurchaseOrderId = existingOrder.ID
	}
	if err := tx.WithContext(ctx).Create(&items).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.WithContext(ctx).Model(existingOrder).Updates(map[string]interface{}{
		"SupplierId":           input.SupplierId,
		"LocationId":           input.LocationId,
		"OrderDate":            input.OrderDate,
		"ExpectedDeliveryDate": input.ExpectedDeliveryDate,
		"PaymentTerms":         input.PaymentTerms,
		"Notes":                input.Notes,
		"OrderTotal":           orderTotal,
	}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return GetPurchaseOrder(ctx, existingOrder.ID)
}

// ChangePurchaseOrderStatus applies one lifecycle transition. Cancelling
// needs a reason; receipt-derived states (PARTIALLY_RECEIVED, COMPLETED)
// are owned by the GRN posting path, not this endpoint.
func ChangePurchaseOrderStatus(ctx context.Context, purchaseOrderId int, target PurchaseOrderStatus, cancelReason string) (*PurchaseOrder, error) {
	db := config.GetDB()

	if !target.IsValid() {
		return nil, utils.ValidationErrorf("unknown purchase order status %q", target)
	}
	if target == PoStatusCancelled && strings.TrimSpace(cancelReason) == "" {
		return nil, utils.ValidationErrorf("cancel reason is required")
	}

	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()

	purchaseOrder, err := utils.FetchModelForUpdate[PurchaseOrder](ctx, tx, purchaseOrderId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if !purchaseOrder.CanTransitionTo(target) {
		tx.Rollback()
		return nil, utils.ConflictErrorf("purchase order %s cannot move from %s to %s",
			purchaseOrder.OrderNumber, purchaseOrder.Status, target)
	}

	updates := map[string]interface{}{"Status": target}
	if target == PoStatusCancelled {
		updates["CancelReason"] = strings.TrimSpace(cancelReason)
	}
	if err := tx.WithContext(ctx).Model(purchaseOrder).Updates(updates).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	purchaseOrder.Status = target

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return purchaseOrder, nil
}

// applyPurchaseOrderReceipt bumps a line's received quantity during a GRN
// post. Receipts may never exceed what was ordered. Runs inside the
// posting transaction; the PO row is already locked by the caller.
func applyPurchaseOrderReceipt(ctx context.Context, tx *gorm.DB, purchaseOrderId int, poItemId int, receivedQty decimal.Decimal) error {

	var line PurchaseOrderItem
	if err := tx.WithContext(ctx).First(&line, poItemId).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.NotFoundErrorf("purchase order line %d not found", poItemId)
		}
		return err
	}
	if line.PurchaseOrderId != purchaseOrderId {
		return utils.ValidationErrorf("purchase order line %d does not belong to purchase order %d", poItemId, purchaseOrderId)
	}

	newReceived := line.ReceivedQty.Add(receivedQty)
	if newReceived.GreaterThan(line.OrderedQty) {
		return utils.ValidationErrorf("receipt exceeds ordered quantity on purchase order line %d: ordered %s, would have received %s",
			poItemId, line.OrderedQty.String(), newReceived.String())
	}

	return tx.WithContext(ctx).Model(&line).
		UpdateColumn("ReceivedQty", gorm.Expr("received_qty + ?", receivedQty)).Error
}

// RecomputePurchaseOrderStatus derives the receipt status from the lines:
// every line received in full means COMPLETED, any receipt at all means
// PARTIALLY_RECEIVED, otherwise the status stays where the lifecycle put
// it. Must run inside every GRN post that touches the order.
func RecomputePurchaseOrderStatus(ctx context.Context, tx *gorm.DB, purchaseOrderId int) error {

	var lines []PurchaseOrderItem
	if err := tx.WithContext(ctx).Where("purchase_order_id = ?", purchaseOrderId).
		Find(&lines).Error; err != nil {
		return err
	}
	if len(lines) == 0 {
		return nil
	}

	allReceived := true
	anyReceived := false
	for _, line := range lines {
		if line.ReceivedQty.LessThan(line.OrderedQty) {
			allReceived = false
		}
		if line.ReceivedQty.GreaterThan(decimal.Zero) {
			anyReceived = true
		}
	}

	var derived PurchaseOrderStatus
	switch {
	case allReceived:
		derived = PoStatusCompleted
	case anyReceived:
		derived = PoStatusPartiallyReceived
	default:
		return nil
	}

	return tx.WithContext(ctx).Model(&PurchaseOrder{}).Where("id = ?", purchaseOrderId).
		UpdateColumn("Status", derived).Error
}

// GetPurchaseOrder loads one order with its lines and masters.
func GetPurchaseOrder(ctx context.Context, id int) (*PurchaseOrder, error) {
	purchaseOrder, err := utils.FetchModel[PurchaseOrder](ctx, id, "Items", "Items.Item", "Supplier", "Location")
	if err != nil {
		return nil, err
	}
	return purchaseOrder, nil
}

type PurchaseOrderFilter struct {
	SupplierId int
	LocationId int
	Status     PurchaseOrderStatus
	FromDate   *time.Time
	ToDate     *time.Time
}

func ListPurchaseOrder(ctx context.Context, filter PurchaseOrderFilter) ([]*PurchaseOrder, error) {
	var orders []*PurchaseOrder
	db := config.GetDB()

	dbCtx := db.WithContext(ctx).Preload("Items").Preload("Supplier")
	if filter.SupplierId > 0 {
		dbCtx = dbCtx.Where("supplier_id = ?", filter.SupplierId)
	}
	if filter.LocationId > 0 {
		dbCtx = dbCtx.Where("location_id = ?", filter.LocationId)
	}
	if filter.Status != "" {
		dbCtx = dbCtx.Where("status = ?", filter.Status)
	}
	if filter.FromDate != nil {
		dbCtx = dbCtx.Where("order_date >= ?", *filter.FromDate)
	}
	if filter.ToDate != nil {
		dbCtx = dbCtx.Where("order_date <= ?", *filter.ToDate)
	}

	if err := dbCtx.Order("order_date DESC, id DESC").Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}
