package models

import (
	"context"
	"sort"
	"time"

	"bitbucket.org/mmdatafocus/hims_backend/config"
	"bitbucket.org/mmdatafocus/hims_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SupplierPayment is a pool of money received from/paid to one supplier.
// Allocations draw the pool down against invoices; whatever is never
// applied stays on the payment as advance_amount (supplier credit).
type SupplierPayment struct {
	ID              int                 `gorm:"primary_key" json:"id"`
	PaymentNumber   string              `gorm:"size:30;uniqueIndex;not null" json:"payment_number"`
	SupplierId      int                 `gorm:"index;not null" json:"supplier_id"`
	Supplier        *Supplier           `json:"supplier,omitempty"`
	PaymentDate     time.Time           `gorm:"not null" json:"payment_date"`
	Amount          decimal.Decimal     `gorm:"type:decimal(20,4);default:0" json:"amount"`
	AllocatedAmount decimal.Decimal     `gorm:"type:decimal(20,4);default:0" json:"allocated_amount"`
	AdvanceAmount   decimal.Decimal     `gorm:"type:decimal(20,4);default:0" json:"advance_amount"`
	PaymentMode     string              `gorm:"size:30" json:"payment_mode"`
	ReferenceNumber string              `gorm:"size:100" json:"reference_number"`
	Notes           string              `gorm:"size:255" json:"notes"`
	CreatedBy       int                 `json:"created_by"`
	Allocations     []PaymentAllocation `gorm:"foreignKey:SupplierPaymentId" json:"allocations"`
	CreatedAt       time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

func (SupplierPayment) TableName() string { return "acc_supplier_payments" }

// PaymentAllocation joins one payment to one invoice; the pair is unique
// so the same payment can never hit the same invoice twice.
type PaymentAllocation struct {
	ID                int              `gorm:"primary_key" json:"id"`
	SupplierPaymentId int              `gorm:"uniqueIndex:idx_payment_allocations_pair,priority:1;not null" json:"supplier_payment_id"`
	InvoiceId         int              `gorm:"uniqueIndex:idx_payment_allocations_pair,priority:2;index;not null" json:"invoice_id"`
	Invoice           *SupplierInvoice `gorm:"foreignKey:InvoiceId" json:"invoice,omitempty"`
	Amount            decimal.Decimal  `gorm:"type:decimal(20,4);not null" json:"amount"`
	CreatedAt         time.Time        `gorm:"autoCreateTime" json:"created_at"`
}

func (PaymentAllocation) TableName() string { return "acc_supplier_payment_allocations" }

// PaymentAllocationInput is one (invoice, amount) pair of an allocation
// request.
type PaymentAllocationInput struct {
	InvoiceId int             `json:"invoice_id" binding:"required"`
	Amount    decimal.Decimal `json:"amount"`
}

type NewSupplierPayment struct {
	SupplierId      int                      `json:"supplier_id" binding:"required"`
	PaymentDate     time.Time                `json:"payment_date" binding:"required"`
	Amount          decimal.Decimal          `json:"amount"`
	PaymentMode     string                   `json:"payment_mode"`
	ReferenceNumber string                   `json:"reference_number"`
	Notes           string                   `json:"notes"`
	AutoAllocate    bool                     `json:"auto_allocate"`
	Allocations     []PaymentAllocationInput `json:"allocations"`
}

func (input *NewSupplierPayment) validate(ctx context.Context) error {
	if !input.Amount.GreaterThan(decimal.Zero) {
		return utils.ValidationErrorf("payment amount must be positive")
	}
	if err := utils.ValidateResourceId[Supplier](ctx, input.SupplierId); err != nil {
		return utils.NotFoundErrorf("supplier %d not found", input.SupplierId)
	}
	if input.AutoAllocate && len(input.Allocations) > 0 {
		return utils.ValidationErrorf("explicit allocations and auto_allocate are mutually exclusive")
	}
	return nil
}

// applyPaymentAllocations walks the pairs in caller order and applies each
// against its invoice under a row lock. Whatever part of the pool is
// already allocated stays spoken for; the walk stops as soon as the pool
// runs dry. Returns the total applied in this call.
func applyPaymentAllocations(ctx context.Context, tx *gorm.DB, payment *SupplierPayment, pairs []PaymentAllocationInput) (decimal.Decimal, error) {

	remaining := payment.Amount.Sub(payment.AllocatedAmount)
	applied := decimal.Zero
	seen := make(map[int]bool, len(pairs))

	for _, pair := range pairs {
		if pair.Amount.IsNegative() {
			return applied, utils.ValidationErrorf("allocation amount for invoice %d must not be negative", pair.InvoiceId)
		}
		if pair.Amount.IsZero() {
			continue
		}
		if seen[pair.InvoiceId] {
			return applied, utils.ValidationErrorf("invoice %d appears more than once in the allocation request", pair.InvoiceId)
		}
		seen[pair.InvoiceId] = true

		if !remaining.GreaterThan(decimal.Zero) {
			break
		}

		invoice, err := utils.FetchModelForUpdate[SupplierInvoice](ctx, tx, pair.InvoiceId)
		if err != nil {
			return applied, err
		}
		if invoice.SupplierId != payment.SupplierId {
			return applied, utils.ValidationErrorf("invoice %d belongs to a different supplier than the payment", invoice.ID)
		}
		if invoice.Status == InvoiceStatusCancelled {
			return applied, utils.ConflictErrorf("invoice %d is cancelled", invoice.ID)
		}
		var grn Grn
		if err := tx.WithContext(ctx).Select("id", "status").First(&grn, invoice.GrnId).Error; err != nil {
			return applied, err
		}
		if grn.Status != GrnStatusPosted {
			return applied, utils.ConflictErrorf("invoice %d belongs to grn %s which is not posted", invoice.ID, grn.GrnNumber)
		}

		invoice.ComputeInvoiceStatus(todayDate())
		if !invoice.OutstandingAmount.GreaterThan(decimal.Zero) {
			return applied, utils.ConflictErrorf("invoice %d is already fully paid", invoice.ID)
		}

		amount := decimal.Min(utils.RoundMoney(pair.Amount), remaining)
		if amount.GreaterThan(invoice.OutstandingAmount) {
			return applied, utils.OverpaymentErrorf("allocation of %s exceeds outstanding %s on invoice %d",
				amount.StringFixed(2), invoice.OutstandingAmount.StringFixed(2), invoice.ID)
		}

		var duplicate int64
		if err := tx.WithContext(ctx).Model(&PaymentAllocation{}).
			Where("supplier_payment_id = ? AND invoice_id = ?", payment.ID, invoice.ID).
			Count(&duplicate).Error; err != nil {
			return applied, err
		}
		if duplicate > 0 {
			return applied, utils.ConflictErrorf("payment %s is already allocated to invoice %d", payment.PaymentNumber, invoice.ID)
		}

		allocation := PaymentAllocation{
			SupplierPaymentId: payment.ID,
			InvoiceId:         invoice.ID,
			Amount:            amount,
		}
		if err := tx.WithContext(ctx).Create(&allocation).Error; err != nil {
			return applied, err
		}

		invoice.PaidAmount = invoice.PaidAmount.Add(amount)
		invoice.LastPaymentDate = &payment.PaymentDate
		if err := refreshInvoiceAfterPayment(ctx, tx, invoice); err != nil {
			return applied, err
		}

		applied = applied.Add(amount)
		remaining = remaining.Sub(amount)
		if !remaining.GreaterThan(decimal.Zero) {
			break
		}
	}

	return applied, nil
}

// persistPaymentTotals writes the pool bookkeeping after allocations
// changed.
func persistPaymentTotals(ctx context.Context, tx *gorm.DB, payment *SupplierPayment, applied decimal.Decimal) error {
	payment.AllocatedAmount = payment.AllocatedAmount.Add(applied)
	payment.AdvanceAmount = payment.Amount.Sub(payment.AllocatedAmount)
	return tx.WithContext(ctx).Model(payment).Updates(map[string]interface{}{
		"AllocatedAmount": payment.AllocatedAmount,
		"AdvanceAmount":   payment.AdvanceAmount,
	}).Error
}

// PlanPaymentAutoAllocation spreads an amount across open invoices oldest
// first: invoice_date ascending with undated invoices taken only after all
// dated ones, id breaking ties. Greedy min(remaining, outstanding) per
// invoice. Pure; does not touch the database.
func PlanPaymentAutoAllocation(invoices []*SupplierInvoice, amount decimal.Decimal) []PaymentAllocationInput {

	sorted := make([]*SupplierInvoice, len(invoices))
	copy(sorted, invoices)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.InvoiceDate == nil && b.InvoiceDate == nil {
			return a.ID < b.ID
		}
		if a.InvoiceDate == nil {
			return false
		}
		if b.InvoiceDate == nil {
			return true
		}
		if a.InvoiceDate.Equal(*b.InvoiceDate) {
			return a.ID < b.ID
		}
		return a.InvoiceDate.Before(*b.InvoiceDate)
	})

	var plan []PaymentAllocationInput
	remaining := amount
	for _, invoice := range sorted {
		if !remaining.GreaterThan(decimal.Zero) {
			break
		}
		if !invoice.OutstandingAmount.GreaterThan(decimal.Zero) {
			continue
		}
		take := decimal.Min(remaining, invoice.OutstandingAmount)
		plan = append(plan, PaymentAllocationInput{InvoiceId: invoice.ID, Amount: take})
		remaining = remaining.Sub(take)
	}
	return plan
}

// lockOpenInvoices loads and locks every UNPAID/PARTIAL invoice of the
// supplier in oldest-first order, so an auto-allocation plan stays valid
// through its application.
func lockOpenInvoices(ctx context.Context, tx *gorm.DB, supplierId int) ([]*SupplierInvoice, error) {
	var invoices []*SupplierInvoice
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("supplier_id = ? AND status IN ?", supplierId,
			[]SupplierInvoiceStatus{InvoiceStatusUnpaid, InvoiceStatusPartial}).
		Order("invoice_date IS NULL, invoice_date, id").
		Find(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

// CreateSupplierPayment records a payment and optionally applies it in the
// same transaction, either to the caller's explicit (invoice, amount)
// pairs or spread oldest-first across the supplier's open invoices when
// auto_allocate is set.
func CreateSupplierPayment(ctx context.Context, input *NewSupplierPayment) (*SupplierPayment, error) {
	db := config.GetDB()

	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	payment := SupplierPayment{
		SupplierId:      input.SupplierId,
		PaymentDate:     input.PaymentDate,
		Amount:          utils.RoundMoney(input.Amount),
		PaymentMode:     input.PaymentMode,
		ReferenceNumber: input.ReferenceNumber,
		Notes:           input.Notes,
	}
	if userId, ok := utils.GetUserIdFromContext(ctx); ok {
		payment.CreatedBy = userId
	}

	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()

	paymentNumber, err := NextDocumentNumber(ctx, tx, SeriesKeyPayment, input.PaymentDate)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	payment.PaymentNumber = paymentNumber

	if err := tx.WithContext(ctx).Create(&payment).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	pairs := input.Allocations
	if input.AutoAllocate {
		invoices, err := lockOpenInvoices(ctx, tx, payment.SupplierId)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		pairs = PlanPaymentAutoAllocation(invoices, payment.Amount)
	}

	if len(pairs) > 0 {
		applied, err := applyPaymentAllocations(ctx, tx, &payment, pairs)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		if err := persistPaymentTotals(ctx, tx, &payment, applied); err != nil {
			tx.Rollback()
			return nil, err
		}
	} else {
		if err := persistPaymentTotals(ctx, tx, &payment, decimal.Zero); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return GetSupplierPayment(ctx, payment.ID)
}

// AllocatePaymentToInvoices applies more of an existing payment's pool to
// the given invoices. Rejections leave nothing applied.
func AllocatePaymentToInvoices(ctx context.Context, paymentId int, pairs []PaymentAllocationInput) (*SupplierPayment, error) {
	db := config.GetDB()

	if len(pairs) == 0 {
		return nil, utils.ValidationErrorf("at least one allocation is required")
	}

	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()

	payment, err := utils.FetchModelForUpdate[SupplierPayment](ctx, tx, paymentId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if !payment.Amount.GreaterThan(decimal.Zero) {
		tx.Rollback()
		return nil, utils.ValidationErrorf("payment %s has no amount to allocate", payment.PaymentNumber)
	}

	applied, err := applyPaymentAllocations(ctx, tx, payment, pairs)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := persistPaymentTotals(ctx, tx, payment, applied); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return GetSupplierPayment(ctx, payment.ID)
}

// AutoAllocateSupplierPayment spreads whatever is left of the payment's
// pool across the supplier's open invoices, oldest first.
func AutoAllocateSupplierPayment(ctx context.Context, paymentId int) (*SupplierPayment, error) {
	db := config.GetDB()

	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()

	payment, err := utils.FetchModelForUpdate[SupplierPayment](ctx, tx, paymentId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	unapplied := payment.Amount.Sub(payment.AllocatedAmount)
	if !unapplied.GreaterThan(decimal.Zero) {
		tx.Rollback()
		return nil, utils.ValidationErrorf("payment %s has nothing left to allocate", payment.PaymentNumber)
	}

	invoices, err := lockOpenInvoices(ctx, tx, payment.SupplierId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	pairs := PlanPaymentAutoAllocation(invoices, unapplied)

	applied, err := applyPaymentAllocations(ctx, tx, payment, pairs)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := persistPaymentTotals(ctx, tx, payment, applied); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return GetSupplierPayment(ctx, payment.ID)
}

func GetSupplierPayment(ctx context.Context, id int) (*SupplierPayment, error) {
	return utils.FetchModel[SupplierPayment](ctx, id, "Supplier", "Allocations", "Allocations.Invoice")
}

type SupplierPaymentFilter struct {
	SupplierId    int
	PaymentNumber string
	FromDate      *time.Time
	ToDate        *time.Time
}

func ListSupplierPayment(ctx context.Context, filter SupplierPaymentFilter) ([]*SupplierPayment, error) {
	var payments []*SupplierPayment
	db := config.GetDB()

	dbCtx := db.WithContext(ctx).Preload("Supplier").Preload("Allocations")
	if filter.SupplierId > 0 {
		dbCtx = dbCtx.Where("supplier_id = ?", filter.SupplierId)
	}
	if filter.PaymentNumber != "" {
		dbCtx = dbCtx.Where("payment_number LIKE ?", "%"+filter.PaymentNumber+"%")
	}
	if filter.FromDate != nil {
		dbCtx = dbCtx.Where("payment_date >= ?", *filter.FromDate)
	}
	if filter.ToDate != nil {
		dbCtx = dbCtx.Where("payment_date <= ?", *filter.ToDate)
	}

	if err := dbCtx.Order("payment_date DESC, id DESC").Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}
