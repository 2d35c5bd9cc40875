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

// SupplierInvoice is the payable raised by posting a GRN; exactly one per
// receipt. paid_amount accumulates through payment allocations and
// status/outstanding/is_overdue are always recomputed from it, never set
// directly.
type SupplierInvoice struct {
	ID                int                   `gorm:"primary_key" json:"id"`
	GrnId             int                   `gorm:"uniqueIndex;not null" json:"grn_id"`
	Grn               *Grn                  `json:"grn,omitempty"`
	SupplierId        int                   `gorm:"index;not null" json:"supplier_id"`
	Supplier          *Supplier             `json:"supplier,omitempty"`
	InvoiceNo         string                `gorm:"size:100;index" json:"invoice_no"`
	InvoiceDate       *time.Time            `gorm:"default:null" json:"invoice_date"`
	DueDate           *time.Time            `gorm:"default:null" json:"due_date"`
	InvoiceAmount     decimal.Decimal       `gorm:"type:decimal(20,4);default:0" json:"invoice_amount"`
	PaidAmount        decimal.Decimal       `gorm:"type:decimal(20,4);default:0" json:"paid_amount"`
	OutstandingAmount decimal.Decimal       `gorm:"type:decimal(20,4);default:0" json:"outstanding_amount"`
	Status            SupplierInvoiceStatus `gorm:"type:enum('UNPAID','PARTIAL','PAID','CANCELLED');default:UNPAID;not null" json:"status"`
	IsOverdue         bool                  `gorm:"default:false" json:"is_overdue"`
	LastPaymentDate   *time.Time            `gorm:"default:null" json:"last_payment_date"`
	CreatedAt         time.Time             `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time             `gorm:"autoUpdateTime" json:"updated_at"`
}

func (SupplierInvoice) TableName() string { return "acc_supplier_invoices" }

// ComputeInvoiceStatus refreshes status, outstanding_amount and is_overdue
// from invoice_amount and paid_amount as of the given date. CANCELLED is
// frozen: a voided invoice keeps its numbers untouched.
func (invoice *SupplierInvoice) ComputeInvoiceStatus(today time.Time) {
	if invoice.Status == InvoiceStatusCancelled {
		return
	}

	outstanding := invoice.InvoiceAmount.Sub(invoice.PaidAmount)
	switch {
	case !outstanding.GreaterThan(decimal.Zero):
		invoice.Status = InvoiceStatusPaid
		outstanding = decimal.Zero
	case invoice.PaidAmount.GreaterThan(decimal.Zero):
		invoice.Status = InvoiceStatusPartial
	default:
		invoice.Status = InvoiceStatusUnpaid
	}
	invoice.OutstandingAmount = outstanding

	invoice.IsOverdue = invoice.DueDate != nil &&
		outstanding.GreaterThan(decimal.Zero) &&
		invoice.DueDate.Before(today)
}

// upsertSupplierInvoiceForGrn creates or refreshes the payable for a
// posted receipt, inside the posting transaction. The declared supplier
// invoice amount wins when positive; otherwise the calculated GRN amount
// stands in. The credit period comes from the first integer in the PO's
// payment terms, falling back to the supplier's.
func upsertSupplierInvoiceForGrn(ctx context.Context, tx *gorm.DB, grn *Grn, totals GrnTotals) (*SupplierInvoice, error) {

	invoiceNo := strings.TrimSpace(grn.SupplierInvoiceNo)
	if invoiceNo != "" {
		var duplicate int64
		err := tx.WithContext(ctx).Model(&SupplierInvoice{}).
			Where("supplier_id = ? AND invoice_no = ? AND grn_id <> ?", grn.SupplierId, invoiceNo, grn.ID).
			Count(&duplicate).Error
		if err != nil {
			return nil, err
		}
		if duplicate > 0 {
			return nil, utils.ConflictErrorf("supplier invoice %s is already recorded for supplier %d", invoiceNo, grn.SupplierId)
		}
	}

	invoiceAmount := grn.SupplierInvoiceAmount
	if !invoiceAmount.GreaterThan(decimal.Zero) {
		invoiceAmount = totals.CalculatedGrnAmount
	}

	var poPaymentTerms string
	if grn.PurchaseOrderId > 0 {
		var purchaseOrder PurchaseOrder
		err := tx.WithContext(ctx).Select("payment_terms").First(&purchaseOrder, grn.PurchaseOrderId).Error
		if err != nil && err != gorm.ErrRecordNotFound {
			return nil, err
		}
		poPaymentTerms = purchaseOrder.PaymentTerms
	}
	var supplier Supplier
	if err := tx.WithContext(ctx).Select("payment_terms").First(&supplier, grn.SupplierId).Error; err != nil {
		return nil, err
	}

	var dueDate *time.Time
	if grn.SupplierInvoiceDate != nil {
		dueDate = calculateDueDate(*grn.SupplierInvoiceDate, poPaymentTerms, supplier.PaymentTerms)
	}

	invoice := SupplierInvoice{}
	err := tx.WithContext(ctx).Where("grn_id = ?", grn.ID).First(&invoice).Error
	if err != nil && err != gorm.ErrRecordNotFound {
		return nil, err
	}

	invoice.GrnId = grn.ID
	invoice.SupplierId = grn.SupplierId
	invoice.InvoiceNo = invoiceNo
	invoice.InvoiceDate = grn.SupplierInvoiceDate
	invoice.DueDate = dueDate
	invoice.InvoiceAmount = invoiceAmount
	invoice.ComputeInvoiceStatus(todayDate())

	if err := tx.WithContext(ctx).Save(&invoice).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

// refreshInvoiceAfterPayment recomputes and persists the derived columns
// after paid_amount changed. Caller holds the row lock.
func refreshInvoiceAfterPayment(ctx context.Context, tx *gorm.DB, invoice *SupplierInvoice) error {
	invoice.ComputeInvoiceStatus(todayDate())
	return tx.WithContext(ctx).Model(invoice).Updates(map[string]interface{}{
		"PaidAmount":        invoice.PaidAmount,
		"OutstandingAmount": invoice.OutstandingAmount,
		"Status":            invoice.Status,
		"IsOverdue":         invoice.IsOverdue,
		"LastPaymentDate":   invoice.LastPaymentDate,
	}).Error
}

// CancelSupplierInvoice voids a payable that has no money against it.
func CancelSupplierInvoice(ctx context.Context, invoiceId int) (*SupplierInvoice, error) {
	db := config.GetDB()

	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()

	invoice, err := utils.FetchModelForUpdate[SupplierInvoice](ctx, tx, invoiceId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if invoice.Status == InvoiceStatusCancelled {
		tx.Rollback()
		return nil, utils.ConflictErrorf("invoice %d is already cancelled", invoice.ID)
	}
	if invoice.PaidAmount.GreaterThan(decimal.Zero) {
		tx.Rollback()
		return nil, utils.ConflictErrorf("invoice %d has payments allocated and cannot be cancelled", invoice.ID)
	}

	if err := tx.WithContext(ctx).Model(invoice).Updates(map[string]interface{}{
		"Status":            InvoiceStatusCancelled,
		"OutstandingAmount": decimal.Zero,
		"IsOverdue":         false,
	}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return GetSupplierInvoice(ctx, invoice.ID)
}

func GetSupplierInvoice(ctx context.Context, id int) (*SupplierInvoice, error) {
	return utils.FetchModel[SupplierInvoice](ctx, id, "Supplier", "Grn")
}

type SupplierInvoiceFilter struct {
	SupplierId  int
	Status      SupplierInvoiceStatus
	OverdueOnly bool
	FromDate    *time.Time
	ToDate      *time.Time
}

func ListSupplierInvoice(ctx context.Context, filter SupplierInvoiceFilter) ([]*SupplierInvoice, error) {
	var invoices []*SupplierInvoice
	db := config.GetDB()

	dbCtx := db.WithContext(ctx).Preload("Supplier")
	if filter.SupplierId > 0 {
		dbCtx = dbCtx.Where("supplier_id = ?", filter.SupplierId)
	}
	if filter.Status != "" {
		dbCtx = dbCtx.Where("status = ?", filter.Status)
	}
	if filter.OverdueOnly {
		dbCtx = dbCtx.Where("is_overdue = true")
	}
	if filter.FromDate != nil {
		dbCtx = dbCtx.Where("invoice_date >= ?", *filter.FromDate)
	}
	if filter.ToDate != nil {
		dbCtx = dbCtx.Where("invoice_date <= ?", *filter.ToDate)
	}

	if err := dbCtx.Order("invoice_date IS NULL, invoice_date, id").Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

// SupplierOutstanding is one row of the payables summary: open invoice
// count and amount per supplier.
type SupplierOutstanding struct {
	SupplierId        int             `json:"supplier_id"`
	SupplierName      string          `json:"supplier_name"`
	InvoiceCount      int             `json:"invoice_count"`
	OutstandingAmount decimal.Decimal `json:"outstanding_amount"`
	OverdueAmount     decimal.Decimal `json:"overdue_amount"`
}

func GetSupplierOutstanding(ctx context.Context, supplierId int) ([]SupplierOutstanding, error) {
	var rows []SupplierOutstanding
	db := config.GetDB()

	query := `
		SELECT si.supplier_id,
		       s.name AS supplier_name,
		       COUNT(*) AS invoice_count,
		       COALESCE(SUM(si.outstanding_amount), 0) AS outstanding_amount,
		       COALESCE(SUM(CASE WHEN si.is_overdue THEN si.outstanding_amount ELSE 0 END), 0) AS overdue_amount
		FROM acc_supplier_invoices si
		JOIN inv_suppliers s ON s.id = si.supplier_id
		WHERE si.status IN ('UNPAID', 'PARTIAL')`
	args := []interface{}{}
	if supplierId > 0 {
		query += " AND si.supplier_id = ?"
		args = append(args, supplierId)
	}
	query += " GROUP BY si.supplier_id, s.name ORDER BY outstanding_amount DESC"

	if err := db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
