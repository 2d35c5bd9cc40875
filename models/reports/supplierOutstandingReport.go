package reports

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/hims_backend/config"
	"github.com/shopspring/decimal"
)

type SupplierOutstandingDetailRow struct {
	SupplierId   int             `json:"supplier_id"`
	SupplierName string          `json:"supplier_name"`
	InvoiceId    int             `json:"invoice_id"`
	InvoiceNo    string          `json:"invoice_no"`
	GrnNumber    string          `json:"grn_number"`
	InvoiceDate  *time.Time      `json:"invoice_date,omitempty"`
	DueDate      *time.Time      `json:"due_date,omitempty"`
	Outstanding  decimal.Decimal `json:"outstanding"`
	DaysOverdue  int             `json:"days_overdue"`
}

// GetSupplierOutstandingReport lists every open invoice oldest first with
// its age past due. days_overdue is 0 for invoices not yet due or without
// a due date.
func GetSupplierOutstandingReport(ctx context.Context, supplierId int, overdueOnly bool) ([]*SupplierOutstandingDetailRow, error) {
	started := time.Now()
	defer logSlowReport(ctx, "supplier_outstanding", started, map[string]any{"supplier_id": supplierId})

	cacheKey := fmt.Sprintf("report:supplierOutstanding:%d:%t", supplierId, overdueOnly)
	if reportCacheEnabled() {
		var cached []*SupplierOutstandingDetailRow
		if ok, err := cacheGet(cacheKey, &cached); err == nil && ok {
			return cached, nil
		}
	}

	sql := `
SELECT
    si.supplier_id,
    s.name AS supplier_name,
    si.id AS invoice_id,
    si.invoice_no,
    g.grn_number,
    si.invoice_date,
    si.due_date,
    si.outstanding_amount AS outstanding,
    CASE WHEN si.due_date IS NOT NULL AND si.due_date < CURDATE()
         THEN DATEDIFF(CURDATE(), si.due_date) ELSE 0 END AS days_overdue
FROM acc_supplier_invoices si
JOIN inv_suppliers s ON s.id = si.supplier_id
JOIN inv_grns g ON g.id = si.grn_id
WHERE si.status IN ('UNPAID', 'PARTIAL')`

	args := []interface{}{}
	if supplierId > 0 {
		sql += " AND si.supplier_id = ?"
		args = append(args, supplierId)
	}
	if overdueOnly {
		sql += " AND si.is_overdue = 1"
	}
	sql += " ORDER BY si.invoice_date IS NULL, si.invoice_date, si.id"

	var rows []*SupplierOutstandingDetailRow
	db := config.GetDB()
	if err := db.WithContext(ctx).Raw(sql, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}

	if reportCacheEnabled() {
		_ = cacheSet(cacheKey, rows, reportCacheTTL())
	}
	return rows, nil
}
