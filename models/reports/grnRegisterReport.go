package reports

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/hims_backend/config"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

type GrnRegisterRow struct {
	GrnId               int             `json:"grn_id"`
	GrnNumber           string          `json:"grn_number"`
	GrnDate             time.Time       `json:"grn_date"`
	SupplierName        string          `json:"supplier_name"`
	LocationName        string          `json:"location_name"`
	Status              string          `json:"status"`
	SupplierInvoiceNo   string          `json:"supplier_invoice_no"`
	TaxableAmount       decimal.Decimal `json:"taxable_amount"`
	CgstAmount          decimal.Decimal `json:"cgst_amount"`
	SgstAmount          decimal.Decimal `json:"sgst_amount"`
	IgstAmount          decimal.Decimal `json:"igst_amount"`
	CalculatedGrnAmount decimal.Decimal `json:"calculated_grn_amount"`
	AmountDifference    decimal.Decimal `json:"amount_difference"`
}

// GetGrnRegisterReport lists posted receipts in a date window with their
// tax split, the purchase register the accountant reconciles against
// supplier bills.
func GetGrnRegisterReport(ctx context.Context, fromDate time.Time, toDate time.Time, supplierId int) ([]*GrnRegisterRow, error) {
	started := time.Now()
	defer logSlowReport(ctx, "grn_register", started, map[string]any{"supplier_id": supplierId})

	sql := `
SELECT
    g.id AS grn_id,
    g.grn_number,
    g.grn_date,
    s.name AS supplier_name,
    l.name AS location_name,
    g.status,
    g.supplier_invoice_no,
    g.taxable_amount,
    g.cgst_amount,
    g.sgst_amount,
    g.igst_amount,
    g.calculated_grn_amount,
    g.amount_difference
FROM inv_grns g
JOIN inv_suppliers s ON s.id = g.supplier_id
JOIN inv_locations l ON l.id = g.location_id
WHERE g.status = 'POSTED' AND g.grn_date BETWEEN ? AND ?`

	args := []interface{}{fromDate, toDate}
	if supplierId > 0 {
		sql += " AND g.supplier_id = ?"
		args = append(args, supplierId)
	}
	sql += " ORDER BY g.grn_date, g.id"

	var rows []*GrnRegisterRow
	db := config.GetDB()
	if err := db.WithContext(ctx).Raw(sql, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ExportGrnRegisterXlsx renders the purchase register as a workbook.
func ExportGrnRegisterXlsx(ctx context.Context, fromDate time.Time, toDate time.Time, supplierId int) (*excelize.File, error) {

	rows, err := GetGrnRegisterReport(ctx, fromDate, toDate, supplierId)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	sheet := "Sheet1"

	headings := []string{"GRN No", "Date", "Supplier", "Location", "Invoice No", "Taxable", "CGST", "SGST", "IGST", "Total", "Difference"}
	col := 'A'
	for _, h := range headings {
		f.SetCellValue(sheet, string(col)+"1", h)
		col++
	}

	for i, r := range rows {
		rowNo := fmt.Sprint(i + 2)
		f.SetCellValue(sheet, "A"+rowNo, r.GrnNumber)
		f.SetCellValue(sheet, "B"+rowNo, r.GrnDate.Format("2006-01-02"))
		f.SetCellValue(sheet, "C"+rowNo, r.SupplierName)
		f.SetCellValue(sheet, "D"+rowNo, r.LocationName)
		f.SetCellValue(sheet, "E"+rowNo, r.SupplierInvoiceNo)
		f.SetCellValue(sheet, "F"+rowNo, r.TaxableAmount.StringFixed(2))
		f.SetCellValue(sheet, "G"+rowNo, r.CgstAmount.StringFixed(2))
		f.SetCellValue(sheet, "H"+rowNo, r.SgstAmount.StringFixed(2))
		f.SetCellValue(sheet, "I"+rowNo, r.IgstAmount.StringFixed(2))
		f.SetCellValue(sheet, "J"+rowNo, r.CalculatedGrnAmount.StringFixed(2))
		f.SetCellValue(sheet, "K"+rowNo, r.AmountDifference.StringFixed(2))
	}

	return f, nil
}
