package reports

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/hims_backend/config"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

type StockOnHandRow struct {
	ItemId       int             `json:"item_id"`
	ItemCode     string          `json:"item_code"`
	ItemName     string          `json:"item_name"`
	LocationId   int             `json:"location_id"`
	LocationName string          `json:"location_name"`
	BatchCount   int             `json:"batch_count"`
	TotalQty     decimal.Decimal `json:"total_qty"`
	StockValue   decimal.Decimal `json:"stock_value"`
	MrpValue     decimal.Decimal `json:"mrp_value"`
	NextExpiry   *time.Time      `json:"next_expiry,omitempty"`
}

// GetStockOnHandReport aggregates saleable balances per item and location
// from the batch ledger. Values are at last purchase cost and at MRP.
func GetStockOnHandReport(ctx context.Context, locationId int, itemId int) ([]*StockOnHandRow, error) {
	started := time.Now()
	defer logSlowReport(ctx, "stock_on_hand", started, map[string]any{"location_id": locationId, "item_id": itemId})

	cacheKey := fmt.Sprintf("report:stockOnHand:%d:%d", locationId, itemId)
	if reportCacheEnabled() {
		var cached []*StockOnHandRow
		if ok, err := cacheGet(cacheKey, &cached); err == nil && ok {
			return cached, nil
		}
	}

	sql := `
SELECT
    b.item_id,
    i.code AS item_code,
    i.name AS item_name,
    b.location_id,
    l.name AS location_name,
    COUNT(*) AS batch_count,
    COALESCE(SUM(b.current_qty), 0) AS total_qty,
    COALESCE(SUM(b.current_qty * b.unit_cost), 0) AS stock_value,
    COALESCE(SUM(b.current_qty * b.mrp), 0) AS mrp_value,
    MIN(b.expiry_date) AS next_expiry
FROM inv_item_batches b
JOIN inv_items i ON i.id = b.item_id
JOIN inv_locations l ON l.id = b.location_id
WHERE b.is_active = 1 AND b.current_qty > 0`

	args := []interface{}{}
	if locationId > 0 {
		sql += " AND b.location_id = ?"
		args = append(args, locationId)
	}
	if itemId > 0 {
		sql += " AND b.item_id = ?"
		args = append(args, itemId)
	}
	sql += " GROUP BY b.item_id, i.code, i.name, b.location_id, l.name ORDER BY i.name, l.name"

	var rows []*StockOnHandRow
	db := config.GetDB()
	if err := db.WithContext(ctx).Raw(sql, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}

	if reportCacheEnabled() {
		_ = cacheSet(cacheKey, rows, reportCacheTTL())
	}
	return rows, nil
}

// ExportStockOnHandXlsx renders the report as a workbook for download.
func ExportStockOnHandXlsx(ctx context.Context, locationId int, itemId int) (*excelize.File, error) {

	rows, err := GetStockOnHandReport(ctx, locationId, itemId)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	sheet := "Sheet1"

	headings := []string{"Item Code", "Item Name", "Location", "Batches", "Quantity", "Stock Value", "MRP Value", "Next Expiry"}
	col := 'A'
	for _, h := range headings {
		f.SetCellValue(sheet, string(col)+"1", h)
		col++
	}

	for i, r := range rows {
		rowNo := fmt.Sprint(i + 2)
		f.SetCellValue(sheet, "A"+rowNo, r.ItemCode)
		f.SetCellValue(sheet, "B"+rowNo, r.ItemName)
		f.SetCellValue(sheet, "C"+rowNo, r.LocationName)
		f.SetCellValue(sheet, "D"+rowNo, r.BatchCount)
		f.SetCellValue(sheet, "E"+rowNo, r.TotalQty.String())
		f.SetCellValue(sheet, "F"+rowNo, r.StockValue.StringFixed(2))
		f.SetCellValue(sheet, "G"+rowNo, r.MrpValue.StringFixed(2))
		if r.NextExpiry != nil {
			f.SetCellValue(sheet, "H"+rowNo, r.NextExpiry.Format("2006-01-02"))
		}
	}

	return f, nil
}
