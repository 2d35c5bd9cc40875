package models

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/hims_backend/config"
	"bitbucket.org/mmdatafocus/hims_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// Item is the pharmacy item master. default_price/default_mrp/
// default_tax_percent hold the latest purchase values and are overwritten
// by every GRN post referencing the item.
type Item struct {
	ID                int             `gorm:"primary_key" json:"id"`
	Code              string          `gorm:"size:50;index" json:"code"`
	Name              string          `gorm:"size:200;not null;index" json:"name" binding:"required"`
	GenericName       string          `gorm:"size:200" json:"generic_name"`
	Manufacturer      string          `gorm:"size:200" json:"manufacturer"`
	Unit              string          `gorm:"size:30" json:"unit"`
	HsnCode           string          `gorm:"size:20" json:"hsn_code"`
	DefaultPrice      decimal.Decimal `gorm:"type:decimal(20,4)" json:"default_price"`
	DefaultMrp        decimal.Decimal `gorm:"type:decimal(20,4)" json:"default_mrp"`
	DefaultTaxPercent decimal.Decimal `gorm:"type:decimal(20,4)" json:"default_tax_percent"`
	ReorderLevel      decimal.Decimal `gorm:"type:decimal(20,4)" json:"reorder_level"`
	IsActive          *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Item) TableName() string { return "inv_items" }

type NewItem struct {
	Code              string          `json:"code"`
	Name              string          `json:"name" binding:"required"`
	GenericName       string          `json:"generic_name"`
	Manufacturer      string          `json:"manufacturer"`
	Unit              string          `json:"unit"`
	HsnCode           string          `json:"hsn_code"`
	DefaultPrice      decimal.Decimal `json:"default_price"`
	DefaultMrp        decimal.Decimal `json:"default_mrp"`
	DefaultTaxPercent decimal.Decimal `json:"default_tax_percent"`
	ReorderLevel      decimal.Decimal `json:"reorder_level"`
}

// validate input for both create & update. (id = 0 for create)

func (input *NewItem) validate(ctx context.Context, id int) error {
	// name
	if err := utils.ValidateUnique[Item](ctx, "name", input.Name, id); err != nil {
		return err
	}
	// code
	if len(strings.TrimSpace(input.Code)) > 0 {
		if err := utils.ValidateUnique[Item](ctx, "code", input.Code, id); err != nil {
			return err
		}
	}
	if input.DefaultPrice.IsNegative() || input.DefaultMrp.IsNegative() || input.DefaultTaxPercent.IsNegative() {
		return utils.ValidationErrorf("price, mrp and tax percent cannot be negative")
	}
	return nil
}

func CreateItem(ctx context.Context, input *NewItem) (*Item, error) {

	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	item := Item{
		Code:              input.Code,
		Name:              input.Name,
		GenericName:       input.GenericName,
		Manufacturer:      input.Manufacturer,
		Unit:              input.Unit,
		HsnCode:           input.HsnCode,
		DefaultPrice:      input.DefaultPrice,
		DefaultMrp:        input.DefaultMrp,
		DefaultTaxPercent: input.DefaultTaxPercent,
		ReorderLevel:      input.ReorderLevel,
		IsActive:          utils.NewTrue(),
	}

	// db action
	db := config.GetDB()
	err := db.WithContext(ctx).Create(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func UpdateItem(ctx context.Context, id int, input *NewItem) (*Item, error) {

	if err := input.validate(ctx, id); err != nil {
		return nil, err
	}

	item, err := utils.FetchModel[Item](ctx, id)
	if err != nil {
		return nil, utils.NotFoundErrorf("item %d not found", id)
	}

	// db action
	db := config.GetDB()
	err = db.WithContext(ctx).Model(item).Updates(map[string]interface{}{
		"Code":              input.Code,
		"Name":              input.Name,
		"GenericName":       input.GenericName,
		"Manufacturer":      input.Manufacturer,
		"Unit":              input.Unit,
		"HsnCode":           input.HsnCode,
		"DefaultPrice":      input.DefaultPrice,
		"DefaultMrp":        input.DefaultMrp,
		"DefaultTaxPercent": input.DefaultTaxPercent,
		"ReorderLevel":      input.ReorderLevel,
	}).Error
	if err != nil {
		return nil, err
	}

	// clear cache
	if err := invalidateResource[Item](id); err != nil {
		return nil, err
	}

	return item, nil
}

func GetItem(ctx context.Context, id int) (*Item, error) {
	return GetResource[Item](ctx, id)
}

func ListItem(ctx context.Context, name *string, isActive *bool) ([]*Item, error) {

	db := config.GetDB()
	var results []*Item

	dbCtx := db.WithContext(ctx)
	if name != nil && len(*name) > 0 {
		dbCtx = dbCtx.Where("name LIKE ? OR generic_name LIKE ?", "%"+*name+"%", "%"+*name+"%")
	}
	if isActive != nil {
		dbCtx = dbCtx.Where("is_active = ?", *isActive)
	}
	// db query
	err := dbCtx.Order("name").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func ToggleActiveItem(ctx context.Context, id int, isActive bool) (*Item, error) {

	item, err := utils.FetchModel[Item](ctx, id)
	if err != nil {
		return nil, utils.NotFoundErrorf("item %d not found", id)
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(item).UpdateColumn("IsActive", isActive).Error; err != nil {
		return nil, err
	}
	if err := invalidateResource[Item](id); err != nil {
		return nil, err
	}
	return item, nil
}

// updateItemPurchaseInfo overwrites the item master's latest purchase
// values after a GRN line is applied (last write wins, no averaging).
func updateItemPurchaseInfo(ctx context.Context, tx *gorm.DB, itemId int, price, mrp, taxPercent decimal.Decimal) error {
	if err := tx.WithContext(ctx).Model(&Item{}).Where("id = ?", itemId).
		Updates(map[string]interface{}{
			"DefaultPrice":      price,
			"DefaultMrp":        mrp,
			"DefaultTaxPercent": taxPercent,
		}).Error; err != nil {
		return err
	}
	// clear cache
	return invalidateResource[Item](itemId)
}

/* XLSX import */

// Column layout: Name | GenericName | Manufacturer | Unit | HsnCode |
// DefaultPrice | DefaultMrp | DefaultTaxPercent | ReorderLevel
func populateItemRow(row []string) (NewItem, error) {
	if len(row) < 9 {
		return NewItem{}, fmt.Errorf("expected 9 columns, got %d", len(row))
	}

	price, err := utils.ParseDecimal(row[5])
	if err != nil {
		return NewItem{}, fmt.Errorf("could not parse default price: %v", err)
	}
	mrp, err := utils.ParseDecimal(row[6])
	if err != nil {
		return NewItem{}, fmt.Errorf("could not parse default mrp: %v", err)
	}
	taxPercent, err := utils.ParseDecimal(row[7])
	if err != nil {
		return NewItem{}, fmt.Errorf("could not parse default tax percent: %v", err)
	}
	reorderLevel, err := utils.ParseDecimal(row[8])
	if err != nil {
		return NewItem{}, fmt.Errorf("could not parse reorder level: %v", err)
	}

	return NewItem{
		Name:              row[0],
		GenericName:       row[1],
		Manufacturer:      row[2],
		Unit:              row[3],
		HsnCode:           row[4],
		DefaultPrice:      price,
		DefaultMrp:        mrp,
		DefaultTaxPercent: taxPercent,
		ReorderLevel:      reorderLevel,
	}, nil
}

// ImportItemsFromXlsx bulk-creates item masters from an uploaded sheet.
// Row 1 is the header. The whole file is applied in one transaction; any
// bad row rejects the upload.
func ImportItemsFromXlsx(ctx context.Context, file io.Reader) (int, error) {

	f, err := excelize.OpenReader(file)
	if err != nil {
		return 0, utils.ValidationErrorf("failed to open Excel file: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return 0, utils.ValidationErrorf("failed to read sheet: %v", err)
	}
	if len(rows) <= 1 {
		return 0, utils.ValidationErrorf("sheet has no data rows")
	}

	db := config.GetDB()
	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	created := 0
	for i, row := range rows[1:] {
		input, err := populateItemRow(row)
		if err != nil {
			tx.Rollback()
			return 0, utils.ValidationErrorf("row %d: %v", i+2, err)
		}

		var count int64
		if err := tx.WithContext(ctx).Model(&Item{}).Where("name = ?", input.Name).Count(&count).Error; err != nil {
			tx.Rollback()
			return 0, err
		}
		if count > 0 {
			tx.Rollback()
			return 0, utils.ConflictErrorf("row %d: item %q already exists", i+2, input.Name)
		}

		item := Item{
			Name:              input.Name,
			GenericName:       input.GenericName,
			Manufacturer:      input.Manufacturer,
			Unit:              input.Unit,
			HsnCode:           input.HsnCode,
			DefaultPrice:      input.DefaultPrice,
			DefaultMrp:        input.DefaultMrp,
			DefaultTaxPercent: input.DefaultTaxPercent,
			ReorderLevel:      input.ReorderLevel,
			IsActive:          utils.NewTrue(),
		}
		if err := tx.WithContext(ctx).Create(&item).Error; err != nil {
			tx.Rollback()
			return 0, err
		}
		created++
	}

	return created, tx.Commit().Error
}
