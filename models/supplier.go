package models

import (
	"context"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/hims_backend/config"
	"bitbucket.org/mmdatafocus/hims_backend/utils"
)

type Supplier struct {
	ID      int    `gorm:"primary_key" json:"id"`
	Name    string `gorm:"size:200;not null;index" json:"name" binding:"required"`
	Phone   string `gorm:"size:20" json:"phone"`
	Mobile  string `gorm:"size:20" json:"mobile"`
	Email   string `gorm:"size:100" json:"email"`
	Address string `gorm:"type:text" json:"address"`
	// GST registration of the supplier, used on printed GRNs
	GstNumber string `gorm:"size:30" json:"gst_number"`
	// free text, e.g. "Net 30 days"; the first integer is taken as the
	// credit period when deriving invoice due dates
	PaymentTerms string    `gorm:"size:100" json:"payment_terms"`
	IsActive     *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Supplier) TableName() string { return "inv_suppliers" }

type NewSupplier struct {
	Name         string `json:"name" binding:"required"`
	Phone        string `json:"phone"`
	Mobile       string `json:"mobile"`
	Email        string `json:"email"`
	Address      string `json:"address"`
	GstNumber    string `json:"gst_number"`
	PaymentTerms string `json:"payment_terms"`
}

// validate input for both create & update. (id = 0 for create)

func (input *NewSupplier) validate(ctx context.Context, id int) error {
	// name
	if err := utils.ValidateUnique[Supplier](ctx, "name", input.Name, id); err != nil {
		return err
	}
	// phone
	if len(strings.TrimSpace(input.Phone)) > 0 {
		if err := utils.ValidatePhoneNumber(input.Phone, utils.CountryCode); err != nil {
			return utils.ValidationErrorf("invalid phone number: %v", err)
		}
	}
	// mobile
	if len(strings.TrimSpace(input.Mobile)) > 0 {
		if err := utils.ValidatePhoneNumber(input.Mobile, utils.CountryCode); err != nil {
			return utils.ValidationErrorf("invalid mobile number: %v", err)
		}
	}
	// email
	if len(strings.TrimSpace(input.Email)) > 0 && !utils.IsValidEmail(input.Email) {
		return utils.ValidationErrorf("invalid email address")
	}
	return nil
}

func CreateSupplier(ctx context.Context, input *NewSupplier) (*Supplier, error) {

	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	supplier := Supplier{
		Name:         input.Name,
		Phone:        input.Phone,
		Mobile:       input.Mobile,
		Email:        input.Email,
		Address:      input.Address,
		GstNumber:    input.GstNumber,
		PaymentTerms: input.PaymentTerms,
		IsActive:     utils.NewTrue(),
	}

	// db action
	db := config.GetDB()
	err := db.WithContext(ctx).Create(&supplier).Error
	if err != nil {
		return nil, err
	}
	return &supplier, nil
}

func UpdateSupplier(ctx context.Context, id int, input *NewSupplier) (*Supplier, error) {

	if err := input.validate(ctx, id); err != nil {
		return nil, err
	}

	supplier, err := utils.FetchModel[Supplier](ctx, id)
	if err != nil {
		return nil, utils.NotFoundErrorf("supplier %d not found", id)
	}

	// db action
	db := config.GetDB()
	err = db.WithContext(ctx).Model(supplier).Updates(map[string]interface{}{
		"Name":         input.Name,
		"Phone":        input.Phone,
		"Mobile":       input.Mobile,
		"Email":        input.Email,
		"Address":      input.Address,
		"GstNumber":    input.GstNumber,
		"PaymentTerms": input.PaymentTerms,
	}).Error
	if err != nil {
		return nil, err
	}

	// clear cache
	if err := invalidateResource[Supplier](id); err != nil {
		return nil, err
	}

	return supplier, nil
}

func GetSupplier(ctx context.Context, id int) (*Supplier, error) {
	return GetResource[Supplier](ctx, id)
}

func ListSupplier(ctx context.Context, name *string, isActive *bool) ([]*Supplier, error) {

	db := config.GetDB()
	var results []*Supplier

	dbCtx := db.WithContext(ctx)
	if name != nil && len(*name) > 0 {
		dbCtx = dbCtx.Where("name LIKE ?", "%"+*name+"%")
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

func ToggleActiveSupplier(ctx context.Context, id int, isActive bool) (*Supplier, error) {

	supplier, err := utils.FetchModel[Supplier](ctx, id)
	if err != nil {
		return nil, utils.NotFoundErrorf("supplier %d not found", id)
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(supplier).UpdateColumn("IsActive", isActive).Error; err != nil {
		return nil, err
	}
	if err := invalidateResource[Supplier](id); err != nil {
		return nil, err
	}
	return supplier, nil
}
