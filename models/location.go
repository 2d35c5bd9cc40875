package models

import (
	"context"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/hims_backend/config"
	"bitbucket.org/mmdatafocus/hims_backend/utils"
)

// Location is a physical stock point (main pharmacy, ward sub-store,
// emergency cabinet). Batches are tracked per location.
type Location struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Code      string    `gorm:"size:30" json:"code"`
	Phone     string    `gorm:"size:20" json:"phone"`
	Address   string    `gorm:"type:text" json:"address"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Location) TableName() string { return "inv_locations" }

type NewLocation struct {
	Name    string `json:"name" binding:"required"`
	Code    string `json:"code"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

// validate input for both create & update. (id = 0 for create)

func (input *NewLocation) validate(ctx context.Context, id int) error {
	// name
	if err := utils.ValidateUnique[Location](ctx, "name", input.Name, id); err != nil {
		return err
	}
	// phone
	if len(strings.TrimSpace(input.Phone)) > 0 {
		if err := utils.ValidatePhoneNumber(input.Phone, utils.CountryCode); err != nil {
			return utils.ValidationErrorf("invalid phone number: %v", err)
		}
	}
	return nil
}

func CreateLocation(ctx context.Context, input *NewLocation) (*Location, error) {

	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	location := Location{
		Name:     input.Name,
		Code:     input.Code,
		Phone:    input.Phone,
		Address:  input.Address,
		IsActive: utils.NewTrue(),
	}

	// db action
	db := config.GetDB()
	err := db.WithContext(ctx).Create(&location).Error
	if err != nil {
		return nil, err
	}
	return &location, nil
}

func UpdateLocation(ctx context.Context, id int, input *NewLocation) (*Location, error) {

	if err := input.validate(ctx, id); err != nil {
		return nil, err
	}

	location, err := utils.FetchModel[Location](ctx, id)
	if err != nil {
		return nil, utils.NotFoundErrorf("location %d not found", id)
	}

	// db action
	db := config.GetDB()
	err = db.WithContext(ctx).Model(location).Updates(map[string]interface{}{
		"Name":    input.Name,
		"Code":    input.Code,
		"Phone":   input.Phone,
		"Address": input.Address,
	}).Error
	if err != nil {
		return nil, err
	}

	// clear cache
	if err := invalidateResource[Location](id); err != nil {
		return nil, err
	}

	return location, nil
}

func GetLocation(ctx context.Context, id int) (*Location, error) {
	return GetResource[Location](ctx, id)
}

func ListLocation(ctx context.Context, isActive *bool) ([]*Location, error) {

	db := config.GetDB()
	var results []*Location

	dbCtx := db.WithContext(ctx)
	if isActive != nil {
		dbCtx = dbCtx.Where("is_active = ?", *isActive)
	}
	err := dbCtx.Order("name").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
