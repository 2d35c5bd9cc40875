package models

import (
	"context"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/hims_backend/config"
	"bitbucket.org/mmdatafocus/hims_backend/utils"
)

const (
	UserRoleAdmin = "admin"
	UserRolePharm = "pharmacist"
)

// User exists so documents can record who created/posted them and to gate
// the admin-only ops endpoints. Requests arrive with a bearer token that
// carries the user id, username and role.
type User struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Username  string    `gorm:"size:100;not null;unique" json:"username" binding:"required"`
	Name      string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Password  string    `gorm:"size:255;not null" json:"-"`
	Role      string    `gorm:"size:30;not null;default:'pharmacist'" json:"role"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (User) TableName() string { return "users" }

type NewUser struct {
	Username string `json:"username" binding:"required"`
	Name     string `json:"name" binding:"required"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role"`
}

func CreateUser(ctx context.Context, input *NewUser) (*User, error) {

	if len(strings.TrimSpace(input.Username)) == 0 {
		return nil, utils.ValidationErrorf("username is required")
	}
	if len(input.Password) < 8 {
		return nil, utils.ValidationErrorf("password must be at least 8 characters")
	}
	role := input.Role
	if role == "" {
		role = UserRolePharm
	}
	if role != UserRoleAdmin && role != UserRolePharm {
		return nil, utils.ValidationErrorf("role must be %s or %s", UserRoleAdmin, UserRolePharm)
	}
	if err := utils.ValidateUnique[User](ctx, "username", input.Username, 0); err != nil {
		return nil, err
	}

	hashed, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	user := User{
		Username: input.Username,
		Name:     input.Name,
		Password: string(hashed),
		Role:     role,
		IsActive: utils.NewTrue(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func GetUser(ctx context.Context, id int) (*User, error) {
	return GetResource[User](ctx, id)
}

func GetUserByUsername(ctx context.Context, username string) (*User, error) {
	db := config.GetDB()
	var user User
	err := db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &user, nil
}

// UpdateUserPassword rehashes and stores a new password (ops use).
func UpdateUserPassword(ctx context.Context, id int, newPassword string) (*User, error) {

	if len(newPassword) < 8 {
		return nil, utils.ValidationErrorf("password must be at least 8 characters")
	}

	user, err := utils.FetchModel[User](ctx, id)
	if err != nil {
		return nil, utils.NotFoundErrorf("user %d not found", id)
	}

	hashed, err := utils.HashPassword(newPassword)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(user).UpdateColumn("Password", string(hashed)).Error; err != nil {
		return nil, err
	}
	if err := invalidateResource[User](id); err != nil {
		return nil, err
	}
	return user, nil
}
