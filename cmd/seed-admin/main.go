// seed-admin creates or updates the bootstrap admin user.
//
// Usage (from backend directory):
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... \
//	SEED_ADMIN_PASSWORD=... go run ./cmd/seed-admin
package main

import (
	"context"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/hims_backend/config"
	"bitbucket.org/mmdatafocus/hims_backend/models"
	"bitbucket.org/mmdatafocus/hims_backend/utils"
	"gorm.io/gorm"
)

const adminName = "Pharmacy Admin"

func main() {
	username := os.Getenv("SEED_ADMIN_USERNAME")
	if username == "" {
		username = "himsAdmin"
	}
	password := os.Getenv("SEED_ADMIN_PASSWORD")
	if len(password) < 8 {
		fmt.Fprintln(os.Stderr, "SEED_ADMIN_PASSWORD is required (min 8 characters)")
		os.Exit(1)
	}

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	hashed, err := utils.HashPassword(password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to hash password: %v\n", err)
		os.Exit(1)
	}
	hashedStr := string(hashed)

	var existing models.User
	err = db.WithContext(ctx).Model(&models.User{}).Where("username = ?", username).First(&existing).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			fmt.Fprintf(os.Stderr, "failed to lookup user: %v\n", err)
			os.Exit(1)
		}
		u := models.User{
			Username: username,
			Name:     adminName,
			Password: hashedStr,
			Role:     models.UserRoleAdmin,
			IsActive: utils.NewTrue(),
		}
		if err := db.WithContext(ctx).Create(&u).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to create admin user: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Created admin user: username=%q\n", username)
		return
	}

	// Update existing user: ensure password and admin role.
	if err := db.WithContext(ctx).Model(&models.User{}).Where("username = ?", username).Updates(map[string]any{
		"password":  hashedStr,
		"is_active": utils.NewTrue(),
		"role":      models.UserRoleAdmin,
	}).Error; err != nil {
		fmt.Fprintf(os.Stderr, "failed to update admin user: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Updated admin user: username=%q\n", username)
}
