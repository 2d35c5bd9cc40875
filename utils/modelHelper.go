package utils

import (
	"context"

	"bitbucket.org/mmdatafocus/hims_backend/config"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

/* DB fetching */

// fetch model from db
// (may return RecordNotFound)
func FetchModel[T any](ctx context.Context, id int, associations ...string) (*T, error) {

	db := config.GetDB()
	dbCtx := db.WithContext(ctx)
	// preloading
	for _, field := range associations {
		dbCtx = dbCtx.Preload(field)
	}
	var result T
	err := dbCtx.First(&result, id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrorRecordNotFound
		}
		return nil, err
	}
	return &result, nil
}

// FetchModelForUpdate fetches a row inside tx holding a SELECT ... FOR UPDATE
// lock. Every read-modify-write on documents, batches and invoices goes
// through this so concurrent postings serialize on the row.
func FetchModelForUpdate[T any](ctx context.Context, tx *gorm.DB, id int, associations ...string) (*T, error) {

	dbCtx := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"})
	for _, field := range associations {
		dbCtx = dbCtx.Preload(field)
	}
	var result T
	err := dbCtx.First(&result, id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrorRecordNotFound
		}
		return nil, err
	}
	return &result, nil
}

// fetch all models from db
func FetchAllModels[T any](ctx context.Context, associations ...string) ([]*T, error) {

	db := config.GetDB()
	dbCtx := db.WithContext(ctx)
	// preloading
	for _, field := range associations {
		dbCtx = dbCtx.Preload(field)
	}
	var results []*T
	err := dbCtx.Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
