package utils

import (
	"context"
	"errors"
	"reflect"

	"bitbucket.org/mmdatafocus/hims_backend/config"
)

// check if id exists, return RecordNotFound Error
func ValidateResourceId[T any](ctx context.Context, id interface{}) error {

	count, err := ResourceCountWhere[T](ctx, "id = ?", id)
	if err != nil {
		return err
	}
	if count <= 0 {
		return ErrorRecordNotFound
	}

	return nil
}

type ValidationRule[ID comparable] struct {
	Model   interface{}
	Ids     []ID
	Message string
	Filter  Filter
}

type Filter struct {
	Cond   string
	Values []interface{}
}

func MassValidateResourceIds[ID comparable](ctx context.Context, rules []ValidationRule[ID]) error {
	db := config.GetDB()
	var count int64
	for _, rule := range rules {
		if len(rule.Ids) <= 0 {
			continue
		}

		unqIds := UniqueSlice(rule.Ids)

		err := db.WithContext(ctx).Model(&rule.Model).
			Where("id IN ?", unqIds).
			Where(rule.Filter.Cond, rule.Filter.Values...).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count != int64(len(unqIds)) {
			return errors.New(rule.Message)
		}
	}

	return nil
}

// check if ALL ids exist, return RecordNotFound Error
func ValidateResourcesId[M any, ID comparable](ctx context.Context, ids []ID) error {
	unqIds := UniqueSlice(ids)

	count, err := ResourceCountWhere[M](ctx, "id IN ?", unqIds)
	if err != nil {
		return err
	}
	if count != int64(len(unqIds)) {
		return ErrorRecordNotFound
	}

	return nil
}

func ValidateUnique[T any](ctx context.Context, column string, value interface{}, exceptId interface{}) error {
	var count int64
	var err error
	if reflect.ValueOf(exceptId).IsZero() {
		count, err = ResourceCountWhere[T](ctx, column+" = ?", value)
	} else {
		count, err = ResourceCountWhere[T](ctx, column+" = ? AND NOT id = ?", value, exceptId)
	}

	if err != nil {
		return err
	}
	if count > 0 {
		return ConflictErrorf("duplicate %s", column)
	}
	return nil
}

// count records matching WHERE $condition
func ResourceCountWhere[T any](ctx context.Context, condition string, value ...interface{}) (int64, error) {
	var model T

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Model(&model).Where(condition, value...)
	var count int64
	if err := dbCtx.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
