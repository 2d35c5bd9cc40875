package utils

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/hims_backend/config"
	"github.com/bsm/redislock"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/ttacon/libphonenumber"
	"gorm.io/gorm"
)

var CountryCode = "IN"

func IsValidEmail(email string) bool {
	// Basic email validation regex pattern
	pattern := `^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`
	regex := regexp.MustCompile(pattern)
	return regex.MatchString(email)
}

func IsRecordValidByID(id uint, model interface{}, db *gorm.DB) bool {

	modelType := reflect.TypeOf(model).Elem() // Get the type of the element (struct)
	record := reflect.New(modelType).Interface()
	// Construct a query using the model's primary key
	query := db.Where("id = ?", id)

	// Perform the query
	if err := query.First(record).Error; err != nil {
		return false // Record with the given ID does not exist
	}

	return true
}

func ValidatePhoneNumber(phoneNumber, countryCode string) error {
	p, err := libphonenumber.Parse(phoneNumber, countryCode)
	if err != nil {
		return err // Phone number is invalid
	}

	if !libphonenumber.IsValidNumber(p) {
		return fmt.Errorf("phone number is not valid")
	}

	return nil // Phone number is valid for the specified country code
}

func ProcessValidationErrors(err error) map[string]string {

	validationErrors := err.(validator.ValidationErrors)

	errorResponse := make(map[string]string)

	for _, ve := range validationErrors {
		errorResponse[ve.Field()] = ve.Tag()
	}

	return errorResponse
}

func NewTrue() *bool {
	b := true
	return &b
}

func NewFalse() *bool {
	b := false
	return &b
}

// returns slice removing duplicate elements
func UniqueSlice[T comparable](slice []T) []T {
	inResult := make(map[T]bool)
	var result []T
	for _, elm := range slice {
		if _, ok := inResult[elm]; !ok {
			// if not exists in map, append it, otherwise do nothing
			inResult[elm] = true
			result = append(result, elm)
		}
	}
	return result
}

// safely dereference pointer of type T, nil pointer return zero value or optional default
func DereferencePtr[T any](ptr *T, defaults ...T) T {
	var defaultValue T
	if len(defaults) > 0 {
		defaultValue = defaults[0]
	}
	if ptr == nil {
		return defaultValue
	}
	return *ptr
}

func NilIfEmpty[T comparable](ptr T) *T {
	var defaultZero T
	if ptr == defaultZero {
		return nil
	}
	return &ptr
}

func ConvertToDate(t time.Time, timezone string) (time.Time, error) {
	if timezone == "" {
		timezone = "Asia/Kolkata"
	}

	// Load the location for the given timezone
	location, err := time.LoadLocation(timezone)
	if err != nil {
		fmt.Println("Error loading location:", err)
		return t, err
	}
	localTime := t.In(location)

	// Extract only the date (without time) by using localTime.Year, Month, Day
	// We then create a new time.Time object with zero time.
	dateOnly := time.Date(localTime.Year(), localTime.Month(), localTime.Day(), 0, 0, 0, 0, location)
	return dateOnly, nil
}

// ParseDecimal converts a string to a decimal.Decimal value.
func ParseDecimal(value string) (decimal.Decimal, error) {
	// Remove any whitespace and check for empty strings
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero, errors.New("empty decimal string")
	}

	// Convert string to decimal
	dec, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, err
	}

	return dec, nil
}

// DocumentLock obtains a short redis lock guarding a posting operation
// (e.g. "GrnPost:42"). Best-effort double-submit guard only; row locks
// inside the transaction remain the correctness mechanism. Returns a nil
// lock when redis is not configured. Callers release the lock when the
// operation finishes:
//
//	lock, err := utils.DocumentLock(ctx, key, moduleName, "PostGrn")
//	if err != nil { return err }
//	if lock != nil { defer lock.Release(ctx) }
func DocumentLock(ctx context.Context, lockKey string, moduleName string, functionName string) (*redislock.Lock, error) {
	logger := config.GetLogger()
	locker := config.GetRedisLock()
	if locker == nil {
		return nil, nil
	}
	lock, err := locker.Obtain(ctx, lockKey, 30*time.Second, nil)
	if err == redislock.ErrNotObtained {
		return nil, ConflictErrorf("another request is already processing %s", lockKey)
	} else if err != nil {
		config.LogError(logger, moduleName, functionName, "Error obtaining lock", lockKey, err)
		return nil, err
	}
	return lock, nil
}
