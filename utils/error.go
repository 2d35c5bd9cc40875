package utils

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var ErrorRecordNotFound = errors.New("record not found")

func ErrorPanic(err error) {
	if err != nil {
		panic(err)
	}
}

// ErrorKind classifies service-layer failures so callers can map them to
// response codes without matching on message text. Every kind aborts the
// enclosing transaction; none are retried automatically.
type ErrorKind string

const (
	ErrorKindValidation        ErrorKind = "VALIDATION"
	ErrorKindNotFound          ErrorKind = "NOT_FOUND"
	ErrorKindConflict          ErrorKind = "CONFLICT"
	ErrorKindInsufficientStock ErrorKind = "INSUFFICIENT_STOCK"
	ErrorKindOverpayment       ErrorKind = "OVERPAYMENT"
)

type AppError struct {
	Kind    ErrorKind
	Message string
}

func (e *AppError) Error() string { return e.Message }

func ValidationErrorf(format string, args ...any) error {
	return &AppError{Kind: ErrorKindValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFoundErrorf(format string, args ...any) error {
	return &AppError{Kind: ErrorKindNotFound, Message: fmt.Sprintf(format, args...)}
}

func ConflictErrorf(format string, args ...any) error {
	return &AppError{Kind: ErrorKindConflict, Message: fmt.Sprintf(format, args...)}
}

func InsufficientStockErrorf(format string, args ...any) error {
	return &AppError{Kind: ErrorKindInsufficientStock, Message: fmt.Sprintf(format, args...)}
}

func OverpaymentErrorf(format string, args ...any) error {
	return &AppError{Kind: ErrorKindOverpayment, Message: fmt.Sprintf(format, args...)}
}

// ErrorKindOf returns the kind of a service error, or "" for unclassified
// (infrastructure) errors. Raw gorm not-found errors count as NOT_FOUND so
// lookups bubbled up without wrapping still map correctly.
func ErrorKindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, ErrorRecordNotFound) {
		return ErrorKindNotFound
	}
	return ""
}

func IsErrorKind(err error, kind ErrorKind) bool {
	return ErrorKindOf(err) == kind
}
