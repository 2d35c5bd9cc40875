package models

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/hims_backend/utils"
	"github.com/google/uuid"
)

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

var paymentTermsDaysPattern = regexp.MustCompile(`\d+`)

// parsePaymentTermsDays pulls the credit period out of free-text payment
// terms: the first integer in the string, so "Net 30", "30 days" and
// "credit 30d" all mean 30. Returns 0 when the text carries no number.
func parsePaymentTermsDays(terms string) int {
	match := paymentTermsDaysPattern.FindString(terms)
	if match == "" {
		return 0
	}
	days, err := strconv.Atoi(match)
	if err != nil {
		return 0
	}
	return days
}

// calculateDueDate derives an invoice due date from the document terms,
// preferring the purchase order's terms over the supplier default. A nil
// result means neither source named a credit period.
func calculateDueDate(invoiceDate time.Time, poPaymentTerms string, supplierPaymentTerms string) *time.Time {
	days := parsePaymentTermsDays(poPaymentTerms)
	if days == 0 {
		days = parsePaymentTermsDays(supplierPaymentTerms)
	}
	if days == 0 {
		return nil
	}
	dueDate := invoiceDate.AddDate(0, 0, days)
	return &dueDate
}

// ParseDateString interprets "2006-01-02T15:04:05" wall-clock input in the
// given timezone and normalizes it to UTC for storage.
func ParseDateString(dateString string, timezone string) (time.Time, error) {

	localTime, err := time.Parse("2006-01-02T15:04:05", dateString)
	if err != nil {
		fmt.Println("Error parsing date:", err)
		return time.Time{}, err
	}

	if timezone == "" {
		timezone = "Asia/Kolkata"
	}

	location, err := time.LoadLocation(timezone)
	if err != nil {
		fmt.Println("Error loading location:", err)
		return time.Time{}, err
	}

	localTimeInZone := time.Date(
		localTime.Year(), localTime.Month(), localTime.Day(),
		localTime.Hour(), localTime.Minute(), localTime.Second(), localTime.Nanosecond(),
		location,
	)

	return localTimeInZone.UTC(), nil
}

// todayDate returns midnight of the current day in the pharmacy timezone.
// Expiry comparisons treat a batch expiring today as still saleable.
func todayDate() time.Time {
	today, err := utils.ConvertToDate(time.Now(), "")
	if err != nil {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}
	return today
}
