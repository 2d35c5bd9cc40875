package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NumberSeries holds one counter row per (series_key, date_key). The row
// lock taken in NextDocumentNumber is the only concurrency guard for
// document numbering.
type NumberSeries struct {
	ID        int       `gorm:"primary_key" json:"id"`
	SeriesKey string    `gorm:"size:20;not null;uniqueIndex:idx_number_series_key_date" json:"series_key"`
	DateKey   string    `gorm:"size:8;not null;uniqueIndex:idx_number_series_key_date" json:"date_key"`
	NextSeq   int       `gorm:"not null;default:1" json:"next_seq"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (NumberSeries) TableName() string { return "inv_number_series" }

const mysqlErrDuplicateEntry = 1062

// FormatDocumentNumber renders e.g. ("GRN", "20250825", 7) -> "GRN202508250007".
// Sequences past 9999 simply widen.
func FormatDocumentNumber(seriesKey string, dateKey string, seq int) string {
	return fmt.Sprintf("%s%s%04d", seriesKey, dateKey, seq)
}

// NextDocumentNumber issues the next number for (seriesKey, docDate) inside
// the caller's transaction. The counter row is fetched under SELECT ... FOR
// UPDATE; when two callers race to create the first row of the day, the
// loser hits the unique index and retries the locked fetch once.
func NextDocumentNumber(ctx context.Context, tx *gorm.DB, seriesKey string, docDate time.Time) (string, error) {

	dateKey := docDate.Format("20060102")

	series, err := fetchSeriesRowForUpdate(ctx, tx, seriesKey, dateKey)
	if err == gorm.ErrRecordNotFound {
		created := NumberSeries{SeriesKey: seriesKey, DateKey: dateKey, NextSeq: 1}
		if createErr := tx.WithContext(ctx).Create(&created).Error; createErr != nil {
			var mysqlErr *mysql.MySQLError
			if errors.As(createErr, &mysqlErr) && mysqlErr.Number == mysqlErrDuplicateEntry {
				// lost the first-insert race; the winner's row exists now
				series, err = fetchSeriesRowForUpdate(ctx, tx, seriesKey, dateKey)
				if err != nil {
					return "", err
				}
			} else {
				return "", createErr
			}
		} else {
			series = &created
		}
	} else if err != nil {
		return "", err
	}

	seq := series.NextSeq
	if err := tx.WithContext(ctx).Model(series).UpdateColumn("NextSeq", seq+1).Error; err != nil {
		return "", err
	}

	return FormatDocumentNumber(seriesKey, dateKey, seq), nil
}

func fetchSeriesRowForUpdate(ctx context.Context, tx *gorm.DB, seriesKey string, dateKey string) (*NumberSeries, error) {
	var series NumberSeries
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("series_key = ? AND date_key = ?", seriesKey, dateKey).
		First(&series).Error
	if err != nil {
		return nil, err
	}
	return &series, nil
}
