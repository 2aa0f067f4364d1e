package database

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"co2-monitor/internal/models"
)

// Table names understood by ReadingSpan
const (
	TableCo2         = "co2_data"
	TableEnvironment = "environment_data"
)

// DateLayout is the ISO calendar date format used for day keys
const DateLayout = "2006-01-02"

// ErrUnknownTable is returned for a table name outside the schema
var ErrUnknownTable = errors.New("unknown table")

// Gateway is the remote data surface the dashboard reads from.
// Date arguments are ISO calendar days (YYYY-MM-DD) interpreted in tz.
type Gateway interface {
	// LatestReading returns the most recent co2_data row, or nil when the table is empty
	LatestReading(ctx context.Context) (*models.Reading, error)

	// ReadingsInRange returns rows with from <= timestamp <= to; limit <= 0 means no limit
	ReadingsInRange(ctx context.Context, from, to time.Time, ascending bool, limit int) ([]models.Reading, error)

	// EfficiencySeries returns one point per day that has readings
	EfficiencySeries(ctx context.Context, fromDate, toDate, tz string) ([]models.DailyAggregatePoint, error)

	// DailyKgRange returns kilograms reduced per day that has readings
	DailyKgRange(ctx context.Context, fromDate, toDate, tz string) ([]models.DailyKg, error)

	// TodaySummary returns averages and the kg total for the current day in tz
	TodaySummary(ctx context.Context, tz string) (models.TodaySummary, error)

	// DayTotalKg returns kilograms reduced on one day
	DayTotalKg(ctx context.Context, date, tz string) (decimal.Decimal, error)

	HourlyCo2Snapshot(ctx context.Context, start, end time.Time) ([]models.HourlyCo2, error)
	HourlyPhSnapshot(ctx context.Context, start, end time.Time) ([]models.HourlyPh, error)

	// EnvironmentInRange returns environment_data rows with start <= timestamp <= end, ascending
	EnvironmentInRange(ctx context.Context, start, end time.Time) ([]models.EnvironmentReading, error)

	// ReadingSpan returns the first and last timestamps stored in table
	ReadingSpan(ctx context.Context, table string) (first, last time.Time, ok bool, err error)

	SaveReading(ctx context.Context, reading *models.Reading) error
	SaveEnvironment(ctx context.Context, reading *models.EnvironmentReading) error

	Close() error
}

func checkTable(table string) error {
	switch table {
	case TableCo2, TableEnvironment:
		return nil
	}
	return errors.Wrapf(ErrUnknownTable, "table %q", table)
}

// dayBounds returns [start of fromDate, start of the day after toDate) in loc
func dayBounds(fromDate, toDate string, loc *time.Location) (time.Time, time.Time, error) {
	from, err := time.ParseInLocation(DateLayout, fromDate, loc)
	if err != nil {
		return time.Time{}, time.Time{}, errors.Wrapf(err, "invalid from date %q", fromDate)
	}
	to, err := time.ParseInLocation(DateLayout, toDate, loc)
	if err != nil {
		return time.Time{}, time.Time{}, errors.Wrapf(err, "invalid to date %q", toDate)
	}
	y, m, d := to.Date()
	return from, time.Date(y, m, d+1, 0, 0, 0, 0, loc), nil
}
