package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"co2-monitor/internal/models"
)

const sqliteReadingColumns = `id, timestamp_ms, co2_position1_ppm, co2_position2_ppm, co2_position3_ppm,
	co2_reduced_ppm_interval, efficiency_percentage, co2_reduced_kg`

// SQLiteGateway implements Gateway on a local SQLite file. Daily and hourly
// aggregation happens in Go because SQLite has no time zone support.
type SQLiteGateway struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex

	// now is overridden by tests
	now func() time.Time
}

// NewSQLiteGateway creates a new SQLite gateway; call Initialize before use
func NewSQLiteGateway(dbPath string) *SQLiteGateway {
	return &SQLiteGateway{
		dbPath: dbPath,
		now:    time.Now,
	}
}

// Initialize opens the database file and creates tables
func (s *SQLiteGateway) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "failed to create database directory")
	}

	db, err := sql.Open("sqlite3", s.dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	s.db = db

	if _, err := s.db.Exec(sqliteSchema); err != nil {
		return errors.Wrap(err, "failed to create schema")
	}

	return nil
}

func (s *SQLiteGateway) LatestReading(ctx context.Context) (*models.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + sqliteReadingColumns + ` FROM co2_data ORDER BY timestamp_ms DESC, id DESC LIMIT 1`
	readings, err := s.queryReadings(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query latest reading")
	}
	if len(readings) == 0 {
		return nil, nil
	}
	return &readings[0], nil
}

func (s *SQLiteGateway) ReadingsInRange(ctx context.Context, from, to time.Time, ascending bool, limit int) ([]models.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	readings, err := s.readingsInRange(ctx, from, to, ascending, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query readings in range")
	}
	return readings, nil
}

func (s *SQLiteGateway) readingsInRange(ctx context.Context, from, to time.Time, ascending bool, limit int) ([]models.Reading, error) {
	order := "DESC"
	if ascending {
		order = "ASC"
	}

	query := fmt.Sprintf(`SELECT %s FROM co2_data
		WHERE timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms %s, id %s`, sqliteReadingColumns, order, order)
	args := []any{from.UnixMilli(), to.UnixMilli()}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryReadings(ctx, query, args...)
}

// queryReadings scans rows of sqliteReadingColumns
func (s *SQLiteGateway) queryReadings(ctx context.Context, query string, args ...any) ([]models.Reading, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readings []models.Reading
	for rows.Next() {
		var (
			r  models.Reading
			ms int64
		)
		err := rows.Scan(&r.ID, &ms, &r.Position1, &r.Position2, &r.Position3,
			&r.ReducedPPMInterval, &r.EfficiencyPercentage, &r.ReducedKg)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan reading")
		}
		r.Timestamp = time.UnixMilli(ms).UTC()
		readings = append(readings, r)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating readings")
	}
	return readings, nil
}

func (s *SQLiteGateway) readingsForDays(ctx context.Context, fromDate, toDate, tz string) ([]models.Reading, *time.Location, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "unknown time zone %q", tz)
	}
	start, end, err := dayBounds(fromDate, toDate, loc)
	if err != nil {
		return nil, nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	readings, err := s.readingsInRange(ctx, start, end.Add(-time.Millisecond), true, 0)
	return readings, loc, err
}

func (s *SQLiteGateway) EfficiencySeries(ctx context.Context, fromDate, toDate, tz string) ([]models.DailyAggregatePoint, error) {
	readings, loc, err := s.readingsForDays(ctx, fromDate, toDate, tz)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query efficiency series")
	}
	return dailyEfficiency(readings, loc), nil
}

func (s *SQLiteGateway) DailyKgRange(ctx context.Context, fromDate, toDate, tz string) ([]models.DailyKg, error) {
	readings, loc, err := s.readingsForDays(ctx, fromDate, toDate, tz)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query daily kg range")
	}
	return dailyKg(readings, loc), nil
}

func (s *SQLiteGateway) TodaySummary(ctx context.Context, tz string) (models.TodaySummary, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return models.TodaySummary{}, errors.Wrapf(err, "unknown time zone %q", tz)
	}
	today := s.now().In(loc).Format(DateLayout)

	readings, _, err := s.readingsForDays(ctx, today, today, tz)
	if err != nil {
		return models.TodaySummary{}, errors.Wrap(err, "failed to query today summary")
	}
	return summarize(readings), nil
}

func (s *SQLiteGateway) DayTotalKg(ctx context.Context, date, tz string) (decimal.Decimal, error) {
	readings, _, err := s.readingsForDays(ctx, date, date, tz)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "failed to query total kg for %s", date)
	}
	return summarize(readings).TodayKg, nil
}

func (s *SQLiteGateway) HourlyCo2Snapshot(ctx context.Context, start, end time.Time) ([]models.HourlyCo2, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	readings, err := s.readingsInRange(ctx, start, end, true, 0)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query hourly co2 snapshot")
	}
	return hourlyCo2(readings), nil
}

func (s *SQLiteGateway) HourlyPhSnapshot(ctx context.Context, start, end time.Time) ([]models.HourlyPh, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	readings, err := s.environmentInRange(ctx, start, end)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query hourly ph snapshot")
	}
	return hourlyPh(readings), nil
}

// EnvironmentInRange returns environment rows with start <= timestamp <= end, ascending
func (s *SQLiteGateway) EnvironmentInRange(ctx context.Context, start, end time.Time) ([]models.EnvironmentReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	readings, err := s.environmentInRange(ctx, start, end)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query environment readings")
	}
	return readings, nil
}

func (s *SQLiteGateway) environmentInRange(ctx context.Context, start, end time.Time) ([]models.EnvironmentReading, error) {
	query := `SELECT id, timestamp_ms, ph_wolffia, ph_shells, energy_used_kwh FROM environment_data
		WHERE timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readings []models.EnvironmentReading
	for rows.Next() {
		var (
			r  models.EnvironmentReading
			ms int64
		)
		if err := rows.Scan(&r.ID, &ms, &r.PhWolffia, &r.PhShells, &r.EnergyUsedKwh); err != nil {
			return nil, errors.Wrap(err, "failed to scan environment reading")
		}
		r.Timestamp = time.UnixMilli(ms).UTC()
		readings = append(readings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating environment readings")
	}
	return readings, nil
}

func (s *SQLiteGateway) ReadingSpan(ctx context.Context, table string) (time.Time, time.Time, bool, error) {
	if err := checkTable(table); err != nil {
		return time.Time{}, time.Time{}, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var first, last sql.NullInt64
	query := fmt.Sprintf(`SELECT MIN(timestamp_ms), MAX(timestamp_ms) FROM %s`, table)
	if err := s.db.QueryRowContext(ctx, query).Scan(&first, &last); err != nil {
		return time.Time{}, time.Time{}, false, errors.Wrapf(err, "failed to query span of %s", table)
	}
	if !first.Valid || !last.Valid {
		return time.Time{}, time.Time{}, false, nil
	}
	return time.UnixMilli(first.Int64).UTC(), time.UnixMilli(last.Int64).UTC(), true, nil
}

// SaveReading inserts a reading or replaces the row with the same id
func (s *SQLiteGateway) SaveReading(ctx context.Context, r *models.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `INSERT OR REPLACE INTO co2_data (` + sqliteReadingColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	var kg any
	if r.ReducedKg.Valid {
		kg = r.ReducedKg.Decimal.String()
	}

	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.Timestamp.UnixMilli(),
		r.Position1, r.Position2, r.Position3,
		r.ReducedPPMInterval, r.EfficiencyPercentage, kg,
	)
	if err != nil {
		return errors.Wrap(err, "failed to insert reading")
	}
	return nil
}

func (s *SQLiteGateway) SaveEnvironment(ctx context.Context, r *models.EnvironmentReading) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `INSERT OR REPLACE INTO environment_data (id, timestamp_ms, ph_wolffia, ph_shells, energy_used_kwh)
		VALUES (?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query, r.ID, r.Timestamp.UnixMilli(), r.PhWolffia, r.PhShells, r.EnergyUsedKwh)
	if err != nil {
		return errors.Wrap(err, "failed to insert environment reading")
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteGateway) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

var (
	_ Gateway = (*SQLiteGateway)(nil)
	_ Gateway = (*ClickHouseGateway)(nil)
)
