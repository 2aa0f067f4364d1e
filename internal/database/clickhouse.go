package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/guregu/null"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"co2-monitor/internal/models"
)

const readingColumns = `id, timestamp, co2_position1_ppm, co2_position2_ppm, co2_position3_ppm,
	co2_reduced_ppm_interval, efficiency_percentage, co2_reduced_kg`

type ClickHouseGateway struct {
	conn driver.Conn
	log  *slog.Logger
}

// ClickHouseOptions holds the connection settings
type ClickHouseOptions struct {
	Addr     string
	Database string
	Username string
	Password string
}

// NewClickHouseGateway creates a new ClickHouse connection and ensures the schema exists
func NewClickHouseGateway(ctx context.Context, opts ClickHouseOptions, logger *slog.Logger) (*ClickHouseGateway, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{opts.Addr},
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.Username,
			Password: opts.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to ClickHouse")
	}

	if err := conn.Ping(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to ping ClickHouse")
	}

	logger = logger.With("component", "clickhouse")
	logger.Info("connected", "addr", opts.Addr, "database", opts.Database)

	g := &ClickHouseGateway{conn: conn, log: logger}
	if err := g.InitSchema(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to initialize schema")
	}

	return g, nil
}

// InitSchema creates the necessary tables if they don't exist
func (g *ClickHouseGateway) InitSchema(ctx context.Context) error {
	for _, tableSQL := range AllTables() {
		if err := g.conn.Exec(ctx, tableSQL); err != nil {
			return errors.Wrap(err, "failed to create table")
		}
	}

	g.log.Info("schema initialized")
	return nil
}

// LatestReading returns the most recent reading, nil if none stored
func (g *ClickHouseGateway) LatestReading(ctx context.Context) (*models.Reading, error) {
	query := `SELECT ` + readingColumns + `
		FROM co2_data FINAL
		ORDER BY timestamp DESC
		LIMIT 1`

	readings, err := g.queryReadings(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query latest reading")
	}
	if len(readings) == 0 {
		return nil, nil
	}
	return &readings[0], nil
}

// ReadingsInRange returns readings with timestamp in [from, to]
func (g *ClickHouseGateway) ReadingsInRange(ctx context.Context, from, to time.Time, ascending bool, limit int) ([]models.Reading, error) {
	order := "DESC"
	if ascending {
		order = "ASC"
	}

	query := fmt.Sprintf(`SELECT %s
		FROM co2_data FINAL
		WHERE timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp %s, id %s`, readingColumns, order, order)
	args := []any{from.UTC(), to.UTC()}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	readings, err := g.queryReadings(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query readings in range")
	}
	return readings, nil
}

func (g *ClickHouseGateway) queryReadings(ctx context.Context, query string, args ...any) ([]models.Reading, error) {
	rows, err := g.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readings []models.Reading
	for rows.Next() {
		var (
			id                     uint64
			ts                     time.Time
			p1, p2, p3, reduced, e *float64
			kg                     *decimal.Decimal
		)
		if err := rows.Scan(&id, &ts, &p1, &p2, &p3, &reduced, &e, &kg); err != nil {
			return nil, errors.Wrap(err, "failed to scan reading")
		}
		readings = append(readings, models.Reading{
			ID:                   int64(id),
			Timestamp:            ts,
			Position1:            null.FloatFromPtr(p1),
			Position2:            null.FloatFromPtr(p2),
			Position3:            null.FloatFromPtr(p3),
			ReducedPPMInterval:   null.FloatFromPtr(reduced),
			EfficiencyPercentage: null.FloatFromPtr(e),
			ReducedKg:            nullDecimalFromPtr(kg),
		})
	}
	return readings, rows.Err()
}

// EfficiencySeries returns daily average efficiency and reduced ppm
func (g *ClickHouseGateway) EfficiencySeries(ctx context.Context, fromDate, toDate, tz string) ([]models.DailyAggregatePoint, error) {
	query := `
		SELECT
			toString(toDate(timestamp, ?)) AS d,
			avg(efficiency_percentage) AS avg_efficiency,
			avg(co2_reduced_ppm_interval) AS avg_reduced_ppm_day
		FROM co2_data FINAL
		WHERE toDate(timestamp, ?) BETWEEN toDate(?) AND toDate(?)
		GROUP BY d
		ORDER BY d
	`

	rows, err := g.conn.Query(ctx, query, tz, tz, fromDate, toDate)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query efficiency series")
	}
	defer rows.Close()

	var points []models.DailyAggregatePoint
	for rows.Next() {
		var (
			d        string
			eff, ppm *float64
		)
		if err := rows.Scan(&d, &eff, &ppm); err != nil {
			return nil, errors.Wrap(err, "failed to scan efficiency point")
		}
		points = append(points, models.DailyAggregatePoint{
			Date:          d,
			AvgEfficiency: null.FloatFromPtr(eff),
			AvgReducedPPM: null.FloatFromPtr(ppm),
		})
	}
	return points, rows.Err()
}

// DailyKgRange returns kilograms reduced per day
func (g *ClickHouseGateway) DailyKgRange(ctx context.Context, fromDate, toDate, tz string) ([]models.DailyKg, error) {
	query := `
		SELECT
			toString(toDate(timestamp, ?)) AS log_date,
			toDecimal128(sum(ifNull(co2_reduced_kg, toDecimal64(0, 8))), 8) AS total_kg
		FROM co2_data FINAL
		WHERE toDate(timestamp, ?) BETWEEN toDate(?) AND toDate(?)
		GROUP BY log_date
		ORDER BY log_date
	`

	rows, err := g.conn.Query(ctx, query, tz, tz, fromDate, toDate)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query daily kg range")
	}
	defer rows.Close()

	var days []models.DailyKg
	for rows.Next() {
		var day models.DailyKg
		if err := rows.Scan(&day.Date, &day.TotalKg); err != nil {
			return nil, errors.Wrap(err, "failed to scan daily kg")
		}
		days = append(days, day)
	}
	return days, rows.Err()
}

// TodaySummary returns today's positional averages in tz
func (g *ClickHouseGateway) TodaySummary(ctx context.Context, tz string) (models.TodaySummary, error) {
	query := `
		SELECT
			avg(co2_position1_ppm),
			avg(co2_position2_ppm),
			avg(co2_position3_ppm),
			avg(co2_reduced_ppm_interval),
			avg(efficiency_percentage),
			toDecimal128(sum(ifNull(co2_reduced_kg, toDecimal64(0, 8))), 8)
		FROM co2_data FINAL
		WHERE toDate(timestamp, ?) = toDate(now(), ?)
	`

	var (
		p1, p2, p3, reduced, eff *float64
		kg                       decimal.Decimal
	)
	row := g.conn.QueryRow(ctx, query, tz, tz)
	if err := row.Scan(&p1, &p2, &p3, &reduced, &eff, &kg); err != nil {
		return models.TodaySummary{}, errors.Wrap(err, "failed to query today summary")
	}

	return models.TodaySummary{
		AvgPosition1:  null.FloatFromPtr(p1),
		AvgPosition2:  null.FloatFromPtr(p2),
		AvgPosition3:  null.FloatFromPtr(p3),
		AvgPPMReduced: null.FloatFromPtr(reduced),
		AvgEfficiency: null.FloatFromPtr(eff),
		TodayKg:       kg,
	}, nil
}

// DayTotalKg returns kilograms reduced on date in tz
func (g *ClickHouseGateway) DayTotalKg(ctx context.Context, date, tz string) (decimal.Decimal, error) {
	query := `
		SELECT toDecimal128(sum(ifNull(co2_reduced_kg, toDecimal64(0, 8))), 8)
		FROM co2_data FINAL
		WHERE toDate(timestamp, ?) = toDate(?)
	`

	var kg decimal.Decimal
	if err := g.conn.QueryRow(ctx, query, tz, date).Scan(&kg); err != nil {
		return decimal.Zero, errors.Wrapf(err, "failed to query total kg for %s", date)
	}
	return kg, nil
}

// HourlyCo2Snapshot returns hourly positional averages in [start, end]
func (g *ClickHouseGateway) HourlyCo2Snapshot(ctx context.Context, start, end time.Time) ([]models.HourlyCo2, error) {
	query := `
		SELECT
			toStartOfHour(timestamp) AS log_time,
			avg(co2_position1_ppm),
			avg(co2_position2_ppm),
			avg(co2_position3_ppm)
		FROM co2_data FINAL
		WHERE timestamp >= ? AND timestamp <= ?
		GROUP BY log_time
		ORDER BY log_time
	`

	rows, err := g.conn.Query(ctx, query, start.UTC(), end.UTC())
	if err != nil {
		return nil, errors.Wrap(err, "failed to query hourly co2 snapshot")
	}
	defer rows.Close()

	var snapshots []models.HourlyCo2
	for rows.Next() {
		var (
			logTime    time.Time
			p1, p2, p3 *float64
		)
		if err := rows.Scan(&logTime, &p1, &p2, &p3); err != nil {
			return nil, errors.Wrap(err, "failed to scan hourly co2 snapshot")
		}
		snapshots = append(snapshots, models.HourlyCo2{
			LogTime: logTime,
			Pos1:    null.FloatFromPtr(p1),
			Pos2:    null.FloatFromPtr(p2),
			Pos3:    null.FloatFromPtr(p3),
		})
	}
	return snapshots, rows.Err()
}

// HourlyPhSnapshot returns hourly pH averages in [start, end]
func (g *ClickHouseGateway) HourlyPhSnapshot(ctx context.Context, start, end time.Time) ([]models.HourlyPh, error) {
	query := `
		SELECT
			toStartOfHour(timestamp) AS log_time,
			avg(ph_wolffia),
			avg(ph_shells)
		FROM environment_data
		WHERE timestamp >= ? AND timestamp <= ?
		GROUP BY log_time
		ORDER BY log_time
	`

	rows, err := g.conn.Query(ctx, query, start.UTC(), end.UTC())
	if err != nil {
		return nil, errors.Wrap(err, "failed to query hourly ph snapshot")
	}
	defer rows.Close()

	var snapshots []models.HourlyPh
	for rows.Next() {
		var (
			logTime        time.Time
			wolffia, shell *float64
		)
		if err := rows.Scan(&logTime, &wolffia, &shell); err != nil {
			return nil, errors.Wrap(err, "failed to scan hourly ph snapshot")
		}
		snapshots = append(snapshots, models.HourlyPh{
			LogTime:   logTime,
			PhWolffia: null.FloatFromPtr(wolffia),
			PhShells:  null.FloatFromPtr(shell),
		})
	}
	return snapshots, rows.Err()
}

// EnvironmentInRange returns environment rows in [start, end], ascending
func (g *ClickHouseGateway) EnvironmentInRange(ctx context.Context, start, end time.Time) ([]models.EnvironmentReading, error) {
	query := `
		SELECT id, timestamp, ph_wolffia, ph_shells, energy_used_kwh
		FROM environment_data
		WHERE timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp, id
	`

	rows, err := g.conn.Query(ctx, query, start.UTC(), end.UTC())
	if err != nil {
		return nil, errors.Wrap(err, "failed to query environment readings")
	}
	defer rows.Close()

	var readings []models.EnvironmentReading
	for rows.Next() {
		var (
			id                    uint64
			ts                    time.Time
			wolffia, shell, power *float64
		)
		if err := rows.Scan(&id, &ts, &wolffia, &shell, &power); err != nil {
			return nil, errors.Wrap(err, "failed to scan environment reading")
		}
		readings = append(readings, models.EnvironmentReading{
			ID:            int64(id),
			Timestamp:     ts,
			PhWolffia:     null.FloatFromPtr(wolffia),
			PhShells:      null.FloatFromPtr(shell),
			EnergyUsedKwh: null.FloatFromPtr(power),
		})
	}
	return readings, rows.Err()
}

// ReadingSpan returns the first and last timestamps in table
func (g *ClickHouseGateway) ReadingSpan(ctx context.Context, table string) (time.Time, time.Time, bool, error) {
	if err := checkTable(table); err != nil {
		return time.Time{}, time.Time{}, false, err
	}

	query := fmt.Sprintf(`SELECT min(timestamp), max(timestamp), count() FROM %s`, table)

	var (
		first, last time.Time
		count       uint64
	)
	if err := g.conn.QueryRow(ctx, query).Scan(&first, &last, &count); err != nil {
		return time.Time{}, time.Time{}, false, errors.Wrapf(err, "failed to query span of %s", table)
	}
	if count == 0 {
		return time.Time{}, time.Time{}, false, nil
	}
	return first, last, true, nil
}

// SaveReading inserts a reading; a later insert with the same id replaces it
func (g *ClickHouseGateway) SaveReading(ctx context.Context, r *models.Reading) error {
	query := `
		INSERT INTO co2_data (id, timestamp, co2_position1_ppm, co2_position2_ppm, co2_position3_ppm,
			co2_reduced_ppm_interval, efficiency_percentage, co2_reduced_kg)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	err := g.conn.Exec(ctx, query,
		uint64(r.ID),
		r.Timestamp.UTC(),
		r.Position1.Ptr(),
		r.Position2.Ptr(),
		r.Position3.Ptr(),
		r.ReducedPPMInterval.Ptr(),
		r.EfficiencyPercentage.Ptr(),
		nullDecimalPtr(r.ReducedKg),
	)
	if err != nil {
		return errors.Wrap(err, "failed to insert reading")
	}
	return nil
}

// SaveEnvironment inserts an environment reading
func (g *ClickHouseGateway) SaveEnvironment(ctx context.Context, r *models.EnvironmentReading) error {
	query := `
		INSERT INTO environment_data (id, timestamp, ph_wolffia, ph_shells, energy_used_kwh)
		VALUES (?, ?, ?, ?, ?)
	`

	err := g.conn.Exec(ctx, query,
		uint64(r.ID),
		r.Timestamp.UTC(),
		r.PhWolffia.Ptr(),
		r.PhShells.Ptr(),
		r.EnergyUsedKwh.Ptr(),
	)
	if err != nil {
		return errors.Wrap(err, "failed to insert environment reading")
	}
	return nil
}

// Close closes the ClickHouse connection
func (g *ClickHouseGateway) Close() error {
	if g.conn != nil {
		if err := g.conn.Close(); err != nil {
			return errors.Wrap(err, "failed to close ClickHouse connection")
		}
		g.log.Info("connection closed")
	}
	return nil
}

func nullDecimalFromPtr(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func nullDecimalPtr(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	return &d.Decimal
}
