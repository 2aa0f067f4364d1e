package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"co2-monitor/internal/database"
	"co2-monitor/internal/models"
)

// fakeGateway is an in-memory database.Gateway that counts calls
type fakeGateway struct {
	mu sync.Mutex

	readings []models.Reading
	env      []models.EnvironmentReading
	points   []models.DailyAggregatePoint
	kgDays   []models.DailyKg
	dayKg    map[string]decimal.Decimal
	summary  models.TodaySummary
	hourly   []models.HourlyCo2

	err   error
	calls map[string]int

	lastFromDate, lastToDate, lastTZ string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{calls: map[string]int{}, dayKg: map[string]decimal.Decimal{}}
}

func (f *fakeGateway) record(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	return f.err
}

func (f *fakeGateway) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeGateway) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeGateway) LatestReading(context.Context) (*models.Reading, error) {
	if err := f.record("latest"); err != nil {
		return nil, err
	}
	if len(f.readings) == 0 {
		return nil, nil
	}
	r := f.readings[len(f.readings)-1]
	return &r, nil
}

func (f *fakeGateway) ReadingsInRange(_ context.Context, from, to time.Time, ascending bool, limit int) ([]models.Reading, error) {
	if err := f.record("range"); err != nil {
		return nil, err
	}
	var out []models.Reading
	for _, r := range f.readings {
		if !r.Timestamp.Before(from) && !r.Timestamp.After(to) {
			out = append(out, r)
		}
	}
	if !ascending {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeGateway) EfficiencySeries(_ context.Context, fromDate, toDate, tz string) ([]models.DailyAggregatePoint, error) {
	if err := f.record("efficiency"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.lastFromDate, f.lastToDate, f.lastTZ = fromDate, toDate, tz
	f.mu.Unlock()
	return f.points, nil
}

func (f *fakeGateway) DailyKgRange(context.Context, string, string, string) ([]models.DailyKg, error) {
	if err := f.record("kg_range"); err != nil {
		return nil, err
	}
	return f.kgDays, nil
}

func (f *fakeGateway) TodaySummary(context.Context, string) (models.TodaySummary, error) {
	if err := f.record("summary"); err != nil {
		return models.TodaySummary{}, err
	}
	return f.summary, nil
}

func (f *fakeGateway) DayTotalKg(_ context.Context, date, _ string) (decimal.Decimal, error) {
	if err := f.record("day_kg"); err != nil {
		return decimal.Zero, err
	}
	return f.dayKg[date], nil
}

func (f *fakeGateway) HourlyCo2Snapshot(context.Context, time.Time, time.Time) ([]models.HourlyCo2, error) {
	if err := f.record("hourly_co2"); err != nil {
		return nil, err
	}
	return f.hourly, nil
}

func (f *fakeGateway) HourlyPhSnapshot(context.Context, time.Time, time.Time) ([]models.HourlyPh, error) {
	if err := f.record("hourly_ph"); err != nil {
		return nil, err
	}
	return nil, nil
}

func (f *fakeGateway) EnvironmentInRange(_ context.Context, from, to time.Time) ([]models.EnvironmentReading, error) {
	if err := f.record("environment"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.EnvironmentReading
	for _, r := range f.env {
		if !r.Timestamp.Before(from) && !r.Timestamp.After(to) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeGateway) ReadingSpan(context.Context, string) (time.Time, time.Time, bool, error) {
	if err := f.record("span"); err != nil {
		return time.Time{}, time.Time{}, false, err
	}
	if len(f.readings) == 0 {
		return time.Time{}, time.Time{}, false, nil
	}
	return f.readings[0].Timestamp, f.readings[len(f.readings)-1].Timestamp, true, nil
}

func (f *fakeGateway) SaveReading(_ context.Context, r *models.Reading) error {
	if err := f.record("save"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readings = append(f.readings, *r)
	return nil
}

func (f *fakeGateway) SaveEnvironment(_ context.Context, r *models.EnvironmentReading) error {
	if err := f.record("save_env"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.env = append(f.env, *r)
	return nil
}

func (f *fakeGateway) Close() error { return nil }

var _ database.Gateway = (*fakeGateway)(nil)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
