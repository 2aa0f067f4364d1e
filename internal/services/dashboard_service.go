package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/guregu/null"
	"github.com/shopspring/decimal"

	"co2-monitor/internal/cache"
	"co2-monitor/internal/database"
	"co2-monitor/internal/lastupdate"
	"co2-monitor/internal/live"
	"co2-monitor/internal/metrics"
	"co2-monitor/internal/models"
	"co2-monitor/internal/series"
)

// DashboardService assembles the dashboard views from the gateway, caches
// them by query parameters and drops the cache on every row change.
// Gateway failures are logged and surface as empty results.
type DashboardService struct {
	gateway     database.Gateway
	bus         *live.Bus
	broadcaster *lastupdate.Broadcaster
	window      *series.WindowFetcher
	log         *slog.Logger

	reportLoc  *time.Location
	displayLoc *time.Location

	daily    *cache.Store[series.DenseSeries]
	windows  *cache.Store[series.WindowSeries]
	overview *cache.Store[models.TodayOverview]
	kg       *cache.Store[decimal.Decimal]
	history  *cache.Store[[]models.Reading]
	hourly   *cache.Store[[]models.HourlyCo2]
	ph       *cache.Store[[]models.HourlyPh]
	energy   *cache.Store[series.EnergySeries]

	invalidators []func(context.Context)
	unsubscribe  func()

	now func() time.Time
}

// DashboardServiceConfig holds configuration for dashboard service
type DashboardServiceConfig struct {
	ReportingLocation *time.Location // calendar days
	DisplayLocation   *time.Location // time-of-day labels
	CacheTTL          time.Duration

	// SharedCache returns the shared tier for one named cache; nil disables it
	SharedCache func(name string) cache.Backend
}

// DefaultDashboardServiceConfig returns default configuration
func DefaultDashboardServiceConfig() DashboardServiceConfig {
	return DashboardServiceConfig{
		ReportingLocation: time.UTC,
		DisplayLocation:   time.UTC,
		CacheTTL:          5 * time.Minute,
	}
}

// NewDashboardService creates a new dashboard service; call Start to
// follow row changes
func NewDashboardService(
	gateway database.Gateway,
	bus *live.Bus,
	broadcaster *lastupdate.Broadcaster,
	config DashboardServiceConfig,
	logger *slog.Logger,
) *DashboardService {
	if logger == nil {
		logger = slog.Default()
	}
	if config.ReportingLocation == nil {
		config.ReportingLocation = time.UTC
	}
	if config.DisplayLocation == nil {
		config.DisplayLocation = time.UTC
	}

	s := &DashboardService{
		gateway:     gateway,
		bus:         bus,
		broadcaster: broadcaster,
		window:      series.NewWindowFetcher(gateway, config.DisplayLocation, logger),
		log:         logger.With("component", "dashboard"),
		reportLoc:   config.ReportingLocation,
		displayLoc:  config.DisplayLocation,
		now:         time.Now,
	}

	s.daily = newStore[series.DenseSeries](s, "daily", config, logger)
	s.windows = newStore[series.WindowSeries](s, "window", config, logger)
	s.overview = newStore[models.TodayOverview](s, "overview", config, logger)
	s.kg = newStore[decimal.Decimal](s, "kg", config, logger)
	s.history = newStore[[]models.Reading](s, "history", config, logger)
	s.hourly = newStore[[]models.HourlyCo2](s, "hourly_co2", config, logger)
	s.ph = newStore[[]models.HourlyPh](s, "hourly_ph", config, logger)
	s.energy = newStore[series.EnergySeries](s, "energy", config, logger)
	return s
}

func newStore[V any](s *DashboardService, name string, config DashboardServiceConfig, logger *slog.Logger) *cache.Store[V] {
	opts := []cache.Option[V]{cache.WithLogger[V](logger)}
	if config.SharedCache != nil {
		if b := config.SharedCache(name); b != nil {
			opts = append(opts, cache.WithBackend[V](b))
		}
	}
	store := cache.NewStore[V](name, config.CacheTTL, opts...)
	s.invalidators = append(s.invalidators, store.InvalidateAll)
	return store
}

// Start subscribes to the live bus. Every inserted or updated row moves the
// last-update timestamp and drops every cached view.
func (s *DashboardService) Start() {
	if s.bus == nil || s.unsubscribe != nil {
		return
	}
	s.unsubscribe = s.bus.Subscribe(s.handleRowChange)
	s.log.Info("following row changes")
}

// Stop unsubscribes from the live bus
func (s *DashboardService) Stop() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}

func (s *DashboardService) handleRowChange(row models.Reading) {
	if !row.Timestamp.IsZero() && s.broadcaster != nil {
		s.broadcaster.Set(null.TimeFrom(row.Timestamp))
	}
	s.InvalidateAll(context.Background())
}

// InvalidateAll drops every cached view
func (s *DashboardService) InvalidateAll(ctx context.Context) {
	for _, invalidate := range s.invalidators {
		invalidate(ctx)
	}
}

// LastUpdate returns the newest observed reading timestamp
func (s *DashboardService) LastUpdate() null.Time {
	if s.broadcaster == nil {
		return null.Time{}
	}
	return s.broadcaster.Get()
}

// ReportingLocation is the zone calendar days are bucketed in
func (s *DashboardService) ReportingLocation() *time.Location {
	return s.reportLoc
}

// DisplayLocation is the zone time-of-day labels are rendered in
func (s *DashboardService) DisplayLocation() *time.Location {
	return s.displayLoc
}

// track records metrics for one gateway call and logs its failure
func track[T any](s *DashboardService, op string, call func() (T, error)) (T, error) {
	start := time.Now()
	v, err := call()
	metrics.GatewayLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())

	status := "ok"
	if err != nil {
		status = "error"
		s.log.Warn("gateway call failed", "operation", op, "error", err)
	}
	metrics.GatewayOperations.WithLabelValues(op, status).Inc()
	return v, err
}

func (s *DashboardService) dateRange(from, to time.Time) (time.Time, time.Time, string, string) {
	from, to = series.OrderRange(from, to)
	return from, to, series.ISODate(from, s.reportLoc), series.ISODate(to, s.reportLoc)
}

// EfficiencySeries is the efficiency panel: one point per day of [from, to]
func (s *DashboardService) EfficiencySeries(ctx context.Context, from, to time.Time) series.DenseSeries {
	return s.dailySeries(ctx, "efficiency", from, to)
}

// ReductionSeries is the trend panel; it reads the same aggregate as
// EfficiencySeries under its own cache key
func (s *DashboardService) ReductionSeries(ctx context.Context, from, to time.Time) series.DenseSeries {
	return s.dailySeries(ctx, "reduction", from, to)
}

func (s *DashboardService) dailySeries(ctx context.Context, view string, from, to time.Time) series.DenseSeries {
	from, to, fromDate, toDate := s.dateRange(from, to)
	key := fmt.Sprintf("%s:%s:%s", view, fromDate, toDate)

	dense, err := s.daily.Get(ctx, key, func(ctx context.Context) (series.DenseSeries, error) {
		points, err := track(s, "efficiency_series", func() ([]models.DailyAggregatePoint, error) {
			return s.gateway.EfficiencySeries(ctx, fromDate, toDate, s.reportLoc.String())
		})
		if err != nil {
			return series.DenseSeries{}, err
		}
		return series.BuildDenseSeries(points, from, to, s.reportLoc), nil
	})
	if err != nil {
		return series.BuildDenseSeries(nil, from, to, s.reportLoc)
	}
	return dense
}

// Window is the raw-sample series of at most 24 hours starting at from
func (s *DashboardService) Window(ctx context.Context, from, to time.Time) series.WindowSeries {
	to = series.ClampWindow(from, to)
	key := fmt.Sprintf("window:%d:%d", from.UnixMilli(), to.UnixMilli())

	w, err := s.windows.Get(ctx, key, func(ctx context.Context) (series.WindowSeries, error) {
		return track(s, "readings_in_range", func() (series.WindowSeries, error) {
			return s.window.Fetch(ctx, from, to)
		})
	})
	if err != nil {
		return series.WindowSeries{Labels: []string{}, Values: []null.Float{}}
	}
	return w
}

// Energy is the energy-used series of at most 24 hours starting at from
func (s *DashboardService) Energy(ctx context.Context, from, to time.Time) series.EnergySeries {
	to = series.ClampWindow(from, to)
	key := fmt.Sprintf("energy:%d:%d", from.UnixMilli(), to.UnixMilli())

	e, err := s.energy.Get(ctx, key, func(ctx context.Context) (series.EnergySeries, error) {
		rows, err := track(s, "environment_in_range", func() ([]models.EnvironmentReading, error) {
			return s.gateway.EnvironmentInRange(ctx, from, to)
		})
		if err != nil {
			return series.EnergySeries{}, err
		}
		return series.BuildEnergySeries(rows, s.displayLoc), nil
	})
	if err != nil {
		return series.BuildEnergySeries(nil, s.displayLoc)
	}
	return e
}

// Latest returns the newest reading, or nil when there is none or the
// gateway failed. A reading found here also moves the last-update timestamp.
func (s *DashboardService) Latest(ctx context.Context) *models.Reading {
	r, err := track(s, "latest_reading", func() (*models.Reading, error) {
		return s.gateway.LatestReading(ctx)
	})
	if err != nil || r == nil {
		return nil
	}
	if s.broadcaster != nil {
		s.broadcaster.Set(null.TimeFrom(r.Timestamp))
	}
	return r
}

// TodayOverview returns today's summary and the kg trend against yesterday
func (s *DashboardService) TodayOverview(ctx context.Context) models.TodayOverview {
	today := s.now().In(s.reportLoc)
	todayDate := today.Format(series.DateLayout)
	yesterdayDate := today.AddDate(0, 0, -1).Format(series.DateLayout)
	tz := s.reportLoc.String()

	overview, err := s.overview.Get(ctx, "today:"+todayDate, func(ctx context.Context) (models.TodayOverview, error) {
		summary, err := track(s, "today_summary", func() (models.TodaySummary, error) {
			return s.gateway.TodaySummary(ctx, tz)
		})
		if err != nil {
			return models.TodayOverview{}, err
		}
		todayKg, err := track(s, "day_total_kg", func() (decimal.Decimal, error) {
			return s.gateway.DayTotalKg(ctx, todayDate, tz)
		})
		if err != nil {
			return models.TodayOverview{}, err
		}
		yesterdayKg, err := track(s, "day_total_kg", func() (decimal.Decimal, error) {
			return s.gateway.DayTotalKg(ctx, yesterdayDate, tz)
		})
		if err != nil {
			return models.TodayOverview{}, err
		}
		return models.TodayOverview{Summary: summary, Trend: KgTrend(todayKg, yesterdayKg)}, nil
	})
	if err != nil {
		return models.TodayOverview{Trend: KgTrend(decimal.Zero, decimal.Zero)}
	}
	return overview
}

// KgTrend compares today against yesterday. Without a positive yesterday
// the trend is flat at 0%.
func KgTrend(today, yesterday decimal.Decimal) models.KgTrend {
	trend := models.KgTrend{TodayKg: today, YesterdayKg: yesterday, Direction: models.TrendFlat}
	if !yesterday.IsPositive() {
		return trend
	}

	diff, _ := today.Sub(yesterday).Div(yesterday).Mul(decimal.NewFromInt(100)).Float64()
	trend.DiffPercent = math.Round(diff*100) / 100
	switch {
	case trend.DiffPercent > 0:
		trend.Direction = models.TrendUp
	case trend.DiffPercent < 0:
		trend.Direction = models.TrendDown
	}
	return trend
}

// TotalKgInRange sums the kilograms reduced on every day of [from, to]
func (s *DashboardService) TotalKgInRange(ctx context.Context, from, to time.Time) decimal.Decimal {
	_, _, fromDate, toDate := s.dateRange(from, to)
	key := fmt.Sprintf("kg_range:%s:%s", fromDate, toDate)

	total, err := s.kg.Get(ctx, key, func(ctx context.Context) (decimal.Decimal, error) {
		days, err := track(s, "daily_kg_range", func() ([]models.DailyKg, error) {
			return s.gateway.DailyKgRange(ctx, fromDate, toDate, s.reportLoc.String())
		})
		if err != nil {
			return decimal.Zero, err
		}
		sum := decimal.Zero
		for _, d := range days {
			sum = sum.Add(d.TotalKg)
		}
		return sum, nil
	})
	if err != nil {
		return decimal.Zero
	}
	return total
}

// History returns raw readings in the range with the search applied on
// top and averages over the matching rows
func (s *DashboardService) History(ctx context.Context, q models.HistoryQuery) models.HistoryResult {
	from, to := series.OrderRange(q.From, q.To)
	ascending := q.Sort == models.SortDateAsc
	key := fmt.Sprintf("history:%d:%d:%t:%d", from.UnixMilli(), to.UnixMilli(), ascending, q.Limit)

	rows, err := s.history.Get(ctx, key, func(ctx context.Context) ([]models.Reading, error) {
		return track(s, "readings_in_range", func() ([]models.Reading, error) {
			return s.gateway.ReadingsInRange(ctx, from, to, ascending, q.Limit)
		})
	})
	if err != nil {
		rows = nil
	}
	return series.Summarize(series.FilterReadings(rows, q.Search))
}

// HourlyCo2 returns hourly position averages for the whole days from..to
func (s *DashboardService) HourlyCo2(ctx context.Context, from, to time.Time) []models.HourlyCo2 {
	start, end := s.hourRange(from, to)
	key := fmt.Sprintf("hourly_co2:%d:%d", start.UnixMilli(), end.UnixMilli())

	rows, err := s.hourly.Get(ctx, key, func(ctx context.Context) ([]models.HourlyCo2, error) {
		return track(s, "hourly_co2_snapshot", func() ([]models.HourlyCo2, error) {
			return s.gateway.HourlyCo2Snapshot(ctx, start, end)
		})
	})
	if err != nil || rows == nil {
		return []models.HourlyCo2{}
	}
	return rows
}

// HourlyPh returns hourly pH averages for the whole days from..to
func (s *DashboardService) HourlyPh(ctx context.Context, from, to time.Time) []models.HourlyPh {
	start, end := s.hourRange(from, to)
	key := fmt.Sprintf("hourly_ph:%d:%d", start.UnixMilli(), end.UnixMilli())

	rows, err := s.ph.Get(ctx, key, func(ctx context.Context) ([]models.HourlyPh, error) {
		return track(s, "hourly_ph_snapshot", func() ([]models.HourlyPh, error) {
			return s.gateway.HourlyPhSnapshot(ctx, start, end)
		})
	})
	if err != nil || rows == nil {
		return []models.HourlyPh{}
	}
	return rows
}

func (s *DashboardService) hourRange(from, to time.Time) (time.Time, time.Time) {
	from, to = series.OrderRange(from, to)
	return series.DayRange(from, to, s.displayLoc)
}

// DataSpan returns the first and last stored timestamps of table, the
// range behind "show all data". ok is false for an empty table or a failed read.
func (s *DashboardService) DataSpan(ctx context.Context, table string) (first, last time.Time, ok bool) {
	type span struct {
		first, last time.Time
		ok          bool
	}
	sp, err := track(s, "reading_span", func() (span, error) {
		f, l, ok, err := s.gateway.ReadingSpan(ctx, table)
		return span{f, l, ok}, err
	})
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	return sp.first, sp.last, sp.ok
}
