package services

import (
	"context"
	"testing"
	"time"

	"github.com/guregu/null"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"co2-monitor/internal/lastupdate"
	"co2-monitor/internal/live"
	"co2-monitor/internal/models"
)

type fixture struct {
	gw          *fakeGateway
	bus         *live.Bus
	broadcaster *lastupdate.Broadcaster
	svc         *DashboardService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	gw := newFakeGateway()
	bus := live.NewBus(nil, discardLogger())
	b := lastupdate.New()
	svc := NewDashboardService(gw, bus, b, DefaultDashboardServiceConfig(), discardLogger())
	svc.Start()
	t.Cleanup(svc.Stop)

	return &fixture{gw: gw, bus: bus, broadcaster: b, svc: svc}
}

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestEfficiencySeriesIsCachedPerView(t *testing.T) {
	f := newFixture(t)
	f.gw.points = []models.DailyAggregatePoint{
		{Date: "2025-01-02", AvgEfficiency: null.FloatFrom(55.555), AvgReducedPPM: null.FloatFrom(3)},
	}
	ctx := context.Background()

	s := f.svc.EfficiencySeries(ctx, date("2025-01-01"), date("2025-01-03"))
	assert.Equal(t, []string{"01/01", "02/01", "03/01"}, s.Labels)
	assert.Equal(t, null.FloatFrom(55.56), s.Efficiency[1])
	assert.Equal(t, "2025-01-01", f.gw.lastFromDate)
	assert.Equal(t, "2025-01-03", f.gw.lastToDate)
	assert.Equal(t, "UTC", f.gw.lastTZ)

	f.svc.EfficiencySeries(ctx, date("2025-01-01"), date("2025-01-03"))
	assert.Equal(t, 1, f.gw.count("efficiency"))

	f.svc.ReductionSeries(ctx, date("2025-01-01"), date("2025-01-03"))
	assert.Equal(t, 2, f.gw.count("efficiency"))
}

func TestEfficiencySeriesSwapsReversedRange(t *testing.T) {
	f := newFixture(t)

	s := f.svc.EfficiencySeries(context.Background(), date("2025-01-05"), date("2025-01-01"))
	assert.Len(t, s.Labels, 5)
	assert.Equal(t, "2025-01-01", f.gw.lastFromDate)
}

func TestGatewayFailureLooksLikeNoData(t *testing.T) {
	f := newFixture(t)
	f.gw.fail(errors.New("timeout"))
	ctx := context.Background()

	s := f.svc.EfficiencySeries(ctx, date("2025-01-01"), date("2025-01-02"))
	assert.Len(t, s.Labels, 2)
	assert.False(t, s.Efficiency[0].Valid)
	assert.Zero(t, s.OverallAvg)

	assert.Empty(t, f.svc.Window(ctx, date("2025-01-01"), date("2025-01-02")).Values)
	assert.Nil(t, f.svc.Latest(ctx))
	assert.True(t, f.svc.TotalKgInRange(ctx, date("2025-01-01"), date("2025-01-02")).IsZero())
	assert.Empty(t, f.svc.History(ctx, models.HistoryQuery{From: date("2025-01-01"), To: date("2025-01-02")}).Rows)
	assert.Equal(t, models.TrendFlat, f.svc.TodayOverview(ctx).Trend.Direction)
	assert.NotNil(t, f.svc.HourlyCo2(ctx, date("2025-01-01"), date("2025-01-01")))
	assert.NotNil(t, f.svc.Energy(ctx, date("2025-01-01"), date("2025-01-02")).Values)
	_, _, ok := f.svc.DataSpan(ctx, "co2_data")
	assert.False(t, ok)

	// failures are not cached
	f.gw.fail(nil)
	f.gw.points = []models.DailyAggregatePoint{{Date: "2025-01-01", AvgEfficiency: null.FloatFrom(10)}}
	s = f.svc.EfficiencySeries(ctx, date("2025-01-01"), date("2025-01-02"))
	assert.Equal(t, 10.0, s.OverallAvg)
}

func TestRowChangeInvalidatesAndBroadcasts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var seen []null.Time
	f.broadcaster.OnChange(func(v null.Time) { seen = append(seen, v) })

	f.svc.EfficiencySeries(ctx, date("2025-01-01"), date("2025-01-03"))
	assert.Equal(t, 1, f.gw.count("efficiency"))

	ts := time.Date(2025, 1, 3, 10, 0, 0, 0, time.UTC)
	f.bus.Dispatch(models.ChangeEvent{Type: models.ChangeUpdate, Record: models.Reading{ID: 9, Timestamp: ts}})

	require.Len(t, seen, 2)
	assert.Equal(t, null.TimeFrom(ts), seen[1])
	assert.Equal(t, null.TimeFrom(ts), f.svc.LastUpdate())

	f.svc.EfficiencySeries(ctx, date("2025-01-01"), date("2025-01-03"))
	assert.Equal(t, 2, f.gw.count("efficiency"))
}

func TestStopUnsubscribes(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, 1, f.bus.Subscribers())

	f.svc.Stop()
	f.svc.Stop()
	assert.Zero(t, f.bus.Subscribers())
}

func TestLatestFeedsBroadcaster(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.Nil(t, f.svc.Latest(ctx))
	assert.False(t, f.broadcaster.Get().Valid)

	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	f.gw.readings = []models.Reading{{ID: 1, Timestamp: ts}}

	r := f.svc.Latest(ctx)
	require.NotNil(t, r)
	assert.Equal(t, null.TimeFrom(ts), f.broadcaster.Get())
}

func TestWindowClampsAndLabels(t *testing.T) {
	f := newFixture(t)
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	f.gw.readings = []models.Reading{
		{ID: 1, Timestamp: from.Add(time.Hour), ReducedPPMInterval: null.FloatFrom(-4)},
		{ID: 2, Timestamp: from.Add(36 * time.Hour), ReducedPPMInterval: null.FloatFrom(4)},
	}

	w := f.svc.Window(context.Background(), from, from.Add(48*time.Hour))
	assert.Equal(t, []string{"01:00"}, w.Labels)
	assert.Equal(t, []null.Float{null.FloatFrom(-4)}, w.Values)
}

func TestEnergyIsCachedUntilRowChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	f.gw.env = []models.EnvironmentReading{
		{ID: 1, Timestamp: from.Add(time.Hour), EnergyUsedKwh: null.FloatFrom(2.5)},
		{ID: 2, Timestamp: from.Add(2 * time.Hour), PhShells: null.FloatFrom(6.8)},
		{ID: 3, Timestamp: from.Add(30 * time.Hour), EnergyUsedKwh: null.FloatFrom(9)},
	}

	e := f.svc.Energy(ctx, from, from.Add(48*time.Hour))
	assert.Equal(t, []string{"01:00"}, e.Labels)
	assert.Equal(t, []null.Float{null.FloatFrom(2.5)}, e.Values)
	require.NotNil(t, e.Latest)
	assert.Equal(t, int64(1), e.Latest.ID)

	f.svc.Energy(ctx, from, from.Add(48*time.Hour))
	assert.Equal(t, 1, f.gw.count("environment"))

	f.bus.Dispatch(models.ChangeEvent{Type: models.ChangeInsert, Record: models.Reading{ID: 4, Timestamp: from}})
	f.svc.Energy(ctx, from, from.Add(48*time.Hour))
	assert.Equal(t, 2, f.gw.count("environment"))
}

func TestTodayOverview(t *testing.T) {
	f := newFixture(t)
	f.svc.now = func() time.Time { return time.Date(2025, 1, 2, 9, 0, 0, 0, time.UTC) }
	f.gw.summary = models.TodaySummary{AvgEfficiency: null.FloatFrom(40)}
	f.gw.dayKg["2025-01-02"] = decimal.RequireFromString("1.5")
	f.gw.dayKg["2025-01-01"] = decimal.RequireFromString("1.2")

	o := f.svc.TodayOverview(context.Background())
	assert.Equal(t, 40.0, o.Summary.AvgEfficiency.Float64)
	assert.Equal(t, "1.5", o.Trend.TodayKg.String())
	assert.Equal(t, 25.0, o.Trend.DiffPercent)
	assert.Equal(t, models.TrendUp, o.Trend.Direction)
}

func TestKgTrend(t *testing.T) {
	tests := []struct {
		today, yesterday string
		diff             float64
		direction        string
	}{
		{"2", "1", 100, models.TrendUp},
		{"1", "4", -75, models.TrendDown},
		{"1", "1", 0, models.TrendFlat},
		{"5", "0", 0, models.TrendFlat},
		{"0.00000003", "0.00000009", -66.67, models.TrendDown},
	}
	for _, tt := range tests {
		t.Run(tt.today+"/"+tt.yesterday, func(t *testing.T) {
			trend := KgTrend(decimal.RequireFromString(tt.today), decimal.RequireFromString(tt.yesterday))
			assert.Equal(t, tt.diff, trend.DiffPercent)
			assert.Equal(t, tt.direction, trend.Direction)
		})
	}
}

func TestTotalKgInRangeIsExact(t *testing.T) {
	f := newFixture(t)
	f.gw.kgDays = []models.DailyKg{
		{Date: "2025-01-01", TotalKg: decimal.RequireFromString("0.1")},
		{Date: "2025-01-02", TotalKg: decimal.Zero},
		{Date: "2025-01-03", TotalKg: decimal.RequireFromString("0.2")},
	}

	total := f.svc.TotalKgInRange(context.Background(), date("2025-01-01"), date("2025-01-03"))
	assert.Equal(t, "0.3", total.String())
}

func TestHistory(t *testing.T) {
	f := newFixture(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	f.gw.readings = []models.Reading{
		{ID: 1, Timestamp: base, EfficiencyPercentage: null.FloatFrom(10), ReducedPPMInterval: null.FloatFrom(1)},
		{ID: 2, Timestamp: base.Add(time.Hour), EfficiencyPercentage: null.FloatFrom(20)},
		{ID: 3, Timestamp: base.Add(2 * time.Hour), EfficiencyPercentage: null.FloatFrom(33.333)},
	}
	ctx := context.Background()

	res := f.svc.History(ctx, models.HistoryQuery{From: base, To: base.Add(3 * time.Hour), Sort: models.SortDateDesc})
	require.Len(t, res.Rows, 3)
	assert.Equal(t, int64(3), res.Rows[0].ID)
	assert.Equal(t, 21.11, res.AvgEfficiency)
	assert.Equal(t, 1.0, res.AvgReducedPPM)

	res = f.svc.History(ctx, models.HistoryQuery{From: base, To: base.Add(3 * time.Hour), Sort: models.SortDateDesc, Search: "33.3"})
	require.Len(t, res.Rows, 1)
	assert.Equal(t, 33.33, res.AvgEfficiency)
	assert.Zero(t, res.AvgReducedPPM)
	assert.Equal(t, 1, f.gw.count("range"), "search is applied to the cached rows")

	res = f.svc.History(ctx, models.HistoryQuery{From: base, To: base.Add(3 * time.Hour), Sort: models.SortDateAsc, Limit: 1})
	require.Len(t, res.Rows, 1)
	assert.Equal(t, int64(1), res.Rows[0].ID)
}

func TestDataSpan(t *testing.T) {
	f := newFixture(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	f.gw.readings = []models.Reading{{ID: 1, Timestamp: base}, {ID: 2, Timestamp: base.Add(time.Hour)}}

	first, last, ok := f.svc.DataSpan(context.Background(), "co2_data")
	require.True(t, ok)
	assert.Equal(t, base, first)
	assert.Equal(t, base.Add(time.Hour), last)
}
