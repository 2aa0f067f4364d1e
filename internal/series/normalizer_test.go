package series

import (
	"testing"
	"time"

	"github.com/guregu/null"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"co2-monitor/internal/models"
)

func day(s string) time.Time {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		panic(err)
	}
	return t
}

func point(date string, eff float64) models.DailyAggregatePoint {
	return models.DailyAggregatePoint{Date: date, AvgEfficiency: null.FloatFrom(eff), AvgReducedPPM: null.FloatFrom(eff / 10)}
}

func TestBuildDenseSeriesLength(t *testing.T) {
	tests := []struct {
		name     string
		from, to string
		want     int
	}{
		{"single day", "2025-01-01", "2025-01-01", 1},
		{"one week", "2025-01-01", "2025-01-07", 7},
		{"month boundary", "2025-01-30", "2025-02-02", 4},
		{"leap day", "2024-02-28", "2024-03-01", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := BuildDenseSeries(nil, day(tt.from), day(tt.to), time.UTC)
			assert.Len(t, s.Labels, tt.want)
			assert.Len(t, s.Efficiency, tt.want)
			assert.Len(t, s.Reduced, tt.want)
		})
	}
}

func TestBuildDenseSeriesGapsAndRounding(t *testing.T) {
	points := []models.DailyAggregatePoint{
		{Date: "2025-01-01", AvgEfficiency: null.FloatFrom(33.3333), AvgReducedPPM: null.FloatFrom(1.005001)},
		{Date: "2025-01-03", AvgEfficiency: null.FloatFrom(66.666), AvgReducedPPM: null.Float{}},
	}

	s := BuildDenseSeries(points, day("2025-01-01"), day("2025-01-03"), time.UTC)

	assert.Equal(t, []string{"01/01", "02/01", "03/01"}, s.Labels)
	assert.Equal(t, []null.Float{null.FloatFrom(33.33), {}, null.FloatFrom(66.67)}, s.Efficiency)
	assert.Equal(t, []null.Float{null.FloatFrom(1.01), {}, {}}, s.Reduced)
	assert.Equal(t, 50.0, s.OverallAvg)
	assert.Equal(t, 1.01, s.AvgReducedOverall)
	assert.Equal(t, 66.67, s.Max)
	assert.Equal(t, "03/01", s.MaxDay)
	assert.Equal(t, 33.33, s.Min)
	assert.Equal(t, "01/01", s.MinDay)
}

func TestBuildDenseSeriesTieBreak(t *testing.T) {
	points := []models.DailyAggregatePoint{
		point("2025-01-01", 50),
		point("2025-01-02", 70),
		point("2025-01-03", 70),
		point("2025-01-04", 60),
	}

	s := BuildDenseSeries(points, day("2025-01-01"), day("2025-01-04"), time.UTC)

	assert.Equal(t, 70.0, s.Max)
	assert.Equal(t, "02/01", s.MaxDay)
	assert.Equal(t, 50.0, s.Min)
	assert.Equal(t, "01/01", s.MinDay)
	assert.Equal(t, 62.5, s.OverallAvg)
}

func TestBuildDenseSeriesMinTieBreak(t *testing.T) {
	points := []models.DailyAggregatePoint{
		point("2025-01-01", 80),
		point("2025-01-02", 40),
		point("2025-01-03", 40),
	}

	s := BuildDenseSeries(points, day("2025-01-01"), day("2025-01-03"), time.UTC)
	assert.Equal(t, "02/01", s.MinDay)
	assert.Equal(t, "01/01", s.MaxDay)
}

func TestBuildDenseSeriesEmpty(t *testing.T) {
	s := BuildDenseSeries(nil, day("2025-01-01"), day("2025-01-05"), time.UTC)

	require.Len(t, s.Efficiency, 5)
	for i := range s.Efficiency {
		assert.False(t, s.Efficiency[i].Valid)
		assert.False(t, s.Reduced[i].Valid)
	}
	assert.Zero(t, s.OverallAvg)
	assert.Zero(t, s.AvgReducedOverall)
	assert.Zero(t, s.Max)
	assert.Empty(t, s.MaxDay)
	assert.Zero(t, s.Min)
	assert.Empty(t, s.MinDay)
}

func TestBuildDenseSeriesIgnoresOutOfRangeAndDuplicates(t *testing.T) {
	points := []models.DailyAggregatePoint{
		point("2024-12-31", 99),
		point("2025-01-01", 10),
		point("2025-01-01", 20),
	}

	s := BuildDenseSeries(points, day("2025-01-01"), day("2025-01-01"), time.UTC)
	assert.Equal(t, []null.Float{null.FloatFrom(20)}, s.Efficiency)
	assert.Equal(t, 20.0, s.Max)
}

func TestBuildDenseSeriesIdempotent(t *testing.T) {
	points := []models.DailyAggregatePoint{point("2025-01-02", 12.345678)}
	a := BuildDenseSeries(points, day("2025-01-01"), day("2025-01-03"), time.UTC)
	b := BuildDenseSeries(points, day("2025-01-01"), day("2025-01-03"), time.UTC)
	assert.Equal(t, a, b)
}

func TestBuildDenseSeriesTimeOfDayIgnored(t *testing.T) {
	bangkok, err := time.LoadLocation("Asia/Bangkok")
	if err != nil {
		t.Skip("tzdata unavailable")
	}

	// 18:00Z on Jan 1 is Jan 2 in Bangkok
	from := time.Date(2025, 1, 1, 18, 0, 0, 0, time.UTC)
	to := time.Date(2025, 1, 3, 23, 59, 0, 0, bangkok)
	s := BuildDenseSeries([]models.DailyAggregatePoint{point("2025-01-02", 42)}, from, to, bangkok)

	assert.Equal(t, []string{"02/01", "03/01"}, s.Labels)
	assert.Equal(t, 42.0, s.Efficiency[0].Float64)
}

func TestDaysAcrossDST(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skip("tzdata unavailable")
	}

	days := Days(time.Date(2025, 3, 29, 12, 0, 0, 0, berlin), time.Date(2025, 3, 31, 1, 0, 0, 0, berlin), berlin)
	require.Len(t, days, 3)
	for _, d := range days {
		assert.Equal(t, 0, d.Hour())
	}
	assert.Equal(t, 30, days[1].Day())
}

func TestOrderRange(t *testing.T) {
	a, b := day("2025-01-05"), day("2025-01-01")
	from, to := OrderRange(a, b)
	assert.Equal(t, b, from)
	assert.Equal(t, a, to)

	from, to = OrderRange(b, a)
	assert.Equal(t, b, from)
	assert.Equal(t, a, to)
}
