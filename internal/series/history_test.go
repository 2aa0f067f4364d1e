package series

import (
	"testing"
	"time"

	"github.com/guregu/null"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"co2-monitor/internal/models"
)

func historyRows() []models.Reading {
	ts := time.Date(2025, 10, 17, 8, 30, 0, 0, time.UTC)
	return []models.Reading{
		{
			ID: 1, Timestamp: ts,
			Position1: null.FloatFrom(410), Position2: null.FloatFrom(420), Position3: null.FloatFrom(431),
			ReducedPPMInterval: null.FloatFrom(12.5), EfficiencyPercentage: null.FloatFrom(55),
			ReducedKg: decimal.NullDecimal{Decimal: decimal.RequireFromString("0.00012345"), Valid: true},
		},
		{
			ID: 2, Timestamp: ts.Add(24 * time.Hour),
			Position1:            null.FloatFrom(500),
			EfficiencyPercentage: null.FloatFrom(60.333),
		},
	}
}

func TestFilterReadings(t *testing.T) {
	rows := historyRows()

	tests := []struct {
		search string
		want   []int64
	}{
		{"", []int64{1, 2}},
		{"   ", []int64{1, 2}},
		{"12.5", []int64{1}},
		{"2025-10-18", []int64{2}},
		{"T08:30", []int64{1, 2}},
		{"0.00012345", []int64{1}},
		{"420 431", []int64{1}},
		{"nothing", nil},
	}
	for _, tt := range tests {
		t.Run(tt.search, func(t *testing.T) {
			var got []int64
			for _, r := range FilterReadings(rows, tt.search) {
				got = append(got, r.ID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSummarize(t *testing.T) {
	res := Summarize(historyRows())
	assert.Equal(t, 57.67, res.AvgEfficiency)
	assert.Equal(t, 12.5, res.AvgReducedPPM)
	assert.Len(t, res.Rows, 2)

	empty := Summarize(nil)
	assert.Zero(t, empty.AvgEfficiency)
	assert.Zero(t, empty.AvgReducedPPM)
	assert.NotNil(t, empty.Rows)
}

func TestRowAverage(t *testing.T) {
	rows := historyRows()
	assert.Equal(t, null.FloatFrom(420.33), RowAverage(rows[0]))
	assert.False(t, RowAverage(rows[1]).Valid)
}
