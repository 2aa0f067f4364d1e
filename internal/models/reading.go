package models

import (
	"time"

	"github.com/guregu/null"
	"github.com/shopspring/decimal"
)

// Reading is one row of the co2_data table
type Reading struct {
	ID                   int64               `json:"id"`
	Timestamp            time.Time           `json:"timestamp"`
	Position1            null.Float          `json:"co2_position1_ppm"`
	Position2            null.Float          `json:"co2_position2_ppm"`
	Position3            null.Float          `json:"co2_position3_ppm"`
	ReducedPPMInterval   null.Float          `json:"co2_reduced_ppm_interval"`
	EfficiencyPercentage null.Float          `json:"efficiency_percentage"` // percentage points 0-100
	ReducedKg            decimal.NullDecimal `json:"co2_reduced_kg"`
}

// EnvironmentReading is one row of the environment_data table
type EnvironmentReading struct {
	ID            int64      `json:"id"`
	Timestamp     time.Time  `json:"timestamp"`
	PhWolffia     null.Float `json:"ph_wolffia"`
	PhShells      null.Float `json:"ph_shells"`
	EnergyUsedKwh null.Float `json:"energy_used_kwh"`
}

// DailyAggregatePoint is one per-day aggregate in the reporting time zone
type DailyAggregatePoint struct {
	Date          string     `json:"d"` // YYYY-MM-DD
	AvgEfficiency null.Float `json:"avg_efficiency"`
	AvgReducedPPM null.Float `json:"avg_reduced_ppm_day"`
}

// DailyKg is the kilograms of CO2 reduced on one calendar day
type DailyKg struct {
	Date    string          `json:"log_date"`
	TotalKg decimal.Decimal `json:"total_kg"`
}

// TodaySummary holds today's positional averages and totals
type TodaySummary struct {
	AvgPosition1  null.Float      `json:"avg_position1"`
	AvgPosition2  null.Float      `json:"avg_position2"`
	AvgPosition3  null.Float      `json:"avg_position3"`
	AvgPPMReduced null.Float      `json:"avg_ppm_reduced"`
	AvgEfficiency null.Float      `json:"avg_efficiency"`
	TodayKg       decimal.Decimal `json:"today_kg"`
}

// HourlyCo2 is one hourly CO2 snapshot
type HourlyCo2 struct {
	LogTime time.Time  `json:"log_time"`
	Pos1    null.Float `json:"pos1"`
	Pos2    null.Float `json:"pos2"`
	Pos3    null.Float `json:"pos3"`
}

// HourlyPh is one hourly pH snapshot
type HourlyPh struct {
	LogTime   time.Time  `json:"log_time"`
	PhWolffia null.Float `json:"ph_wolffia"`
	PhShells  null.Float `json:"ph_shells"`
}

// Trend directions for KgTrend
const (
	TrendUp   = "up"
	TrendDown = "down"
	TrendFlat = "flat"
)

// KgTrend compares today's reduced kilograms against yesterday's
type KgTrend struct {
	TodayKg     decimal.Decimal `json:"today_kg"`
	YesterdayKg decimal.Decimal `json:"yesterday_kg"`
	DiffPercent float64         `json:"diff_percent"`
	Direction   string          `json:"direction"`
}

// TodayOverview is the summary card: today's averages plus the kg trend
type TodayOverview struct {
	Summary TodaySummary `json:"summary"`
	Trend   KgTrend      `json:"trend"`
}

// Change event types delivered by the notification channel
const (
	ChangeInsert = "INSERT"
	ChangeUpdate = "UPDATE"
)

// ChangeEvent is a row change notification for the co2_data table
type ChangeEvent struct {
	Type            string    `json:"type"`
	Table           string    `json:"table"`
	Record          Reading   `json:"record"`
	CommitTimestamp time.Time `json:"commit_timestamp"`
}
