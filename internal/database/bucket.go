package database

import (
	"sort"
	"time"

	"github.com/guregu/null"
	"github.com/shopspring/decimal"

	"co2-monitor/internal/models"
)

// mean accumulates the average of the valid values it is fed
type mean struct {
	sum   float64
	count int
}

func (m *mean) add(v null.Float) {
	if v.Valid {
		m.sum += v.Float64
		m.count++
	}
}

func (m mean) value() null.Float {
	if m.count == 0 {
		return null.Float{}
	}
	return null.FloatFrom(m.sum / float64(m.count))
}

// dailyEfficiency groups readings by calendar day in loc
func dailyEfficiency(readings []models.Reading, loc *time.Location) []models.DailyAggregatePoint {
	type day struct{ eff, ppm mean }
	days := map[string]*day{}

	for _, r := range readings {
		key := r.Timestamp.In(loc).Format(DateLayout)
		d, ok := days[key]
		if !ok {
			d = &day{}
			days[key] = d
		}
		d.eff.add(r.EfficiencyPercentage)
		d.ppm.add(r.ReducedPPMInterval)
	}

	points := make([]models.DailyAggregatePoint, 0, len(days))
	for key, d := range days {
		points = append(points, models.DailyAggregatePoint{
			Date:          key,
			AvgEfficiency: d.eff.value(),
			AvgReducedPPM: d.ppm.value(),
		})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date < points[j].Date })
	return points
}

// dailyKg sums reduced kilograms by calendar day in loc
func dailyKg(readings []models.Reading, loc *time.Location) []models.DailyKg {
	totals := map[string]decimal.Decimal{}
	for _, r := range readings {
		key := r.Timestamp.In(loc).Format(DateLayout)
		total := totals[key]
		if r.ReducedKg.Valid {
			total = total.Add(r.ReducedKg.Decimal)
		}
		totals[key] = total
	}

	days := make([]models.DailyKg, 0, len(totals))
	for key, total := range totals {
		days = append(days, models.DailyKg{Date: key, TotalKg: total})
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })
	return days
}

func summarize(readings []models.Reading) models.TodaySummary {
	var p1, p2, p3, reduced, eff mean
	kg := decimal.Zero
	for _, r := range readings {
		p1.add(r.Position1)
		p2.add(r.Position2)
		p3.add(r.Position3)
		reduced.add(r.ReducedPPMInterval)
		eff.add(r.EfficiencyPercentage)
		if r.ReducedKg.Valid {
			kg = kg.Add(r.ReducedKg.Decimal)
		}
	}
	return models.TodaySummary{
		AvgPosition1:  p1.value(),
		AvgPosition2:  p2.value(),
		AvgPosition3:  p3.value(),
		AvgPPMReduced: reduced.value(),
		AvgEfficiency: eff.value(),
		TodayKg:       kg,
	}
}

// hourlyCo2 averages positions per hour; input must be ascending
func hourlyCo2(readings []models.Reading) []models.HourlyCo2 {
	var (
		out        []models.HourlyCo2
		hour       time.Time
		p1, p2, p3 mean
	)
	flush := func() {
		if !hour.IsZero() {
			out = append(out, models.HourlyCo2{LogTime: hour, Pos1: p1.value(), Pos2: p2.value(), Pos3: p3.value()})
		}
	}
	for _, r := range readings {
		h := r.Timestamp.UTC().Truncate(time.Hour)
		if !h.Equal(hour) {
			flush()
			hour, p1, p2, p3 = h, mean{}, mean{}, mean{}
		}
		p1.add(r.Position1)
		p2.add(r.Position2)
		p3.add(r.Position3)
	}
	flush()
	return out
}

// hourlyPh averages pH per hour; input must be ascending
func hourlyPh(readings []models.EnvironmentReading) []models.HourlyPh {
	var (
		out            []models.HourlyPh
		hour           time.Time
		wolffia, shell mean
	)
	flush := func() {
		if !hour.IsZero() {
			out = append(out, models.HourlyPh{LogTime: hour, PhWolffia: wolffia.value(), PhShells: shell.value()})
		}
	}
	for _, r := range readings {
		h := r.Timestamp.UTC().Truncate(time.Hour)
		if !h.Equal(hour) {
			flush()
			hour, wolffia, shell = h, mean{}, mean{}
		}
		wolffia.add(r.PhWolffia)
		shell.add(r.PhShells)
	}
	flush()
	return out
}
