package series

import (
	"time"

	"github.com/guregu/null"

	"co2-monitor/internal/models"
)

// DenseSeries is a calendar-complete daily series ready for charting.
// Efficiency and Reduced are indexed like Labels; a missing day is null.
type DenseSeries struct {
	Labels     []string     `json:"labels"`
	Efficiency []null.Float `json:"efficiency"`
	Reduced    []null.Float `json:"reduced"`

	OverallAvg        float64 `json:"overall_avg"`
	AvgReducedOverall float64 `json:"avg_reduced_overall"`
	Max               float64 `json:"max"`
	MaxDay            string  `json:"max_day"`
	Min               float64 `json:"min"`
	MinDay            string  `json:"min_day"`
}

// BuildDenseSeries fills every day of [from, to] in loc from the sparse
// points. Values are rounded to two decimals; statistics are computed over
// the efficiency series and default to zero when it has no values.
func BuildDenseSeries(points []models.DailyAggregatePoint, from, to time.Time, loc *time.Location) DenseSeries {
	byDate := make(map[string]models.DailyAggregatePoint, len(points))
	for _, p := range points {
		byDate[p.Date] = p
	}

	days := Days(from, to, loc)
	out := DenseSeries{
		Labels:     make([]string, 0, len(days)),
		Efficiency: make([]null.Float, 0, len(days)),
		Reduced:    make([]null.Float, 0, len(days)),
	}

	var (
		effSum, redSum     float64
		effCount, redCount int
		haveExtremes       bool
	)
	for _, day := range days {
		label := day.Format(DayLabelLayout)
		p, ok := byDate[day.Format(DateLayout)]

		eff := roundNull(p.AvgEfficiency, ok)
		red := roundNull(p.AvgReducedPPM, ok)
		out.Labels = append(out.Labels, label)
		out.Efficiency = append(out.Efficiency, eff)
		out.Reduced = append(out.Reduced, red)

		if red.Valid {
			redSum += red.Float64
			redCount++
		}
		if !eff.Valid {
			continue
		}
		effSum += eff.Float64
		effCount++

		switch {
		case !haveExtremes:
			out.Max, out.MaxDay = eff.Float64, label
			out.Min, out.MinDay = eff.Float64, label
			haveExtremes = true
		case eff.Float64 > out.Max:
			out.Max, out.MaxDay = eff.Float64, label
		case eff.Float64 < out.Min:
			out.Min, out.MinDay = eff.Float64, label
		}
	}

	if effCount > 0 {
		out.OverallAvg = round2(effSum / float64(effCount))
	}
	if redCount > 0 {
		out.AvgReducedOverall = round2(redSum / float64(redCount))
	}
	return out
}

func roundNull(v null.Float, present bool) null.Float {
	if !present || !v.Valid {
		return null.Float{}
	}
	return null.FloatFrom(round2(v.Float64))
}
