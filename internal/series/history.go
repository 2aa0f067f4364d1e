package series

import (
	"strconv"
	"strings"
	"time"

	"github.com/guregu/null"

	"co2-monitor/internal/models"
)

// FilterReadings keeps the rows whose rendered fields contain search,
// case-insensitively. A blank search keeps every row.
func FilterReadings(rows []models.Reading, search string) []models.Reading {
	s := strings.ToLower(strings.TrimSpace(search))
	if s == "" {
		return rows
	}

	out := make([]models.Reading, 0, len(rows))
	for _, r := range rows {
		if strings.Contains(searchText(r), s) {
			out = append(out, r)
		}
	}
	return out
}

func searchText(r models.Reading) string {
	kg := ""
	if r.ReducedKg.Valid {
		kg = r.ReducedKg.Decimal.String()
	}
	parts := []string{
		r.Timestamp.UTC().Format(time.RFC3339),
		formatNull(r.Position1),
		formatNull(r.Position2),
		formatNull(r.Position3),
		formatNull(r.ReducedPPMInterval),
		formatNull(r.EfficiencyPercentage),
		kg,
	}
	return strings.ToLower(strings.Join(parts, " "))
}

func formatNull(v null.Float) string {
	if !v.Valid {
		return ""
	}
	return strconv.FormatFloat(v.Float64, 'f', -1, 64)
}

// Summarize averages efficiency and reduced ppm over rows, rounded to two
// decimals and zero when no row has a value.
func Summarize(rows []models.Reading) models.HistoryResult {
	var effSum, redSum float64
	var effCount, redCount int
	for _, r := range rows {
		if r.EfficiencyPercentage.Valid {
			effSum += r.EfficiencyPercentage.Float64
			effCount++
		}
		if r.ReducedPPMInterval.Valid {
			redSum += r.ReducedPPMInterval.Float64
			redCount++
		}
	}

	res := models.HistoryResult{Rows: rows}
	if res.Rows == nil {
		res.Rows = []models.Reading{}
	}
	if effCount > 0 {
		res.AvgEfficiency = round2(effSum / float64(effCount))
	}
	if redCount > 0 {
		res.AvgReducedPPM = round2(redSum / float64(redCount))
	}
	return res
}

// RowAverage is the mean of the three positions, or null unless all are set
func RowAverage(r models.Reading) null.Float {
	if !r.Position1.Valid || !r.Position2.Valid || !r.Position3.Valid {
		return null.Float{}
	}
	return null.FloatFrom(round2((r.Position1.Float64 + r.Position2.Float64 + r.Position3.Float64) / 3))
}
