package series

import (
	"time"

	"github.com/guregu/null"

	"co2-monitor/internal/models"
)

// EnergySeries is the energy panel: one entry per environment sample
// carrying an energy reading, plus the newest such sample
type EnergySeries struct {
	Labels []string                   `json:"labels"`
	Values []null.Float               `json:"values"`
	Latest *models.EnvironmentReading `json:"latest"`
}

// BuildEnergySeries labels the rows with an energy reading in loc. Rows
// must be ascending.
func BuildEnergySeries(rows []models.EnvironmentReading, loc *time.Location) EnergySeries {
	if loc == nil {
		loc = time.UTC
	}
	out := EnergySeries{Labels: []string{}, Values: []null.Float{}}
	for i := range rows {
		r := rows[i]
		if !r.EnergyUsedKwh.Valid {
			continue
		}
		out.Labels = append(out.Labels, r.Timestamp.In(loc).Format(TimeLabelLayout))
		out.Values = append(out.Values, r.EnergyUsedKwh)
		out.Latest = &r
	}
	return out
}
