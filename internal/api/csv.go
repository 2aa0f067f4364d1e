package api

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/guregu/null"
	"github.com/pkg/errors"

	"co2-monitor/internal/models"
	"co2-monitor/internal/series"
)

const (
	csvDateLayout = "02/01/2006"
	csvTimeLayout = "15:04"
)

var historyCSVHeader = []string{
	"Date",
	"Time",
	"Position1(ppm)",
	"Position2(ppm)",
	"Position3(ppm)",
	"CO2 Reduced (ppm)",
	"Efficiency (%)",
	"Avg CO2 Reduced (ppm) [row]",
}

// writeHistoryCSV writes one line per reading, date and time in loc.
// Efficiency is written in percentage points as stored. Missing values
// are blank cells.
func writeHistoryCSV(w io.Writer, rows []models.Reading, loc *time.Location) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(historyCSVHeader); err != nil {
		return errors.Wrap(err, "failed to write csv header")
	}

	for _, r := range rows {
		ts := r.Timestamp.In(loc)
		record := []string{
			ts.Format(csvDateLayout),
			ts.Format(csvTimeLayout),
			csvNumber(r.Position1),
			csvNumber(r.Position2),
			csvNumber(r.Position3),
			csvNumber(r.ReducedPPMInterval),
			csvNumber(r.EfficiencyPercentage),
			csvNumber(series.RowAverage(r)),
		}
		if err := cw.Write(record); err != nil {
			return errors.Wrapf(err, "failed to write csv row %d", r.ID)
		}
	}

	cw.Flush()
	return errors.Wrap(cw.Error(), "failed to flush csv")
}

func csvNumber(v null.Float) string {
	if !v.Valid {
		return ""
	}
	return strconv.FormatFloat(v.Float64, 'f', 2, 64)
}
