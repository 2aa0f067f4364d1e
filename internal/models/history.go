package models

import "time"

// History sort orders
const (
	SortDateAsc  = "date_asc"
	SortDateDesc = "date_desc"
)

// HistoryQuery selects raw readings for the history view
type HistoryQuery struct {
	From   time.Time
	To     time.Time
	Sort   string
	Search string
	Limit  int
}

// HistoryResult is the filtered rows plus their averages
type HistoryResult struct {
	Rows          []Reading `json:"rows"`
	AvgEfficiency float64   `json:"avg_efficiency"`
	AvgReducedPPM float64   `json:"avg_reduced_ppm"`
}
