package series

import (
	"context"
	"log/slog"
	"time"

	"github.com/guregu/null"

	"co2-monitor/internal/models"
)

const (
	// MaxWindow is the longest span a window fetch covers
	MaxWindow = 24 * time.Hour
	// WindowNudge is how far NudgeWindow pushes a non-positive window end
	WindowNudge = 10 * time.Minute
)

// ReadingSource is the slice of the gateway the window fetcher reads from
type ReadingSource interface {
	ReadingsInRange(ctx context.Context, from, to time.Time, ascending bool, limit int) ([]models.Reading, error)
}

// WindowSeries has one entry per stored sample, without gap filling
type WindowSeries struct {
	Labels []string     `json:"labels"`
	Values []null.Float `json:"values"`
}

type WindowFetcher struct {
	source ReadingSource
	loc    *time.Location
	log    *slog.Logger
}

// NewWindowFetcher labels samples in loc (time.UTC when nil)
func NewWindowFetcher(source ReadingSource, loc *time.Location, logger *slog.Logger) *WindowFetcher {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WindowFetcher{
		source: source,
		loc:    loc,
		log:    logger.With("component", "window"),
	}
}

// ClampWindow limits to to at most MaxWindow after from
func ClampWindow(from, to time.Time) time.Time {
	if limit := from.Add(MaxWindow); to.After(limit) {
		return limit
	}
	return to
}

// NudgeWindow moves to forward when the window is empty or reversed.
// Callers apply it before FetchWindow.
func NudgeWindow(from, to time.Time) time.Time {
	if !to.After(from) {
		return from.Add(WindowNudge)
	}
	return to
}

// FetchWindow returns the reduced-ppm samples stored between from and
// to (clamped to MaxWindow), ascending. A failed read yields an empty series.
func (f *WindowFetcher) FetchWindow(ctx context.Context, from, to time.Time) WindowSeries {
	w, err := f.Fetch(ctx, from, to)
	if err != nil {
		f.log.Warn("window fetch failed", "from", from, "to", to, "error", err)
	}
	return w
}

// Fetch is FetchWindow with the gateway error returned, for callers that
// must not cache a failed read. The series is empty on error.
func (f *WindowFetcher) Fetch(ctx context.Context, from, to time.Time) (WindowSeries, error) {
	to = ClampWindow(from, to)
	out := WindowSeries{Labels: []string{}, Values: []null.Float{}}

	readings, err := f.source.ReadingsInRange(ctx, from, to, true, 0)
	if err != nil {
		return out, err
	}

	for _, r := range readings {
		out.Labels = append(out.Labels, r.Timestamp.In(f.loc).Format(TimeLabelLayout))
		out.Values = append(out.Values, r.ReducedPPMInterval)
	}
	return out, nil
}
