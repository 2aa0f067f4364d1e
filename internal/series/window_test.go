package series

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/guregu/null"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"co2-monitor/internal/models"
)

type fakeSource struct {
	readings []models.Reading
	err      error

	gotFrom, gotTo time.Time
}

func (f *fakeSource) ReadingsInRange(_ context.Context, from, to time.Time, ascending bool, _ int) ([]models.Reading, error) {
	f.gotFrom, f.gotTo = from, to
	if f.err != nil {
		return nil, f.err
	}
	var out []models.Reading
	for _, r := range f.readings {
		if !r.Timestamp.Before(from) && !r.Timestamp.After(to) {
			out = append(out, r)
		}
	}
	return out, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFetchWindowClampsTo24Hours(t *testing.T) {
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	src := &fakeSource{readings: []models.Reading{
		{ID: 1, Timestamp: from.Add(6 * time.Hour), ReducedPPMInterval: null.FloatFrom(3)},
		{ID: 2, Timestamp: from.Add(24 * time.Hour), ReducedPPMInterval: null.FloatFrom(-2)},
		{ID: 3, Timestamp: from.Add(30 * time.Hour), ReducedPPMInterval: null.FloatFrom(9)},
	}}

	f := NewWindowFetcher(src, time.UTC, discardLogger())
	w := f.FetchWindow(context.Background(), from, from.Add(48*time.Hour))

	assert.Equal(t, time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), src.gotTo)
	assert.Equal(t, []string{"06:00", "00:00"}, w.Labels)
	assert.Equal(t, []null.Float{null.FloatFrom(3), null.FloatFrom(-2)}, w.Values)
}

func TestFetchWindowPassesNullThrough(t *testing.T) {
	bangkok, err := time.LoadLocation("Asia/Bangkok")
	if err != nil {
		t.Skip("tzdata unavailable")
	}

	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	src := &fakeSource{readings: []models.Reading{
		{ID: 1, Timestamp: from.Add(90 * time.Minute)},
	}}

	w := NewWindowFetcher(src, bangkok, discardLogger()).FetchWindow(context.Background(), from, from.Add(2*time.Hour))
	require.Len(t, w.Values, 1)
	assert.False(t, w.Values[0].Valid)
	assert.Equal(t, "08:30", w.Labels[0])
}

func TestFetchWindowErrorIsEmpty(t *testing.T) {
	src := &fakeSource{err: errors.New("connection refused")}
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	w := NewWindowFetcher(src, nil, discardLogger()).FetchWindow(context.Background(), from, from.Add(time.Hour))
	assert.Empty(t, w.Labels)
	assert.Empty(t, w.Values)
	assert.NotNil(t, w.Labels)
}

func TestFetchWindowDoesNotSelfCorrect(t *testing.T) {
	from := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{}

	NewWindowFetcher(src, nil, discardLogger()).FetchWindow(context.Background(), from, from.Add(-time.Hour))
	assert.Equal(t, from.Add(-time.Hour), src.gotTo)
}

func TestNudgeWindow(t *testing.T) {
	from := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, from.Add(10*time.Minute), NudgeWindow(from, from))
	assert.Equal(t, from.Add(10*time.Minute), NudgeWindow(from, from.Add(-time.Hour)))
	assert.Equal(t, from.Add(time.Hour), NudgeWindow(from, from.Add(time.Hour)))
}
