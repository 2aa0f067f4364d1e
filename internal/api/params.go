package api

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/relvacode/iso8601"
	"github.com/sosodev/duration"

	"co2-monitor/internal/database"
	"co2-monitor/internal/models"
	"co2-monitor/internal/series"
)

// Input errors; handlers answer them with 400
var (
	ErrInvalidTime     = errors.New("invalid date or time")
	ErrInvalidDuration = errors.New("invalid ISO 8601 duration")
	ErrInvalidSort     = errors.New("invalid sort order")
	ErrInvalidLimit    = errors.New("invalid limit")
	ErrInvalidTable    = errors.New("unknown table")
	ErrInvalidView     = errors.New("unknown view")
)

// parseTime accepts a calendar day (YYYY-MM-DD, midnight in loc) or an
// ISO 8601 instant. dateOnly reports which form was given.
func parseTime(raw string, loc *time.Location) (t time.Time, dateOnly bool, err error) {
	raw = strings.TrimSpace(raw)
	if d, err := time.ParseInLocation(series.DateLayout, raw, loc); err == nil {
		return d, true, nil
	}
	if t, err := iso8601.ParseString(raw); err == nil {
		return t, false, nil
	}
	return time.Time{}, false, errors.Wrapf(ErrInvalidTime, "%q", raw)
}

// timeParam reads name from q, falling back to def when it is absent.
// With endOfDay a calendar day stands for its last millisecond.
func timeParam(q url.Values, name string, def time.Time, loc *time.Location, endOfDay bool) (time.Time, error) {
	raw := q.Get(name)
	if raw == "" {
		return def, nil
	}
	t, dateOnly, err := parseTime(raw, loc)
	if err != nil {
		return time.Time{}, errors.WithMessage(err, name)
	}
	if dateOnly && endOfDay {
		t = t.AddDate(0, 0, 1).Add(-time.Millisecond)
	}
	return t, nil
}

func durationParam(q url.Values, name string) (time.Duration, bool, error) {
	raw := q.Get(name)
	if raw == "" {
		return 0, false, nil
	}
	d, err := duration.Parse(raw)
	if err != nil {
		return 0, false, errors.Wrapf(ErrInvalidDuration, "%s=%q", name, raw)
	}
	return d.ToTimeDuration(), true, nil
}

// dayRangeParams reads the from..to calendar range of the daily views. The
// default is the week ending today; a reversed range is swapped.
func dayRangeParams(q url.Values, now time.Time, loc *time.Location) (time.Time, time.Time, error) {
	now = now.In(loc)
	from, err := timeParam(q, "from", now.AddDate(0, 0, -6), loc, false)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := timeParam(q, "to", now, loc, false)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	from, to = series.OrderRange(from, to)
	return from, to, nil
}

// windowParams resolves the raw-sample window. span (ISO 8601 duration)
// extends from forwards, or reaches back from to when from is absent.
// An empty or reversed window is nudged forward rather than swapped.
func windowParams(q url.Values, now time.Time, loc *time.Location) (time.Time, time.Time, error) {
	span, hasSpan, err := durationParam(q, "span")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !hasSpan {
		span = time.Hour
	}

	to, err := timeParam(q, "to", now, loc, false)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	from, err := timeParam(q, "from", to.Add(-span), loc, false)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if hasSpan && q.Get("from") != "" {
		to = from.Add(span)
	}
	return from, series.NudgeWindow(from, to), nil
}

// historyParams reads a history query; a calendar-day "to" covers the whole day
func historyParams(q url.Values, now time.Time, loc *time.Location) (models.HistoryQuery, error) {
	var hq models.HistoryQuery

	to, err := timeParam(q, "to", now, loc, true)
	if err != nil {
		return hq, err
	}
	from, err := timeParam(q, "from", to.AddDate(0, 0, -7), loc, false)
	if err != nil {
		return hq, err
	}
	hq.From, hq.To = series.OrderRange(from, to)

	switch sort := q.Get("sort"); sort {
	case "":
		hq.Sort = models.SortDateDesc
	case models.SortDateAsc, models.SortDateDesc:
		hq.Sort = sort
	default:
		return hq, errors.Wrapf(ErrInvalidSort, "%q", sort)
	}

	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return hq, errors.Wrapf(ErrInvalidLimit, "%q", raw)
		}
		hq.Limit = n
	}
	hq.Search = q.Get("search")
	return hq, nil
}

func tableParam(q url.Values) (string, error) {
	switch table := q.Get("table"); table {
	case "":
		return database.TableCo2, nil
	case database.TableCo2, database.TableEnvironment:
		return table, nil
	default:
		return "", errors.Wrapf(ErrInvalidTable, "%q", table)
	}
}
