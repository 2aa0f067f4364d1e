package mqtt

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/guregu/null"
	"github.com/pkg/errors"
	"github.com/relvacode/iso8601"
	"github.com/shopspring/decimal"

	"co2-monitor/internal/models"
)

// DecodeChange turns a change notification into a typed event. Only
// payloads that are not JSON objects are rejected; fields of the wrong
// shape are defaulted instead. Both "type"/"record" and the realtime-style
// "eventType"/"new" names are understood.
func DecodeChange(payload []byte) (models.ChangeEvent, error) {
	env, err := decodeObject(payload)
	if err != nil {
		return models.ChangeEvent{}, errors.Wrap(err, "invalid change payload")
	}

	event := models.ChangeEvent{
		Type:  strings.ToUpper(strings.TrimSpace(firstNonEmpty(toString(env["type"]), toString(env["eventType"])))),
		Table: toString(env["table"]),
	}
	if event.Type == "" {
		event.Type = models.ChangeInsert
	}
	event.CommitTimestamp, _ = parseTime(env["commit_timestamp"])

	record, ok := env["record"].(map[string]any)
	if !ok {
		record, _ = env["new"].(map[string]any)
	}
	event.Record = readingFromFields(record)
	if event.Record.Timestamp.IsZero() {
		event.Record.Timestamp = event.CommitTimestamp
	}
	return event, nil
}

// DecodeReading parses one co2_data row with the same defaulting rules
func DecodeReading(raw []byte) (models.Reading, error) {
	fields, err := decodeObject(raw)
	if err != nil {
		return models.Reading{}, errors.Wrap(err, "invalid reading")
	}
	return readingFromFields(fields), nil
}

func decodeObject(raw []byte) (map[string]any, error) {
	var fields map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, errors.New("payload is not an object")
	}
	return fields, nil
}

func readingFromFields(fields map[string]any) models.Reading {
	var r models.Reading
	r.ID = toInt(fields["id"])
	r.Timestamp, _ = parseTime(fields["timestamp"])
	r.Position1 = toFloat(fields["co2_position1_ppm"])
	r.Position2 = toFloat(fields["co2_position2_ppm"])
	r.Position3 = toFloat(fields["co2_position3_ppm"])
	r.ReducedPPMInterval = toFloat(fields["co2_reduced_ppm_interval"])
	r.EfficiencyPercentage = toFloat(fields["efficiency_percentage"])
	r.ReducedKg = toDecimal(fields["co2_reduced_kg"])
	return r
}

func toString(v any) string {
	s, _ := v.(string)
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// numeric returns the textual form of a finite JSON number or numeric string
func numeric(v any) (string, bool) {
	var s string
	switch x := v.(type) {
	case json.Number:
		s = x.String()
	case string:
		s = strings.TrimSpace(x)
	default:
		return "", false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return "", false
	}
	return s, true
}

func toFloat(v any) null.Float {
	s, ok := numeric(v)
	if !ok {
		return null.Float{}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return null.Float{}
	}
	return null.FloatFrom(f)
}

func toInt(v any) int64 {
	s, ok := numeric(v)
	if !ok {
		return 0
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	f, _ := strconv.ParseFloat(s, 64)
	return int64(f)
}

func toDecimal(v any) decimal.NullDecimal {
	s, ok := numeric(v)
	if !ok {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// parseTime accepts ISO 8601 strings and unix milliseconds
func parseTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case string:
		t, err := iso8601.ParseString(strings.TrimSpace(x))
		if err != nil {
			return time.Time{}, false
		}
		return t.UTC(), true
	case json.Number:
		ms, err := x.Int64()
		if err != nil {
			return time.Time{}, false
		}
		return time.UnixMilli(ms).UTC(), true
	}
	return time.Time{}, false
}
