package normalize

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"spcguard/internal/config"
	"spcguard/internal/model"
)

// ErrExcluded marks a record the source system flagged as invalid. Such
// records never enter a series.
var ErrExcluded = errors.New("measurement excluded by source")

type MeasurementFields struct {
	Timestamp     string
	ParameterID   string
	MeasurementID string
	Value         string
	Conforming    string
	Valid         string
	BatchID       string
	SampleID      string
	ProductID     string
	SampleTypeID  string
	Extras        map[string]string
	Raw           string
}

func Normalize(fields MeasurementFields, cfg *config.Config) (model.Measurement, error) {
	if valid, ok := ParseBool(fields.Valid); ok && !valid {
		return model.Measurement{}, ErrExcluded
	}
	param := strings.TrimSpace(fields.ParameterID)
	if param == "" {
		param = cfg.Ingest.Parser.DefaultParameterID
	}
	if param == "" {
		return model.Measurement{}, fmt.Errorf("%w: parameter_id missing", model.ErrInvalidMeasurement)
	}

	value, err := ParseValue(fields.Value)
	if err != nil {
		return model.Measurement{}, err
	}

	loc := time.UTC
	if cfg.Ingest.Parser.Timezone != "" {
		if l, err := time.LoadLocation(cfg.Ingest.Parser.Timezone); err == nil {
			loc = l
		}
	}
	ts := time.Now().UTC()
	if fields.Timestamp != "" {
		parsed, err := ParseTimestamp(fields.Timestamp, loc)
		if err != nil {
			return model.Measurement{}, fmt.Errorf("parse timestamp: %w", err)
		}
		ts = parsed.UTC()
	}

	conforming := true
	if c, ok := ParseBool(fields.Conforming); ok {
		conforming = c
	}

	id := strings.TrimSpace(fields.MeasurementID)
	if id == "" {
		id = uuid.NewString()
	}

	return model.Measurement{
		ID:           id,
		ParameterID:  param,
		Timestamp:    ts,
		Value:        value,
		Conforming:   conforming,
		BatchID:      strings.TrimSpace(fields.BatchID),
		SampleID:     strings.TrimSpace(fields.SampleID),
		ProductID:    strings.TrimSpace(fields.ProductID),
		SampleTypeID: strings.TrimSpace(fields.SampleTypeID),
		Source:       "log",
	}, nil
}

// ParseValue accepts a decimal point or a single decimal comma.
func ParseValue(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("%w: value missing", model.ErrInvalidMeasurement)
	}
	if !strings.Contains(s, ".") && strings.Count(s, ",") == 1 {
		s = strings.Replace(s, ",", ".", 1)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: value %q", model.ErrInvalidMeasurement, raw)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: value %q", model.ErrInvalidMeasurement, raw)
	}
	return v, nil
}

// ParseBool reports ok=false for an empty or unrecognised flag.
func ParseBool(raw string) (value bool, ok bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "t", "1", "yes", "y", "ok", "pass", "conforming", "valid":
		return true, true
	case "false", "f", "0", "no", "n", "fail", "nonconforming", "invalid":
		return false, true
	}
	return false, false
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05Z0700",
	"2006-01-02",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
}

func ParseTimestamp(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if isNumeric(value) {
		if ts, err := parseUnix(value); err == nil {
			return ts, nil
		}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp format: %q", value)
}

func isNumeric(value string) bool {
	for _, ch := range value {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return len(value) > 0
}

func parseUnix(value string) (time.Time, error) {
	if len(value) >= 13 {
		ms, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(0, ms*int64(time.Millisecond)).UTC(), nil
	}
	sec, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(sec, 0).UTC(), nil
}
