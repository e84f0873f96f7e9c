package ingest

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/firethorn/pkg/models"
	"github.com/Ramsey-B/firethorn/pkg/naturalkey"
)

// maxFutureSkew is the furthest in the future a detection timestamp may
// sit before the row is rejected as malformed. Satellite clocks drift,
// feed clocks do not travel forward a day.
const maxFutureSkew = 24 * time.Hour

// ParseRow converts a raw feed row into a Detection. Mandatory fields
// (coordinates, acquisition date and time) must parse and validate; all
// other numeric fields fall back to zero on parse failure so a ragged row
// is kept rather than dropped.
func ParseRow(raw models.RawFeedRow, now time.Time) (*models.Detection, error) {
	lat, err := parseCoordinate(raw.Latitude, -90, 90)
	if err != nil {
		return nil, fmt.Errorf("invalid latitude %q: %w", raw.Latitude, err)
	}

	lng, err := parseCoordinate(raw.Longitude, -180, 180)
	if err != nil {
		return nil, fmt.Errorf("invalid longitude %q: %w", raw.Longitude, err)
	}

	acquiredAt, err := parseAcquisitionTime(raw.AcqDate, raw.AcqTime)
	if err != nil {
		return nil, err
	}

	if acquiredAt.After(now.Add(maxFutureSkew)) {
		return nil, fmt.Errorf("acquisition time %s is in the future", acquiredAt.Format(time.RFC3339))
	}

	satellite := strings.TrimSpace(raw.Satellite)
	if satellite == "" {
		return nil, fmt.Errorf("missing satellite code")
	}

	detection := &models.Detection{
		ID:         uuid.New().String(),
		NaturalKey: naturalkey.For(lat, lng, strings.TrimSpace(raw.AcqDate), strings.TrimSpace(raw.AcqTime), satellite),
		Latitude:   lat,
		Longitude:  lng,
		AcquiredAt: acquiredAt,
		Confidence: normalizeConfidence(raw.Confidence),
		FRP:        parseOptionalFloat(raw.FRP),
		BrightTI4:  parseFloatOrZero(raw.BrightTI4),
		BrightTI5:  parseFloatOrZero(raw.BrightTI5),
		Scan:       parseFloatOrZero(raw.Scan),
		Track:      parseFloatOrZero(raw.Track),
		Satellite:  satellite,
		Instrument: strings.TrimSpace(raw.Instrument),
		Version:    strings.TrimSpace(raw.Version),
		DayNight:   strings.TrimSpace(raw.DayNight),
	}

	return detection, nil
}

// parseCoordinate parses a mandatory coordinate field and enforces its
// valid range.
func parseCoordinate(s string, min, max float64) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("missing value")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if v < min || v > max {
		return 0, fmt.Errorf("value %v outside [%v, %v]", v, min, max)
	}
	return v, nil
}

// parseAcquisitionTime combines a YYYY-MM-DD date with an un-padded HHMM
// time field (e.g. "105" → 01:05) into a UTC timestamp.
func parseAcquisitionTime(acqDate, acqTime string) (time.Time, error) {
	acqDate = strings.TrimSpace(acqDate)
	base, err := time.ParseInLocation("2006-01-02", acqDate, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid acq_date %q: %w", acqDate, err)
	}

	hhmm := strings.TrimSpace(acqTime)
	if hhmm == "" {
		return time.Time{}, fmt.Errorf("missing acq_time")
	}
	for len(hhmm) < 4 {
		hhmm = "0" + hhmm
	}
	if len(hhmm) != 4 {
		return time.Time{}, fmt.Errorf("invalid acq_time %q", acqTime)
	}

	hour, errH := strconv.Atoi(hhmm[:2])
	mins, errM := strconv.Atoi(hhmm[2:])
	if errH != nil || errM != nil || hour < 0 || hour > 23 || mins < 0 || mins > 59 {
		return time.Time{}, fmt.Errorf("invalid acq_time %q", acqTime)
	}

	return time.Date(base.Year(), base.Month(), base.Day(), hour, mins, 0, 0, time.UTC), nil
}

// parseFloatOrZero parses a string as float64, returning 0 on failure.
func parseFloatOrZero(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// parseOptionalFloat parses a string as float64, returning nil when the
// field is absent or unparseable. Negative radiative power readings are
// sensor noise and treated as absent.
func parseOptionalFloat(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return nil
	}
	return &v
}

// normalizeConfidence maps feed confidence values onto the l/n/h classes.
// Unknown values degrade to nominal rather than rejecting the row.
func normalizeConfidence(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "l", "low":
		return models.ConfidenceLow
	case "h", "high":
		return models.ConfidenceHigh
	default:
		return models.ConfidenceNominal
	}
}
