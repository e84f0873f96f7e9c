// Package naturalkey derives the deterministic identity of a satellite
// detection from its source attributes. Two feed rows describing the same
// observation always produce the same key, which backs the database-level
// dedup constraint.
package naturalkey

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// For derives the natural key of a detection from its observation
// attributes. Coordinates are rounded to 4 decimal places (roughly 11m)
// so that precision jitter between feed pulls does not produce distinct
// keys for the same pixel.
func For(latitude, longitude float64, acqDate, acqTime, satellite string) string {
	return fmt.Sprintf("%s_%s_%s_%s_%s",
		formatCoord(latitude),
		formatCoord(longitude),
		strings.TrimSpace(acqDate),
		strings.TrimSpace(acqTime),
		strings.TrimSpace(satellite),
	)
}

// formatCoord rounds to 4 decimal places and trims trailing zeros so
// 37.5000 and 37.5 map to the same key component.
func formatCoord(v float64) string {
	rounded := math.Round(v*10000) / 10000
	return strconv.FormatFloat(rounded, 'f', -1, 64)
}
