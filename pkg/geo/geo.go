// Package geo provides the distance math used by the clustering engine:
// great-circle distances for precise matching and bounding-box offsets
// for cheap candidate prefiltering.
package geo

import (
	"math"
	"strconv"
)

// earthRadiusMeters is the mean Earth radius.
const earthRadiusMeters = 6371000.0

// metersPerDegreeLat is the approximate length of one degree of latitude.
const metersPerDegreeLat = 111000.0

// HaversineMeters returns the great-circle distance in meters between two
// points given in decimal degrees.
func HaversineMeters(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLng := toRadians(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*
			math.Sin(dLng/2)*math.Sin(dLng/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}

// BoundingBox is an axis-aligned lat/lng box used to prefilter candidate
// detections before the precise haversine check.
type BoundingBox struct {
	MinLatitude  float64
	MaxLatitude  float64
	MinLongitude float64
	MaxLongitude float64
}

// BoxAround computes the bounding box that fully contains a circle of
// radiusMeters centered on the given point. The longitude offset is
// widened by the cosine of the latitude to correct for meridian
// convergence away from the equator.
func BoxAround(latitude, longitude, radiusMeters float64) BoundingBox {
	latOffset := radiusMeters / metersPerDegreeLat

	cosLat := math.Cos(toRadians(latitude))
	if cosLat < 0.01 {
		// Near the poles the cosine correction blows up. Clamp so the
		// box stays finite; the haversine check still enforces the
		// true radius.
		cosLat = 0.01
	}
	lngOffset := radiusMeters / (metersPerDegreeLat * cosLat)

	return BoundingBox{
		MinLatitude:  latitude - latOffset,
		MaxLatitude:  latitude + latOffset,
		MinLongitude: longitude - lngOffset,
		MaxLongitude: longitude + lngOffset,
	}
}

// Contains reports whether the point lies inside the box.
func (b BoundingBox) Contains(latitude, longitude float64) bool {
	return latitude >= b.MinLatitude && latitude <= b.MaxLatitude &&
		longitude >= b.MinLongitude && longitude <= b.MaxLongitude
}

// GridCell returns the 0.1 degree grid cell containing the point,
// formatted for use in coordination lock keys. Detections in the same
// cell contend for the same lock during assignment.
func GridCell(latitude, longitude float64) string {
	latCell := int64(math.Floor(latitude * 10))
	lngCell := int64(math.Floor(longitude * 10))
	return strconv.FormatInt(latCell, 10) + ":" + strconv.FormatInt(lngCell, 10)
}

func toRadians(degrees float64) float64 {
	return degrees * math.Pi / 180
}
