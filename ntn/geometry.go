// Package ntn derives non-terrestrial link geometry (slant range, range rate
// and round-trip timing advance) for the sync metrics of a satellite cell.
package ntn

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// SpeedOfLightKmps is the speed of light in km/s.
const SpeedOfLightKmps = 299792.458

// WGS84 ellipsoid in kilometres.
const (
	wgs84A = 6378.137
	wgs84F = 1 / 298.257223563
)

// Observer is a ground position in geodetic coordinates.
type Observer struct {
	LatDeg float64 `yaml:"lat_deg" json:"lat_deg"`
	LonDeg float64 `yaml:"lon_deg" json:"lon_deg"`
	AltKm  float64 `yaml:"alt_km" json:"alt_km"`
}

// GeodeticToECEF converts o into an ECEF position in kilometres.
func GeodeticToECEF(o Observer) r3.Vec {
	lat := o.LatDeg * math.Pi / 180
	lon := o.LonDeg * math.Pi / 180
	sinLat, cosLat := math.Sincos(lat)
	sinLon, cosLon := math.Sincos(lon)

	e2 := wgs84F * (2 - wgs84F)
	n := wgs84A / math.Sqrt(1-e2*sinLat*sinLat)

	return r3.Vec{
		X: (n + o.AltKm) * cosLat * cosLon,
		Y: (n + o.AltKm) * cosLat * sinLon,
		Z: (n*(1-e2) + o.AltKm) * sinLat,
	}
}

// TimingAdvanceUs returns the round-trip propagation delay in microseconds
// over a slant range of distanceKm.
func TimingAdvanceUs(distanceKm float64) float64 {
	return 2 * distanceKm / SpeedOfLightKmps * 1e6
}

// ElevationDeg returns the elevation of target seen from observer, both ECEF.
// 0° is the geometric horizon, 90° is overhead.
func ElevationDeg(observer, target r3.Vec) float64 {
	v := r3.Sub(target, observer)
	if r3.Norm(v) == 0 || r3.Norm(observer) == 0 {
		return 90
	}

	// The local zenith is approximated by the normalised observer position.
	// atan2 keeps full precision near the zenith and nadir where acos does not.
	zenith := r3.Unit(observer)
	return math.Atan2(r3.Dot(v, zenith), r3.Norm(r3.Cross(v, zenith))) * 180 / math.Pi
}
