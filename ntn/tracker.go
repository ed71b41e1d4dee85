package ntn

import (
	"math"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
	"gonum.org/v1/gonum/spatial/r3"
)

// Geometry is the link geometry between an observer and the serving
// satellite at one instant.
type Geometry struct {
	DistanceKm   float64 `json:"distance_km"`
	SpeedKmph    float64 `json:"speed_kmph"`
	TAus         float64 `json:"ta_us"`
	ElevationDeg float64 `json:"elevation_deg"`
}

// Tracker propagates a satellite with SGP4 and measures it from a fixed
// observer.
type Tracker struct {
	sat satellite.Satellite
	obs r3.Vec
}

// NewTrackerFromTLE constructs a tracker from two TLE lines.
func NewTrackerFromTLE(line1, line2 string, obs Observer) *Tracker {
	return &Tracker{
		sat: satellite.TLEToSat(line1, line2, satellite.GravityWGS72),
		obs: GeodeticToECEF(obs),
	}
}

// earthRotationRadps is the WGS84 angular velocity of the Earth.
const earthRotationRadps = 7.292115e-5

// stateECEF propagates the satellite to when and returns its ECEF position
// in km and velocity in km/s. go-satellite resolves time to whole seconds.
func (t *Tracker) stateECEF(when time.Time) (pos, vel r3.Vec) {
	when = when.UTC()
	year, month, day := when.Date()
	hour, min, sec := when.Clock()

	posECI, velECI := satellite.Propagate(t.sat, year, int(month), day, hour, min, sec)
	jd := satellite.JDay(year, int(month), day, hour, min, sec)
	gmst := satellite.ThetaG_JD(jd)

	p := satellite.ECIToECEF(posECI, gmst)
	v := satellite.ECIToECEF(velECI, gmst)
	pos = r3.Vec{X: p.X, Y: p.Y, Z: p.Z}
	// The rotating frame sees the inertial velocity minus ω × r.
	vel = r3.Vec{
		X: v.X + earthRotationRadps*pos.Y,
		Y: v.Y - earthRotationRadps*pos.X,
		Z: v.Z,
	}
	return pos, vel
}

// rangeRateKmps projects the ECEF velocity vel of a satellite at pos on the
// line of sight. It is positive while the satellite recedes.
func (t *Tracker) rangeRateKmps(pos, vel r3.Vec) float64 {
	los := r3.Sub(pos, t.obs)
	if r3.Norm(los) == 0 {
		return 0
	}
	return r3.Dot(vel, r3.Unit(los))
}

// At returns the link geometry at when. SpeedKmph is the magnitude of the
// range rate, the SGP4 velocity projected on the line of sight.
func (t *Tracker) At(when time.Time) Geometry {
	pos, vel := t.stateECEF(when)
	d := r3.Norm(r3.Sub(pos, t.obs))

	return Geometry{
		DistanceKm:   d,
		SpeedKmph:    math.Abs(t.rangeRateKmps(pos, vel)) * 3600,
		TAus:         TimingAdvanceUs(d),
		ElevationDeg: ElevationDeg(t.obs, pos),
	}
}
