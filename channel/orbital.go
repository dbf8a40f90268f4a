package channel

import (
	"fmt"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
)

// Orbital is the SNR of a downlink from a satellite, given by its TLE, to a
// fixed ground station. Below MinElevationDeg the receiver has no
// measurement.
type Orbital struct {
	sat             satellite.Satellite
	ground          Vec3
	budget          LinkBudget
	MinElevationDeg float64
}

// NewOrbital builds a provider from two TLE lines and the ground station's
// geodetic position.
func NewOrbital(line1, line2 string, latDeg, lonDeg, altKm float64, budget LinkBudget) (*Orbital, error) {
	line1, line2 = strings.TrimSpace(line1), strings.TrimSpace(line2)
	if !strings.HasPrefix(line1, "1 ") || !strings.HasPrefix(line2, "2 ") {
		return nil, fmt.Errorf("channel: malformed TLE")
	}
	if latDeg < -90 || latDeg > 90 {
		return nil, fmt.Errorf("channel: latitude %g out of range", latDeg)
	}
	return &Orbital{
		sat:    satellite.TLEToSat(line1, line2, satellite.GravityWGS72),
		ground: GeodeticToECEF(latDeg, lonDeg, altKm),
		budget: budget.ApplyDefaults(),
	}, nil
}

// Position propagates the satellite to t and returns its ECEF position in
// kilometres.
func (o *Orbital) Position(t time.Time) Vec3 {
	t = t.UTC()
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	posECI, _ := satellite.Propagate(o.sat, year, int(month), day, hour, min, sec)
	jd := satellite.JDay(year, int(month), day, hour, min, sec)
	gmst := satellite.ThetaG_JD(jd)
	posECEF := satellite.ECIToECEF(posECI, gmst)
	return Vec3{X: posECEF.X, Y: posECEF.Y, Z: posECEF.Z}
}

// Elevation returns the satellite's elevation above the ground station's
// horizon at t.
func (o *Orbital) Elevation(t time.Time) float64 {
	return ElevationDegrees(o.ground, o.Position(t))
}

// SNR returns the link budget at the current slant range, or ok=false
// when the satellite is hidden.
func (o *Orbital) SNR(t time.Time) (float64, bool) {
	pos := o.Position(t)
	if !hasLineOfSight(o.ground, pos) || ElevationDegrees(o.ground, pos) < o.MinElevationDeg {
		return 0, false
	}
	return o.budget.SNRAtDistance(o.ground.DistanceTo(pos)), true
}
