// Package orbit derives presentation data from an element set: the closed
// orbit polyline in display coordinates and the human-readable summary of
// orbital elements.
package orbit

import (
	"math"
	"time"

	"github.com/star/satviz/internal/tle"
)

const (
	// EarthRadiusKm is the mean Earth radius used for apogee and perigee heights.
	EarthRadiusKm = 6371.0

	// semiMajorAxisConstant is sqrt(μ)·86400/2π, so that
	// a = (semiMajorAxisConstant / n)^(2/3) with n in rev/day gives km.
	semiMajorAxisConstant = 8681663.653

	// WGS72 constants the element sets are fitted with.
	xke = 0.0743669161 // sqrt(μ) in earth radii^1.5 / min
	j2  = 0.001082616

	minutesPerDay = 1440.0
)

// MeanMotion returns the Brouwer mean motion in rev/day. Published element
// sets carry the Kozai mean motion; SGP4 initialisation removes the J2 term
// from it and the derived elements use that recovered value.
func MeanMotion(rec *tle.Record) float64 {
	noKozai := rec.MeanMotion * 2 * math.Pi / minutesPerDay // rad/min

	e2 := rec.Eccentricity * rec.Eccentricity
	omeosq := 1 - e2
	rteosq := math.Sqrt(omeosq)
	cosio := math.Cos(rec.InclinationDeg * math.Pi / 180)

	ak := math.Pow(xke/noKozai, 2.0/3.0)
	d1 := 0.75 * j2 * (3*cosio*cosio - 1) / (rteosq * omeosq)
	del := d1 / (ak * ak)
	adel := ak * (1 - del*del - del*(1.0/3.0+134.0*del*del/81.0))
	del = d1 / (adel * adel)
	noUnKozai := noKozai / (1 + del)

	return noUnKozai * minutesPerDay / (2 * math.Pi)
}

// Period returns the orbital period.
func Period(rec *tle.Record) time.Duration {
	minutes := minutesPerDay / MeanMotion(rec)
	return time.Duration(minutes * float64(time.Minute))
}

// SemiMajorAxis returns the semi-major axis in km for a mean motion in rev/day.
func SemiMajorAxis(meanMotion float64) float64 {
	return math.Pow(semiMajorAxisConstant/meanMotion, 2.0/3.0)
}
