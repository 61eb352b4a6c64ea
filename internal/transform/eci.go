// Package transform converts satellite positions between reference frames:
// ECI (the TEME frame SGP4 produces), ECEF, WGS-84 geodetic coordinates,
// topocentric look angles and the scaled rendering frame.
//
// ECI↔ECEF is a rotation about Z by GMST only (TEME → PEF ≈ ECEF). Polar
// motion and the equation of the equinoxes are ignored, which is well below
// display resolution.
//
// All distances are kilometres, velocities km/s, angles radians unless a
// name ends in Deg.
package transform

import "math"

// Vector is a Cartesian 3-vector.
type Vector struct {
	X, Y, Z float64
}

// Norm returns the Euclidean length.
func (v Vector) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Add returns v + o.
func (v Vector) Add(o Vector) Vector {
	return Vector{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

// Sub returns v - o.
func (v Vector) Sub(o Vector) Vector {
	return Vector{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

// Scale returns k*v.
func (v Vector) Scale(k float64) Vector {
	return Vector{v.X * k, v.Y * k, v.Z * k}
}

// IsFinite reports whether no component is NaN or infinite.
func (v Vector) IsFinite() bool {
	for _, c := range [3]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// rotateZ applies R3(θ): a frame rotation about the Z axis.
func rotateZ(v Vector, theta float64) Vector {
	c, s := math.Cos(theta), math.Sin(theta)
	return Vector{
		X: v.X*c + v.Y*s,
		Y: -v.X*s + v.Y*c,
		Z: v.Z,
	}
}

// ECIToECEF rotates an ECI position into ECEF using a GMST angle (radians).
// Computing GMST once per instant lets callers share it across satellites.
func ECIToECEF(r Vector, gmst float64) Vector {
	return rotateZ(r, gmst)
}

// ECEFToECI is the inverse of ECIToECEF.
func ECEFToECI(r Vector, gmst float64) Vector {
	return rotateZ(r, -gmst)
}

// ECIStateToECEF transforms position and velocity together.
//
// Position transform: r_ECEF = R3(θ) * r_ECI
// Velocity transform: v_ECEF = R3(θ) * v_ECI - ω × r_ECEF
//
// where ω = [0, 0, ω_earth] is Earth's angular velocity vector.
func ECIStateToECEF(r, v Vector, gmst float64) (Vector, Vector) {
	rECEF := rotateZ(r, gmst)
	vRot := rotateZ(v, gmst)
	// ω × r = [-ω*y, ω*x, 0]
	vECEF := Vector{
		X: vRot.X + OmegaEarth*rECEF.Y,
		Y: vRot.Y - OmegaEarth*rECEF.X,
		Z: vRot.Z,
	}
	return rECEF, vECEF
}
