package transform

import (
	"errors"
	"fmt"
	"math"
)

// WGS-84 ellipsoid parameters.
const (
	WGS84A  = 6378.137              // semi-major axis (km)
	wgs84F  = 1.0 / 298.257223563   // flattening
	wgs84E2 = wgs84F * (2 - wgs84F) // first eccentricity squared
)

// ErrFrame is matched by every FrameError.
var ErrFrame = errors.New("frame transform failed")

// FrameError reports degenerate input to a frame transform, such as a
// zero-length or non-finite position vector.
type FrameError struct {
	Op     string
	Input  Vector
	Reason string
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("%s: %s (input [%g, %g, %g])", e.Op, e.Reason, e.Input.X, e.Input.Y, e.Input.Z)
}

func (e *FrameError) Is(target error) bool { return target == ErrFrame }

// Geodetic is a WGS-84 position: latitude and longitude in degrees
// (longitude in (-180, 180]), height in km above the ellipsoid.
type Geodetic struct {
	LatDeg, LonDeg, HeightKm float64
}

// GeodeticToECEF converts geodetic coordinates to ECEF (km).
func GeodeticToECEF(g Geodetic) Vector {
	lat := g.LatDeg * math.Pi / 180.0
	lon := g.LonDeg * math.Pi / 180.0

	sinLat := math.Sin(lat)
	cosLat := math.Cos(lat)

	// Radius of curvature in the prime vertical.
	n := WGS84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	return Vector{
		X: (n + g.HeightKm) * cosLat * math.Cos(lon),
		Y: (n + g.HeightKm) * cosLat * math.Sin(lon),
		Z: (n*(1-wgs84E2) + g.HeightKm) * sinLat,
	}
}

// ECEFToGeodetic converts ECEF coordinates (km) to geodetic coordinates
// using the iterative Bowring method. Converges in 2-3 iterations for Earth orbits.
func ECEFToGeodetic(r Vector) Geodetic {
	lon := math.Atan2(r.Y, r.X)
	p := math.Hypot(r.X, r.Y)

	lat := math.Atan2(r.Z, p*(1-wgs84E2))
	for i := 0; i < 5; i++ {
		sinLat := math.Sin(lat)
		n := WGS84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)
		lat = math.Atan2(r.Z+wgs84E2*n*sinLat, p)
	}

	sinLat := math.Sin(lat)
	cosLat := math.Cos(lat)
	n := WGS84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	var h float64
	if math.Abs(cosLat) > 1e-10 {
		h = p/cosLat - n
	} else {
		h = math.Abs(r.Z)/math.Abs(sinLat) - n*(1-wgs84E2)
	}

	return Geodetic{
		LatDeg:   lat * 180.0 / math.Pi,
		LonDeg:   lon * 180.0 / math.Pi,
		HeightKm: h,
	}
}

// ECIToGeodetic converts an ECI position (km) to geodetic coordinates at
// the given GMST (radians).
func ECIToGeodetic(r Vector, gmst float64) (Geodetic, error) {
	if !r.IsFinite() {
		return Geodetic{}, &FrameError{Op: "eci to geodetic", Input: r, Reason: "non-finite position"}
	}
	if r.Norm() == 0 {
		return Geodetic{}, &FrameError{Op: "eci to geodetic", Input: r, Reason: "zero-length position"}
	}
	return ECEFToGeodetic(ECIToECEF(r, gmst)), nil
}

// GeodeticToECI converts geodetic coordinates to ECI at the given GMST.
func GeodeticToECI(g Geodetic, gmst float64) Vector {
	return ECEFToECI(GeodeticToECEF(g), gmst)
}
