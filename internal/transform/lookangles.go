package transform

import "math"

// Observer is a ground site with its ECEF position precomputed so it can be
// reused across many satellite lookups.
type Observer struct {
	Geodetic
	latRad, lonRad float64
	ecef           Vector
}

// LookAngles holds azimuth, elevation, and range from observer to satellite.
type LookAngles struct {
	AzimuthDeg   float64 // 0 = North, clockwise
	ElevationDeg float64 // 0 = horizon, 90 = zenith
	RangeKm      float64
}

// Visible reports whether the satellite is above the given elevation mask.
func (la LookAngles) Visible(minElevationDeg float64) bool {
	return la.ElevationDeg >= minElevationDeg
}

// NewObserver creates an Observer from geodetic coordinates.
func NewObserver(g Geodetic) Observer {
	return Observer{
		Geodetic: g,
		latRad:   g.LatDeg * math.Pi / 180.0,
		lonRad:   g.LonDeg * math.Pi / 180.0,
		ecef:     GeodeticToECEF(g),
	}
}

// ECEF returns the observer's ECEF position (km).
func (o Observer) ECEF() Vector { return o.ecef }

// LookAt computes look angles to a satellite given in ECEF km.
//
// Uses the SEZ (South-East-Zenith) topocentric rotation per Vallado Section 4.4.
func (o Observer) LookAt(sat Vector) LookAngles {
	d := sat.Sub(o.ecef)

	sinLat := math.Sin(o.latRad)
	cosLat := math.Cos(o.latRad)
	sinLon := math.Sin(o.lonRad)
	cosLon := math.Cos(o.lonRad)

	south := sinLat*cosLon*d.X + sinLat*sinLon*d.Y - cosLat*d.Z
	east := -sinLon*d.X + cosLon*d.Y
	zenith := cosLat*cosLon*d.X + cosLat*sinLon*d.Y + sinLat*d.Z

	rng := math.Sqrt(south*south + east*east + zenith*zenith)
	if rng == 0 {
		return LookAngles{ElevationDeg: 90}
	}

	el := math.Asin(zenith / rng)

	// North is -South in SEZ.
	az := math.Atan2(east, -south)
	if az < 0 {
		az += 2 * math.Pi
	}

	return LookAngles{
		AzimuthDeg:   az * 180.0 / math.Pi,
		ElevationDeg: el * 180.0 / math.Pi,
		RangeKm:      rng,
	}
}

// LookAtECI computes look angles to a satellite given in ECI km.
func (o Observer) LookAtECI(sat Vector, gmst float64) LookAngles {
	return o.LookAt(ECIToECEF(sat, gmst))
}
