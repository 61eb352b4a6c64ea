package orbit

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/star/satviz/internal/propagation"
	"github.com/star/satviz/internal/tle"
	"github.com/star/satviz/internal/tle/tletest"
	"github.com/star/satviz/internal/transform"
)

func TestDMS(t *testing.T) {
	tests := []struct {
		deg  float64
		want string
	}{
		{0, `0° 0' 0"`},
		{51.6377, `51° 38' 16"`},
		{34.2682, `34° 16' 6"`},
		{98.5, `98° 30' 0"`},
		{10.99999, `11° 0' 0"`},
		{179.999999, `180° 0' 0"`},
		{55.01666, `55° 1' 0"`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DMS(tt.deg), "DMS(%v)", tt.deg)
	}
}

func TestMeanMotionRecovery(t *testing.T) {
	iss := tletest.ISS(t)
	gps := tletest.GPS(t)

	// Below the critical inclination the J2 correction lowers the mean motion,
	// above it raises it.
	n := MeanMotion(iss)
	assert.Less(t, n, iss.MeanMotion)
	assert.InDelta(t, 15.50334, n, 1e-4)

	n = MeanMotion(gps)
	assert.Greater(t, n, gps.MeanMotion)
	assert.InDelta(t, gps.MeanMotion, n, 1e-4)

	assert.InDelta(t, 92.883, Period(iss).Minutes(), 1e-3)
}

func TestSemiMajorAxis(t *testing.T) {
	assert.InDelta(t, 6794.865, SemiMajorAxis(15.5), 1e-3)
	// Geostationary: one revolution per sidereal day.
	assert.InDelta(t, 42164, SemiMajorAxis(1.00273791), 2)
}

func TestComputeSummaryISS(t *testing.T) {
	rec := tletest.ISS(t)
	at := rec.Epoch.Add(10 * time.Minute)
	res, err := propagation.Propagate(rec, at)
	require.NoError(t, err)

	s, err := ComputeSummary(rec, res, at)
	require.NoError(t, err)

	assert.Equal(t, tle.CatalogNumber("25544"), s.CatalogNumber)
	assert.Equal(t, "1998-067A", s.IntlDes)
	assert.InDelta(t, 6793.888, s.SemiMajorAxisKm, 1e-2)
	assert.InDelta(t, s.SemiMajorAxisKm*math.Sqrt(1-s.Eccentricity*s.Eccentricity), s.SemiMinorAxisKm, 1e-9)
	assert.GreaterOrEqual(t, s.ApogeeKm, s.PerigeeKm)
	assert.InDelta(t, 92.88, s.PeriodMin, 0.01)
	assert.InDelta(t, 7.66, s.SpeedKmS, 0.1)
	assert.Less(t, s.GroundSpeedKmS, s.SpeedKmS)
	assert.Greater(t, s.GroundSpeedKmS, s.SpeedKmS-0.6)
	assert.InDelta(t, 420, s.Position.HeightKm, 40)
	assert.LessOrEqual(t, math.Abs(s.Position.LatDeg), 51.7)

	f := s.Format()
	assert.Equal(t, "25544", f.ID)
	assert.Equal(t, "1998-067A", f.IntlDes)
	assert.Equal(t, "425.00 km", f.Apogee)
	assert.Equal(t, "420.78 km", f.Perigee)
	assert.Equal(t, `51° 38' 16"`, f.Inclination)
	assert.Equal(t, "93 min", f.Period)
	assert.Regexp(t, `^-?\d+\.\d{3}$`, f.Latitude)
	assert.Regexp(t, `^-?\d+\.\d{3}$`, f.Longitude)
	assert.Regexp(t, `^\d+\.\d{2} km$`, f.Height)
	assert.Regexp(t, `^\d+\.\d{2} km/s$`, f.Velocity)
}

func TestComputeSummaryUsesResultInstant(t *testing.T) {
	rec := tletest.ISS(t)
	res, err := propagation.Propagate(rec, rec.Epoch)
	require.NoError(t, err)

	a, err := ComputeSummary(rec, res, time.Time{})
	require.NoError(t, err)
	b, err := ComputeSummary(rec, res, res.At)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

// TestSummaryPhysicalBounds checks apogee ≥ perigee > 0 for every bound orbit.
func TestSummaryPhysicalBounds(t *testing.T) {
	for _, rec := range []*tle.Record{tletest.ISS(t), tletest.GPS(t), tletest.Vanguard(t)} {
		res, err := propagation.Propagate(rec, rec.Epoch)
		require.NoError(t, err, rec.CatalogNumber)
		s, err := ComputeSummary(rec, res, rec.Epoch)
		require.NoError(t, err, rec.CatalogNumber)

		assert.GreaterOrEqual(t, s.ApogeeKm, s.PerigeeKm, rec.CatalogNumber)
		assert.Positive(t, s.PerigeeKm, rec.CatalogNumber)
		assert.Positive(t, s.PeriodMin, rec.CatalogNumber)
	}
}

func TestFormatVanguard(t *testing.T) {
	rec := tletest.Vanguard(t)
	res, err := propagation.Propagate(rec, rec.Epoch)
	require.NoError(t, err)
	s, err := ComputeSummary(rec, res, rec.Epoch)
	require.NoError(t, err)

	f := s.Format()
	assert.Equal(t, "00005", f.ID)
	assert.Equal(t, "1958-002B", f.IntlDes)
	assert.Equal(t, "3870.24 km", f.Apogee)
	assert.Equal(t, "658.47 km", f.Perigee)
	assert.Equal(t, `34° 16' 6"`, f.Inclination)
	assert.Equal(t, "133 min", f.Period)
}

func TestFormatFixedValues(t *testing.T) {
	s := Summary{
		CatalogNumber:  "00123",
		IntlDes:        "2001-001A",
		ApogeeKm:       1234.5678,
		PerigeeKm:      0.004,
		InclinationDeg: 90,
		PeriodMin:      99.5,
		SpeedKmS:       7.005,
		Position:       transform.Geodetic{LatDeg: -12.34567, LonDeg: 179.9996, HeightKm: 400.126},
	}
	want := Formatted{
		ID:          "00123",
		IntlDes:     "2001-001A",
		Apogee:      "1234.57 km",
		Perigee:     "0.00 km",
		Inclination: `90° 0' 0"`,
		Latitude:    "-12.346",
		Longitude:   "180.000",
		Height:      "400.13 km",
		Velocity:    "7.00 km/s",
		Period:      "100 min",
	}
	assert.Equal(t, want, s.Format())
}

func TestComputeSummaryDegenerate(t *testing.T) {
	rec := tletest.ISS(t)
	_, err := ComputeSummary(rec, propagation.Result{At: rec.Epoch}, time.Time{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, transform.ErrFrame))
}
