package orbit

import (
	"fmt"
	"math"
	"time"

	"github.com/star/satviz/internal/propagation"
	"github.com/star/satviz/internal/tle"
	"github.com/star/satviz/internal/transform"
)

// Summary is the set of derived orbital values shown for one satellite.
type Summary struct {
	CatalogNumber tle.CatalogNumber
	Name          string
	IntlDes       string
	Epoch         time.Time
	At            time.Time

	MeanMotion      float64 // rev/day, Brouwer
	Eccentricity    float64
	InclinationDeg  float64
	RAANDeg         float64
	ArgPerigeeDeg   float64
	SemiMajorAxisKm float64
	SemiMinorAxisKm float64
	ApogeeKm        float64 // height above EarthRadiusKm
	PerigeeKm       float64
	PeriodMin       float64
	SpeedKmS        float64
	GroundSpeedKmS  float64 // relative to the rotating Earth
	Position        transform.Geodetic
}

// ComputeSummary derives the summary of rec from a propagation result. The
// geodetic position uses GMST at the instant at; a zero at means res.At.
func ComputeSummary(rec *tle.Record, res propagation.Result, at time.Time) (Summary, error) {
	if at.IsZero() {
		at = res.At
	}

	n := MeanMotion(rec)
	a := SemiMajorAxis(n)
	e := rec.Eccentricity

	gmst := transform.GMST(at)
	geo, err := transform.ECIToGeodetic(res.Position, gmst)
	if err != nil {
		return Summary{}, fmt.Errorf("summary for %s: %w", rec.CatalogNumber, err)
	}
	_, vECEF := transform.ECIStateToECEF(res.Position, res.Velocity, gmst)

	return Summary{
		CatalogNumber:   rec.CatalogNumber,
		Name:            rec.Name,
		IntlDes:         rec.IntlDes(),
		Epoch:           rec.Epoch,
		At:              at,
		MeanMotion:      n,
		Eccentricity:    e,
		InclinationDeg:  rec.InclinationDeg,
		RAANDeg:         rec.RAANDeg,
		ArgPerigeeDeg:   rec.ArgPerigeeDeg,
		SemiMajorAxisKm: a,
		SemiMinorAxisKm: a * math.Sqrt(1-e*e),
		ApogeeKm:        a*(1+e) - EarthRadiusKm,
		PerigeeKm:       a*(1-e) - EarthRadiusKm,
		PeriodMin:       minutesPerDay / n,
		SpeedKmS:        res.Velocity.Norm(),
		GroundSpeedKmS:  vECEF.Norm(),
		Position:        geo,
	}, nil
}

// Formatted is the display form of a Summary. Unit suffixes and decimal
// places are fixed; clients match on them.
type Formatted struct {
	ID          string `json:"id"`
	IntlDes     string `json:"intl_des"`
	Apogee      string `json:"apogee"`
	Perigee     string `json:"perigee"`
	Inclination string `json:"inclination"`
	Latitude    string `json:"latitude"`
	Longitude   string `json:"longitude"`
	Height      string `json:"height"`
	Velocity    string `json:"velocity"`
	Period      string `json:"period"`
}

// Format renders the summary for display.
func (s Summary) Format() Formatted {
	return Formatted{
		ID:          string(s.CatalogNumber),
		IntlDes:     s.IntlDes,
		Apogee:      fmt.Sprintf("%.2f km", s.ApogeeKm),
		Perigee:     fmt.Sprintf("%.2f km", s.PerigeeKm),
		Inclination: DMS(s.InclinationDeg),
		Latitude:    fmt.Sprintf("%.3f", s.Position.LatDeg),
		Longitude:   fmt.Sprintf("%.3f", s.Position.LonDeg),
		Height:      fmt.Sprintf("%.2f km", s.Position.HeightKm),
		Velocity:    fmt.Sprintf("%.2f km/s", s.SpeedKmS),
		Period:      fmt.Sprintf("%.0f min", s.PeriodMin),
	}
}

// DMS formats non-negative decimal degrees as `D° M' S"` with whole seconds.
// Rounded seconds carry into minutes and degrees.
func DMS(deg float64) string {
	d := math.Floor(deg)
	minutes := (deg - d) * 60
	m := math.Floor(minutes)
	s := math.Round((minutes - m) * 60)
	if s == 60 {
		m++
		s = 0
	}
	if m == 60 {
		d++
		m = 0
	}
	return fmt.Sprintf("%.0f° %.0f' %.0f\"", d, m, s)
}
