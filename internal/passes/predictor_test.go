package passes

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/star/satviz/internal/propagation"
	"github.com/star/satviz/internal/tle/tletest"
	"github.com/star/satviz/internal/transform"
)

// Washington, DC.
var dcObserver = transform.NewObserver(transform.Geodetic{LatDeg: 38.921486, LonDeg: -77.066804, HeightKm: 0.8})

// Day after the ISS element set epoch.
var start = time.Date(2025, 1, 25, 0, 0, 0, 0, time.UTC)

func issPropagator(t testing.TB) *propagation.SGP4 {
	return propagation.NewSGP4(tletest.ISS(t), propagation.DefaultOptions())
}

func TestPredictISS(t *testing.T) {
	req := Request{
		Observer:    dcObserver,
		Propagators: []*propagation.SGP4{issPropagator(t)},
		Start:       start,
		Horizon:     24 * time.Hour,
		MaxPasses:   10,
	}

	results := Predict(context.Background(), req)
	if len(results) != 1 {
		t.Fatalf("expected 1 satellite result, got %d", len(results))
	}
	sat := results[0]
	if sat.CatalogNumber != "25544" {
		t.Errorf("catalog number = %s, want 25544", sat.CatalogNumber)
	}
	if sat.Error != "" {
		t.Fatalf("unexpected error: %s", sat.Error)
	}
	if len(sat.Passes) == 0 {
		t.Fatal("expected at least 1 ISS pass over Washington in 24h")
	}

	for i, p := range sat.Passes {
		if p.DurationSeconds < 10 {
			t.Errorf("pass %d: duration %.1fs too short", i, p.DurationSeconds)
		}
		if p.DurationSeconds > 900 {
			t.Errorf("pass %d: duration %.1fs too long for LEO", i, p.DurationSeconds)
		}
		if p.MaxElevationDeg <= 0 || p.MaxElevationDeg > 90 {
			t.Errorf("pass %d: max elevation %.2f out of range", i, p.MaxElevationDeg)
		}
		for _, az := range []float64{p.AzimuthAtMaxDeg, p.StartAzimuthDeg, p.EndAzimuthDeg} {
			if az < 0 || az >= 360 {
				t.Errorf("pass %d: azimuth %.2f out of range", i, az)
			}
		}
		if p.MaxElevationTime.Before(p.Start) || !p.MaxElevationTime.Before(p.End) {
			t.Errorf("pass %d: time ordering violated: start=%v max=%v end=%v", i, p.Start, p.MaxElevationTime, p.End)
		}
		if len(p.Track) == 0 {
			t.Errorf("pass %d: expected track points, got none", i)
		}
		for j, tp := range p.Track {
			if tp.HeightKm < 300 || tp.HeightKm > 500 {
				t.Errorf("pass %d track %d: height %.0f km out of ISS range", i, j, tp.HeightKm)
			}
			if tp.ElevationDeg < 0 || tp.ElevationDeg > 90 {
				t.Errorf("pass %d track %d: elevation %.2f out of range", i, j, tp.ElevationDeg)
			}
		}
		if i > 0 && !sat.Passes[i-1].End.Before(p.Start) {
			t.Errorf("pass %d overlaps the previous one", i)
		}
	}
}

func TestPredictMinElevationFilter(t *testing.T) {
	base := Request{
		Observer:    dcObserver,
		Propagators: []*propagation.SGP4{issPropagator(t)},
		Start:       start,
		Horizon:     48 * time.Hour,
		MaxPasses:   20,
	}
	high := base
	high.MinElevationDeg = 45

	nLow := len(Predict(context.Background(), base)[0].Passes)
	nHigh := len(Predict(context.Background(), high)[0].Passes)

	if nLow == 0 {
		t.Fatal("expected passes with no elevation mask")
	}
	if nHigh >= nLow {
		t.Errorf("45 degree mask passes (%d) should be fewer than unmasked passes (%d)", nHigh, nLow)
	}
}

func TestPredictMaxPasses(t *testing.T) {
	req := Request{
		Observer:    dcObserver,
		Propagators: []*propagation.SGP4{issPropagator(t)},
		Start:       start,
		Horizon:     48 * time.Hour,
		MaxPasses:   1,
	}
	if n := len(Predict(context.Background(), req)[0].Passes); n != 1 {
		t.Errorf("got %d passes, want 1", n)
	}
}

func TestPredictCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := Request{
		Observer:    dcObserver,
		Propagators: []*propagation.SGP4{issPropagator(t), issPropagator(t)},
		Start:       start,
		Horizon:     24 * time.Hour,
	}
	results := Predict(ctx, req)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for i, r := range results {
		if r.Error != "cancelled" {
			t.Errorf("result %d: error = %q, want cancelled", i, r.Error)
		}
	}
}

func TestPredictFailingSatellite(t *testing.T) {
	decayed := propagation.NewSGP4(tletest.Decayed(t), propagation.DefaultOptions())
	req := Request{
		Observer:    dcObserver,
		Propagators: []*propagation.SGP4{issPropagator(t), decayed},
		Start:       start,
		Horizon:     24 * time.Hour,
		MaxPasses:   10,
		Workers:     2,
	}

	results := Predict(context.Background(), req)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Error != "" {
		t.Errorf("ISS should succeed, got error: %s", results[0].Error)
	}
	if results[1].CatalogNumber != "99901" || results[1].Error == "" {
		t.Errorf("decayed satellite should report an error, got %+v", results[1])
	}
}

// haversineKm returns the great-circle distance between two points.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371.0
	φ1 := lat1 * math.Pi / 180
	φ2 := lat2 * math.Pi / 180
	Δφ := (lat2 - lat1) * math.Pi / 180
	Δλ := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(Δφ/2)*math.Sin(Δφ/2) + math.Cos(φ1)*math.Cos(φ2)*math.Sin(Δλ/2)*math.Sin(Δλ/2)
	return R * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// maxGroundDistKm is the largest observer to sub-satellite distance possible
// at elevation elevDeg for a satellite at height hKm:
// ρ = acos(R·cos(ε)/(R+h)) − ε.
func maxGroundDistKm(elevDeg, hKm float64) float64 {
	const R = 6371.0
	elev := elevDeg * math.Pi / 180
	arg := R * math.Cos(elev) / (R + hKm)
	if arg > 1 {
		arg = 1
	}
	rho := math.Acos(arg) - elev
	if rho < 0 {
		rho = 0
	}
	return R * rho
}

func TestTrackPhysicalConsistency(t *testing.T) {
	req := Request{
		Observer:    dcObserver,
		Propagators: []*propagation.SGP4{issPropagator(t)},
		Start:       start,
		Horizon:     24 * time.Hour,
		MaxPasses:   20,
	}
	sat := Predict(context.Background(), req)[0]
	if sat.Error != "" {
		t.Fatalf("satellite error: %s", sat.Error)
	}

	for pi, p := range sat.Passes {
		for gi, tp := range p.Track {
			dist := haversineKm(dcObserver.LatDeg, dcObserver.LonDeg, tp.LatDeg, tp.LonDeg)
			maxPossible := maxGroundDistKm(tp.ElevationDeg, tp.HeightKm)
			if maxPossible > 0 && dist > maxPossible*1.5 {
				t.Errorf("pass %d track[%d]: dist %.0fkm exceeds max physical %.0fkm (el=%.1f° h=%.0fkm)",
					pi, gi, dist, maxPossible, tp.ElevationDeg, tp.HeightKm)
			}
		}
	}
}

func BenchmarkPredict100Sats24h(b *testing.B) {
	props := make([]*propagation.SGP4, 100)
	for i := range props {
		props[i] = issPropagator(b)
	}
	req := Request{
		Observer:        dcObserver,
		Propagators:     props,
		Start:           start,
		Horizon:         24 * time.Hour,
		MinElevationDeg: 10,
		MaxPasses:       10,
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Predict(context.Background(), req)
	}
}
