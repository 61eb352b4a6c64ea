// Package passes predicts contact windows: intervals in which a satellite
// is above a ground station's elevation mask.
package passes

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/star/satviz/internal/propagation"
	"github.com/star/satviz/internal/tle"
	"github.com/star/satviz/internal/transform"
)

// TrackPoint is a sub-satellite position sampled during a pass.
type TrackPoint struct {
	Time         time.Time `json:"time"`
	LatDeg       float64   `json:"latitude"`
	LonDeg       float64   `json:"longitude"`
	HeightKm     float64   `json:"height_km"`
	ElevationDeg float64   `json:"elevation"`
}

// Pass is one contact window over a station.
type Pass struct {
	Start            time.Time    `json:"start"`
	MaxElevationTime time.Time    `json:"max_elevation_time"`
	End              time.Time    `json:"end"`
	DurationSeconds  float64      `json:"duration_seconds"`
	MaxElevationDeg  float64      `json:"max_elevation"`
	AzimuthAtMaxDeg  float64      `json:"azimuth_at_max"`
	StartAzimuthDeg  float64      `json:"start_azimuth"`
	EndAzimuthDeg    float64      `json:"end_azimuth"`
	Track            []TrackPoint `json:"track"`
}

// SatellitePasses holds the passes found for one satellite.
type SatellitePasses struct {
	CatalogNumber tle.CatalogNumber `json:"id"`
	Passes        []Pass            `json:"passes"`
	Error         string            `json:"error,omitempty"`
}

// Request holds the parameters of a prediction.
type Request struct {
	Observer        transform.Observer
	Propagators     []*propagation.SGP4
	Start           time.Time
	Horizon         time.Duration
	MinElevationDeg float64
	MaxPasses       int
	// Workers bounds concurrent satellites; 0 uses GOMAXPROCS.
	Workers int
}

const (
	coarseStep = 30 * time.Second
	fineStep   = time.Second
	trackStep  = 10 * time.Second
	minPassDur = 10 * time.Second
)

// Predict finds the passes of every propagator over the observer. Results
// keep request order; a satellite that cannot be propagated reports its error
// without affecting the others.
func Predict(ctx context.Context, req Request) []SatellitePasses {
	results := make([]SatellitePasses, len(req.Propagators))
	workers := req.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for i, p := range req.Propagators {
		id := p.Record().CatalogNumber
		if ctx.Err() != nil {
			results[i] = SatellitePasses{CatalogNumber: id, Error: "cancelled"}
			continue
		}
		g.Go(func() error {
			passes, err := predictSatellite(ctx, req, p)
			if err != nil {
				results[i] = SatellitePasses{CatalogNumber: id, Error: err.Error()}
				return nil
			}
			results[i] = SatellitePasses{CatalogNumber: id, Passes: passes}
			return nil
		})
	}
	g.Wait()
	return results
}

// predictSatellite scans coarsely for the satellite above the horizon and
// refines each hit into a pass.
func predictSatellite(ctx context.Context, req Request, p *propagation.SGP4) ([]Pass, error) {
	end := req.Start.Add(req.Horizon)
	var passes []Pass

	t := req.Start
	for t.Before(end) && (req.MaxPasses <= 0 || len(passes) < req.MaxPasses) {
		if err := ctx.Err(); err != nil {
			return passes, err
		}

		la, _, err := lookAt(p, req.Observer, t)
		if err != nil {
			return nil, fmt.Errorf("scan at %s: %w", t.Format(time.RFC3339), err)
		}

		if la.ElevationDeg > 0 {
			pass, windowEnd := refine(ctx, p, req.Observer, t, req.Start, end, req.MinElevationDeg)
			if pass != nil && pass.End.Sub(pass.Start) >= minPassDur {
				passes = append(passes, *pass)
			}
			t = windowEnd.Add(coarseStep)
		} else {
			t = t.Add(coarseStep)
		}
	}
	return passes, nil
}

// refine steps second by second from just before a coarse hit to find rise,
// culmination and set. It returns the pass and the instant scanning stopped.
func refine(ctx context.Context, p *propagation.SGP4, obs transform.Observer, hit, windowStart, windowEnd time.Time, minElev float64) (*Pass, time.Time) {
	t := hit.Add(-coarseStep)
	if t.Before(windowStart) {
		t = windowStart
	}

	var (
		pass      Pass
		wasAbove  bool
		foundRise bool
	)
	for ; t.Before(windowEnd); t = t.Add(fineStep) {
		if ctx.Err() != nil {
			break
		}
		la, ecef, err := lookAt(p, obs, t)
		if err != nil {
			continue
		}
		above := la.Visible(minElev)
		if !foundRise && la.ElevationDeg <= 0 && t.After(hit) {
			// Set again without clearing the mask.
			return nil, t
		}

		if above && !wasAbove {
			pass = Pass{Start: t, StartAzimuthDeg: la.AzimuthDeg}
			foundRise = true
		}
		if above && foundRise {
			if la.ElevationDeg > pass.MaxElevationDeg || pass.MaxElevationTime.IsZero() {
				pass.MaxElevationDeg = la.ElevationDeg
				pass.MaxElevationTime = t
				pass.AzimuthAtMaxDeg = la.AzimuthDeg
			}
			if t.Sub(pass.Start)%trackStep == 0 {
				geo := transform.ECEFToGeodetic(ecef)
				pass.Track = append(pass.Track, TrackPoint{
					Time:         t,
					LatDeg:       geo.LatDeg,
					LonDeg:       geo.LonDeg,
					HeightKm:     geo.HeightKm,
					ElevationDeg: la.ElevationDeg,
				})
			}
		}
		if !above && wasAbove && foundRise {
			pass.End = t
			pass.EndAzimuthDeg = la.AzimuthDeg
			break
		}
		wasAbove = above
	}

	// Still above at the end of the window: close the pass there.
	if foundRise && pass.End.IsZero() && wasAbove {
		pass.End = t
		if la, _, err := lookAt(p, obs, t); err == nil {
			pass.EndAzimuthDeg = la.AzimuthDeg
		}
	}
	if !foundRise || pass.End.IsZero() {
		return nil, t
	}
	pass.DurationSeconds = pass.End.Sub(pass.Start).Seconds()
	return &pass, pass.End
}

// lookAt returns the look angles to the satellite and its ECEF position at t.
func lookAt(p *propagation.SGP4, obs transform.Observer, t time.Time) (transform.LookAngles, transform.Vector, error) {
	res, err := p.Propagate(t)
	if err != nil {
		return transform.LookAngles{}, transform.Vector{}, err
	}
	ecef := transform.ECIToECEF(res.Position, transform.GMST(t))
	return obs.LookAt(ecef), ecef, nil
}
