package orbit

import (
	"errors"
	"fmt"
	"time"

	"github.com/star/satviz/internal/propagation"
	"github.com/star/satviz/internal/tle"
	"github.com/star/satviz/internal/transform"
)

// ErrSegments is returned when fewer than one segment is requested.
var ErrSegments = errors.New("segment count must be at least 1")

// Propagator is the part of *propagation.SGP4 the sampler needs.
type Propagator interface {
	Record() *tle.Record
	Propagate(t time.Time) (propagation.Result, error)
}

// Sample propagates one full period forward from start in numSegments equal
// steps and returns numSegments+1 display points. The last point repeats the
// first so the path renders as a closed loop. Any failed point fails the
// whole path; no partial loop is returned.
func Sample(p Propagator, numSegments int, start time.Time) ([]transform.DisplayCoordinate, error) {
	if numSegments < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrSegments, numSegments)
	}

	period := Period(p.Record())
	points := make([]transform.DisplayCoordinate, 0, numSegments+1)
	for i := 0; i < numSegments; i++ {
		offset := time.Duration(float64(period) * float64(i) / float64(numSegments))
		res, err := p.Propagate(start.Add(offset))
		if err != nil {
			return nil, fmt.Errorf("orbit point %d of %d: %w", i, numSegments, err)
		}
		points = append(points, transform.ECIToDisplay(res.Position))
	}
	return append(points, points[0]), nil
}

// SampleRecord builds a propagator for rec and samples its orbit.
func SampleRecord(rec *tle.Record, opts propagation.Options, numSegments int, start time.Time) ([]transform.DisplayCoordinate, error) {
	return Sample(propagation.NewSGP4(rec, opts), numSegments, start)
}
