package propagation

import (
	"errors"
	"fmt"
	"time"

	"github.com/star/satviz/internal/tle"
	"github.com/star/satviz/internal/transform"
)

// Result is the state of one satellite at one instant.
type Result struct {
	Position transform.Vector // km, ECI (TEME)
	Velocity transform.Vector // km/s, ECI (TEME)
	At       time.Time
}

// Speed returns the magnitude of the ECI velocity in km/s.
func (r Result) Speed() float64 {
	return r.Velocity.Norm()
}

// ErrPropagation is matched by every *Error.
var ErrPropagation = errors.New("propagation failed")

// Error reports that the analytic model could not produce a usable state for
// a record at an instant. It is per-satellite: callers evict the satellite
// and carry on with the rest.
type Error struct {
	CatalogNumber tle.CatalogNumber
	At            time.Time
	Code          int64 // SGP4 error code, 0 when the failure was detected here
	Reason        string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("propagate %s at %s: %s", e.CatalogNumber, e.At.UTC().Format(time.RFC3339), e.Reason)
	if e.Code != 0 {
		msg += fmt.Sprintf(" (sgp4 code %d)", e.Code)
	}
	return msg
}

func (e *Error) Is(target error) bool { return target == ErrPropagation }

// Job is one satellite to propagate in a batch.
type Job struct {
	Key        tle.CatalogNumber
	Propagator *SGP4
}

// Outcome is the result of one Job. Exactly one of Result and Err is set.
type Outcome struct {
	Key    tle.CatalogNumber
	Result Result
	Err    error
}
