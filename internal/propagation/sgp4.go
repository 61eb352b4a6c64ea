package propagation

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
	"github.com/star/satviz/internal/tle"
	"github.com/star/satviz/internal/transform"
)

// SGP4 library choice: github.com/joshuaferrara/go-satellite
//
// Pure Go, covers both the near-Earth and deep-space (SDP4) branches, and
// exposes GMST/ECEF helpers used to cross-validate the transform package.
//
// Note: Propagate() takes Satellite by value so SGP4 error codes raised during
// propagation are not visible to the caller. We detect propagation failures by
// checking output for NaN/Inf and unreasonable position magnitudes.
//
// The library truncates both the element set epoch and the requested instant
// to whole seconds. The lost sub-second offset is applied linearly from the
// returned velocity, which is accurate to metres for a sub-second step. The
// epoch truncation happens after a floating-point day-to-seconds split, so
// an epoch on a whole second can lose almost a full second; modelEpoch
// repeats that split to recover exactly what the library dropped.

// Gravity selects the gravity model constants.
type Gravity int

const (
	// WGS72 is the model element sets are generated with.
	WGS72 Gravity = iota
	WGS84
)

// ParseGravity accepts "wgs72" or "wgs84", case-insensitively.
func ParseGravity(s string) (Gravity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "wgs72":
		return WGS72, nil
	case "wgs84":
		return WGS84, nil
	default:
		return 0, fmt.Errorf("unknown gravity model %q", s)
	}
}

func (g Gravity) String() string {
	if g == WGS84 {
		return "wgs84"
	}
	return "wgs72"
}

func (g Gravity) constants() satellite.Gravity {
	if g == WGS84 {
		return satellite.GravityWGS84
	}
	return satellite.GravityWGS72
}

// Radius bounds for a usable state vector, km from Earth's centre.
const (
	MinRadiusKm = 6200.0
	MaxRadiusKm = 500000.0
)

// Options configures an SGP4 propagator.
type Options struct {
	Gravity Gravity
	// MaxEpochAge rejects instants further than this from the record epoch.
	// Zero disables the check.
	MaxEpochAge time.Duration
}

// DefaultOptions returns WGS72 with a ten year epoch window.
func DefaultOptions() Options {
	return Options{
		Gravity:     WGS72,
		MaxEpochAge: 10 * 365 * 24 * time.Hour,
	}
}

// SGP4 propagates one element set. It holds only initialisation state and
// is safe for concurrent use.
type SGP4 struct {
	rec       *tle.Record
	sat       satellite.Satellite
	opts      Options
	epochFrac float64 // seconds the library drops from the epoch
}

// NewSGP4 initialises the model for rec. An initialisation failure inside the
// model is not returned here; it is reported by every Propagate call so that
// the satellite is evicted on its first tick like any other failure.
//
// rec must come from tle.ParseRecord: go-satellite calls log.Fatal on fields
// it cannot read, and the parser rejects every layout the library would.
func NewSGP4(rec *tle.Record, opts Options) *SGP4 {
	p := &SGP4{
		rec:  rec,
		sat:  satellite.TLEToSat(rec.Line1, rec.Line2, opts.Gravity.constants()),
		opts: opts,
	}
	if exact, err := tle.ParseEpoch(rec.Line1[18:32]); err == nil {
		p.epochFrac = exact.Sub(modelEpoch(rec.Line1)).Seconds()
	}
	return p
}

// modelEpoch returns the epoch go-satellite initialises the model with:
// the day fraction split into hours, minutes and seconds in float64, then
// the seconds truncated.
func modelEpoch(line1 string) time.Time {
	yy, _ := strconv.Atoi(line1[18:20])
	days, _ := strconv.ParseFloat(line1[20:32], 64)
	year := yy + 2000
	if yy >= 57 {
		year = yy + 1900
	}

	dayOfYear := math.Floor(days)
	temp := (days - dayOfYear) * 24.0
	hr := math.Floor(temp)
	temp = (temp - hr) * 60.0
	minute := math.Floor(temp)
	sec := (temp - minute) * 60.0

	return time.Date(year, 1, int(dayOfYear), int(hr), int(minute), int(sec), 0, time.UTC)
}

// Record returns the element set this propagator was built from.
func (p *SGP4) Record() *tle.Record { return p.rec }

// Propagate computes the ECI state at t.
func (p *SGP4) Propagate(t time.Time) (res Result, err error) {
	t = t.UTC()
	if p.sat.Error != 0 {
		return Result{}, p.fail(t, p.sat.Error, fmt.Sprintf("model initialisation: %s", p.sat.ErrorStr))
	}
	if p.opts.MaxEpochAge > 0 {
		age := t.Sub(p.rec.Epoch)
		if age < 0 {
			age = -age
		}
		if age > p.opts.MaxEpochAge {
			return Result{}, p.fail(t, 0, fmt.Sprintf("%.1f days from epoch exceeds limit of %.1f days",
				age.Hours()/24, p.opts.MaxEpochAge.Hours()/24))
		}
	}

	defer func() {
		if r := recover(); r != nil {
			err = p.fail(t, 0, fmt.Sprintf("model panic: %v", r))
		}
	}()

	whole := t.Truncate(time.Second)
	pos, vel := satellite.Propagate(p.sat, whole.Year(), int(whole.Month()), whole.Day(),
		whole.Hour(), whole.Minute(), whole.Second())

	r := transform.Vector{X: pos.X, Y: pos.Y, Z: pos.Z}
	v := transform.Vector{X: vel.X, Y: vel.Y, Z: vel.Z}
	if dt := t.Sub(whole).Seconds() - p.epochFrac; dt != 0 {
		r = r.Add(v.Scale(dt))
	}

	if !r.IsFinite() || !v.IsFinite() {
		return Result{}, p.fail(t, 0, "output is NaN/Inf")
	}
	if mag := r.Norm(); mag < MinRadiusKm || mag > MaxRadiusKm {
		return Result{}, p.fail(t, 0, fmt.Sprintf("unreasonable position magnitude %.1f km", mag))
	}

	return Result{Position: r, Velocity: v, At: t}, nil
}

func (p *SGP4) fail(t time.Time, code int64, reason string) *Error {
	return &Error{CatalogNumber: p.rec.CatalogNumber, At: t, Code: code, Reason: reason}
}

// Propagate computes the state of rec at t with DefaultOptions.
func Propagate(rec *tle.Record, t time.Time) (Result, error) {
	return NewSGP4(rec, DefaultOptions()).Propagate(t)
}
