package propagation

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/star/satviz/internal/tle"
	"github.com/star/satviz/internal/tle/tletest"
	"github.com/star/satviz/internal/transform"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func vec(a [3]float64) transform.Vector {
	return transform.Vector{X: a[0], Y: a[1], Z: a[2]}
}

// TestPropagateGolden checks Vanguard 1 against the published Vallado
// verification states.
func TestPropagateGolden(t *testing.T) {
	rec := tletest.Vanguard(t)
	p := NewSGP4(rec, DefaultOptions())

	tests := []struct {
		name   string
		offset time.Duration
		r, v   [3]float64
	}{
		{"epoch", 0, tletest.VanguardR0, tletest.VanguardV0},
		{"plus 360 min", 360 * time.Minute, tletest.VanguardR360, tletest.VanguardV360},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := p.Propagate(rec.Epoch.Add(tt.offset))
			if err != nil {
				t.Fatalf("Propagate: %v", err)
			}
			if d := res.Position.Sub(vec(tt.r)).Norm(); d > 1.0 {
				t.Errorf("position = %+v, want %v (off by %.3f km)", res.Position, tt.r, d)
			}
			if d := res.Velocity.Sub(vec(tt.v)).Norm(); d > 1e-3 {
				t.Errorf("velocity = %+v, want %v (off by %.6f km/s)", res.Velocity, tt.v, d)
			}
		})
	}
}

// ISS reference states for tletest.ISS from a Vallado SGP4 run with WGS72
// (km, km/s). The same implementation reproduces the Vanguard 1 states above
// to the millimetre.
var (
	issR0  = [3]float64{3457.49248, 2465.06375, 5291.83535}
	issV0  = [3]float64{-3.80491634, 6.62839698, -0.60244619}
	issR10 = [3]float64{582.58710, 5601.61285, 3787.32997}
	issV10 = [3]float64{-5.40958836, 3.42364741, -4.21977261}
)

// TestPropagateISS checks the ISS ten minutes after epoch against the
// reference state.
func TestPropagateISS(t *testing.T) {
	rec := tletest.ISS(t)
	target := rec.Epoch.Add(10 * time.Minute)

	res, err := Propagate(rec, target)
	if err != nil {
		t.Fatalf("Propagate: %v", err)
	}

	if d := res.Position.Sub(vec(issR10)).Norm(); d > 1.0 {
		t.Errorf("position = %+v, want %v (off by %.3f km)", res.Position, issR10, d)
	}
	if d := res.Velocity.Sub(vec(issV10)).Norm(); d > 1e-3 {
		t.Errorf("velocity = %+v, want %v (off by %.6f km/s)", res.Velocity, issV10, d)
	}
	if !res.At.Equal(target) {
		t.Errorf("At = %v, want %v", res.At, target)
	}
}

// withEpoch rewrites the epoch columns of a line 1 and fixes its checksum.
func withEpoch(line1, epoch string) string {
	l := line1[:18] + epoch + line1[32:]
	return l[:tle.LineLength-1] + strconv.Itoa(tle.Checksum(l))
}

// TestPropagateWholeSecondEpoch verifies epochs whose day fraction lands on a
// whole second propagate from the right instant. The state at epoch does not
// depend on the epoch itself, so each variant must match the ISS state at
// epoch.
func TestPropagateWholeSecondEpoch(t *testing.T) {
	for _, epoch := range []string{"25025.00062500", "25025.00062501", "25025.50000000", "25025.00048859"} {
		t.Run(epoch, func(t *testing.T) {
			rec := tletest.MustParse(t, withEpoch(tletest.ISSLine1, epoch), tletest.ISSLine2)
			p := NewSGP4(rec, DefaultOptions())

			for _, offset := range []time.Duration{0, 10 * time.Minute} {
				res, err := p.Propagate(rec.Epoch.Add(offset))
				if err != nil {
					t.Fatalf("Propagate(+%v): %v", offset, err)
				}
				want := issR0
				if offset > 0 {
					want = issR10
				}
				if d := res.Position.Sub(vec(want)).Norm(); d > 0.05 {
					t.Errorf("+%v: position off by %.3f km", offset, d)
				}
			}
		})
	}
}

func TestModelEpoch(t *testing.T) {
	tests := []struct {
		epoch string
		want  time.Time
	}{
		// 0.000625 d is 54 s but the float split yields 53.99999999995.
		{"25025.00062500", time.Date(2025, 1, 25, 0, 0, 53, 0, time.UTC)},
		{"25025.00048859", time.Date(2025, 1, 25, 0, 0, 42, 0, time.UTC)},
		{"00179.78495062", time.Date(2000, 6, 27, 18, 50, 19, 0, time.UTC)},
	}
	for _, tt := range tests {
		line1 := withEpoch(tletest.ISSLine1, tt.epoch)
		if got := modelEpoch(line1); !got.Equal(tt.want) {
			t.Errorf("modelEpoch(%s) = %v, want %v", tt.epoch, got, tt.want)
		}
	}
}

// TestPropagateDeepSpace exercises the SDP4 branch with a two-revolution-per-day orbit.
func TestPropagateDeepSpace(t *testing.T) {
	rec := tletest.GPS(t)
	res, err := Propagate(rec, rec.Epoch.Add(3*time.Hour))
	if err != nil {
		t.Fatalf("Propagate: %v", err)
	}
	// a ≈ 26560 km, e = 0.01.
	if mag := res.Position.Norm(); mag < 26000 || mag > 27100 {
		t.Errorf("position magnitude = %.1f km, expected ~26560", mag)
	}
}

func TestPropagateDeterministic(t *testing.T) {
	rec := tletest.ISS(t)
	target := rec.Epoch.Add(47*time.Minute + 250*time.Millisecond)

	a, errA := Propagate(rec, target)
	b, errB := Propagate(rec, target)
	if errA != nil || errB != nil {
		t.Fatalf("Propagate: %v, %v", errA, errB)
	}
	if a != b {
		t.Errorf("results differ:\n  %+v\n  %+v", a, b)
	}
}

// TestPropagateSubSecond verifies instants between whole seconds move the
// satellite along its velocity.
func TestPropagateSubSecond(t *testing.T) {
	p := NewSGP4(tletest.ISS(t), DefaultOptions())
	base := time.Date(2025, 1, 25, 1, 0, 0, 0, time.UTC)

	a, err := p.Propagate(base)
	if err != nil {
		t.Fatalf("Propagate: %v", err)
	}
	b, err := p.Propagate(base.Add(500 * time.Millisecond))
	if err != nil {
		t.Fatalf("Propagate: %v", err)
	}
	want := a.Position.Add(a.Velocity.Scale(0.5))
	if d := b.Position.Sub(want).Norm(); d > 0.01 {
		t.Errorf("half-second step off by %.4f km", d)
	}
}

// TestPropagateEpochAge verifies a record far from its epoch fails with a
// typed error instead of returning garbage.
func TestPropagateEpochAge(t *testing.T) {
	rec := tletest.Decayed(t)
	_, err := Propagate(rec, time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, ErrPropagation) {
		t.Errorf("errors.Is(err, ErrPropagation) = false for %v", err)
	}
	var pe *Error
	if !errors.As(err, &pe) {
		t.Fatalf("error %T is not *Error", err)
	}
	if pe.CatalogNumber != "99901" {
		t.Errorf("CatalogNumber = %q, want 99901", pe.CatalogNumber)
	}
	if !strings.Contains(err.Error(), "99901") {
		t.Errorf("message %q does not name the satellite", err.Error())
	}
}

func TestMaxEpochAgeDisabled(t *testing.T) {
	rec := tletest.ISS(t)
	opts := Options{Gravity: WGS72, MaxEpochAge: time.Hour}
	if _, err := NewSGP4(rec, opts).Propagate(rec.Epoch.Add(2 * time.Hour)); !errors.Is(err, ErrPropagation) {
		t.Errorf("expected epoch age error, got %v", err)
	}
	opts.MaxEpochAge = 0
	if _, err := NewSGP4(rec, opts).Propagate(rec.Epoch.Add(2 * time.Hour)); err != nil {
		t.Errorf("unexpected error with check disabled: %v", err)
	}
}

func TestGravityModels(t *testing.T) {
	rec := tletest.ISS(t)
	target := rec.Epoch.Add(30 * time.Minute)

	a, err := NewSGP4(rec, Options{Gravity: WGS72}).Propagate(target)
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewSGP4(rec, Options{Gravity: WGS84}).Propagate(target)
	if err != nil {
		t.Fatal(err)
	}
	// The models differ slightly but describe the same orbit.
	if d := a.Position.Sub(b.Position).Norm(); d > 5 {
		t.Errorf("WGS72 and WGS84 differ by %.3f km", d)
	}

	for _, s := range []string{"wgs72", "WGS84", " wgs84 "} {
		if _, err := ParseGravity(s); err != nil {
			t.Errorf("ParseGravity(%q): %v", s, err)
		}
	}
	if _, err := ParseGravity("egm96"); err == nil {
		t.Error("ParseGravity(egm96) expected error")
	}
	if WGS84.String() != "wgs84" || WGS72.String() != "wgs72" {
		t.Error("unexpected gravity names")
	}
}

// TestWorkerPoolBatch verifies every job gets an outcome, in order, and
// that one failure does not affect the others.
func TestWorkerPoolBatch(t *testing.T) {
	opts := DefaultOptions()
	recs := []*tle.Record{tletest.ISS(t), tletest.Decayed(t), tletest.GPS(t), tletest.Vanguard(t)}
	jobs := make([]Job, len(recs))
	for i, rec := range recs {
		jobs[i] = Job{Key: rec.CatalogNumber, Propagator: NewSGP4(rec, opts)}
	}
	// Half a day after the ISS epoch; Vanguard and the decayed record are
	// decades from theirs.
	target := time.Date(2025, 1, 25, 12, 0, 0, 0, time.UTC)

	parallel := NewWorkerPool(4, testLogger()).PropagateBatch(context.Background(), jobs, target)
	serial := NewWorkerPool(1, testLogger()).PropagateBatch(context.Background(), jobs, target)

	if len(parallel) != len(jobs) || len(serial) != len(jobs) {
		t.Fatalf("got %d/%d outcomes, want %d", len(parallel), len(serial), len(jobs))
	}
	for i, o := range parallel {
		if o.Key != jobs[i].Key {
			t.Errorf("outcome %d key = %s, want %s", i, o.Key, jobs[i].Key)
		}
		wantErr := o.Key == "99901" || o.Key == "00005"
		if (o.Err != nil) != wantErr {
			t.Errorf("%s: err = %v, wantErr %v", o.Key, o.Err, wantErr)
		}
		if o.Result != serial[i].Result {
			t.Errorf("%s: parallel and serial results differ", o.Key)
		}
	}
}

// TestWorkerPoolCancellation verifies the worker pool respects context cancellation.
func TestWorkerPoolCancellation(t *testing.T) {
	rec := tletest.ISS(t)
	p := NewSGP4(rec, DefaultOptions())
	jobs := make([]Job, 100)
	for i := range jobs {
		jobs[i] = Job{Key: rec.CatalogNumber, Propagator: p}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, workers := range []int{1, 4} {
		outcomes := NewWorkerPool(workers, testLogger()).PropagateBatch(ctx, jobs, rec.Epoch)
		if len(outcomes) != len(jobs) {
			t.Fatalf("workers=%d: got %d outcomes, want %d", workers, len(outcomes), len(jobs))
		}
		cancelled := 0
		for _, o := range outcomes {
			if errors.Is(o.Err, context.Canceled) {
				cancelled++
			}
		}
		if cancelled != len(jobs) {
			t.Errorf("workers=%d: %d of %d outcomes cancelled", workers, cancelled, len(jobs))
		}
	}
}

func TestWorkerPoolEmpty(t *testing.T) {
	if out := NewWorkerPool(0, testLogger()).PropagateBatch(context.Background(), nil, time.Now()); out != nil {
		t.Errorf("expected nil outcomes, got %v", out)
	}
}
