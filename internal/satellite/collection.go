package satellite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/star/satviz/internal/propagation"
	"github.com/star/satviz/internal/tle"
	"github.com/star/satviz/internal/transform"
)

// ErrSelectionFull is returned when a selection exceeds the configured limit.
var ErrSelectionFull = errors.New("selection limit reached")

// ErrUnknown is returned for catalog numbers that are not selected.
var ErrUnknown = errors.New("satellite not selected")

// Eviction describes a satellite dropped because it could not be propagated.
type Eviction struct {
	CatalogNumber tle.CatalogNumber
	Err           error
	// Entity is the terminal Evicted state of the satellite.
	Entity        *Entity
}

func evictionOf(e *Entity, cause error) Eviction {
	gone := e.Evict(cause)
	return Eviction{CatalogNumber: gone.CatalogNumber(), Err: gone.EvictionCause(), Entity: gone}
}

// Options configures a Collection.
// BatchPropagator runs one tick's propagation jobs. *propagation.WorkerPool
// implements it.
type BatchPropagator interface {
	PropagateBatch(ctx context.Context, jobs []propagation.Job, t time.Time) []propagation.Outcome
}

type Options struct {
	Propagation propagation.Options
	// Pool propagates active entities each tick. Nil uses a single worker.
	Pool BatchPropagator
	// MaxSelection caps the number of selected satellites; 0 means no cap.
	MaxSelection int
	// OnEvict is called after the snapshot without the satellite is published.
	OnEvict func(Eviction)
	Logger  *slog.Logger
}

// Collection holds the selected satellites. Readers call Snapshot and never
// block; writers are serialised and publish a new snapshot per change.
//
// Long-running work (propagation, orbit sampling) runs on the snapshot it
// started from and is applied only to entities that are still selected with
// the same element set, so removal cancels any in-flight result.
type Collection struct {
	snap atomic.Pointer[Snapshot]
	mu   sync.Mutex // serializes writers
	opts Options
}

// NewCollection returns an empty collection.
func NewCollection(opts Options) *Collection {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Pool == nil {
		opts.Pool = propagation.NewWorkerPool(1, opts.Logger)
	}
	c := &Collection{opts: opts}
	c.snap.Store(emptySnapshot())
	return c
}

// Snapshot returns the current immutable view.
func (c *Collection) Snapshot() *Snapshot {
	return c.snap.Load()
}

// update runs fn on a copy of the current snapshot and publishes it.
func (c *Collection) update(fn func(next *Snapshot) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.snap.Load().next()
	if err := fn(next); err != nil {
		return err
	}
	c.snap.Store(next)
	return nil
}

// Select replaces the selection with ids, in order. Satellites already
// selected keep their state; new ones start Uninitialized; the rest are
// dropped. Duplicate ids are ignored.
func (c *Collection) Select(ids []tle.CatalogNumber) (added, removed []tle.CatalogNumber, err error) {
	err = c.update(func(next *Snapshot) error {
		seen := make(map[tle.CatalogNumber]bool, len(ids))
		var order []tle.CatalogNumber
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				order = append(order, id)
			}
		}
		if c.opts.MaxSelection > 0 && len(order) > c.opts.MaxSelection {
			return fmt.Errorf("%w: %d requested, limit %d", ErrSelectionFull, len(order), c.opts.MaxSelection)
		}

		for _, id := range next.IDs() {
			if !seen[id] {
				next.remove(id)
				removed = append(removed, id)
			}
		}
		byID := next.byID
		next.order = next.order[:0]
		next.byID = make(map[tle.CatalogNumber]*Entity, len(order))
		for _, id := range order {
			e, ok := byID[id]
			if !ok {
				e = NewEntity(id)
				added = append(added, id)
			}
			next.put(e)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return added, removed, nil
}

// Add selects id. It reports false when id was already selected.
func (c *Collection) Add(id tle.CatalogNumber) (bool, error) {
	var added bool
	err := c.update(func(next *Snapshot) error {
		if next.Contains(id) {
			return nil
		}
		if c.opts.MaxSelection > 0 && next.Len() >= c.opts.MaxSelection {
			return fmt.Errorf("%w: limit %d", ErrSelectionFull, c.opts.MaxSelection)
		}
		next.put(NewEntity(id))
		added = true
		return nil
	})
	return added, err
}

// Remove drops id from the selection. It reports false when id was not selected.
func (c *Collection) Remove(id tle.CatalogNumber) bool {
	var removed bool
	c.update(func(next *Snapshot) error {
		removed = next.Contains(id)
		next.remove(id)
		return nil
	})
	return removed
}

// MergeReport lists what a Merge changed.
type MergeReport struct {
	Activated  []tle.CatalogNumber
	Superseded []tle.CatalogNumber
}

// Merge applies fetched records. Records for satellites no longer selected
// and records not newer than the current one are ignored.
func (c *Collection) Merge(records []*tle.Record) MergeReport {
	var report MergeReport
	c.update(func(next *Snapshot) error {
		for _, rec := range records {
			e, ok := next.Get(rec.CatalogNumber)
			if !ok {
				continue
			}
			switch e.State() {
			case Uninitialized:
				activated, err := e.Activate(rec, c.opts.Propagation)
				if err != nil {
					c.opts.Logger.Warn("activate failed", "catalog_number", rec.CatalogNumber, "error", err)
					continue
				}
				next.put(activated)
				report.Activated = append(report.Activated, rec.CatalogNumber)
			case Active:
				if !rec.Epoch.After(e.Record().Epoch) {
					continue
				}
				updated, err := e.Supersede(rec, c.opts.Propagation)
				if err != nil {
					continue
				}
				next.put(updated)
				report.Superseded = append(report.Superseded, rec.CatalogNumber)
			}
		}
		return nil
	})
	return report
}

// Reject drops a satellite that is still waiting for its first element set,
// because none usable could be obtained. It reports whether it was dropped.
func (c *Collection) Reject(id tle.CatalogNumber) bool {
	var rejected bool
	c.update(func(next *Snapshot) error {
		if e, ok := next.Get(id); ok && e.State() == Uninitialized {
			next.remove(id)
			rejected = true
		}
		return nil
	})
	return rejected
}

// SetOrbitVisible turns orbit upkeep on or off for id.
func (c *Collection) SetOrbitVisible(id tle.CatalogNumber, visible bool) error {
	return c.update(func(next *Snapshot) error {
		e, ok := next.Get(id)
		if !ok {
			return fmt.Errorf("%s: %w", id, ErrUnknown)
		}
		next.put(e.WithOrbitVisible(visible))
		return nil
	})
}

// TickReport summarises one Tick.
type TickReport struct {
	At       time.Time
	Updated  int
	Evicted  []Eviction
	Duration time.Duration
}

// Tick propagates every Active entity to t. All positions in the published
// snapshot are for the same instant: entities activated or superseded while
// the batch ran are propagated inline before publishing. A satellite that
// fails is evicted and reported; the others are unaffected. A cancelled tick
// publishes nothing.
func (c *Collection) Tick(ctx context.Context, t time.Time) (TickReport, error) {
	start := time.Now()
	base := c.snap.Load()

	var jobs []propagation.Job
	for _, e := range base.Entities() {
		if e.State() == Active {
			jobs = append(jobs, propagation.Job{Key: e.CatalogNumber(), Propagator: e.Propagator()})
		}
	}
	outcomes := c.opts.Pool.PropagateBatch(ctx, jobs, t)
	if err := ctx.Err(); err != nil {
		return TickReport{At: t, Duration: time.Since(start)}, err
	}

	report := TickReport{At: t}
	c.update(func(next *Snapshot) error {
		next.At = t
		applied := make(map[tle.CatalogNumber]bool, len(outcomes))
		for i, o := range outcomes {
			e, ok := next.Get(o.Key)
			if !ok || e.Propagator() != jobs[i].Propagator {
				continue
			}
			if o.Err != nil {
				if !errors.Is(o.Err, propagation.ErrPropagation) {
					continue
				}
				next.remove(o.Key)
				report.Evicted = append(report.Evicted, evictionOf(e, o.Err))
				continue
			}
			next.put(e.Apply(o.Result))
			applied[o.Key] = true
			report.Updated++
		}
		for _, e := range next.Entities() {
			if e.State() != Active || applied[e.CatalogNumber()] {
				continue
			}
			moved, err := e.Propagate(t)
			if err != nil {
				if !errors.Is(err, propagation.ErrPropagation) {
					continue
				}
				next.remove(e.CatalogNumber())
				report.Evicted = append(report.Evicted, Eviction{
					CatalogNumber: e.CatalogNumber(),
					Err:           moved.EvictionCause(),
					Entity:        moved,
				})
				continue
			}
			next.put(moved)
			report.Updated++
		}
		return nil
	})

	c.notify(report.Evicted)
	report.Duration = time.Since(start)
	return report, nil
}

// OrbitReport summarises one RefreshOrbits.
type OrbitReport struct {
	Refreshed int
	Evicted   []Eviction
}

// RefreshOrbits resamples the orbit of every Active entity with a visible
// orbit whose cached path is missing or more than maxAge of simulated time
// away from t. An orbit that cannot be sampled evicts the satellite.
func (c *Collection) RefreshOrbits(ctx context.Context, t time.Time, numSegments int, maxAge time.Duration) (OrbitReport, error) {
	type sampled struct {
		prop   *propagation.SGP4
		points []transform.DisplayCoordinate
		err    error
	}
	results := make(map[tle.CatalogNumber]sampled)
	for _, e := range c.snap.Load().OrbitsDue(t, maxAge) {
		if err := ctx.Err(); err != nil {
			return OrbitReport{}, err
		}
		pts, err := e.SampleOrbit(numSegments, t)
		if err != nil && !errors.Is(err, propagation.ErrPropagation) {
			return OrbitReport{}, err
		}
		results[e.CatalogNumber()] = sampled{prop: e.Propagator(), points: pts, err: err}
	}
	if len(results) == 0 {
		return OrbitReport{}, nil
	}

	var report OrbitReport
	c.update(func(next *Snapshot) error {
		for id, r := range results {
			e, ok := next.Get(id)
			if !ok || e.Propagator() != r.prop || !e.OrbitVisible() {
				continue
			}
			if r.err != nil {
				next.remove(id)
				report.Evicted = append(report.Evicted, evictionOf(e, r.err))
				continue
			}
			next.put(e.WithOrbit(r.points, t))
			report.Refreshed++
		}
		return nil
	})

	c.notify(report.Evicted)
	return report, nil
}

func (c *Collection) notify(evicted []Eviction) {
	for _, ev := range evicted {
		c.opts.Logger.Warn("satellite evicted",
			"catalog_number", ev.CatalogNumber,
			"error", ev.Err,
		)
		if c.opts.OnEvict != nil {
			c.opts.OnEvict(ev)
		}
	}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
