// Package satellite tracks the selected satellites: one Entity per catalog
// number, moving through Uninitialized, Active and Evicted, held in a
// Collection that readers see as immutable snapshots.
package satellite

import (
	"errors"
	"fmt"
	"time"

	"github.com/star/satviz/internal/orbit"
	"github.com/star/satviz/internal/propagation"
	"github.com/star/satviz/internal/tle"
	"github.com/star/satviz/internal/transform"
)

// State is the lifecycle state of an Entity.
type State int

const (
	// Uninitialized entities are selected but have no element set yet.
	Uninitialized State = iota
	// Active entities have an element set and are propagated every tick.
	Active
	// Evicted entities are terminal; a returning satellite gets a new Entity.
	Evicted
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Active:
		return "active"
	case Evicted:
		return "evicted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var (
	// ErrEvicted is returned for any transition out of Evicted.
	ErrEvicted = errors.New("satellite is evicted")
	// ErrNotActive is returned when an operation needs an element set.
	ErrNotActive = errors.New("satellite is not active")
	// ErrNoPosition is returned before the first successful propagation.
	ErrNoPosition = errors.New("satellite has no position yet")
)

// Entity is one tracked satellite. Entities are immutable values: every
// transition returns a new *Entity and leaves the receiver untouched, so a
// snapshot handed to a reader never changes underneath it.
type Entity struct {
	catalog    tle.CatalogNumber
	state      State
	record     *tle.Record
	prop       *propagation.SGP4
	current    propagation.Result
	hasCurrent bool
	position   transform.DisplayCoordinate

	orbit        []transform.DisplayCoordinate
	orbitAt      time.Time
	orbitVisible bool

	evictErr error
}

// NewEntity returns an Uninitialized entity for id.
func NewEntity(id tle.CatalogNumber) *Entity {
	return &Entity{catalog: id, state: Uninitialized}
}

func (e *Entity) clone() *Entity {
	c := *e
	return &c
}

// CatalogNumber returns the entity's catalog number.
func (e *Entity) CatalogNumber() tle.CatalogNumber { return e.catalog }

// State returns the lifecycle state.
func (e *Entity) State() State { return e.state }

// Record returns the element set, nil while Uninitialized.
func (e *Entity) Record() *tle.Record { return e.record }

// Propagator returns the SGP4 model for the record, nil while Uninitialized.
func (e *Entity) Propagator() *propagation.SGP4 { return e.prop }

// Current returns the last propagation result and whether there is one.
func (e *Entity) Current() (propagation.Result, bool) { return e.current, e.hasCurrent }

// Position returns the last display-frame position.
func (e *Entity) Position() transform.DisplayCoordinate { return e.position }

// Velocity returns the last ECI velocity in km/s.
func (e *Entity) Velocity() transform.Vector { return e.current.Velocity }

// Orbit returns the cached orbit path and the instant it was sampled from.
func (e *Entity) Orbit() ([]transform.DisplayCoordinate, time.Time) { return e.orbit, e.orbitAt }

// OrbitVisible reports whether the orbit path should be kept up to date.
func (e *Entity) OrbitVisible() bool { return e.orbitVisible }

// EvictionCause returns the error that evicted the entity, if any.
func (e *Entity) EvictionCause() error { return e.evictErr }

// Activate attaches the first element set.
func (e *Entity) Activate(rec *tle.Record, opts propagation.Options) (*Entity, error) {
	switch {
	case e.state == Evicted:
		return nil, ErrEvicted
	case e.state != Uninitialized:
		return nil, fmt.Errorf("activate %s: already %s", e.catalog, e.state)
	case rec.CatalogNumber != e.catalog:
		return nil, fmt.Errorf("activate %s: record is for %s", e.catalog, rec.CatalogNumber)
	}
	c := e.clone()
	c.state = Active
	c.record = rec
	c.prop = propagation.NewSGP4(rec, opts)
	return c, nil
}

// Supersede replaces the element set of an Active entity with a newer one.
// The cached orbit is dropped since it was sampled from the old elements.
func (e *Entity) Supersede(rec *tle.Record, opts propagation.Options) (*Entity, error) {
	switch {
	case e.state == Evicted:
		return nil, ErrEvicted
	case e.state != Active:
		return nil, fmt.Errorf("supersede %s: %w", e.catalog, ErrNotActive)
	case rec.CatalogNumber != e.catalog:
		return nil, fmt.Errorf("supersede %s: record is for %s", e.catalog, rec.CatalogNumber)
	case !rec.Epoch.After(e.record.Epoch):
		return nil, fmt.Errorf("supersede %s: epoch %s is not newer than %s",
			e.catalog, rec.Epoch.Format(time.RFC3339), e.record.Epoch.Format(time.RFC3339))
	}
	c := e.clone()
	c.record = rec
	c.prop = propagation.NewSGP4(rec, opts)
	c.orbit = nil
	c.orbitAt = time.Time{}
	return c, nil
}

// Propagate computes the entity's state at t. On failure it returns the
// Evicted successor together with the error.
func (e *Entity) Propagate(t time.Time) (*Entity, error) {
	if e.state != Active {
		return e, fmt.Errorf("propagate %s: %w", e.catalog, ErrNotActive)
	}
	res, err := e.prop.Propagate(t)
	if err != nil {
		return e.Evict(err), err
	}
	return e.Apply(res), nil
}

// Apply records a propagation result computed elsewhere from this entity's
// propagator.
func (e *Entity) Apply(res propagation.Result) *Entity {
	c := e.clone()
	c.current = res
	c.hasCurrent = true
	c.position = transform.ECIToDisplay(res.Position)
	return c
}

// Evict moves the entity to Evicted with the given cause. A nil cause means
// the satellite was removed from the selection.
func (e *Entity) Evict(cause error) *Entity {
	c := e.clone()
	c.state = Evicted
	c.evictErr = cause
	return c
}

// WithOrbit caches an orbit path sampled at at.
func (e *Entity) WithOrbit(points []transform.DisplayCoordinate, at time.Time) *Entity {
	c := e.clone()
	c.orbit = points
	c.orbitAt = at
	return c
}

// WithOrbitVisible toggles orbit upkeep. Hiding an orbit drops the cached path.
func (e *Entity) WithOrbitVisible(visible bool) *Entity {
	c := e.clone()
	c.orbitVisible = visible
	if !visible {
		c.orbit = nil
		c.orbitAt = time.Time{}
	}
	return c
}

// Summary derives the orbital summary from the last propagation result.
func (e *Entity) Summary() (orbit.Summary, error) {
	if e.state != Active {
		return orbit.Summary{}, fmt.Errorf("summary %s: %w", e.catalog, ErrNotActive)
	}
	if !e.hasCurrent {
		return orbit.Summary{}, fmt.Errorf("summary %s: %w", e.catalog, ErrNoPosition)
	}
	return orbit.ComputeSummary(e.record, e.current, e.current.At)
}

// SampleOrbit samples a fresh orbit path from t without caching it.
func (e *Entity) SampleOrbit(numSegments int, t time.Time) ([]transform.DisplayCoordinate, error) {
	if e.state != Active {
		return nil, fmt.Errorf("orbit %s: %w", e.catalog, ErrNotActive)
	}
	return orbit.Sample(e.prop, numSegments, t)
}
