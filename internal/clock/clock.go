// Package clock provides the simulated time that drives propagation.
//
// Simulated time advances by elapsed wall time multiplied by a time scale.
// Changing the scale freezes the current simulated time, changes the rate and
// resumes from the frozen instant, so time already elapsed is never rescaled.
package clock

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

// ErrScale reports a time scale below 1 or not a number.
var ErrScale = errors.New("time scale must be a number >= 1")

// SimClock is the read side of a Clock.
type SimClock interface {
	Now() time.Time
}

// State is a consistent view of the clock.
type State struct {
	Now    time.Time `json:"now"`
	Scale  float64   `json:"scale"`
	Paused bool      `json:"paused"`
}

// Clock is a pausable, scalable simulated clock. Safe for concurrent use.
type Clock struct {
	mu     sync.RWMutex
	wall   func() time.Time
	base   time.Time // simulated time at anchor
	anchor time.Time // wall time of the last freeze
	scale  float64
	paused bool
}

// Option configures a Clock.
type Option func(*Clock)

// WithWallClock replaces time.Now as the wall time source.
func WithWallClock(now func() time.Time) Option {
	return func(c *Clock) { c.wall = now }
}

// New returns a running clock at start with scale 1.
func New(start time.Time, opts ...Option) *Clock {
	c := &Clock{
		wall:  time.Now,
		scale: 1,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.base = start.UTC()
	c.anchor = c.wall()
	return c
}

// Now returns the current simulated time.
func (c *Clock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.at(c.wall())
}

func (c *Clock) at(wall time.Time) time.Time {
	if c.paused {
		return c.base
	}
	elapsed := wall.Sub(c.anchor)
	if elapsed < 0 {
		elapsed = 0
	}
	return c.base.Add(time.Duration(float64(elapsed) * c.scale))
}

// freeze folds elapsed time into base. Callers hold mu.
func (c *Clock) freeze() {
	w := c.wall()
	c.base = c.at(w)
	c.anchor = w
}

// Scale returns the current time scale.
func (c *Clock) Scale() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.scale
}

// SetScale changes the rate at which simulated time advances.
func (c *Clock) SetScale(scale float64) error {
	if math.IsNaN(scale) || math.IsInf(scale, 0) || scale < 1 {
		return fmt.Errorf("%w: got %v", ErrScale, scale)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.freeze()
	c.scale = scale
	return nil
}

// Pause stops simulated time. Pausing a paused clock is a no-op.
func (c *Clock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		return
	}
	c.freeze()
	c.paused = true
}

// Resume restarts simulated time from where it was paused.
func (c *Clock) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused {
		return
	}
	c.anchor = c.wall()
	c.paused = false
}

// Paused reports whether the clock is paused.
func (c *Clock) Paused() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.paused
}

// Set jumps simulated time to t, keeping scale and paused state.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.base = t.UTC()
	c.anchor = c.wall()
}

// State returns the time, scale and paused flag read together.
func (c *Clock) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return State{Now: c.at(c.wall()), Scale: c.scale, Paused: c.paused}
}
