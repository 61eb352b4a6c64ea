package satellite

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/star/satviz/internal/propagation"
	"github.com/star/satviz/internal/tle"
	"github.com/star/satviz/internal/tle/tletest"
	"github.com/star/satviz/internal/transform"
)

var target = time.Date(2025, 1, 25, 12, 0, 0, 0, time.UTC)

func activeISS(t *testing.T) *Entity {
	t.Helper()
	e, err := NewEntity("25544").Activate(tletest.ISS(t), propagation.DefaultOptions())
	require.NoError(t, err)
	return e
}

func TestEntityLifecycle(t *testing.T) {
	e := NewEntity("25544")
	assert.Equal(t, Uninitialized, e.State())
	assert.Nil(t, e.Record())
	assert.Nil(t, e.Propagator())

	active, err := e.Activate(tletest.ISS(t), propagation.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, Active, active.State())
	assert.Equal(t, Uninitialized, e.State(), "receiver must not change")

	moved, err := active.Propagate(target)
	require.NoError(t, err)
	res, ok := moved.Current()
	require.True(t, ok)
	assert.Equal(t, target, res.At)
	assert.Equal(t, transform.ECIToDisplay(res.Position), moved.Position())
	_, ok = active.Current()
	assert.False(t, ok, "receiver must not change")

	gone := moved.Evict(nil)
	assert.Equal(t, Evicted, gone.State())
	assert.NoError(t, gone.EvictionCause())
}

func TestEntityActivateErrors(t *testing.T) {
	_, err := NewEntity("00005").Activate(tletest.ISS(t), propagation.DefaultOptions())
	assert.Error(t, err, "record for another satellite")

	e := activeISS(t)
	_, err = e.Activate(tletest.ISS(t), propagation.DefaultOptions())
	assert.Error(t, err, "already active")

	_, err = e.Evict(nil).Activate(tletest.ISS(t), propagation.DefaultOptions())
	assert.ErrorIs(t, err, ErrEvicted)
}

func TestEntitySupersede(t *testing.T) {
	e := activeISS(t).WithOrbitVisible(true).WithOrbit([]transform.DisplayCoordinate{{1, 2, 3}}, target)
	old := e.Record()

	_, err := e.Supersede(old, propagation.DefaultOptions())
	assert.Error(t, err, "same epoch is not newer")

	_, err = e.Supersede(tletest.WithEpoch(old, old.Epoch.Add(-time.Hour)), propagation.DefaultOptions())
	assert.Error(t, err, "older epoch")

	newer := tletest.WithEpoch(old, old.Epoch.Add(time.Hour))
	next, err := e.Supersede(newer, propagation.DefaultOptions())
	require.NoError(t, err)
	assert.Same(t, newer, next.Record())
	assert.NotSame(t, e.Propagator(), next.Propagator())
	points, _ := next.Orbit()
	assert.Nil(t, points, "orbit of the old elements is dropped")
	assert.True(t, next.OrbitVisible())

	_, err = NewEntity("25544").Supersede(newer, propagation.DefaultOptions())
	assert.ErrorIs(t, err, ErrNotActive)
}

func TestEntityPropagateFailureEvicts(t *testing.T) {
	e, err := NewEntity("99901").Activate(tletest.Decayed(t), propagation.DefaultOptions())
	require.NoError(t, err)

	next, err := e.Propagate(target)
	require.Error(t, err)
	assert.True(t, errors.Is(err, propagation.ErrPropagation))
	assert.Equal(t, Evicted, next.State())
	assert.ErrorIs(t, next.EvictionCause(), propagation.ErrPropagation)

	_, err = next.Propagate(target)
	assert.ErrorIs(t, err, ErrNotActive)
}

func TestEntitySummary(t *testing.T) {
	e := activeISS(t)
	_, err := e.Summary()
	assert.ErrorIs(t, err, ErrNoPosition)

	_, err = NewEntity(tle.CatalogNumber("25544")).Summary()
	assert.ErrorIs(t, err, ErrNotActive)

	moved, err := e.Propagate(target)
	require.NoError(t, err)
	s, err := moved.Summary()
	require.NoError(t, err)
	assert.Equal(t, "25544", s.CatalogNumber.String())
	assert.Equal(t, target, s.At)
}

func TestEntityOrbitVisibility(t *testing.T) {
	e := activeISS(t)
	assert.False(t, e.OrbitVisible())

	points, err := e.SampleOrbit(8, target)
	require.NoError(t, err)
	assert.Len(t, points, 9)

	shown := e.WithOrbitVisible(true).WithOrbit(points, target)
	got, at := shown.Orbit()
	assert.Len(t, got, 9)
	assert.Equal(t, target, at)

	hidden := shown.WithOrbitVisible(false)
	got, at = hidden.Orbit()
	assert.Nil(t, got)
	assert.True(t, at.IsZero())

	_, err = NewEntity("25544").SampleOrbit(8, target)
	assert.ErrorIs(t, err, ErrNotActive)
}
