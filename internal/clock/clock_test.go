package clock

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeWall is a manually advanced wall clock.
type fakeWall struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeWall) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeWall) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

var simStart = time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC)

func newTestClock() (*Clock, *fakeWall) {
	wall := &fakeWall{now: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)}
	return New(simStart, WithWallClock(wall.Now)), wall
}

// TestTimeScaleLaw verifies clock(t0+Δ) - clock(t0) = Δ·s.
func TestTimeScaleLaw(t *testing.T) {
	for _, s := range []float64{1, 2, 10, 60, 1000} {
		for _, delta := range []time.Duration{time.Millisecond, 30 * time.Millisecond, time.Second, time.Hour} {
			c, wall := newTestClock()
			require.NoError(t, c.SetScale(s))

			t0 := c.Now()
			wall.Advance(delta)
			got := c.Now().Sub(t0)
			want := time.Duration(float64(delta) * s)
			assert.InDelta(t, float64(want), float64(got), 1, "scale=%v delta=%v", s, delta)
		}
	}
}

// TestScaleChangeDoesNotRescaleElapsed verifies freeze, change rate, resume.
func TestScaleChangeDoesNotRescaleElapsed(t *testing.T) {
	c, wall := newTestClock()

	wall.Advance(10 * time.Second)
	assert.Equal(t, simStart.Add(10*time.Second), c.Now())

	require.NoError(t, c.SetScale(100))
	assert.Equal(t, simStart.Add(10*time.Second), c.Now(), "elapsed time must not be rescaled")

	wall.Advance(time.Second)
	assert.Equal(t, simStart.Add(110*time.Second), c.Now())

	require.NoError(t, c.SetScale(1))
	wall.Advance(time.Second)
	assert.Equal(t, simStart.Add(111*time.Second), c.Now())
}

func TestSetScaleRejectsInvalid(t *testing.T) {
	c, _ := newTestClock()
	for _, s := range []float64{0, 0.5, -2, math.NaN(), math.Inf(1)} {
		err := c.SetScale(s)
		assert.True(t, errors.Is(err, ErrScale), "SetScale(%v) = %v", s, err)
	}
	assert.Equal(t, 1.0, c.Scale())
}

func TestPauseResume(t *testing.T) {
	c, wall := newTestClock()
	require.NoError(t, c.SetScale(5))

	wall.Advance(2 * time.Second)
	c.Pause()
	c.Pause()
	assert.True(t, c.Paused())
	frozen := c.Now()
	assert.Equal(t, simStart.Add(10*time.Second), frozen)

	wall.Advance(time.Hour)
	assert.Equal(t, frozen, c.Now(), "paused clock must not advance")

	// Scale changes while paused apply after resume.
	require.NoError(t, c.SetScale(2))
	assert.Equal(t, frozen, c.Now())

	c.Resume()
	c.Resume()
	assert.False(t, c.Paused())
	wall.Advance(time.Second)
	assert.Equal(t, frozen.Add(2*time.Second), c.Now())
}

func TestMonotonic(t *testing.T) {
	c, wall := newTestClock()
	prev := c.Now()
	for i := 0; i < 50; i++ {
		wall.Advance(7 * time.Millisecond)
		if i%10 == 0 {
			require.NoError(t, c.SetScale(float64(1+i)))
		}
		if i == 25 {
			c.Pause()
			c.Resume()
		}
		now := c.Now()
		assert.False(t, now.Before(prev), "step %d went backwards", i)
		prev = now
	}
}

func TestSetAndState(t *testing.T) {
	c, wall := newTestClock()
	require.NoError(t, c.SetScale(3))
	target := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.Set(target)
	wall.Advance(time.Second)

	st := c.State()
	assert.Equal(t, target.Add(3*time.Second), st.Now)
	assert.Equal(t, 3.0, st.Scale)
	assert.False(t, st.Paused)

	var _ SimClock = c
}

func TestRealWallClock(t *testing.T) {
	c := New(simStart)
	time.Sleep(5 * time.Millisecond)
	assert.True(t, c.Now().After(simStart))
}
