package poll

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/envagent/envboot/fault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances only when Sleep is called.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(d time.Duration) {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
}

func TestRunSucceedsAfterTransientPolls(t *testing.T) {
	clock := newFakeClock()
	polls := 0
	stats, err := Run(context.Background(), clock, time.Minute, 10*time.Second, func() (bool, error) {
		polls++
		return polls == 3, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Polls)
	assert.Equal(t, []time.Duration{10 * time.Second, 10 * time.Second}, clock.sleeps)
}

func TestRunTimesOut(t *testing.T) {
	clock := newFakeClock()
	stats, err := Run(context.Background(), clock, 25*time.Second, 10*time.Second, func() (bool, error) {
		return false, nil
	})
	require.Error(t, err)
	assert.Equal(t, fault.Timeout, fault.KindOf(err))
	assert.Equal(t, 3, stats.Polls)
}

func TestRunNeverSleepsPastBudget(t *testing.T) {
	clock := newFakeClock()
	start := clock.Now()
	_, err := Run(context.Background(), clock, 25*time.Second, 10*time.Second, func() (bool, error) {
		return false, nil
	})
	require.Error(t, err)
	// 10s + 10s + clamped 5s, never beyond the 25s budget
	assert.Equal(t, []time.Duration{10 * time.Second, 10 * time.Second, 5 * time.Second}, clock.sleeps)
	assert.Equal(t, 25*time.Second, clock.Now().Sub(start))
}

func TestRunStopsOnTerminalError(t *testing.T) {
	clock := newFakeClock()
	terminal := errors.New("lease entered ERROR state")
	stats, err := Run(context.Background(), clock, time.Minute, time.Second, func() (bool, error) {
		return false, terminal
	})
	assert.ErrorIs(t, err, terminal)
	assert.Equal(t, 1, stats.Polls)
	assert.Empty(t, clock.sleeps)
}

func TestRunRespectsContextCancellation(t *testing.T) {
	clock := newFakeClock()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, clock, time.Minute, time.Second, func() (bool, error) {
		t.Fatal("callback must not run after cancellation")
		return false, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
