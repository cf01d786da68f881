package pncp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock drives a WindowLimiter deterministically: sleeps advance the
// clock instead of blocking.
type fakeClock struct {
	t      time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) sleep(_ context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	c.t = c.t.Add(d)
	return nil
}

func newTestLimiter(perMinute, perHour int, clk *fakeClock) *WindowLimiter {
	l := NewWindowLimiter(perMinute, perHour)
	l.now = clk.now
	l.sleep = clk.sleep
	return l
}

func TestWindowLimiterAdmitsUnderCeiling(t *testing.T) {
	clk := newFakeClock()
	l := newTestLimiter(3, 100, clk)

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Wait(context.Background()))
	}
	assert.Empty(t, clk.sleeps, "no waiting expected under the ceiling")
}

func TestWindowLimiterBlocksAtMinuteCeiling(t *testing.T) {
	clk := newFakeClock()
	l := newTestLimiter(2, 100, clk)

	require.NoError(t, l.Wait(context.Background()))
	clk.t = clk.t.Add(10 * time.Second)
	require.NoError(t, l.Wait(context.Background()))

	// Third request must wait until the first admission leaves the window,
	// 50s from now.
	require.NoError(t, l.Wait(context.Background()))
	require.Len(t, clk.sleeps, 1)
	assert.Equal(t, 50*time.Second, clk.sleeps[0])
}

func TestWindowLimiterBlocksAtHourCeiling(t *testing.T) {
	clk := newFakeClock()
	l := newTestLimiter(100, 2, clk)

	require.NoError(t, l.Wait(context.Background()))
	require.NoError(t, l.Wait(context.Background()))
	require.NoError(t, l.Wait(context.Background()))

	require.NotEmpty(t, clk.sleeps)
	assert.Equal(t, time.Hour, clk.sleeps[0])
}

func TestWindowLimiterRecoversAfterWindowSlides(t *testing.T) {
	clk := newFakeClock()
	l := newTestLimiter(2, 100, clk)

	require.NoError(t, l.Wait(context.Background()))
	require.NoError(t, l.Wait(context.Background()))

	// Entries expire while idle, so the next request goes straight through.
	clk.t = clk.t.Add(61 * time.Second)
	require.NoError(t, l.Wait(context.Background()))
	assert.Empty(t, clk.sleeps)
}

func TestWindowLimiterCancelledContext(t *testing.T) {
	clk := newFakeClock()
	l := newTestLimiter(1, 100, clk)
	l.sleep = sleepCtx

	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := l.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPruneBefore(t *testing.T) {
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	ts := []time.Time{base, base.Add(time.Second), base.Add(2 * time.Second)}

	got := pruneBefore(ts, base.Add(time.Second))
	require.Len(t, got, 1)
	assert.Equal(t, base.Add(2*time.Second), got[0])

	assert.Len(t, pruneBefore(got, base), 1, "cutoff before all entries keeps everything")
	assert.Empty(t, pruneBefore(got, base.Add(time.Minute)))
}
