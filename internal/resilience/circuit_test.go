package resilience_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-sortie/internal/resilience"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestBreakerTransitions(t *testing.T) {
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	breaker := resilience.NewBreaker(2, 0.5, time.Minute).WithClock(clk.now)
	ctx := context.Background()

	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)
	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)

	require.False(t, breaker.Allow(ctx), "breaker should open once the window is full of failures")
	require.Equal(t, resilience.Open, breaker.State())

	clk.advance(time.Minute)
	require.True(t, breaker.Allow(ctx), "breaker should let one probe through after cool off")
	require.Equal(t, resilience.HalfOpen, breaker.State())
	require.False(t, breaker.Allow(ctx), "only one probe may be in flight")

	breaker.Report(ctx, true)
	require.True(t, breaker.Allow(ctx), "breaker should close after a successful probe")
	require.Equal(t, resilience.Closed, breaker.State())
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	breaker := resilience.NewBreaker(1, 1, 10*time.Second).WithClock(clk.now)
	ctx := context.Background()

	breaker.Report(ctx, false)
	require.Equal(t, resilience.Open, breaker.State())

	clk.advance(10 * time.Second)
	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)
	require.Equal(t, resilience.Open, breaker.State())
	require.False(t, breaker.Allow(ctx))
}

func TestBreakerWindowForgetsOldFailures(t *testing.T) {
	breaker := resilience.NewBreaker(4, 0.75, time.Minute)
	ctx := context.Background()

	for _, ok := range []bool{false, false, true, true, true, false} {
		breaker.Report(ctx, ok)
	}
	// the window now holds [true, true, true, false]
	require.Equal(t, resilience.Closed, breaker.State())

	breaker.Report(ctx, false)
	breaker.Report(ctx, false)
	require.Equal(t, resilience.Open, breaker.State())
}

func TestStateString(t *testing.T) {
	require.Equal(t, "closed", resilience.Closed.String())
	require.Equal(t, "half_open", resilience.HalfOpen.String())
	require.Equal(t, "unknown", resilience.State(9).String())
}
