package circuitbreaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerStartsClosed(t *testing.T) {
	b := New(DefaultConfig())
	assert.Equal(t, Closed, b.State())
	assert.True(t, b.Allow(time.Now()))
}

func TestBreakerTripsAfterThresholdWithMinimumThroughput(t *testing.T) {
	cfg := Config{
		Enabled:                 true,
		FailureThreshold:        3,
		DurationOfBreakSeconds:  30,
		SamplingDurationSeconds: 60,
		MinimumThroughput:       3,
	}
	b := New(cfg)
	now := time.Now()

	b.RecordFailure(now)
	b.RecordFailure(now)
	require.Equal(t, Closed, b.State(), "below threshold and throughput, stays closed")

	b.RecordFailure(now)
	assert.Equal(t, Open, b.State(), "third failure crosses both threshold and minimum throughput")
	assert.False(t, b.Allow(now), "Open must fail fast")
}

func TestBreakerDoesNotTripBelowMinimumThroughput(t *testing.T) {
	cfg := Config{
		Enabled:                 true,
		FailureThreshold:        1,
		DurationOfBreakSeconds:  30,
		SamplingDurationSeconds: 60,
		MinimumThroughput:       10,
	}
	b := New(cfg)
	now := time.Now()

	for i := 0; i < 5; i++ {
		b.RecordFailure(now)
	}
	assert.Equal(t, Closed, b.State(), "100% failure rate but below MinimumThroughput must not trip")
}

func TestBreakerHalfOpenRecoversOnSuccess(t *testing.T) {
	cfg := Config{
		Enabled:                 true,
		FailureThreshold:        1,
		DurationOfBreakSeconds:  10,
		SamplingDurationSeconds: 60,
		MinimumThroughput:       1,
	}
	b := New(cfg)
	now := time.Now()

	b.RecordFailure(now)
	require.Equal(t, Open, b.State())

	afterBreak := now.Add(11 * time.Second)
	require.True(t, b.Allow(afterBreak), "break duration elapsed, probe must be allowed")
	assert.Equal(t, HalfOpen, b.State())

	require.False(t, b.Allow(afterBreak), "only one HalfOpen probe is allowed at a time")

	b.RecordSuccess(afterBreak)
	assert.Equal(t, Closed, b.State(), "a successful probe closes the breaker")
	assert.True(t, b.Allow(afterBreak))
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	cfg := Config{
		Enabled:                 true,
		FailureThreshold:        1,
		DurationOfBreakSeconds:  10,
		SamplingDurationSeconds: 60,
		MinimumThroughput:       1,
	}
	b := New(cfg)
	now := time.Now()

	b.RecordFailure(now)
	afterBreak := now.Add(11 * time.Second)
	require.True(t, b.Allow(afterBreak))
	require.Equal(t, HalfOpen, b.State())

	b.RecordFailure(afterBreak)
	assert.Equal(t, Open, b.State(), "a failed probe reopens the breaker immediately")
}

func TestBreakerDisabledAlwaysAllows(t *testing.T) {
	b := New(Config{Enabled: false})
	now := time.Now()
	for i := 0; i < 10; i++ {
		b.RecordFailure(now)
	}
	assert.True(t, b.Allow(now))
	assert.Equal(t, Closed, b.State())
}

func TestBreakerRollingWindowExpiresOldFailures(t *testing.T) {
	cfg := Config{
		Enabled:                 true,
		FailureThreshold:        2,
		DurationOfBreakSeconds:  30,
		SamplingDurationSeconds: 10,
		MinimumThroughput:       2,
	}
	b := New(cfg)
	start := time.Now()

	b.RecordFailure(start)
	// This second failure arrives after the first has aged out of the
	// 10s sampling window, so the rolling count never reaches 2.
	later := start.Add(11 * time.Second)
	b.RecordFailure(later)
	assert.Equal(t, Closed, b.State())
}
