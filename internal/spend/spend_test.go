package spend

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerNeverExceedsWithoutCap(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := NewTracker(PeriodNever, time.Sunday, 1, 0, now)
	tr.Add(1_000_000)
	assert.False(t, tr.Exceeded())
}

func TestTrackerExceedsAtCap(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := NewTracker(PeriodNever, time.Sunday, 1, 10.0, now)
	tr.Add(5)
	require.False(t, tr.Exceeded())
	tr.Add(5)
	assert.True(t, tr.Exceeded())
}

func TestTrackerDailyResetCrossesUTCMidnight(t *testing.T) {
	start := time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)
	tr := NewTracker(PeriodDaily, time.Sunday, 1, 10.0, start)
	tr.Add(10)
	require.True(t, tr.Exceeded())

	beforeMidnight := start.Add(30 * time.Minute)
	tr.MaybeReset(beforeMidnight)
	assert.True(t, tr.Exceeded(), "reset must not fire before the period boundary")

	afterMidnight := start.Add(2 * time.Hour)
	tr.MaybeReset(afterMidnight)
	snap := tr.Snapshot()
	assert.False(t, snap.BudgetExceeded, "reset must fire once the daily boundary is crossed")
	assert.Zero(t, snap.CurrentSpendUsd)
	assert.Equal(t, afterMidnight, snap.PeriodStart)
}

func TestTrackerResetIsIdempotentAndMonotonic(t *testing.T) {
	start := time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)
	tr := NewTracker(PeriodDaily, time.Sunday, 1, 10.0, start)
	tr.Add(10)

	firstCrossing := start.Add(2 * time.Hour)
	tr.MaybeReset(firstCrossing)
	resetAt := tr.Snapshot().PeriodStart

	// Calling MaybeReset again shortly after must not re-anchor the period;
	// the boundary has not been crossed a second time.
	tr.MaybeReset(firstCrossing.Add(time.Minute))
	assert.Equal(t, resetAt, tr.Snapshot().PeriodStart)
}

func TestTrackerWeeklyReset(t *testing.T) {
	// 2026-03-10 is a Tuesday.
	start := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	tr := NewTracker(PeriodWeekly, time.Friday, 1, 10.0, start)
	tr.Add(10)
	require.True(t, tr.Exceeded())

	beforeFriday := start.AddDate(0, 0, 1) // Wednesday
	tr.MaybeReset(beforeFriday)
	assert.True(t, tr.Exceeded())

	onFriday := start.AddDate(0, 0, 3) // Friday
	tr.MaybeReset(onFriday)
	assert.False(t, tr.Snapshot().BudgetExceeded)
}

func TestTrackerMonthlyResetCapsDayAt28(t *testing.T) {
	start := time.Date(2026, 1, 31, 12, 0, 0, 0, time.UTC)
	tr := NewTracker(PeriodMonthly, time.Sunday, 31, 10.0, start)
	tr.Add(10)

	// ResetDayOfMonth is capped at 28, so the next boundary is Feb 28, not
	// Jan 31 (which doesn't exist as "day 31" in February anyway).
	beforeBoundary := time.Date(2026, 2, 27, 0, 0, 0, 0, time.UTC)
	tr.MaybeReset(beforeBoundary)
	assert.True(t, tr.Exceeded())

	atBoundary := time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)
	tr.MaybeReset(atBoundary)
	assert.False(t, tr.Snapshot().BudgetExceeded)
}

func TestCostIsLinearPerMillionTokens(t *testing.T) {
	cost := Cost(1_000_000, 500_000, 2.0, 4.0)
	assert.InDelta(t, 2.0+2.0, cost, 1e-9)
}
