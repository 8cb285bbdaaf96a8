// Package circuitbreaker implements the three-state (Closed/Open/HalfOpen)
// failure isolator used by one Backend Instance to stop dispatching calls
// to a provider that is failing.
//
// The state machine and its locking discipline are grounded on the
// teacher's llm/circuitbreaker.breaker type: a single mutex guarding a
// small struct, a rolling failure count reset on state transitions, and
// HalfOpen allowing exactly one probe through.
package circuitbreaker

import (
	"sync"
	"time"
)

// State is one of Closed, Open, HalfOpen.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "Closed"
	case Open:
		return "Open"
	case HalfOpen:
		return "HalfOpen"
	default:
		return "Unknown"
	}
}

// Config mirrors the CircuitBreaker option group in the root configuration
// (spec.md §6).
type Config struct {
	Enabled                 bool
	FailureThreshold        int
	DurationOfBreakSeconds  int
	SamplingDurationSeconds int
	MinimumThroughput       int
}

// DefaultConfig matches common defaults seen across the teacher's resilience
// configs: trip after 5 failures within a 30s rolling window, provided at
// least 10 requests were observed, and stay open for 30s.
func DefaultConfig() Config {
	return Config{
		Enabled:                 true,
		FailureThreshold:        5,
		DurationOfBreakSeconds:  30,
		SamplingDurationSeconds: 30,
		MinimumThroughput:       10,
	}
}

// event records one terminal outcome observed within the rolling sampling
// window, used only to compute rollingFailures/rollingRequests.
type event struct {
	at      time.Time
	success bool
}

// Breaker is a single Backend Instance's circuit breaker. The rolling
// window is trimmed lazily on each recorded outcome rather than by a
// background goroutine; RecordFailure counts the events still inside the
// window, so its critical section grows with the number of outcomes
// recorded within SamplingDurationSeconds.
type Breaker struct {
	cfg Config

	mu           sync.Mutex
	state        State
	openedAt     time.Time
	halfOpenUsed bool
	window       []event
}

// New constructs a Breaker starting Closed.
func New(cfg Config) *Breaker {
	return &Breaker{cfg: cfg, state: Closed}
}

// Allow reports whether a call should be dispatched right now. When it
// returns false the caller must fail fast with ErrorKind=CircuitOpen
// without touching the adapter. Calling Allow transitions Open→HalfOpen
// once the break duration has elapsed, per spec.md §4.4's state table.
func (b *Breaker) Allow(now time.Time) bool {
	if !b.cfg.Enabled {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if now.Sub(b.openedAt) >= time.Duration(b.cfg.DurationOfBreakSeconds)*time.Second {
			b.state = HalfOpen
			b.halfOpenUsed = false
		} else {
			return false
		}
		fallthrough
	case HalfOpen:
		if b.halfOpenUsed {
			return false
		}
		b.halfOpenUsed = true
		return true
	default:
		return true
	}
}

// RecordSuccess transitions HalfOpen→Closed and resets the rolling window.
func (b *Breaker) RecordSuccess(now time.Time) {
	if !b.cfg.Enabled {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(now, true)
	if b.state == HalfOpen {
		b.state = Closed
		b.window = nil
	}
}

// RecordFailure trips the breaker to Open once the rolling failure count
// reaches FailureThreshold with at least MinimumThroughput observations in
// the sampling window, or immediately on a HalfOpen probe failure.
func (b *Breaker) RecordFailure(now time.Time) {
	if !b.cfg.Enabled {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(now, false)

	if b.state == HalfOpen {
		b.trip(now)
		return
	}
	total, failures := b.rollingCountsLocked()
	if total >= b.cfg.MinimumThroughput && failures >= b.cfg.FailureThreshold {
		b.trip(now)
	}
}

func (b *Breaker) trip(now time.Time) {
	b.state = Open
	b.openedAt = now
	b.window = nil
}

func (b *Breaker) record(now time.Time, success bool) {
	b.window = append(b.window, event{at: now, success: success})
	cutoff := now.Add(-time.Duration(b.cfg.SamplingDurationSeconds) * time.Second)
	i := 0
	for i < len(b.window) && b.window[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		b.window = b.window[i:]
	}
}

func (b *Breaker) rollingCountsLocked() (total, failures int) {
	for _, e := range b.window {
		total++
		if !e.success {
			failures++
		}
	}
	return total, failures
}

// State returns the current state for health reporting.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Ready reports whether a call would reach the adapter right now, without
// mutating any state: Closed and HalfOpen are always ready, and Open is
// ready once DurationOfBreakSeconds has elapsed since openedAt. Selection
// must consult this rather than State alone — the actual Open->HalfOpen
// transition only happens inside Allow, which a permanently-excluded
// backend would never reach.
func (b *Breaker) Ready(now time.Time) bool {
	if !b.cfg.Enabled {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != Open {
		return true
	}
	return now.Sub(b.openedAt) >= time.Duration(b.cfg.DurationOfBreakSeconds)*time.Second
}

// OpenedAt returns the timestamp of the most recent Open transition (zero
// value if the breaker has never tripped).
func (b *Breaker) OpenedAt() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.openedAt
}
