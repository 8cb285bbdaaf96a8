// Package ratelimit implements the process-wide throughput gate described
// in spec.md §4.4/§5: a token bucket governing MaxRequests/WindowSeconds
// paired with a semaphore bounding MaxConcurrentRequests, with a bounded
// wait queue beyond which callers fail fast with ErrorKind=RateLimit.
//
// The token bucket is grounded on the teacher's module graph, which
// already carries golang.org/x/time/rate as an indirect dependency for
// exactly this kind of shared gate; the concurrency semaphore is a
// buffered channel, the idiomatic Go substitute for the teacher's
// language-native semaphore primitives.
package ratelimit

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"
)

// ErrQueueFull is returned when QueueLimit callers are already inside
// Acquire, so no further caller may wait for a rate-limit slot.
var ErrQueueFull = errors.New("ratelimit: queue limit exceeded")

// Config mirrors the RateLimit option group (spec.md §6).
type Config struct {
	Enabled               bool
	MaxRequests           int
	WindowSeconds         int
	MaxConcurrentRequests int
	QueueLimit            int
}

// DefaultConfig disables rate limiting; callers opt in explicitly.
func DefaultConfig() Config {
	return Config{
		Enabled:               false,
		MaxRequests:           0,
		WindowSeconds:         1,
		MaxConcurrentRequests: 0,
		QueueLimit:            0,
	}
}

// Limiter gates dispatch for the Service. A nil or disabled Limiter is a
// no-op: Acquire returns a release func immediately.
type Limiter struct {
	cfg     Config
	bucket  *rate.Limiter
	sem     chan struct{}
	waiting chan struct{} // tracks callers currently queued, bounded by QueueLimit
}

// New builds a Limiter from cfg. When cfg.Enabled is false, the returned
// Limiter never blocks or rejects.
func New(cfg Config) *Limiter {
	l := &Limiter{cfg: cfg}
	if !cfg.Enabled {
		return l
	}
	if cfg.MaxRequests > 0 && cfg.WindowSeconds > 0 {
		every := time.Duration(cfg.WindowSeconds) * time.Second / time.Duration(cfg.MaxRequests)
		l.bucket = rate.NewLimiter(rate.Every(every), cfg.MaxRequests)
	}
	if cfg.MaxConcurrentRequests > 0 {
		l.sem = make(chan struct{}, cfg.MaxConcurrentRequests)
	}
	if cfg.QueueLimit > 0 {
		l.waiting = make(chan struct{}, cfg.QueueLimit)
	}
	return l
}

// Release is returned by Acquire and must be called exactly once when the
// caller's dispatch has completed.
type Release func()

// Acquire blocks (respecting ctx and the configured QueueLimit) until a
// rate-limit slot and a concurrency slot are both available. It returns
// ErrQueueFull if the wait queue is already at capacity, or ctx.Err() if
// the context is cancelled while waiting.
func (l *Limiter) Acquire(ctx context.Context) (Release, error) {
	if l == nil || !l.cfg.Enabled {
		return func() {}, nil
	}

	if l.waiting != nil {
		select {
		case l.waiting <- struct{}{}:
			defer func() { <-l.waiting }()
		default:
			return nil, ErrQueueFull
		}
	}

	if l.bucket != nil {
		if err := l.bucket.Wait(ctx); err != nil {
			return nil, err
		}
	}

	if l.sem != nil {
		select {
		case l.sem <- struct{}{}:
			return func() { <-l.sem }, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return func() {}, nil
}
