package router

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/polyglotai/router/circuitbreaker"
	"github.com/polyglotai/router/internal/spend"
	"github.com/polyglotai/router/metrics"
)

const latencyRingSize = 100

// Health is the snapshot returned by BackendInstance.GetHealth (spec.md
// §4.2).
type Health struct {
	IsHealthy          bool
	AvgLatencyMs       float64
	SuccessfulRequests int64
	FailedRequests     int64
	LastError          string
	LastSuccessAt      time.Time
	CircuitState       circuitbreaker.State
	CurrentSpendUsd    float64
	MaxSpendUsd        float64
	BudgetExceeded     bool
	SpendPeriodStart   time.Time
}

// BackendInstance wraps one Adapter with configuration, per-instance
// counters, and circuit-breaker state (spec.md §4.2). The latency ring and
// last-error/last-success fields are guarded by mu; the circuit breaker
// and the spend tracker each hold their own mutex, so the three are not
// updated together under one lock. successCount, failureCount, and the
// in-flight gauge use atomics.
type BackendInstance struct {
	cfg     BackendConfig
	adapter Adapter
	logger  *zap.Logger
	metrics *metrics.Metrics

	successCount atomic.Int64
	failureCount atomic.Int64
	inFlight     atomic.Int64

	mu             sync.Mutex
	latencySamples []float64
	latencyHead    int
	lastError      string
	lastSuccessAt  time.Time

	breaker *circuitbreaker.Breaker
	spend   *spend.Tracker
}

func newBackendInstance(cfg BackendConfig, adapter Adapter, logger *zap.Logger, m *metrics.Metrics, cb circuitbreaker.Config, now time.Time) *BackendInstance {
	var maxSpend float64
	if cfg.MaxSpendUsd != nil {
		maxSpend = *cfg.MaxSpendUsd
	}
	period := cfg.SpendResetPeriod
	if period == "" {
		period = spend.PeriodNever
	}
	return &BackendInstance{
		cfg:     cfg,
		adapter: adapter,
		logger:  logger,
		metrics: m,
		breaker: circuitbreaker.New(cb),
		spend:   spend.NewTracker(period, cfg.SpendResetDayOfWeek, cfg.SpendResetDayOfMonth, maxSpend, now),
	}
}

// Name is the backend's configured, unique name.
func (b *BackendInstance) Name() string { return b.cfg.Name }

// Config exposes the immutable configuration this instance was built from.
func (b *BackendInstance) Config() BackendConfig { return b.cfg }

// Available reports whether this instance is a candidate for selection
// right now (spec.md §3 invariant 3): enabled, not over budget, and the
// circuit is Closed, HalfOpen, or Open with its break duration already
// elapsed (Breaker.Ready) — selection must not gate on the breaker's
// stored State alone, since the Open->HalfOpen transition only happens
// inside Allow, which a never-selected backend would never reach.
func (b *BackendInstance) Available(now time.Time) bool {
	if !b.cfg.Enabled {
		return false
	}
	b.spend.MaybeReset(now)
	if b.spend.Exceeded() {
		return false
	}
	return b.breaker.Ready(now)
}

// AvgLatencyMs returns the mean of the bounded latency ring, or 0 when
// empty (spec.md §3 invariant 2).
func (b *BackendInstance) AvgLatencyMs() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.avgLatencyLocked()
}

func (b *BackendInstance) avgLatencyLocked() float64 {
	if len(b.latencySamples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range b.latencySamples {
		sum += v
	}
	return sum / float64(len(b.latencySamples))
}

// HealthScore is a stepped 0-1 health estimate layered on top of the
// binary IsHealthy flag (SPEC_FULL.md §9 supplement, grounded on the
// teacher's HealthMonitor.GetHealthScore). It is derived from the error
// rate over all requests since construction (1.0, 0.8, 0.5 or 0.2 as that
// rate passes 1%, 5% and 10%) rather than flipping once a single failure
// occurs.
func (b *BackendInstance) HealthScore() float64 {
	successes := b.successCount.Load()
	failures := b.failureCount.Load()
	total := successes + failures
	if total == 0 {
		return 1.0
	}
	errorRate := float64(failures) / float64(total)
	switch {
	case errorRate > 0.10:
		return 0.2
	case errorRate > 0.05:
		return 0.5
	case errorRate > 0.01:
		return 0.8
	default:
		return 1.0
	}
}

// GetHealth returns a point-in-time snapshot (spec.md §4.2).
func (b *BackendInstance) GetHealth() Health {
	b.mu.Lock()
	avg := b.avgLatencyLocked()
	lastErr := b.lastError
	lastSuccess := b.lastSuccessAt
	b.mu.Unlock()

	successes := b.successCount.Load()
	failures := b.failureCount.Load()
	snap := b.spend.Snapshot()

	return Health{
		IsHealthy:          successes > 0 || failures == 0,
		AvgLatencyMs:       avg,
		SuccessfulRequests: successes,
		FailedRequests:     failures,
		LastError:          lastErr,
		LastSuccessAt:      lastSuccess,
		CircuitState:       b.breaker.State(),
		CurrentSpendUsd:    snap.CurrentSpendUsd,
		MaxSpendUsd:        snap.MaxSpendUsd,
		BudgetExceeded:     snap.BudgetExceeded,
		SpendPeriodStart:   snap.PeriodStart,
	}
}

// preDispatch runs the pre-dispatch checks from spec.md §4.2 steps 1-5,
// returning a non-nil *Response only when the call must fail fast without
// reaching the adapter.
func (b *BackendInstance) preDispatch(now time.Time, backendName, model string) *Response {
	if !b.cfg.Enabled {
		return &Response{Success: false, Backend: backendName, Model: model, ErrorKind: ErrorKindDisabled, ErrorMessage: "backend is disabled"}
	}

	b.spend.MaybeReset(now)
	if b.spend.Exceeded() {
		if b.cfg.LogBudgetExceeded {
			b.logger.Warn("backend budget exceeded", zap.String("backend", backendName))
		}
		return &Response{Success: false, Backend: backendName, Model: model, ErrorKind: ErrorKindBudgetExceeded, ErrorMessage: "max spend exceeded for current period"}
	}

	if !b.breaker.Allow(now) {
		return &Response{Success: false, Backend: backendName, Model: model, ErrorKind: ErrorKindCircuitOpen, ErrorMessage: "circuit breaker open"}
	}

	b.inFlight.Add(1)
	if b.metrics != nil {
		b.metrics.ActiveRequests.WithLabelValues(backendName).Set(float64(b.inFlight.Load()))
	}
	return nil
}

// postDispatch records the outcome of a dispatched call (spec.md §4.2
// steps 1-4): latency sample, success/failure counters, spend accrual,
// circuit transitions, and metric emission.
func (b *BackendInstance) postDispatch(now time.Time, resp *Response, durationMs int64) {
	b.inFlight.Add(-1)
	backendName := b.cfg.Name
	model := resp.Model

	b.mu.Lock()
	if len(b.latencySamples) < latencyRingSize {
		b.latencySamples = append(b.latencySamples, float64(durationMs))
	} else {
		b.latencySamples[b.latencyHead] = float64(durationMs)
		b.latencyHead = (b.latencyHead + 1) % latencyRingSize
	}
	b.mu.Unlock()

	if b.metrics != nil {
		b.metrics.ActiveRequests.WithLabelValues(backendName).Set(float64(b.inFlight.Load()))
		b.metrics.RequestDuration.WithLabelValues(backendName, model).Observe(float64(durationMs) / 1000.0)
	}

	if resp.Success {
		b.successCount.Add(1)
		b.mu.Lock()
		b.lastSuccessAt = now
		b.mu.Unlock()
		b.breaker.RecordSuccess(now)

		if b.cfg.CostPerMillionInputTokens > 0 || b.cfg.CostPerMillionOutputTokens > 0 {
			cost := spend.Cost(resp.PromptTokens, resp.CompletionTokens, b.cfg.CostPerMillionInputTokens, b.cfg.CostPerMillionOutputTokens)
			b.spend.Add(cost)
			if b.metrics != nil {
				b.metrics.EstimatedCostUsd.WithLabelValues(backendName, model).Add(cost)
			}
		}

		if b.metrics != nil {
			status := "success"
			b.metrics.RequestsTotal.WithLabelValues(backendName, model, status).Inc()
			b.metrics.TokensTotal.WithLabelValues(backendName, model, "prompt").Add(float64(resp.PromptTokens))
			b.metrics.TokensTotal.WithLabelValues(backendName, model, "completion").Add(float64(resp.CompletionTokens))
			b.metrics.TokensTotal.WithLabelValues(backendName, model, "total").Add(float64(resp.TotalTokens))
		}
	} else {
		b.failureCount.Add(1)
		b.mu.Lock()
		b.lastError = resp.ErrorMessage
		b.mu.Unlock()
		b.breaker.RecordFailure(now)

		if b.metrics != nil {
			status := failureStatusLabel(resp.ErrorKind)
			b.metrics.RequestsTotal.WithLabelValues(backendName, model, status).Inc()
			b.metrics.ErrorsTotal.WithLabelValues(backendName, string(resp.ErrorKind)).Inc()
		}
	}

	if b.metrics != nil {
		healthy := 0.0
		if b.successCount.Load() > 0 || b.failureCount.Load() == 0 {
			healthy = 1.0
		}
		b.metrics.BackendHealth.WithLabelValues(backendName).Set(healthy)
		snap := b.spend.Snapshot()
		b.metrics.BackendBudgetUsd.WithLabelValues(backendName, "current").Set(snap.CurrentSpendUsd)
		b.metrics.BackendBudgetUsd.WithLabelValues(backendName, "max").Set(snap.MaxSpendUsd)
	}
}

func failureStatusLabel(kind ErrorKind) string {
	switch kind {
	case ErrorKindTimeout:
		return "timeout"
	case ErrorKindCancelled:
		return "cancelled"
	default:
		return "failure"
	}
}

// Complete runs the full pre/post-dispatch wrapper around the adapter's
// Complete call.
func (b *BackendInstance) Complete(ctx context.Context, req CompletionRequest) Response {
	model := b.cfg.ModelName
	if pre := b.preDispatch(time.Now(), b.cfg.Name, model); pre != nil {
		return *pre
	}
	start := time.Now()
	resp := b.adapter.Complete(ctx, req)
	resp.Backend = b.cfg.Name
	if resp.Model == "" {
		resp.Model = model
	}
	resp.DurationMs = time.Since(start).Milliseconds()
	b.postDispatch(time.Now(), &resp, resp.DurationMs)
	return resp
}

// Chat runs the full pre/post-dispatch wrapper around the adapter's Chat
// call.
func (b *BackendInstance) Chat(ctx context.Context, req ChatRequest) Response {
	model := b.cfg.ModelName
	if pre := b.preDispatch(time.Now(), b.cfg.Name, model); pre != nil {
		return *pre
	}
	start := time.Now()
	resp := b.adapter.Chat(ctx, req)
	resp.Backend = b.cfg.Name
	if resp.Model == "" {
		resp.Model = model
	}
	resp.DurationMs = time.Since(start).Milliseconds()
	b.postDispatch(time.Now(), &resp, resp.DurationMs)
	return resp
}

// IsAvailable delegates straight to the adapter's probe. Per spec.md §4.1
// this MUST NOT mutate accounting state, so it bypasses pre/postDispatch
// entirely.
func (b *BackendInstance) IsAvailable(ctx context.Context) bool {
	return b.adapter.IsAvailable(ctx)
}
