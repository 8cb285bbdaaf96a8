package router

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polyglotai/router/circuitbreaker"
	"github.com/polyglotai/router/internal/spend"
	"github.com/polyglotai/router/metrics"
)

type scriptedAdapter struct {
	completeFn func(ctx context.Context, req CompletionRequest) Response
}

func (s *scriptedAdapter) IsAvailable(ctx context.Context) bool { return true }
func (s *scriptedAdapter) Complete(ctx context.Context, req CompletionRequest) Response {
	return s.completeFn(ctx, req)
}
func (s *scriptedAdapter) Chat(ctx context.Context, req ChatRequest) Response {
	return Response{Success: true}
}

func TestBackendInstanceSuccessAndFailureCountersAreExhaustive(t *testing.T) {
	calls := 0
	adapter := &scriptedAdapter{completeFn: func(ctx context.Context, req CompletionRequest) Response {
		calls++
		if calls%2 == 0 {
			return Response{Success: false, ErrorKind: ErrorKindServerError, ErrorMessage: "boom"}
		}
		return Response{Success: true, Text: "ok"}
	}}

	cfg := BackendConfig{Name: "b1", Enabled: true}
	inst := newBackendInstance(cfg, adapter, nil, metrics.New(), circuitbreaker.Config{Enabled: false}, time.Now())

	for i := 0; i < 10; i++ {
		inst.Complete(context.Background(), CompletionRequest{Prompt: "hi"})
	}

	h := inst.GetHealth()
	assert.Equal(t, int64(5), h.SuccessfulRequests)
	assert.Equal(t, int64(5), h.FailedRequests)
	assert.Equal(t, h.SuccessfulRequests+h.FailedRequests, int64(10))
}

func TestBackendInstanceDisabledFailsFastWithoutReachingAdapter(t *testing.T) {
	reached := false
	adapter := &scriptedAdapter{completeFn: func(ctx context.Context, req CompletionRequest) Response {
		reached = true
		return Response{Success: true}
	}}
	cfg := BackendConfig{Name: "b1", Enabled: false}
	inst := newBackendInstance(cfg, adapter, nil, metrics.New(), circuitbreaker.Config{Enabled: false}, time.Now())

	resp := inst.Complete(context.Background(), CompletionRequest{Prompt: "hi"})
	assert.False(t, resp.Success)
	assert.Equal(t, ErrorKindDisabled, resp.ErrorKind)
	assert.False(t, reached, "a disabled backend must never reach the adapter")
}

func TestBackendInstanceBudgetExceededDisablesFurtherCalls(t *testing.T) {
	adapter := &scriptedAdapter{completeFn: func(ctx context.Context, req CompletionRequest) Response {
		return Response{Success: true, PromptTokens: 1_000_000, CompletionTokens: 0}
	}}
	maxSpend := 1.0
	cfg := BackendConfig{
		Name:                      "b1",
		Enabled:                   true,
		CostPerMillionInputTokens: 2.0, // 1M prompt tokens -> $2, over the $1 cap
		MaxSpendUsd:               &maxSpend,
		SpendResetPeriod:          spend.PeriodNever,
	}
	inst := newBackendInstance(cfg, adapter, nil, metrics.New(), circuitbreaker.Config{Enabled: false}, time.Now())

	first := inst.Complete(context.Background(), CompletionRequest{Prompt: "hi"})
	require.True(t, first.Success)

	second := inst.Complete(context.Background(), CompletionRequest{Prompt: "hi"})
	assert.False(t, second.Success)
	assert.Equal(t, ErrorKindBudgetExceeded, second.ErrorKind)
	assert.False(t, inst.Available(time.Now()))
}

func TestBackendInstanceCircuitTripStopsDispatchAndHalfOpenRecovers(t *testing.T) {
	fail := true
	adapter := &scriptedAdapter{completeFn: func(ctx context.Context, req CompletionRequest) Response {
		if fail {
			return Response{Success: false, ErrorKind: ErrorKindServerError, ErrorMessage: "down"}
		}
		return Response{Success: true}
	}}
	cb := circuitbreaker.Config{
		Enabled:                 true,
		FailureThreshold:        2,
		DurationOfBreakSeconds:  1,
		SamplingDurationSeconds: 60,
		MinimumThroughput:       2,
	}
	cfg := BackendConfig{Name: "b1", Enabled: true}
	now := time.Now()
	inst := newBackendInstance(cfg, adapter, nil, metrics.New(), cb, now)

	inst.Complete(context.Background(), CompletionRequest{})
	inst.Complete(context.Background(), CompletionRequest{})
	require.Equal(t, circuitbreaker.Open, inst.GetHealth().CircuitState)

	tripped := inst.Complete(context.Background(), CompletionRequest{})
	assert.Equal(t, ErrorKindCircuitOpen, tripped.ErrorKind, "while open, calls must fail fast without reaching the adapter")

	fail = false
	// preDispatch uses time.Now() internally, so we can't inject a fixed
	// "later" time; sleep past DurationOfBreakSeconds instead.
	time.Sleep(1100 * time.Millisecond)
	recovered := inst.Complete(context.Background(), CompletionRequest{})
	assert.True(t, recovered.Success)
	assert.Equal(t, circuitbreaker.Closed, inst.GetHealth().CircuitState)
}

// TestBackendInstanceAvailableRecoversAfterBreakDurationWithoutDispatch
// guards against a deadlock: Available is what the selector consults
// before a call ever reaches preDispatch/Allow, so it must treat an Open
// breaker whose break duration has elapsed as available on its own,
// without requiring a prior call to Allow to have flipped the state.
func TestBackendInstanceAvailableRecoversAfterBreakDurationWithoutDispatch(t *testing.T) {
	adapter := &scriptedAdapter{completeFn: func(ctx context.Context, req CompletionRequest) Response {
		return Response{Success: false, ErrorKind: ErrorKindServerError, ErrorMessage: "down"}
	}}
	cb := circuitbreaker.Config{
		Enabled:                 true,
		FailureThreshold:        2,
		DurationOfBreakSeconds:  1,
		SamplingDurationSeconds: 60,
		MinimumThroughput:       2,
	}
	cfg := BackendConfig{Name: "b1", Enabled: true}
	now := time.Now()
	inst := newBackendInstance(cfg, adapter, nil, metrics.New(), cb, now)

	inst.Complete(context.Background(), CompletionRequest{})
	inst.Complete(context.Background(), CompletionRequest{})
	require.Equal(t, circuitbreaker.Open, inst.GetHealth().CircuitState)
	require.False(t, inst.Available(time.Now()), "must stay unavailable before the break duration elapses")

	time.Sleep(1100 * time.Millisecond)
	assert.True(t, inst.Available(time.Now()), "must become available again once the break duration elapses, even though no call has reached Allow yet")
}

func TestBackendInstanceAvgLatencyIsMeanOfSamples(t *testing.T) {
	adapter := &scriptedAdapter{completeFn: func(ctx context.Context, req CompletionRequest) Response {
		return Response{Success: true}
	}}
	cfg := BackendConfig{Name: "b1", Enabled: true}
	inst := newBackendInstance(cfg, adapter, nil, metrics.New(), circuitbreaker.Config{Enabled: false}, time.Now())

	inst.postDispatch(time.Now(), &Response{Success: true}, 100)
	inst.postDispatch(time.Now(), &Response{Success: true}, 200)
	inst.postDispatch(time.Now(), &Response{Success: true}, 300)

	assert.InDelta(t, 200.0, inst.AvgLatencyMs(), 1e-9)
}

func TestBackendInstanceIsAvailableDoesNotMutateCounters(t *testing.T) {
	adapter := &scriptedAdapter{completeFn: func(ctx context.Context, req CompletionRequest) Response {
		return Response{Success: true}
	}}
	cfg := BackendConfig{Name: "b1", Enabled: true}
	inst := newBackendInstance(cfg, adapter, nil, metrics.New(), circuitbreaker.Config{Enabled: false}, time.Now())

	before := inst.GetHealth()
	for i := 0; i < 5; i++ {
		inst.IsAvailable(context.Background())
	}
	after := inst.GetHealth()
	assert.Equal(t, before.SuccessfulRequests, after.SuccessfulRequests)
	assert.Equal(t, before.FailedRequests, after.FailedRequests)
}
