package router

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polyglotai/router/circuitbreaker"
	"github.com/polyglotai/router/metrics"
)

// stubAdapter is a minimal Adapter used only to build BackendInstances for
// selector-level tests; it never actually dispatches.
type stubAdapter struct{}

func (stubAdapter) IsAvailable(ctx context.Context) bool { return true }
func (stubAdapter) Complete(ctx context.Context, req CompletionRequest) Response {
	return Response{Success: true}
}
func (stubAdapter) Chat(ctx context.Context, req ChatRequest) Response { return Response{Success: true} }

func mustInstance(t *testing.T, name string, priority int, enabled bool) *BackendInstance {
	t.Helper()
	cfg := BackendConfig{Name: name, Priority: priority, Enabled: enabled, Type: BackendOpenAI}
	return newBackendInstance(cfg, stubAdapter{}, nil, metrics.New(), circuitbreaker.DefaultConfig(), time.Now())
}

func TestSelectFailoverOrdersByPriorityThenName(t *testing.T) {
	a := mustInstance(t, "bravo", 2, true)
	b := mustInstance(t, "alpha", 1, true)
	c := mustInstance(t, "charlie", 1, true)

	order := selectBackends(StrategyFailover, "", time.Now(), []*BackendInstance{a, b, c})
	require.Len(t, order, 3)
	assert.Equal(t, []string{"alpha", "charlie", "bravo"}, names(order))
}

func TestSelectFailoverExcludesDisabled(t *testing.T) {
	a := mustInstance(t, "alpha", 1, true)
	b := mustInstance(t, "bravo", 2, false)

	order := selectBackends(StrategyFailover, "", time.Now(), []*BackendInstance{a, b})
	require.Len(t, order, 1)
	assert.Equal(t, "alpha", order[0].Name())
}

func TestSelectRoundRobinRotatesDeterministically(t *testing.T) {
	a := mustInstance(t, "alpha", 0, true)
	b := mustInstance(t, "bravo", 0, true)
	c := mustInstance(t, "charlie", 0, true)
	instances := []*BackendInstance{a, b, c}

	first := names(selectBackends(StrategyRoundRobin, "", time.Now(), instances))
	second := names(selectBackends(StrategyRoundRobin, "", time.Now(), instances))
	require.Len(t, first, 3)
	require.Len(t, second, 3)
	assert.NotEqual(t, first, second, "successive calls must rotate the starting point")

	// Both orderings are rotations of the same sorted cycle.
	assert.ElementsMatch(t, first, second)
}

// TestSelectRoundRobinFirstCallStartsAtHead pins down the exact starting
// point (spec.md §8 Scenario 6: calls against [X,Y] must read X,Y,X,Y...),
// not just that successive calls rotate. roundRobinCounter is process-wide,
// so it's reset first to make the first call deterministic.
func TestSelectRoundRobinFirstCallStartsAtHead(t *testing.T) {
	roundRobinCounter.Store(0)
	x := mustInstance(t, "x", 0, true)
	y := mustInstance(t, "y", 0, true)
	instances := []*BackendInstance{x, y}

	var seq []string
	for i := 0; i < 4; i++ {
		seq = append(seq, names(selectBackends(StrategyRoundRobin, "", time.Now(), instances))[0])
	}
	assert.Equal(t, []string{"x", "y", "x", "y"}, seq)
}

func TestSelectLowestLatencySortsUnknownLast(t *testing.T) {
	fast := mustInstance(t, "fast", 0, true)
	slow := mustInstance(t, "slow", 0, true)
	unknown := mustInstance(t, "unknown", 0, true)

	fast.postDispatch(time.Now(), &Response{Success: true}, 10)
	slow.postDispatch(time.Now(), &Response{Success: true}, 500)

	order := selectBackends(StrategyLowestLatency, "", time.Now(), []*BackendInstance{slow, unknown, fast})
	assert.Equal(t, []string{"fast", "slow", "unknown"}, names(order))
}

func TestSelectSpecificViaPreferredBackendOverride(t *testing.T) {
	a := mustInstance(t, "alpha", 0, true)
	b := mustInstance(t, "bravo", 0, true)

	order := selectBackends(StrategyRoundRobin, "Bravo", time.Now(), []*BackendInstance{a, b})
	require.Len(t, order, 1)
	assert.Equal(t, "bravo", order[0].Name(), "PreferredBackend must match case-insensitively")
}

func TestSelectSimultaneousReturnsAllAvailable(t *testing.T) {
	a := mustInstance(t, "alpha", 0, true)
	b := mustInstance(t, "bravo", 0, true)
	order := selectBackends(StrategySimultaneous, "", time.Now(), []*BackendInstance{a, b})
	assert.Len(t, order, 2)
}

func names(instances []*BackendInstance) []string {
	out := make([]string, len(instances))
	for i, inst := range instances {
		out[i] = inst.Name()
	}
	return out
}
