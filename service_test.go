package router_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	router "github.com/polyglotai/router"
	"github.com/polyglotai/router/plugins"
	"github.com/polyglotai/router/testutil"
)

// registerFake wires a single FakeAdapter into a plugin registry under tag,
// so Service tests can inject scripted behavior without a real HTTP backend.
func registerFake(t *testing.T, registry *plugins.Registry, tag string, adapter *testutil.FakeAdapter) {
	t.Helper()
	err := registry.Register(plugins.Metadata{
		PluginId:              tag,
		Name:                  tag,
		SupportedBackendTypes: []string{tag},
	}, router.AdapterFactory(func(cfg router.BackendConfig) (router.Adapter, error) {
		return adapter, nil
	}))
	require.NoError(t, err)
}

func backendConfig(name, tag string) router.BackendConfig {
	return router.BackendConfig{
		Name:              name,
		CustomBackendType: tag,
		Enabled:           true,
		Priority:          1,
	}
}

func TestServiceFailoverFallsBackToHealthySecondary(t *testing.T) {
	registry := plugins.New()
	primary := &testutil.FakeAdapter{CompleteFn: func(ctx context.Context, req router.CompletionRequest) router.Response {
		return router.Response{Success: false, ErrorKind: router.ErrorKindServerError, ErrorMessage: "primary down"}
	}}
	secondary := &testutil.FakeAdapter{}
	registerFake(t, registry, "primary-fake", primary)
	registerFake(t, registry, "secondary-fake", secondary)

	cfg := router.DefaultConfig()
	cfg.SelectionStrategy = router.StrategyFailover
	cfg.MaxRetries = 0
	p := backendConfig("primary", "primary-fake")
	p.Priority = 1
	s := backendConfig("secondary", "secondary-fake")
	s.Priority = 2
	cfg.Backends = []router.BackendConfig{p, s}

	svc, err := router.NewService(cfg, registry)
	require.NoError(t, err)
	defer svc.Close()

	resp := svc.Complete(context.Background(), router.CompletionRequest{Prompt: "hello"})
	assert.True(t, resp.Success)
	assert.Equal(t, "secondary", resp.Backend)
}

func TestServiceBudgetExceededAutoDisablesBackend(t *testing.T) {
	registry := plugins.New()
	adapter := &testutil.FakeAdapter{CompleteFn: func(ctx context.Context, req router.CompletionRequest) router.Response {
		return router.Response{Success: true, PromptTokens: 1_000_000}
	}}
	registerFake(t, registry, "budget-fake", adapter)

	cfg := router.DefaultConfig()
	cfg.MaxRetries = 0
	maxSpend := 1.0
	b := backendConfig("budget-backend", "budget-fake")
	b.CostPerMillionInputTokens = 2.0
	b.MaxSpendUsd = &maxSpend
	cfg.Backends = []router.BackendConfig{b}

	svc, err := router.NewService(cfg, registry)
	require.NoError(t, err)
	defer svc.Close()

	first := svc.Complete(context.Background(), router.CompletionRequest{Prompt: "hi"})
	require.True(t, first.Success)

	second := svc.Complete(context.Background(), router.CompletionRequest{Prompt: "hi"})
	assert.False(t, second.Success)
	assert.Equal(t, router.ErrorKindBudgetExceeded, second.ErrorKind)

	stats := svc.GetStatistics()
	assert.True(t, stats["budget-backend"].BudgetExceeded)
	assert.NotContains(t, svc.AvailableBackends(), "budget-backend")
}

func TestServiceSimultaneousAggregatesAlternatives(t *testing.T) {
	registry := plugins.New()
	winner := &testutil.FakeAdapter{}
	loser := &testutil.FakeAdapter{CompleteFn: func(ctx context.Context, req router.CompletionRequest) router.Response {
		return router.Response{Success: false, ErrorKind: router.ErrorKindServerError, ErrorMessage: "nope"}
	}}
	registerFake(t, registry, "winner-fake", winner)
	registerFake(t, registry, "loser-fake", loser)

	cfg := router.DefaultConfig()
	cfg.SelectionStrategy = router.StrategySimultaneous
	cfg.MaxRetries = 0
	cfg.Backends = []router.BackendConfig{
		backendConfig("winner", "winner-fake"),
		backendConfig("loser", "loser-fake"),
	}

	svc, err := router.NewService(cfg, registry)
	require.NoError(t, err)
	defer svc.Close()

	resp := svc.Complete(context.Background(), router.CompletionRequest{Prompt: "hi"})
	require.True(t, resp.Success)
	assert.Len(t, resp.AlternativeResponses, 1)
	assert.False(t, resp.AlternativeResponses[0].Success)
}

func TestServiceSimultaneousAllFailReportsFailure(t *testing.T) {
	registry := plugins.New()
	a := &testutil.FakeAdapter{CompleteFn: func(ctx context.Context, req router.CompletionRequest) router.Response {
		return router.Response{Success: false, ErrorKind: router.ErrorKindServerError, ErrorMessage: "a down"}
	}}
	b := &testutil.FakeAdapter{CompleteFn: func(ctx context.Context, req router.CompletionRequest) router.Response {
		return router.Response{Success: false, ErrorKind: router.ErrorKindServerError, ErrorMessage: "b down"}
	}}
	registerFake(t, registry, "a-fake", a)
	registerFake(t, registry, "b-fake", b)

	cfg := router.DefaultConfig()
	cfg.SelectionStrategy = router.StrategySimultaneous
	cfg.MaxRetries = 0
	cfg.Backends = []router.BackendConfig{
		backendConfig("a", "a-fake"),
		backendConfig("b", "b-fake"),
	}

	svc, err := router.NewService(cfg, registry)
	require.NoError(t, err)
	defer svc.Close()

	resp := svc.Complete(context.Background(), router.CompletionRequest{Prompt: "hi"})
	assert.False(t, resp.Success)
	assert.Equal(t, "All backends failed", resp.ErrorMessage)
	assert.Len(t, resp.AlternativeResponses, 2)
}

func TestServiceRoundRobinRotatesAcrossCalls(t *testing.T) {
	registry := plugins.New()
	seen := make(chan string, 10)
	mk := func(name string) *testutil.FakeAdapter {
		return &testutil.FakeAdapter{CompleteFn: func(ctx context.Context, req router.CompletionRequest) router.Response {
			seen <- name
			return router.Response{Success: true}
		}}
	}
	registerFake(t, registry, "rr-a", mk("a"))
	registerFake(t, registry, "rr-b", mk("b"))

	cfg := router.DefaultConfig()
	cfg.SelectionStrategy = router.StrategyRoundRobin
	cfg.MaxRetries = 0
	cfg.Backends = []router.BackendConfig{
		backendConfig("a", "rr-a"),
		backendConfig("b", "rr-b"),
	}

	svc, err := router.NewService(cfg, registry)
	require.NoError(t, err)
	defer svc.Close()

	first := make([]string, 0, 4)
	for i := 0; i < 4; i++ {
		svc.Complete(context.Background(), router.CompletionRequest{Prompt: "hi"})
		first = append(first, <-seen)
	}
	// Across four calls against two backends, round robin must hit both.
	assert.Contains(t, first, "a")
	assert.Contains(t, first, "b")
}

func TestServicePreferredBackendOverridesStrategy(t *testing.T) {
	registry := plugins.New()
	a := &testutil.FakeAdapter{}
	b := &testutil.FakeAdapter{}
	registerFake(t, registry, "pa", a)
	registerFake(t, registry, "pb", b)

	cfg := router.DefaultConfig()
	cfg.SelectionStrategy = router.StrategyFailover
	cfg.Backends = []router.BackendConfig{
		backendConfig("alpha", "pa"),
		backendConfig("bravo", "pb"),
	}
	svc, err := router.NewService(cfg, registry)
	require.NoError(t, err)
	defer svc.Close()

	resp := svc.Complete(context.Background(), router.CompletionRequest{Prompt: "hi", PreferredBackend: "bravo"})
	require.True(t, resp.Success)
	assert.Equal(t, "bravo", resp.Backend)
}

func TestServiceCircuitRecoversThroughSelectionWithSingleBackend(t *testing.T) {
	registry := plugins.New()
	fail := true
	adapter := &testutil.FakeAdapter{CompleteFn: func(ctx context.Context, req router.CompletionRequest) router.Response {
		if fail {
			return router.Response{Success: false, ErrorKind: router.ErrorKindServerError, ErrorMessage: "down"}
		}
		return router.Response{Success: true}
	}}
	registerFake(t, registry, "flaky-fake", adapter)

	cfg := router.DefaultConfig()
	cfg.MaxRetries = 0
	cfg.CircuitBreaker = router.CircuitBreakerOptions{
		Enabled:                 true,
		FailureThreshold:        2,
		DurationOfBreakSeconds:  1,
		SamplingDurationSeconds: 60,
		MinimumThroughput:       2,
	}
	cfg.Backends = []router.BackendConfig{backendConfig("flaky", "flaky-fake")}

	svc, err := router.NewService(cfg, registry)
	require.NoError(t, err)
	defer svc.Close()

	svc.Complete(context.Background(), router.CompletionRequest{Prompt: "hi"})
	svc.Complete(context.Background(), router.CompletionRequest{Prompt: "hi"})

	// With a single backend just tripped Open, it is briefly unavailable
	// for selection.
	tripped := svc.Complete(context.Background(), router.CompletionRequest{Prompt: "hi"})
	assert.False(t, tripped.Success)
	assert.Equal(t, router.ErrorKindNoBackend, tripped.ErrorKind)

	fail = false
	time.Sleep(1100 * time.Millisecond)
	recovered := svc.Complete(context.Background(), router.CompletionRequest{Prompt: "hi"})
	assert.True(t, recovered.Success, "the backend must be selectable again once the break duration elapses")
}

func TestServiceNoAvailableBackendReturnsNoBackend(t *testing.T) {
	registry := plugins.New()
	cfg := router.DefaultConfig()
	cfg.Backends = nil
	svc, err := router.NewService(cfg, registry)
	require.NoError(t, err)
	defer svc.Close()

	resp := svc.Complete(context.Background(), router.CompletionRequest{Prompt: "hi"})
	assert.False(t, resp.Success)
	assert.Equal(t, router.ErrorKindNoBackend, resp.ErrorKind)
}
