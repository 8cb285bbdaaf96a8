package router

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/polyglotai/router/metrics"
	"github.com/polyglotai/router/plugins"
	"github.com/polyglotai/router/ratelimit"
)

// BackendStats is the statistics shape returned by GetStatistics (spec.md
// §4.4) — identical in content to Health, named separately because the two
// operations are conceptually distinct entry points even though they share
// a representation today.
type BackendStats = Health

// Service is the top-level entry point: it resolves a selector, applies
// retry/rate-limiting, executes against Backend Instances, and aggregates
// a Response (spec.md §4.4).
type Service struct {
	cfg Config

	instancesMu sync.RWMutex
	instances   map[string]*BackendInstance // keyed by lower-cased name
	order       []*BackendInstance          // insertion order, for deterministic default ordering

	limiter *ratelimit.Limiter
	metrics *metrics.Metrics
	logger  *zap.Logger
	plugins *plugins.Registry
	cache   CacheHook

	healthCheckCancel context.CancelFunc
}

// callScope holds the state shared across one Service.Complete/Chat
// invocation: the idempotency cache, keyed by backend name (the request is
// fixed within one call), that lets a retried backend short-circuit to its
// first success instead of re-issuing HTTP (SPEC_FULL.md §9 supplement,
// grounded on the teacher's
// ResilientProvider.generateIdempotencyKey/idempotencyMap). Scoped per
// call, not per Service, so a backend's past success never shadows a
// later, unrelated call to the same backend.
type callScope struct {
	mu          sync.Mutex
	idempotency map[string]Response
}

func newCallScope() *callScope {
	return &callScope{idempotency: make(map[string]Response)}
}

func (c *callScope) lookup(key string) (Response, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.idempotency[key]
	return r, ok
}

func (c *callScope) store(key string, r Response) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.idempotency[key] = r
}

// NewService constructs a Service from a validated Config, building one
// BackendInstance per entry in cfg.Backends. registry may be nil if no
// backend uses CustomBackendType.
func NewService(cfg Config, registry *plugins.Registry) (*Service, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		cfg:       cfg,
		instances: make(map[string]*BackendInstance),
		limiter:   ratelimit.New(cfg.RateLimit),
		metrics:   metrics.New(),
		logger:    logger,
		plugins:   registry,
	}

	now := time.Now()
	for _, bc := range cfg.Backends {
		key := strings.ToLower(bc.Name)
		if _, exists := s.instances[key]; exists {
			return nil, fmt.Errorf("router: duplicate backend name %q", bc.Name)
		}
		if bc.Logger == nil {
			bc.Logger = logger.With(zap.String("backend", bc.Name))
		}
		adapter, err := buildAdapter(bc, cfg.TimeoutSeconds, registry)
		if err != nil {
			return nil, err
		}
		inst := newBackendInstance(bc, adapter, bc.Logger, s.metrics, cfg.CircuitBreaker, now)
		s.instances[key] = inst
		s.order = append(s.order, inst)
	}

	if cfg.HealthCheck.Enabled && cfg.HealthCheck.IntervalSeconds > 0 {
		s.startHealthCheckLoop(cfg.HealthCheck.IntervalSeconds)
	}

	return s, nil
}

// AttachCache stores an external CacheHook on the Service, per spec.md
// §6's Caching option group. Complete and Chat do not call the hook's Get
// or Set.
func (s *Service) AttachCache(hook CacheHook) { s.cache = hook }

// Metrics exposes the process-wide metrics sink for scraping.
func (s *Service) Metrics() *metrics.Metrics { return s.metrics }

// Close stops the background health-check loop, if running.
func (s *Service) Close() {
	if s.healthCheckCancel != nil {
		s.healthCheckCancel()
	}
}

func (s *Service) snapshotInstances() []*BackendInstance {
	s.instancesMu.RLock()
	defer s.instancesMu.RUnlock()
	out := make([]*BackendInstance, len(s.order))
	copy(out, s.order)
	return out
}

// AvailableBackends returns the names of every enabled-and-available
// backend, sorted lexicographically (spec.md §4.4).
func (s *Service) AvailableBackends() []string {
	now := time.Now()
	var names []string
	for _, inst := range s.snapshotInstances() {
		if inst.Available(now) {
			names = append(names, inst.Name())
		}
	}
	sort.Strings(names)
	return names
}

// GetBackend looks up a Backend Instance by name, case-insensitively
// (spec.md §4.4).
func (s *Service) GetBackend(name string) (*BackendInstance, bool) {
	s.instancesMu.RLock()
	defer s.instancesMu.RUnlock()
	inst, ok := s.instances[strings.ToLower(name)]
	return inst, ok
}

// TestBackends probes every configured backend via IsAvailable and returns
// a name -> Health map (spec.md §4.4), grounded on the teacher's
// Router.probeProviders.
func (s *Service) TestBackends(ctx context.Context) map[string]Health {
	out := make(map[string]Health)
	for _, inst := range s.snapshotInstances() {
		available := inst.IsAvailable(ctx)
		h := inst.GetHealth()
		if !available {
			h.IsHealthy = false
		}
		out[inst.Name()] = h
	}
	return out
}

// GetStatistics returns a name -> BackendStats map for every configured
// backend (spec.md §4.4).
func (s *Service) GetStatistics() map[string]BackendStats {
	out := make(map[string]BackendStats)
	for _, inst := range s.snapshotInstances() {
		out[inst.Name()] = inst.GetHealth()
	}
	return out
}

func (s *Service) startHealthCheckLoop(intervalSeconds int) {
	ctx, cancel := context.WithCancel(context.Background())
	s.healthCheckCancel = cancel
	ticker := time.NewTicker(time.Duration(intervalSeconds) * time.Second)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, probeCancel := context.WithTimeout(ctx, time.Duration(s.cfg.HealthCheck.TimeoutSeconds)*time.Second)
				for _, inst := range s.snapshotInstances() {
					if !inst.IsAvailable(probeCtx) {
						s.logger.Warn("backend health probe failed", zap.String("backend", inst.Name()))
					}
				}
				probeCancel()
			}
		}
	}()
}

// Complete is the neutral single-prompt entry point.
func (s *Service) Complete(ctx context.Context, req CompletionRequest) Response {
	return s.execute(ctx, req.PreferredBackend, func(b *BackendInstance, ctx context.Context) Response {
		return b.Complete(ctx, req)
	})
}

// Chat is the neutral multi-turn entry point.
func (s *Service) Chat(ctx context.Context, req ChatRequest) Response {
	return s.execute(ctx, req.PreferredBackend, func(b *BackendInstance, ctx context.Context) Response {
		return b.Chat(ctx, req)
	})
}

type dispatchFn func(b *BackendInstance, ctx context.Context) Response

// execute implements the Service's two execution algorithms (spec.md
// §4.4): the retry/failover loop for non-Simultaneous strategies, and
// concurrent fan-out/fan-in for Simultaneous.
func (s *Service) execute(ctx context.Context, preferred string, dispatch dispatchFn) Response {
	traceID := uuid.New().String()
	now := time.Now()
	order := selectBackends(s.cfg.SelectionStrategy, preferred, now, s.snapshotInstances())
	scope := newCallScope()

	if len(order) == 0 {
		return Response{Success: false, ErrorKind: ErrorKindNoBackend, ErrorMessage: "no available backend", TraceID: traceID}
	}

	if s.cfg.SelectionStrategy == StrategySimultaneous && preferred == "" {
		return s.executeSimultaneous(ctx, order, dispatch, traceID, scope)
	}
	return s.executeSequential(ctx, order, dispatch, traceID, scope)
}

// executeSequential implements the pseudocode in spec.md §4.4: try each
// backend in `order`, retrying up to MaxRetries+1 attempts with backoff on
// retryable failures; Failover continues to the next backend on exhaustion,
// every other strategy stops after the head backend.
func (s *Service) executeSequential(ctx context.Context, order []*BackendInstance, dispatch dispatchFn, traceID string, scope *callScope) Response {
	var last Response
	for _, b := range order {
		last = s.executeWithRetry(ctx, b, dispatch, traceID, scope)
		if last.Success {
			last.TraceID = traceID
			return last
		}
		if s.cfg.SelectionStrategy != StrategyFailover {
			last.TraceID = traceID
			return last
		}
	}
	last.ErrorMessage = "All backends failed"
	last.TraceID = traceID
	return last
}

// executeWithRetry runs the retry loop for one backend, including the
// rate-limit gate and the request-scoped idempotency short-circuit
// (SPEC_FULL.md §9 supplement).
func (s *Service) executeWithRetry(ctx context.Context, b *BackendInstance, dispatch dispatchFn, traceID string, scope *callScope) Response {
	maxRetries := b.cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = s.cfg.MaxRetries
	}

	idemKey := b.Name()

	var last Response
	for attempt := 1; attempt <= maxRetries+1; attempt++ {
		if cached, ok := scope.lookup(idemKey); ok {
			return cached
		}

		release, err := s.limiter.Acquire(ctx)
		if err != nil {
			last = Response{Success: false, Backend: b.Name(), ErrorKind: rateLimitOrCancel(err), ErrorMessage: err.Error()}
		} else {
			last = dispatch(b, ctx)
			release()
		}
		last.TraceID = traceID

		if last.Success {
			scope.store(idemKey, last)
			return last
		}
		if ctx.Err() != nil {
			last.ErrorKind = ErrorKindCancelled
			return last
		}
		if !last.ErrorKind.Retryable() {
			break
		}
		if attempt <= maxRetries {
			s.sleepBackoff(ctx, attempt, last.ErrorKind)
		}
	}
	return last
}

func rateLimitOrCancel(err error) ErrorKind {
	if err == ratelimit.ErrQueueFull {
		return ErrorKindRateLimit
	}
	return ErrorKindCancelled
}

func (s *Service) sleepBackoff(ctx context.Context, attempt int, kind ErrorKind) {
	delay := backoffDelay(attempt, s.cfg.RetryDelayMs, s.cfg.UseExponentialBackoff)
	if kind == ErrorKindRateLimit {
		delay *= 2 // longer backoff for rate-limit errors, per spec.md §4.4.
	}
	select {
	case <-time.After(delay):
	case <-ctx.Done():
	}
}

// backoffDelay implements spec.md §4.4's backoff formula: exponential
// delay_n = RetryDelayMs * 2^(n-1) capped at 30s, or constant RetryDelayMs
// without exponential backoff, with +-10% jitter either way.
func backoffDelay(attempt, retryDelayMs int, exponential bool) time.Duration {
	base := time.Duration(retryDelayMs) * time.Millisecond
	var delay time.Duration
	if exponential {
		delay = base << uint(attempt-1)
		capped := 30 * time.Second
		if delay > capped || delay <= 0 {
			delay = capped
		}
	} else {
		delay = base
	}
	jitterFraction := (rand.Float64()*2 - 1) * 0.10 // +-10%
	jittered := time.Duration(float64(delay) * (1 + jitterFraction))
	if jittered < 0 {
		jittered = 0
	}
	return jittered
}

// executeSimultaneous implements spec.md §4.4's fan-out/fan-in: dispatch
// against every selected backend concurrently, wait for all to complete,
// and aggregate the first success (by selection order) as primary with
// everything else as AlternativeResponses.
func (s *Service) executeSimultaneous(ctx context.Context, order []*BackendInstance, dispatch dispatchFn, traceID string, scope *callScope) Response {
	results := make([]Response, len(order))
	var wg sync.WaitGroup
	wg.Add(len(order))
	for i, b := range order {
		go func(i int, b *BackendInstance) {
			defer wg.Done()
			results[i] = s.executeWithRetry(ctx, b, dispatch, traceID, scope)
		}(i, b)
	}
	wg.Wait()

	primaryIdx := -1
	for i, r := range results {
		if r.Success {
			primaryIdx = i
			break
		}
	}

	if primaryIdx == -1 {
		return Response{
			Success:              false,
			ErrorMessage:         "All backends failed",
			ErrorKind:            results[0].ErrorKind,
			AlternativeResponses: results,
			TraceID:              traceID,
		}
	}

	primary := results[primaryIdx]
	alts := make([]Response, 0, len(results)-1)
	for i, r := range results {
		if i != primaryIdx {
			alts = append(alts, r)
		}
	}
	primary.AlternativeResponses = alts
	primary.TraceID = traceID
	return primary
}

