package types

import "context"

// Adapter is the per-provider wire-protocol translator (spec.md §4.1).
// Implementations never raise transport or protocol errors past this
// boundary: failures are reported as Response{Success:false, ErrorKind,
// ErrorMessage}.
type Adapter interface {
	// IsAvailable issues a minimal probe and reports whether the provider
	// accepted authentication and is reachable. It MUST NOT mutate
	// accounting state (spend, circuit, counters).
	IsAvailable(ctx context.Context) bool

	// Complete issues a single-prompt request.
	Complete(ctx context.Context, req CompletionRequest) Response

	// Chat issues a multi-turn request.
	Chat(ctx context.Context, req ChatRequest) Response
}

// CacheHook is the external cache boundary (spec.md §6 Caching). The core
// never talks to a concrete cache backend directly. A hook can be attached
// to a Service with AttachCache; the Service's request path does not call
// it.
type CacheHook interface {
	Get(ctx context.Context, key string) (Response, bool)
	Set(ctx context.Context, key string, resp Response)
}
