// Package testutil provides test doubles for exercising the router package
// without real HTTP backends, grounded on the teacher's testProvider
// pattern (llm/resilient_provider_test.go): a struct with function-valued
// fields standing in for each interface method, so a test can script
// exactly the sequence of responses, latencies, and failures it needs.
package testutil

import (
	"context"
	"time"

	"github.com/polyglotai/router"
)

// FakeAdapter implements router.Adapter with scripted behavior. Each
// function field defaults to a reasonable success response when nil, so
// tests only need to set the fields relevant to their scenario.
type FakeAdapter struct {
	CompleteFn    func(ctx context.Context, req router.CompletionRequest) router.Response
	ChatFn        func(ctx context.Context, req router.ChatRequest) router.Response
	IsAvailableFn func(ctx context.Context) bool

	// Latency, when positive, is slept before returning from Complete/Chat,
	// letting tests exercise latency-sensitive strategies (LowestLatency)
	// and context cancellation during dispatch.
	Latency time.Duration
}

func (f *FakeAdapter) Complete(ctx context.Context, req router.CompletionRequest) router.Response {
	f.sleep(ctx)
	if f.CompleteFn != nil {
		return f.CompleteFn(ctx, req)
	}
	return router.Response{Success: true, Text: "ok"}
}

func (f *FakeAdapter) Chat(ctx context.Context, req router.ChatRequest) router.Response {
	f.sleep(ctx)
	if f.ChatFn != nil {
		return f.ChatFn(ctx, req)
	}
	return router.Response{Success: true, Text: "ok"}
}

func (f *FakeAdapter) IsAvailable(ctx context.Context) bool {
	if f.IsAvailableFn != nil {
		return f.IsAvailableFn(ctx)
	}
	return true
}

func (f *FakeAdapter) sleep(ctx context.Context) {
	if f.Latency <= 0 {
		return
	}
	select {
	case <-time.After(f.Latency):
	case <-ctx.Done():
	}
}

// ScriptedSequence returns a CompleteFn that returns each Response in
// sequence on successive calls, repeating the last entry once exhausted.
// Useful for scenarios like "fail twice then succeed" (circuit breaker
// trip/recovery tests).
func ScriptedSequence(responses ...router.Response) func(ctx context.Context, req router.CompletionRequest) router.Response {
	i := 0
	return func(ctx context.Context, req router.CompletionRequest) router.Response {
		if i >= len(responses) {
			return responses[len(responses)-1]
		}
		r := responses[i]
		i++
		return r
	}
}
