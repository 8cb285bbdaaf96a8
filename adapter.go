package router

import "github.com/polyglotai/router/types"

// Adapter and CacheHook are aliases onto the leaf types package so every
// concrete adapter (which implements types.Adapter) satisfies
// router.Adapter without this package needing to be importable from the
// adapters packages.
type (
	Adapter   = types.Adapter
	CacheHook = types.CacheHook
)

// AdapterFactory builds an Adapter from a BackendConfig. Built-in adapters
// and plugin-registered adapters share this exact shape (spec.md Open
// Question 2: "accept the telemetry handle uniformly across all
// adapters"). It lives here, not in the types package, because it takes a
// BackendConfig, which is defined in this package.
type AdapterFactory func(cfg BackendConfig) (Adapter, error)
