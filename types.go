// Package router is a provider-agnostic router and resilience layer
// sitting between application code and a population of remote LLM
// backends. Applications submit a neutral CompletionRequest or ChatRequest;
// the Service selects one or more registered backends, issues HTTP calls in
// each backend's native wire format via an Adapter, tracks health and
// spend, and returns a uniform Response.
package router

import "github.com/polyglotai/router/types"

// Role, ChatMessage, CompletionRequest, ChatRequest, and Response are
// aliases onto the leaf types package so adapters (which cannot import
// this package without an import cycle, since this package imports the
// adapters to build them) and the router package share one identical set
// of wire-neutral types.
type (
	Role              = types.Role
	ChatMessage       = types.ChatMessage
	CompletionRequest = types.CompletionRequest
	ChatRequest       = types.ChatRequest
	Response          = types.Response
)

const (
	RoleSystem    = types.RoleSystem
	RoleUser      = types.RoleUser
	RoleAssistant = types.RoleAssistant
)
