package router

import "github.com/polyglotai/router/types"

// ErrorKind and AdapterError are aliases onto the leaf types package (see
// types.go for why the root package cannot be the canonical home for
// types adapters also need).
type (
	ErrorKind    = types.ErrorKind
	AdapterError = types.AdapterError
)

const (
	ErrorKindNone            = types.ErrorKindNone
	ErrorKindNoBackend       = types.ErrorKindNoBackend
	ErrorKindDisabled        = types.ErrorKindDisabled
	ErrorKindBudgetExceeded  = types.ErrorKindBudgetExceeded
	ErrorKindCircuitOpen     = types.ErrorKindCircuitOpen
	ErrorKindRateLimit       = types.ErrorKindRateLimit
	ErrorKindAuth            = types.ErrorKindAuth
	ErrorKindBadRequest      = types.ErrorKindBadRequest
	ErrorKindServerError     = types.ErrorKindServerError
	ErrorKindTimeout         = types.ErrorKindTimeout
	ErrorKindNetwork         = types.ErrorKindNetwork
	ErrorKindDeserialization = types.ErrorKindDeserialization
	ErrorKindCancelled       = types.ErrorKindCancelled
	ErrorKindUnknown         = types.ErrorKindUnknown
)

// NewAdapterError builds an AdapterError for the given kind/message.
func NewAdapterError(kind ErrorKind, message string) *AdapterError {
	return types.NewAdapterError(kind, message)
}
