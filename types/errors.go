package types

import "fmt"

// ErrorKind classifies why a backend call failed. It is a string type so
// it can be used directly as a zap field and a Prometheus label value
// without a lookup table.
type ErrorKind string

const (
	ErrorKindNone            ErrorKind = ""
	ErrorKindNoBackend       ErrorKind = "NoBackend"
	ErrorKindDisabled        ErrorKind = "Disabled"
	ErrorKindBudgetExceeded  ErrorKind = "BudgetExceeded"
	ErrorKindCircuitOpen     ErrorKind = "CircuitOpen"
	ErrorKindRateLimit       ErrorKind = "RateLimit"
	ErrorKindAuth            ErrorKind = "Auth"
	ErrorKindBadRequest      ErrorKind = "BadRequest"
	ErrorKindServerError     ErrorKind = "ServerError"
	ErrorKindTimeout         ErrorKind = "Timeout"
	ErrorKindNetwork         ErrorKind = "Network"
	ErrorKindDeserialization ErrorKind = "Deserialization"
	ErrorKindCancelled       ErrorKind = "Cancelled"
	ErrorKindUnknown         ErrorKind = "Unknown"
)

// Retryable reports whether a failure of this kind should be retried
// against the same backend (spec.md §4.4 "Retryable error kinds").
func (k ErrorKind) Retryable() bool {
	switch k {
	case ErrorKindTimeout, ErrorKindNetwork, ErrorKindServerError, ErrorKindRateLimit:
		return true
	default:
		return false
	}
}

// AdapterError is the structured error an Adapter may use internally to
// build a failure Response. It is never returned across the Adapter
// boundary as a Go error (spec.md §4.1: "adapters never raise transport
// errors past this boundary") — it exists purely to carry enough
// context to populate Response.ErrorKind / Response.ErrorMessage.
type AdapterError struct {
	Kind       ErrorKind
	Message    string
	HTTPStatus int
	Cause      error
}

func (e *AdapterError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *AdapterError) Unwrap() error { return e.Cause }

// NewAdapterError builds an AdapterError for the given kind/message.
func NewAdapterError(kind ErrorKind, message string) *AdapterError {
	return &AdapterError{Kind: kind, Message: message}
}

// ErrorKindForHTTPStatus maps an HTTP status code to an ErrorKind, per
// spec.md §4.1 "Error categorization".
func ErrorKindForHTTPStatus(status int) ErrorKind {
	switch {
	case status == 429:
		return ErrorKindRateLimit
	case status == 401 || status == 403:
		return ErrorKindAuth
	case status >= 400 && status < 500:
		return ErrorKindBadRequest
	case status >= 500:
		return ErrorKindServerError
	default:
		return ErrorKindUnknown
	}
}
