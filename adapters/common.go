// Package adapters holds the per-provider wire-protocol translators
// (spec.md §4.1) plus the HTTP error mapping and response-shaping helpers
// shared across all of them.
//
// Grounded on the teacher's llm/providers/common.go: MapHTTPError maps an
// HTTP status code to the neutral ErrorKind taxonomy (the error body is
// accepted but not inspected), and ReadErrorMessage extracts a human-
// readable message from either a JSON error envelope or a raw text body.
package adapters

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/polyglotai/router/types"
)

// MapHTTPError classifies an HTTP response status into the neutral
// ErrorKind taxonomy (spec.md §4.1 "Error categorization").
func MapHTTPError(status int, body string) types.ErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return types.ErrorKindRateLimit
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return types.ErrorKindAuth
	case status >= 400 && status < 500:
		return types.ErrorKindBadRequest
	case status >= 500:
		return types.ErrorKindServerError
	default:
		return types.ErrorKindUnknown
	}
}

// errorEnvelope matches the common {"error": {...}} shape most OpenAI-
// compatible providers (and several others) use for error bodies.
type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// ReadErrorMessage extracts a human-readable message from an HTTP error
// body. It first tries the common {"error":{"message":...}} envelope, then
// falls back to the raw body text (trimmed and size-capped).
func ReadErrorMessage(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 64*1024))
	if err != nil {
		return "failed to read error body: " + err.Error()
	}
	var env errorEnvelope
	if json.Unmarshal(raw, &env) == nil && env.Error.Message != "" {
		return env.Error.Message
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return "empty error body"
	}
	if len(text) > 500 {
		text = text[:500] + "..."
	}
	return text
}

// FailResponse builds a uniform failure Response (spec.md §4.1: "adapters
// never raise transport errors past this boundary").
func FailResponse(kind types.ErrorKind, message string) types.Response {
	return types.Response{Success: false, ErrorKind: kind, ErrorMessage: message}
}

// EffectiveTemperature resolves the neutral optional Temperature field
// against a backend-configured default, never emitting a literal null
// (spec.md §8 boundary behavior).
func EffectiveTemperature(reqValue *float64, backendDefault *float64) *float64 {
	if reqValue != nil {
		return reqValue
	}
	return backendDefault
}

// LastUserMessage returns the content of the last user-role message in a
// neutral message list, the text EasyNMT-style adapters need, returning
// ok=false when there is no user message to translate (spec.md §4.1 EasyNMT, §8 boundary behavior).
func LastUserMessage(messages []types.ChatMessage) (text string, ok bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == types.RoleUser {
			return messages[i].Content, true
		}
	}
	return "", false
}

// ExtractSystemMessage pulls the system message out of a neutral message
// list, returning the remaining non-system messages and the system text
// (empty if none was present). Grounded on the teacher's Anthropic/Gemini
// adapters, both of which extract system content into a dedicated field
// rather than leaving a "system" role inside the turn list.
func ExtractSystemMessage(messages []types.ChatMessage, fallbackSystem string) (system string, rest []types.ChatMessage) {
	system = fallbackSystem
	rest = make([]types.ChatMessage, 0, len(messages))
	for _, m := range messages {
		if m.Role == types.RoleSystem {
			if system == "" {
				system = m.Content
			} else {
				system = system + "\n" + m.Content
			}
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}
