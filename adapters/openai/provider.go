// Package openai adapts the neutral request/response model to the OpenAI
// Chat Completions API (spec.md §4.1): bearer auth plus an optional
// OpenAI-Organization header.
//
// Grounded on the teacher's llm/providers/openai.OpenAIProvider, which
// embeds *openaicompat.Provider and only customizes header construction —
// the Responses-API variant the teacher also supports is out of scope
// here (spec.md's OpenAI wire description names only Chat Completions).
package openai

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/polyglotai/router/adapters/openaicompat"
)

// Provider is the OpenAI adapter.
type Provider struct {
	*openaicompat.Provider
}

// New builds an OpenAI adapter from resolved configuration.
func New(baseURL, apiKey, model, organizationId string, timeout time.Duration, logger *zap.Logger) *Provider {
	cfg := openaicompat.Config{
		ProviderName: "OpenAI",
		APIKey:       apiKey,
		BaseURL:      baseURL,
		Model:        model,
		BuildHeaders: func(cfg openaicompat.Config, req *http.Request) {
			req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
			if organizationId != "" {
				req.Header.Set("OpenAI-Organization", organizationId)
			}
		},
	}
	client := &http.Client{Timeout: timeout}
	return &Provider{Provider: openaicompat.New(cfg, logger, client)}
}
