// Package azureopenai adapts the neutral request/response model to the
// Azure OpenAI deployment-scoped Chat Completions endpoint (spec.md
// §4.1): POST {BaseUrl}/openai/deployments/{DeploymentName}/chat/completions
// ?api-version={ApiVersion}, authenticated with an api-key header instead
// of Bearer.
//
// Grounded on the teacher's embedding pattern (openai/llama both embed
// openaicompat.Provider and only override what differs); here the
// override is the request URL and the auth header, so Chat/Complete
// delegate to the embedded Provider's shared encode/decode via ChatAt.
package azureopenai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/polyglotai/router/types"
	"github.com/polyglotai/router/adapters/openaicompat"
)

// Provider is the Azure OpenAI adapter.
type Provider struct {
	*openaicompat.Provider
	url string
}

// New builds an Azure OpenAI adapter.
func New(baseURL, apiKey, deploymentName, apiVersion, model string, timeout time.Duration, logger *zap.Logger) *Provider {
	cfg := openaicompat.Config{
		ProviderName: "AzureOpenAI",
		APIKey:       apiKey,
		BaseURL:      baseURL,
		Model:        model,
		BuildHeaders: func(cfg openaicompat.Config, req *http.Request) {
			req.Header.Set("api-key", cfg.APIKey)
		},
	}
	client := &http.Client{Timeout: timeout}
	url := fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s", baseURL, deploymentName, apiVersion)
	return &Provider{Provider: openaicompat.New(cfg, logger, client), url: url}
}

// Complete lowers to Chat, matching every other adapter's convention.
func (p *Provider) Complete(ctx context.Context, req types.CompletionRequest) types.Response {
	return p.Chat(ctx, req.AsChat())
}

// Chat issues the request against the deployment-scoped URL rather than
// the generic OpenAI-compatible path the embedded Provider defaults to.
func (p *Provider) Chat(ctx context.Context, req types.ChatRequest) types.Response {
	return p.Provider.ChatAt(ctx, p.url, req)
}

// IsAvailable probes the deployment-scoped URL itself (Azure has no
// separate /v1/models endpoint per deployment) by issuing a minimal chat
// request and treating any non-transport, non-5xx, non-401/403 result as
// available, per spec.md §4.1's probe rule.
func (p *Provider) IsAvailable(ctx context.Context) bool {
	resp := p.Chat(ctx, types.ChatRequest{Messages: []types.ChatMessage{{Role: types.RoleUser, Content: "ping"}}})
	if resp.Success {
		return true
	}
	switch resp.ErrorKind {
	case types.ErrorKindAuth, types.ErrorKindServerError, types.ErrorKindNetwork, types.ErrorKindTimeout:
		return false
	default:
		return true
	}
}
