// Package anthropic adapts the neutral request/response model to the
// Anthropic Messages API (spec.md §4.1): POST {BaseUrl}/v1/messages,
// headers x-api-key and anthropic-version (default 2023-06-01). System
// messages are extracted from the neutral message list into a top-level
// "system" field; the returned text is the concatenation of the response's
// text content blocks.
//
// The teacher's own llm/providers/anthropic/provider.go was filtered out
// of the retrieved corpus (oversized); this adapter is grounded on the
// teacher's doc.go package description (x-api-key auth, system-field
// extraction, content-array responses, independent implementation rather
// than embedding openaicompat.Provider) plus spec.md §4.1/§8 Scenario 5's
// exact wire contract.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/polyglotai/router/types"
	"github.com/polyglotai/router/adapters"
)

const defaultAnthropicVersion = "2023-06-01"

// Provider is the Anthropic adapter.
type Provider struct {
	baseURL          string
	apiKey           string
	model            string
	anthropicVersion string
	client           *http.Client
	logger           *zap.Logger
}

// New builds an Anthropic adapter.
func New(baseURL, apiKey, model, anthropicVersion string, timeout time.Duration, logger *zap.Logger) *Provider {
	if anthropicVersion == "" {
		anthropicVersion = defaultAnthropicVersion
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		baseURL:          baseURL,
		apiKey:           apiKey,
		model:            model,
		anthropicVersion: anthropicVersion,
		client:           &http.Client{Timeout: timeout},
		logger:           logger,
	}
}

func (p *Provider) buildHeaders(req *http.Request) {
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", p.anthropicVersion)
	req.Header.Set("Content-Type", "application/json")
}

// IsAvailable issues a minimal messages request; per spec.md §4.1, 2xx or
// a 4xx validation error both count as available.
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

// Complete lowers to Chat.
func (p *Provider) Complete(ctx context.Context, req types.CompletionRequest) types.Response {
	return p.Chat(ctx, req.AsChat())
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireRequest struct {
	Model         string        `json:"model"`
	System        string        `json:"system,omitempty"`
	Messages      []wireMessage `json:"messages"`
	MaxTokens     int           `json:"max_tokens"`
	Temperature   *float64      `json:"temperature,omitempty"`
	TopP          *float64      `json:"top_p,omitempty"`
	StopSequences []string      `json:"stop_sequences,omitempty"`
}

type wireUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type wireResponse struct {
	Content    []contentBlock `json:"content"`
	Model      string         `json:"model"`
	StopReason string         `json:"stop_reason"`
	Usage      wireUsage      `json:"usage"`
}

// Chat implements the neutral Chat operation. Scenario 5 (spec.md §8)
// requires the emitted body to contain a top-level "system" field and no
// "system" role inside "messages" — ExtractSystemMessage enforces that.
func (p *Provider) Chat(ctx context.Context, req types.ChatRequest) types.Response {
	system, rest := adapters.ExtractSystemMessage(req.Messages, req.SystemMessage)

	wireMessages := make([]wireMessage, 0, len(rest))
	for _, m := range rest {
		wireMessages = append(wireMessages, wireMessage{Role: strings.ToLower(string(m.Role)), Content: m.Content})
	}

	maxTokens := 1024
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	body := wireRequest{
		Model:         p.model,
		System:        system,
		Messages:      wireMessages,
		MaxTokens:     maxTokens,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		StopSequences: req.StopSequences,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return adapters.FailResponse(types.ErrorKindDeserialization, "failed to encode request: "+err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return adapters.FailResponse(types.ErrorKindNetwork, "failed to build request: "+err.Error())
	}
	p.buildHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return adapters.FailResponse(types.ErrorKindTimeout, ctx.Err().Error())
		}
		if ctx.Err() != nil {
			return adapters.FailResponse(types.ErrorKindCancelled, ctx.Err().Error())
		}
		return adapters.FailResponse(types.ErrorKindNetwork, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := adapters.ReadErrorMessage(resp.Body)
		return adapters.FailResponse(adapters.MapHTTPError(resp.StatusCode, msg), msg)
	}

	var wr wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return adapters.FailResponse(types.ErrorKindDeserialization, "failed to decode response: "+err.Error())
	}

	var text strings.Builder
	for _, block := range wr.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	model := wr.Model
	if model == "" {
		model = p.model
	}

	return types.Response{
		Success:          true,
		Text:             text.String(),
		Model:            model,
		PromptTokens:     wr.Usage.InputTokens,
		CompletionTokens: wr.Usage.OutputTokens,
		TotalTokens:      wr.Usage.InputTokens + wr.Usage.OutputTokens,
		FinishReason:     wr.StopReason,
	}
}
