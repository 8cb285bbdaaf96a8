// Package cohere adapts the neutral request/response model to Cohere's
// Generate (completion) and Chat APIs (spec.md §4.1): bearer auth; roles
// map user->USER, assistant->CHATBOT, system->SYSTEM; for chat, every
// message but the last becomes chat_history and the final user message
// becomes the top-level "message" field.
package cohere

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/polyglotai/router/types"
	"github.com/polyglotai/router/adapters"
)

// Provider is the Cohere adapter.
type Provider struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	logger  *zap.Logger
}

// New builds a Cohere adapter.
func New(baseURL, apiKey, model string, timeout time.Duration, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{baseURL: baseURL, apiKey: apiKey, model: model, client: &http.Client{Timeout: timeout}, logger: logger}
}

func (p *Provider) buildHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")
}

func cohereRole(role types.Role) string {
	switch role {
	case types.RoleAssistant:
		return "CHATBOT"
	case types.RoleSystem:
		return "SYSTEM"
	default:
		return "USER"
	}
}

type generateRequest struct {
	Model            string   `json:"model"`
	Prompt           string   `json:"prompt"`
	Temperature      *float64 `json:"temperature,omitempty"`
	MaxTokens        *int     `json:"max_tokens,omitempty"`
	P                *float64 `json:"p,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
	StopSequences    []string `json:"stop_sequences,omitempty"`
}

type generation struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Generations []generation `json:"generations"`
	Meta        struct {
		BilledUnits struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"billed_units"`
	} `json:"meta"`
}

type chatHistoryEntry struct {
	Role    string `json:"role"`
	Message string `json:"message"`
}

type chatRequest struct {
	Model         string             `json:"model"`
	Message       string             `json:"message"`
	ChatHistory   []chatHistoryEntry `json:"chat_history,omitempty"`
	Preamble      string             `json:"preamble,omitempty"`
	Temperature   *float64           `json:"temperature,omitempty"`
	MaxTokens     *int               `json:"max_tokens,omitempty"`
	P             *float64           `json:"p,omitempty"`
	StopSequences []string           `json:"stop_sequences,omitempty"`
}

type chatResponse struct {
	Text string `json:"text"`
	Meta struct {
		BilledUnits struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"billed_units"`
	} `json:"meta"`
	FinishReason string `json:"finish_reason"`
}

// IsAvailable issues a minimal chat request; per spec.md §4.1, 2xx or a
// 4xx validation error both count as available.
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

// Complete issues a Generate call directly (Cohere has a distinct
// completion endpoint, unlike the OpenAI-style adapters that lower
// Complete to Chat).
func (p *Provider) Complete(ctx context.Context, req types.CompletionRequest) types.Response {
	body := generateRequest{
		Model:            p.model,
		Prompt:           req.Prompt,
		Temperature:      req.Temperature,
		MaxTokens:        req.MaxTokens,
		P:                req.TopP,
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  req.PresencePenalty,
		StopSequences:    req.StopSequences,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return adapters.FailResponse(types.ErrorKindDeserialization, "failed to encode request: "+err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/generate", bytes.NewReader(payload))
	if err != nil {
		return adapters.FailResponse(types.ErrorKindNetwork, "failed to build request: "+err.Error())
	}
	p.buildHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return classifyTransportErr(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := adapters.ReadErrorMessage(resp.Body)
		return adapters.FailResponse(adapters.MapHTTPError(resp.StatusCode, msg), msg)
	}

	var wr generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return adapters.FailResponse(types.ErrorKindDeserialization, "failed to decode response: "+err.Error())
	}
	if len(wr.Generations) == 0 {
		return adapters.FailResponse(types.ErrorKindDeserialization, "response contained no generations")
	}

	return types.Response{
		Success:          true,
		Text:             wr.Generations[0].Text,
		Model:            p.model,
		PromptTokens:     wr.Meta.BilledUnits.InputTokens,
		CompletionTokens: wr.Meta.BilledUnits.OutputTokens,
		TotalTokens:      wr.Meta.BilledUnits.InputTokens + wr.Meta.BilledUnits.OutputTokens,
	}
}

// Chat implements the neutral Chat operation against Cohere's Chat API.
func (p *Provider) Chat(ctx context.Context, req types.ChatRequest) types.Response {
	system, rest := adapters.ExtractSystemMessage(req.Messages, req.SystemMessage)

	var message string
	var history []chatHistoryEntry
	if len(rest) > 0 {
		last := rest[len(rest)-1]
		message = last.Content
		for _, m := range rest[:len(rest)-1] {
			history = append(history, chatHistoryEntry{Role: cohereRole(m.Role), Message: m.Content})
		}
	}

	body := chatRequest{
		Model:         p.model,
		Message:       message,
		ChatHistory:   history,
		Preamble:      system,
		Temperature:   req.Temperature,
		MaxTokens:     req.MaxTokens,
		P:             req.TopP,
		StopSequences: req.StopSequences,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return adapters.FailResponse(types.ErrorKindDeserialization, "failed to encode request: "+err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/chat", bytes.NewReader(payload))
	if err != nil {
		return adapters.FailResponse(types.ErrorKindNetwork, "failed to build request: "+err.Error())
	}
	p.buildHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return classifyTransportErr(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := adapters.ReadErrorMessage(resp.Body)
		return adapters.FailResponse(adapters.MapHTTPError(resp.StatusCode, msg), msg)
	}

	var wr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return adapters.FailResponse(types.ErrorKindDeserialization, "failed to decode response: "+err.Error())
	}

	return types.Response{
		Success:          true,
		Text:             wr.Text,
		Model:            p.model,
		PromptTokens:     wr.Meta.BilledUnits.InputTokens,
		CompletionTokens: wr.Meta.BilledUnits.OutputTokens,
		TotalTokens:      wr.Meta.BilledUnits.InputTokens + wr.Meta.BilledUnits.OutputTokens,
		FinishReason:     wr.FinishReason,
	}
}

func classifyTransportErr(ctx context.Context, err error) types.Response {
	if ctx.Err() == context.DeadlineExceeded {
		return adapters.FailResponse(types.ErrorKindTimeout, ctx.Err().Error())
	}
	if ctx.Err() != nil {
		return adapters.FailResponse(types.ErrorKindCancelled, ctx.Err().Error())
	}
	return adapters.FailResponse(types.ErrorKindNetwork, err.Error())
}
