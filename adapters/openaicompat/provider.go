// Package openaicompat is the base adapter for every provider that speaks
// the OpenAI Chat Completions wire format: OpenAI itself, Azure OpenAI,
// LlamaCpp's OpenAI-compatible endpoint, and the Generic OpenAI-compatible
// backend type (spec.md §4.1).
//
// Grounded on the teacher's llm/providers/openaicompat.Provider: a base
// struct embedded by sibling provider packages, a BuildHeaders hook so
// embedders can swap bearer auth for an api-key header, and a single
// Completion/Chat implementation shared by every embedder that doesn't
// need to override the wire format.
package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/polyglotai/router/types"
	"github.com/polyglotai/router/adapters"
)

// Config configures one OpenAI-compatible endpoint.
type Config struct {
	ProviderName string
	APIKey       string
	BaseURL      string
	Model        string

	CompletionsPath string // default "/v1/chat/completions"
	ModelsPath      string // default "/v1/models"

	// BuildHeaders lets an embedder (Azure's api-key header, for example)
	// override the default "Authorization: Bearer <APIKey>" header.
	BuildHeaders func(cfg Config, req *http.Request)

	AdditionalHeaders map[string]string

	DefaultTemperature *float64
	DefaultMaxTokens   *int
}

// Provider is the shared base embedded by OpenAI, Azure OpenAI, LlamaCpp's
// compat mode, and the generic OpenAI-compatible backend.
type Provider struct {
	Cfg    Config
	Client *http.Client
	Logger *zap.Logger
}

// New builds a Provider, filling in documented defaults for unset fields.
func New(cfg Config, logger *zap.Logger, client *http.Client) *Provider {
	if cfg.CompletionsPath == "" {
		cfg.CompletionsPath = "/v1/chat/completions"
	}
	if cfg.ModelsPath == "" {
		cfg.ModelsPath = "/v1/models"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Provider{Cfg: cfg, Client: client, Logger: logger}
}

func (p *Provider) buildHeaders(req *http.Request) {
	if p.Cfg.BuildHeaders != nil {
		p.Cfg.BuildHeaders(p.Cfg, req)
	} else if p.Cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.Cfg.APIKey)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range p.Cfg.AdditionalHeaders {
		req.Header.Set(k, v)
	}
}

// IsAvailable issues a GET against the models endpoint; per spec.md §4.1,
// 2xx or a 4xx validation error both count as available — only transport
// errors and 401/403/5xx count as unavailable.
func (p *Provider) IsAvailable(ctx context.Context) bool {
	url := p.Cfg.BaseURL + p.Cfg.ModelsPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	p.buildHeaders(req)

	resp, err := p.Client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return true
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return false
	case resp.StatusCode >= 500:
		return false
	default:
		return true
	}
}

// Complete lowers to Chat (spec.md §4.1: "A Complete call is lowered to
// Chat with a single user message plus optional system message").
func (p *Provider) Complete(ctx context.Context, req types.CompletionRequest) types.Response {
	return p.Chat(ctx, req.AsChat())
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

type wireRequest struct {
	Model            string        `json:"model"`
	Messages         []wireMessage `json:"messages"`
	Temperature      *float64      `json:"temperature,omitempty"`
	MaxTokens        *int          `json:"max_tokens,omitempty"`
	TopP             *float64      `json:"top_p,omitempty"`
	FrequencyPenalty *float64      `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64      `json:"presence_penalty,omitempty"`
	Stop             []string      `json:"stop,omitempty"`
	Stream           bool          `json:"stream,omitempty"`
}

type wireChoice struct {
	Message      wireMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type wireUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type wireResponse struct {
	Model   string       `json:"model"`
	Choices []wireChoice `json:"choices"`
	Usage   wireUsage    `json:"usage"`
}

// Chat builds and issues the OpenAI Chat Completions request, decoding the
// response into a neutral Response. Embedders that need a different URL
// (Azure) override Complete/Chat and call ChatAt with their own endpoint.
func (p *Provider) Chat(ctx context.Context, req types.ChatRequest) types.Response {
	return p.ChatAt(ctx, p.Cfg.BaseURL+p.Cfg.CompletionsPath, req)
}

// ChatAt issues the Chat Completions request against an explicit URL,
// letting embedders reuse the wire encoding/decoding while customizing the
// endpoint (Azure's deployment-scoped path, for example).
func (p *Provider) ChatAt(ctx context.Context, url string, req types.ChatRequest) types.Response {
	wireMessages := make([]wireMessage, 0, len(req.Messages)+1)
	if req.SystemMessage != "" {
		wireMessages = append(wireMessages, wireMessage{Role: "system", Content: req.SystemMessage})
	}
	for _, m := range req.Messages {
		wireMessages = append(wireMessages, wireMessage{Role: string(m.Role), Content: m.Content, Name: m.Name})
	}

	body := wireRequest{
		Model:            p.Cfg.Model,
		Messages:         wireMessages,
		Temperature:      adapters.EffectiveTemperature(req.Temperature, p.Cfg.DefaultTemperature),
		MaxTokens:        firstNonNilInt(req.MaxTokens, p.Cfg.DefaultMaxTokens),
		TopP:             req.TopP,
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  req.PresencePenalty,
		Stop:             req.StopSequences,
		Stream:           false,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return adapters.FailResponse(types.ErrorKindDeserialization, "failed to encode request: "+err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return adapters.FailResponse(types.ErrorKindNetwork, "failed to build request: "+err.Error())
	}
	p.buildHeaders(httpReq)

	resp, err := p.Client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return adapters.FailResponse(classifyCtxErr(ctx), ctx.Err().Error())
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
	if len(wr.Choices) == 0 {
		return adapters.FailResponse(types.ErrorKindDeserialization, "response contained no choices")
	}

	model := wr.Model
	if model == "" {
		model = p.Cfg.Model
	}

	return types.Response{
		Success:          true,
		Text:             wr.Choices[0].Message.Content,
		Model:            model,
		PromptTokens:     wr.Usage.PromptTokens,
		CompletionTokens: wr.Usage.CompletionTokens,
		TotalTokens:      wr.Usage.TotalTokens,
		FinishReason:     wr.Choices[0].FinishReason,
	}
}

func classifyCtxErr(ctx context.Context) types.ErrorKind {
	if ctx.Err() == context.DeadlineExceeded {
		return types.ErrorKindTimeout
	}
	return types.ErrorKindCancelled
}

func firstNonNilInt(a, b *int) *int {
	if a != nil {
		return a
	}
	return b
}
