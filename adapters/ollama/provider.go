// Package ollama adapts the neutral request/response model to Ollama's
// native API (spec.md §4.1): POST /api/generate or /api/chat, no auth,
// availability via GET /api/tags. LM Studio reuses this adapter unchanged
// (spec.md §4.1: "LM Studio: reuses the Ollama adapter").
package ollama

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

// Provider is the Ollama (and LM Studio) adapter.
type Provider struct {
	baseURL string
	model   string
	client  *http.Client
	logger  *zap.Logger
}

// New builds an Ollama adapter.
func New(baseURL, model string, timeout time.Duration, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{baseURL: baseURL, model: model, client: &http.Client{Timeout: timeout}, logger: logger}
}

// IsAvailable checks GET /api/tags, per spec.md §4.1.
func (p *Provider) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden || resp.StatusCode >= 500 {
		return false
	}
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	System string `json:"system,omitempty"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// Complete issues POST /api/generate directly.
func (p *Provider) Complete(ctx context.Context, req types.CompletionRequest) types.Response {
	body := generateRequest{Model: p.model, Prompt: req.Prompt, System: req.SystemMessage, Stream: false}
	return p.doGenerate(ctx, body)
}

func (p *Provider) doGenerate(ctx context.Context, body generateRequest) types.Response {
	payload, err := json.Marshal(body)
	if err != nil {
		return adapters.FailResponse(types.ErrorKindDeserialization, "failed to encode request: "+err.Error())
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return adapters.FailResponse(types.ErrorKindNetwork, "failed to build request: "+err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")

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

	model := wr.Model
	if model == "" {
		model = p.model
	}
	return types.Response{
		Success:          true,
		Text:             wr.Response,
		Model:            model,
		PromptTokens:     wr.PromptEvalCount,
		CompletionTokens: wr.EvalCount,
		TotalTokens:      wr.PromptEvalCount + wr.EvalCount,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatResponseMessage struct {
	Content string `json:"content"`
}

type chatResponse struct {
	Model           string              `json:"model"`
	Message         chatResponseMessage `json:"message"`
	Done            bool                `json:"done"`
	PromptEvalCount int                 `json:"prompt_eval_count"`
	EvalCount       int                 `json:"eval_count"`
}

// Chat issues POST /api/chat.
func (p *Provider) Chat(ctx context.Context, req types.ChatRequest) types.Response {
	wireMessages := make([]chatMessage, 0, len(req.Messages)+1)
	if req.SystemMessage != "" {
		wireMessages = append(wireMessages, chatMessage{Role: "system", Content: req.SystemMessage})
	}
	for _, m := range req.Messages {
		wireMessages = append(wireMessages, chatMessage{Role: string(m.Role), Content: m.Content})
	}

	body := chatRequest{Model: p.model, Messages: wireMessages, Stream: false}
	payload, err := json.Marshal(body)
	if err != nil {
		return adapters.FailResponse(types.ErrorKindDeserialization, "failed to encode request: "+err.Error())
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return adapters.FailResponse(types.ErrorKindNetwork, "failed to build request: "+err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")

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

	model := wr.Model
	if model == "" {
		model = p.model
	}
	return types.Response{
		Success:          true,
		Text:             wr.Message.Content,
		Model:            model,
		PromptTokens:     wr.PromptEvalCount,
		CompletionTokens: wr.EvalCount,
		TotalTokens:      wr.PromptEvalCount + wr.EvalCount,
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
