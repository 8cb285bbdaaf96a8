// Package llamacpp adapts the neutral request/response model to a
// llama.cpp server (spec.md §4.1): POST /completion (native) and POST
// /v1/chat/completions (OpenAI-compatible); health via GET /health or
// GET /v1/models. ContextSize, GpuLayers, Threads, UseMemoryLock, and Seed
// are forwarded as native parameters (n_ctx, n_gpu_layers, etc.) on the
// native endpoint.
//
// Grounded on the teacher's embedding pattern (llm/providers/llama wraps
// *openai.OpenAIProvider for the OpenAI-compatible surface); the
// OpenAI-compatible path here wraps an *openaicompat.Provider held in the
// compat field.
// Complete dispatches to CompleteNative, which speaks llama.cpp's own
// /completion format, whenever a native-only parameter is configured, so
// those fields reach the server even when called through BackendInstance.
package llamacpp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/polyglotai/router/types"
	"github.com/polyglotai/router/adapters"
	"github.com/polyglotai/router/adapters/openaicompat"
)

// Config configures a llama.cpp backend, including the model-download
// knobs from spec.md §3.
type Config struct {
	BaseURL string
	Model   string
	Timeout time.Duration

	ModelPath     string
	ModelUrl      string
	AutoDownload  bool
	ContextSize   int
	GpuLayers     int
	Threads       int
	UseMemoryLock bool
	Seed          int
}

// Provider is the LlamaCpp adapter.
type Provider struct {
	cfg    Config
	compat *openaicompat.Provider
	client *http.Client
	logger *zap.Logger

	ensureOnce sync.Once
	ensureErr  error
}

// New builds a LlamaCpp adapter.
func New(cfg Config, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := &http.Client{Timeout: cfg.Timeout}
	compatCfg := openaicompat.Config{
		ProviderName: "LlamaCpp",
		BaseURL:      cfg.BaseURL,
		Model:        cfg.Model,
	}
	return &Provider{
		cfg:    cfg,
		compat: openaicompat.New(compatCfg, logger, client),
		client: client,
		logger: logger,
	}
}

func (p *Provider) ensureModel(ctx context.Context) error {
	p.ensureOnce.Do(func() {
		p.ensureErr = EnsureModel(ctx, p.cfg.ModelPath, p.cfg.ModelUrl, p.cfg.AutoDownload, p.logger)
	})
	return p.ensureErr
}

// IsAvailable checks GET /health, falling back to GET /v1/models (spec.md
// §4.1).
func (p *Provider) IsAvailable(ctx context.Context) bool {
	if p.probe(ctx, "/health") {
		return true
	}
	return p.compat.IsAvailable(ctx)
}

func (p *Provider) probe(ctx context.Context, path string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+path, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// Complete routes to llama.cpp's native /completion endpoint whenever a
// native-only knob (ContextSize/GpuLayers/Threads/UseMemoryLock/Seed) is
// configured, so those fields actually reach the server; otherwise it
// falls back to the OpenAI-compatible surface, matching every other
// adapter's "Complete lowers to Chat" convention.
func (p *Provider) Complete(ctx context.Context, req types.CompletionRequest) types.Response {
	if p.hasNativeParams() {
		return p.CompleteNative(ctx, req)
	}
	if err := p.ensureModel(ctx); err != nil {
		return adapters.FailResponse(types.ErrorKindServerError, err.Error())
	}
	return p.compat.Complete(ctx, req)
}

func (p *Provider) hasNativeParams() bool {
	return p.cfg.ContextSize != 0 || p.cfg.GpuLayers != 0 || p.cfg.Threads != 0 || p.cfg.UseMemoryLock || p.cfg.Seed != 0
}

// Chat uses the OpenAI-compatible surface.
func (p *Provider) Chat(ctx context.Context, req types.ChatRequest) types.Response {
	if err := p.ensureModel(ctx); err != nil {
		return adapters.FailResponse(types.ErrorKindServerError, err.Error())
	}
	return p.compat.Chat(ctx, req)
}

type nativeRequest struct {
	Prompt        string   `json:"prompt"`
	NCtx          int      `json:"n_ctx,omitempty"`
	NGpuLayers    int      `json:"n_gpu_layers,omitempty"`
	Threads       int      `json:"n_threads,omitempty"`
	UseMlock      bool     `json:"use_mlock,omitempty"`
	Seed          int      `json:"seed,omitempty"`
	Temperature   *float64 `json:"temperature,omitempty"`
	TopP          *float64 `json:"top_p,omitempty"`
	NPredict      *int     `json:"n_predict,omitempty"`
	Stop          []string `json:"stop,omitempty"`
}

type nativeResponse struct {
	Content         string `json:"content"`
	StoppedEos      bool   `json:"stopped_eos"`
	TokensEvaluated int    `json:"tokens_evaluated"`
	TokensPredicted int    `json:"tokens_predicted"`
}

// CompleteNative issues POST /completion directly against llama.cpp's own
// wire format, forwarding ContextSize/GpuLayers/Threads/UseMemoryLock/Seed
// as native parameters (spec.md §4.1).
func (p *Provider) CompleteNative(ctx context.Context, req types.CompletionRequest) types.Response {
	if err := p.ensureModel(ctx); err != nil {
		return adapters.FailResponse(types.ErrorKindServerError, err.Error())
	}

	body := nativeRequest{
		Prompt:      req.Prompt,
		NCtx:        p.cfg.ContextSize,
		NGpuLayers:  p.cfg.GpuLayers,
		Threads:     p.cfg.Threads,
		UseMlock:    p.cfg.UseMemoryLock,
		Seed:        p.cfg.Seed,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		NPredict:    req.MaxTokens,
		Stop:        req.StopSequences,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return adapters.FailResponse(types.ErrorKindDeserialization, "failed to encode request: "+err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/completion", bytes.NewReader(payload))
	if err != nil {
		return adapters.FailResponse(types.ErrorKindNetwork, "failed to build request: "+err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")

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

	var wr nativeResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return adapters.FailResponse(types.ErrorKindDeserialization, "failed to decode response: "+err.Error())
	}

	return types.Response{
		Success:          true,
		Text:             wr.Content,
		Model:            p.cfg.Model,
		PromptTokens:     wr.TokensEvaluated,
		CompletionTokens: wr.TokensPredicted,
		TotalTokens:      wr.TokensEvaluated + wr.TokensPredicted,
	}
}
