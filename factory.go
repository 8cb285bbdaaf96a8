package router

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/polyglotai/router/adapters/anthropic"
	"github.com/polyglotai/router/adapters/azureopenai"
	"github.com/polyglotai/router/adapters/cohere"
	"github.com/polyglotai/router/adapters/easynmt"
	"github.com/polyglotai/router/adapters/gemini"
	"github.com/polyglotai/router/adapters/llamacpp"
	"github.com/polyglotai/router/adapters/ollama"
	"github.com/polyglotai/router/adapters/openai"
	"github.com/polyglotai/router/adapters/openaicompat"
	"github.com/polyglotai/router/plugins"
)

// effectiveTimeout resolves a backend's configured timeout against the
// root default (spec.md §5: "Per-request effective deadline").
func effectiveTimeout(backendSeconds, rootSeconds int) time.Duration {
	seconds := rootSeconds
	if backendSeconds > 0 {
		seconds = backendSeconds
	}
	if seconds <= 0 {
		seconds = 120
	}
	return time.Duration(seconds) * time.Second
}

// newHTTPClient builds one pooled, keep-alive HTTP client per Backend
// Instance (spec.md §5: "HTTP client connections are pooled per-backend").
func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

// buildAdapter constructs the Adapter for one BackendConfig. When
// CustomBackendType is set it overrides Type and the plugin registry is
// consulted; otherwise the built-in adapter named by Type is used (spec.md
// §4.6).
func buildAdapter(cfg BackendConfig, rootTimeoutSeconds int, registry *plugins.Registry) (Adapter, error) {
	if cfg.CustomBackendType != "" {
		if registry == nil {
			return nil, fmt.Errorf("router: backend %q requests plugin type %q but no plugin registry is configured", cfg.Name, cfg.CustomBackendType)
		}
		factoryAny, _, err := registry.Get(cfg.CustomBackendType)
		if err != nil {
			return nil, fmt.Errorf("router: backend %q: %w", cfg.Name, err)
		}
		factory, ok := factoryAny.(AdapterFactory)
		if !ok {
			return nil, fmt.Errorf("router: backend %q: plugin factory for %q has the wrong type", cfg.Name, cfg.CustomBackendType)
		}
		return factory(cfg)
	}

	timeout := effectiveTimeout(cfg.TimeoutSeconds, rootTimeoutSeconds)
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Type {
	case BackendOpenAI:
		return openai.New(cfg.BaseUrl, cfg.ApiKey, cfg.ModelName, cfg.OrganizationId, timeout, logger), nil
	case BackendAzureOpenAI:
		return azureopenai.New(cfg.BaseUrl, cfg.ApiKey, cfg.DeploymentName, cfg.ApiVersion, cfg.ModelName, timeout, logger), nil
	case BackendAnthropic:
		return anthropic.New(cfg.BaseUrl, cfg.ApiKey, cfg.ModelName, cfg.AnthropicVersion, timeout, logger), nil
	case BackendGemini:
		return gemini.New(cfg.BaseUrl, cfg.ApiKey, cfg.ModelName, cfg.ProjectId, cfg.Location, timeout, logger), nil
	case BackendCohere:
		return cohere.New(cfg.BaseUrl, cfg.ApiKey, cfg.ModelName, timeout, logger), nil
	case BackendOllama, BackendLMStudio:
		return ollama.New(cfg.BaseUrl, cfg.ModelName, timeout, logger), nil
	case BackendEasyNMT:
		target, source := easyNMTLangs(cfg)
		return easynmt.New(cfg.BaseUrl, target, source, timeout, logger), nil
	case BackendLlamaCpp:
		return llamacpp.New(llamacpp.Config{
			BaseURL:       cfg.BaseUrl,
			Model:         cfg.ModelName,
			Timeout:       timeout,
			ModelPath:     cfg.ModelPath,
			ModelUrl:      cfg.ModelUrl,
			AutoDownload:  cfg.AutoDownload,
			ContextSize:   cfg.ContextSize,
			GpuLayers:     cfg.GpuLayers,
			Threads:       cfg.Threads,
			UseMemoryLock: cfg.UseMemoryLock,
			Seed:          cfg.Seed,
		}, logger), nil
	case BackendOpenAICompatible:
		return openaicompat.New(openaicompat.Config{
			ProviderName:      "OpenAICompatible",
			APIKey:            cfg.ApiKey,
			BaseURL:           cfg.BaseUrl,
			Model:             cfg.ModelName,
			AdditionalHeaders: cfg.AdditionalHeaders,
		}, logger, newHTTPClient(timeout)), nil
	default:
		return nil, fmt.Errorf("router: backend %q has unrecognized type %q", cfg.Name, cfg.Type)
	}
}

// easyNMTLangs reads the target/source language pair out of
// AdditionalHeaders, since spec.md's BackendConfig has no dedicated
// language fields for EasyNMT — "target_lang"/"source_lang" are the
// conventional keys an EasyNMT deployment is configured with.
func easyNMTLangs(cfg BackendConfig) (target, source string) {
	target = cfg.AdditionalHeaders["target_lang"]
	if target == "" {
		target = "en"
	}
	source = cfg.AdditionalHeaders["source_lang"]
	return target, source
}
