package router

import (
	"time"

	"go.uber.org/zap"

	"github.com/polyglotai/router/circuitbreaker"
	"github.com/polyglotai/router/internal/spend"
	"github.com/polyglotai/router/ratelimit"
)

// SelectionStrategy picks which of the five (six, counting Specific)
// selection algorithms the Service uses by default (spec.md §4.3).
type SelectionStrategy string

const (
	StrategyFailover      SelectionStrategy = "Failover"
	StrategyRoundRobin    SelectionStrategy = "RoundRobin"
	StrategyLowestLatency SelectionStrategy = "LowestLatency"
	StrategyRandom        SelectionStrategy = "Random"
	StrategySpecific      SelectionStrategy = "Specific"
	StrategySimultaneous  SelectionStrategy = "Simultaneous"
)

// BackendType tags a built-in adapter. CustomBackendType on a
// BackendConfig, when set, overrides Type and is looked up in the plugin
// registry instead.
type BackendType string

const (
	BackendOpenAI           BackendType = "OpenAI"
	BackendAzureOpenAI      BackendType = "AzureOpenAI"
	BackendAnthropic        BackendType = "Anthropic"
	BackendGemini           BackendType = "Gemini"
	BackendCohere           BackendType = "Cohere"
	BackendOllama           BackendType = "Ollama"
	BackendLMStudio         BackendType = "LMStudio"
	BackendEasyNMT          BackendType = "EasyNMT"
	BackendLlamaCpp         BackendType = "LlamaCpp"
	BackendOpenAICompatible BackendType = "OpenAICompatible"
)

// BackendConfig is one entry in Config.Backends (spec.md §3).
type BackendConfig struct {
	Name              string
	Type              BackendType
	CustomBackendType string

	BaseUrl          string
	ApiKey           string
	ModelName        string
	DeploymentName   string
	ApiVersion       string
	OrganizationId   string
	AnthropicVersion string
	ProjectId        string
	Location         string

	Temperature      *float64
	MaxOutputTokens  *int
	MaxInputTokens   *int
	TopP             *float64
	FrequencyPenalty *float64
	PresencePenalty  *float64
	StopSequences    []string

	Priority int
	Enabled  bool

	TimeoutSeconds        int
	MaxRetries            int
	EnableStreaming       bool
	EnableFunctionCalling bool

	CostPerMillionInputTokens  float64
	CostPerMillionOutputTokens float64
	MaxSpendUsd                *float64
	SpendResetPeriod           spend.Period
	SpendResetDayOfWeek        time.Weekday
	SpendResetDayOfMonth       int
	LogBudgetExceeded          bool

	AdditionalHeaders map[string]string

	// LlamaCpp-specific.
	ModelPath     string
	ModelUrl      string
	AutoDownload  bool
	ContextSize   int
	GpuLayers     int
	Threads       int
	UseMemoryLock bool
	Seed          int

	// Logger is a Go-idiom collaborator, not a spec field: injected at
	// construction time rather than loaded from configuration. A nil
	// Logger is replaced by NewService with the root Config.Logger (or a
	// no-op logger when that is nil too) scoped with a "backend" field.
	Logger *zap.Logger
}

// CircuitBreakerOptions is the root CircuitBreaker option group (spec.md §6).
type CircuitBreakerOptions = circuitbreaker.Config

// RateLimitOptions is the root RateLimit option group (spec.md §6).
type RateLimitOptions = ratelimit.Config

// CachingOptions is consumed only by an externally supplied CacheHook; the
// core never constructs a cache backend itself.
type CachingOptions struct {
	Enabled    bool
	TTLSeconds int
	MaxEntries int
}

// HealthCheckOptions drives the optional background health-probe ticker
// (spec.md §6), grounded on the teacher's Router.startProviderHealthChecks.
type HealthCheckOptions struct {
	Enabled            bool
	IntervalSeconds    int
	TimeoutSeconds     int
	UnhealthyThreshold int
	HealthyThreshold   int
}

// SecretsOptions is a placeholder external-collaborator boundary: the core
// receives already-resolved credentials as plain strings on BackendConfig,
// so this group carries no fields the core itself interprets.
type SecretsOptions struct {
	Provider string
}

// TelemetryOptions toggles observability surfaces (spec.md §6).
type TelemetryOptions struct {
	EnableMetrics         bool
	EnableTracing         bool
	EnableDetailedLogging bool
	LogContent            bool
	ServiceName           string
	EnableCostTracking    bool
	LogTokenCounts        bool
}

// MemoryOptions is an external-collaborator boundary: the core consumes
// neutral ChatRequest/CompletionRequest values only; anything that builds
// them from conversation history lives outside the core.
type MemoryOptions struct {
	Enabled bool
}

// PluginsOptions drives discovery of custom Adapter plugins (spec.md §6).
// The core itself never walks a filesystem — PluginDirectory and
// SearchSubdirectories are carried here purely so an external loader can
// consult the same configuration surface; registration itself happens on
// the plugins.Registry passed to NewService.
type PluginsOptions struct {
	Enabled              bool
	PluginDirectory      string
	SearchSubdirectories bool
	LoadOnStartup        bool
	SpecificPlugins      []string
}

// Config is the root configuration (spec.md §3/§6). It is received fully
// validated; the core performs no file or environment loading.
type Config struct {
	SelectionStrategy     SelectionStrategy
	TimeoutSeconds        int
	MaxRetries            int
	UseExponentialBackoff bool
	RetryDelayMs          int
	DefaultTemperature    float64
	DefaultMaxTokens      int

	CircuitBreaker CircuitBreakerOptions
	RateLimit      RateLimitOptions
	Caching        CachingOptions
	HealthCheck    HealthCheckOptions
	Secrets        SecretsOptions
	Telemetry      TelemetryOptions
	Memory         MemoryOptions
	Plugins        PluginsOptions

	Backends []BackendConfig

	// Logger is the root injected collaborator; per-backend Loggers
	// default to Logger.With("backend", name) when unset.
	Logger *zap.Logger
}

// DefaultConfig returns the documented defaults from spec.md §3/§6.
func DefaultConfig() Config {
	return Config{
		SelectionStrategy:     StrategyFailover,
		TimeoutSeconds:        120,
		MaxRetries:            3,
		UseExponentialBackoff: true,
		RetryDelayMs:          500,
		DefaultTemperature:    0.7,
		DefaultMaxTokens:      2000,
		CircuitBreaker:        circuitbreaker.DefaultConfig(),
		RateLimit:             ratelimit.DefaultConfig(),
	}
}
