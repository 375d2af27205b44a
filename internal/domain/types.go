package domain

import "time"

// Selector is a CSS or text-based locator string as it appears in test code.
type Selector string

// HealOptions carries the caller-supplied hints for one heal() call.
type HealOptions struct {
	// ExpectedType, if set, is the tag name the caller expects the healed
	// element to have; strategies award a confidence bonus for a match.
	ExpectedType string
}

// ElementDescriptor is the normalized view of a DOM element produced by the
// Introspector, consumed by every Strategy.
type ElementDescriptor struct {
	Tag        string            `json:"tag"`
	ID         string            `json:"id,omitempty"`
	Classes    []string          `json:"classes,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Text       string            `json:"text,omitempty"`
	Path       string            `json:"path"`
	Visible    bool              `json:"visible"`
}

// Candidate is a selector produced by a Strategy along with the confidence
// the strategy assigns it, before validation against the live page.
type Candidate struct {
	Selector   Selector `json:"selector"`
	Confidence float64  `json:"confidence"`
	Strategy   string   `json:"strategy"`
	Reason     string   `json:"reason,omitempty"`
}

// HealingResult is returned by every Healer.Heal call, successful or not.
type HealingResult struct {
	Success      bool           `json:"success"`
	Selector     Selector       `json:"selector,omitempty"`
	Original     Selector       `json:"original"`
	Strategy     string         `json:"strategy,omitempty"`
	Confidence   float64        `json:"confidence,omitempty"`
	AttemptCount int            `json:"attemptCount"`
	DurationMs   int64          `json:"durationMs"`
	Error        *AppError      `json:"error,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// CacheEntry is one remembered healed-selector mapping.
type CacheEntry struct {
	Original   Selector  `json:"original"`
	Healed     Selector  `json:"healed"`
	Strategy   string    `json:"strategy"`
	Confidence float64   `json:"confidence"`
	HitCount   int       `json:"hitCount"`
	CreatedAt  time.Time `json:"createdAt"`
	LastUsedAt time.Time `json:"lastUsedAt"`
}

// FlakinessEntry tracks how often a given selector has required healing,
// independent of which healed selector was used.
type FlakinessEntry struct {
	Selector      Selector  `json:"selector"`
	FailureCount  int       `json:"failureCount"`
	HealCount     int       `json:"healCount"`
	LastFailureAt time.Time `json:"lastFailureAt"`
}

// RetryConfig controls the Retry Handler's backoff and triggers.
type RetryConfig struct {
	OnTimeout       bool `yaml:"onTimeout" json:"onTimeout"`
	OnFlakiness     bool `yaml:"onFlakiness" json:"onFlakiness"`
	MaxRetries      int  `yaml:"maxRetries" json:"maxRetries"`
	InitialBackoffMs int `yaml:"initialBackoffMs" json:"initialBackoffMs"`
}

// OllamaConfig describes how to reach the local LLM backend.
type OllamaConfig struct {
	URL        string `yaml:"url" envconfig:"OLLAMA_URL"`
	Model      string `yaml:"model" envconfig:"OLLAMA_MODEL"`
	TimeoutMs  int    `yaml:"timeoutMs" envconfig:"OLLAMA_TIMEOUT_MS"`
	Temperature float64 `yaml:"temperature" envconfig:"OLLAMA_TEMPERATURE"`
	TopP       float64 `yaml:"topP" envconfig:"OLLAMA_TOP_P"`
}

// TelemetryConfig gates structured logging and metrics emission.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled" envconfig:"TELEMETRY_ENABLED"`
	LogLevel string `yaml:"logLevel" envconfig:"TELEMETRY_LOG_LEVEL"`
}

// Config is the fully merged, validated configuration surface the Healer
// is constructed from. It is the output of the layered Config Loader:
// defaults < environment < file < programmatic override.
type Config struct {
	Enabled      bool            `yaml:"enabled" envconfig:"HEALING_ENABLED"`
	Strategies   []string        `yaml:"strategies" envconfig:"HEALING_STRATEGIES"`
	MaxAttempts  int             `yaml:"maxAttempts" envconfig:"HEALING_MAX_ATTEMPTS"`
	CacheHealing bool            `yaml:"cacheHealing" envconfig:"HEALING_CACHE"`
	Ollama       OllamaConfig    `yaml:"ollama"`
	Retry        RetryConfig     `yaml:"retry"`
	Telemetry    TelemetryConfig `yaml:"telemetry"`
}

// Known strategy names, in the default dispatch order.
const (
	StrategyTestIDRecovery = "testIdRecovery"
	StrategyTextMatch      = "textMatch"
	StrategyCSSHierarchy   = "cssHierarchy"
	StrategyLLMAnalysis    = "llmAnalysis"
)

// DefaultConfig returns the engine's built-in defaults, the bottom layer of
// the Config Loader's precedence chain.
func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		Strategies:   []string{StrategyTestIDRecovery, StrategyTextMatch, StrategyCSSHierarchy, StrategyLLMAnalysis},
		MaxAttempts:  3,
		CacheHealing: true,
		Ollama: OllamaConfig{
			URL:         "http://localhost:11434",
			Model:       "llama3.2",
			TimeoutMs:   30000,
			Temperature: 0.2,
			TopP:        0.9,
		},
		Retry: RetryConfig{
			OnTimeout:        true,
			OnFlakiness:      true,
			MaxRetries:       2,
			InitialBackoffMs: 1000,
		},
		Telemetry: TelemetryConfig{
			Enabled:  true,
			LogLevel: "info",
		},
	}
}

// Validate enforces the invariants required of a usable Config.
func (c Config) Validate() error {
	if c.MaxAttempts < 1 {
		return ErrConfigInvalid("maxAttempts must be >= 1")
	}
	if len(c.Strategies) == 0 && c.Enabled {
		return ErrNoStrategies()
	}
	if c.Retry.MaxRetries < 0 {
		return ErrConfigInvalid("retry.maxRetries must be >= 0")
	}
	if c.Retry.InitialBackoffMs < 0 {
		return ErrConfigInvalid("retry.initialBackoffMs must be >= 0")
	}
	return nil
}
