package model

import (
	"fmt"
	"math"
	"time"
)

// Config is the full runtime configuration, loadable from YAML via viper
type Config struct {
	HTTP        HTTPConfig        `yaml:"http" mapstructure:"http"`
	Cache       CacheConfig       `yaml:"cache" mapstructure:"cache"`
	Providers   ProvidersConfig   `yaml:"providers" mapstructure:"providers"`
	Retry       RetryConfig       `yaml:"retry" mapstructure:"retry"`
	Health      HealthConfig      `yaml:"health" mapstructure:"health"`
	Confidence  ConfidenceConfig  `yaml:"confidence" mapstructure:"confidence"`
	Pipeline    PipelineConfig    `yaml:"pipeline" mapstructure:"pipeline"`
	Concurrency ConcurrencyConfig `yaml:"concurrency" mapstructure:"concurrency"`
	Credibility CredibilityConfig `yaml:"credibility" mapstructure:"credibility"`
	Output      OutputConfig      `yaml:"output" mapstructure:"output"`
}

// HTTPConfig controls outbound fetching
type HTTPConfig struct {
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent     string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes  int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	RespectRobots bool          `yaml:"respect_robots" mapstructure:"respect_robots"`
	HTTPProxy     string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy    string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
}

// CacheConfig controls the layered fetch/search cache
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// ProviderConfig describes one provider entry in a fallback chain
type ProviderConfig struct {
	Name          string  `yaml:"name" mapstructure:"name"`
	Model         string  `yaml:"model,omitempty" mapstructure:"model"`
	APIKey        string  `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL       string  `yaml:"base_url,omitempty" mapstructure:"base_url"`
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	Burst         int     `yaml:"burst" mapstructure:"burst"`
	MaxConcurrent int     `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	MaxTokens     int     `yaml:"max_tokens,omitempty" mapstructure:"max_tokens"`
	Temperature   float32 `yaml:"temperature,omitempty" mapstructure:"temperature"`
}

// ProvidersConfig holds the ordered fallback chains per capability
type ProvidersConfig struct {
	Reasoning []ProviderConfig `yaml:"reasoning" mapstructure:"reasoning"`
	Search    []ProviderConfig `yaml:"search" mapstructure:"search"`
}

// RetryConfig controls the shared exponential backoff policy
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay" mapstructure:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay" mapstructure:"max_delay"`
	Jitter      float64       `yaml:"jitter" mapstructure:"jitter"` // Fraction of delay, e.g. 0.2 for +/-20%
}

// HealthConfig controls provider health tracking in the fallback chain
type HealthConfig struct {
	FailureThreshold int           `yaml:"failure_threshold" mapstructure:"failure_threshold"` // Consecutive exhaustions before marking unhealthy
	Window           time.Duration `yaml:"window" mapstructure:"window"`                       // Sliding window for counting exhaustions
	Cooldown         time.Duration `yaml:"cooldown" mapstructure:"cooldown"`                   // How long an unhealthy provider is skipped
}

// ConfidenceConfig holds aggregation weights and policy caps.
// Weights must sum to 1.0; checked at startup, never at request time.
type ConfidenceConfig struct {
	SourceCountWeight   float64 `yaml:"source_count_weight" mapstructure:"source_count_weight"`
	SourceQualityWeight float64 `yaml:"source_quality_weight" mapstructure:"source_quality_weight"`
	ConsistencyWeight   float64 `yaml:"consistency_weight" mapstructure:"consistency_weight"`
	RecencyWeight       float64 `yaml:"recency_weight" mapstructure:"recency_weight"`
	VerificationWeight  float64 `yaml:"verification_weight" mapstructure:"verification_weight"`

	SingleSourceCeiling float64 `yaml:"single_source_ceiling" mapstructure:"single_source_ceiling"` // Max confidence with one source
	ConflictCeiling     float64 `yaml:"conflict_ceiling" mapstructure:"conflict_ceiling"`           // Max confidence with detected contradiction
}

// PipelineConfig controls the orchestrator state machine
type PipelineConfig struct {
	StandardDeadline time.Duration `yaml:"standard_deadline" mapstructure:"standard_deadline"`
	DeepDeadline     time.Duration `yaml:"deep_deadline" mapstructure:"deep_deadline"`
	QuickDeadline    time.Duration `yaml:"quick_deadline" mapstructure:"quick_deadline"`
	MaxRefinements   int           `yaml:"max_refinements" mapstructure:"max_refinements"` // Bounded Verifying -> Synthesizing re-entries
	MaxSources       int           `yaml:"max_sources" mapstructure:"max_sources"`
}

// ConcurrencyConfig bounds fan-out within stages
type ConcurrencyConfig struct {
	SearchWorkers int `yaml:"search_workers" mapstructure:"search_workers"`
	VerifyWorkers int `yaml:"verify_workers" mapstructure:"verify_workers"`
}

// CredibilityConfig drives domain-tier classification of sources
type CredibilityConfig struct {
	PrimaryDomains   []string `yaml:"primary_domains" mapstructure:"primary_domains"`
	SecondaryDomains []string `yaml:"secondary_domains" mapstructure:"secondary_domains"`
	PrimarySuffixes  []string `yaml:"primary_suffixes" mapstructure:"primary_suffixes"` // e.g. .gov, .edu
}

// OutputConfig controls report rendering
type OutputConfig struct {
	Format        string        `yaml:"format" mapstructure:"format"` // markdown, json, text
	CitationStyle CitationStyle `yaml:"citation_style" mapstructure:"citation_style"`
	Verbose       bool          `yaml:"verbose" mapstructure:"verbose"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Timeout:       20 * time.Second,
			UserAgent:     "Inquest/0.1 (+https://github.com/venedict/inquest)",
			MaxBodyBytes:  2_000_000,
			RespectRobots: true,
		},
		Cache: CacheConfig{
			Enabled:   true,
			MemoryTTL: 15 * time.Minute,
			DiskTTL:   24 * time.Hour,
		},
		Providers: ProvidersConfig{
			Reasoning: []ProviderConfig{
				{Name: "openai", Model: "gpt-4o-mini", RatePerSecond: 2, Burst: 4, MaxConcurrent: 4, MaxTokens: 2000, Temperature: 0.3},
			},
			Search: []ProviderConfig{
				{Name: "duckduckgo", RatePerSecond: 1, Burst: 1, MaxConcurrent: 2},
				{Name: "cache", RatePerSecond: 100, Burst: 100, MaxConcurrent: 8},
			},
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   time.Second,
			MaxDelay:    30 * time.Second,
			Jitter:      0.2,
		},
		Health: HealthConfig{
			FailureThreshold: 3,
			Window:           2 * time.Minute,
			Cooldown:         30 * time.Second,
		},
		Confidence: ConfidenceConfig{
			SourceCountWeight:   0.25,
			SourceQualityWeight: 0.25,
			ConsistencyWeight:   0.20,
			RecencyWeight:       0.15,
			VerificationWeight:  0.15,
			SingleSourceCeiling: 0.5,
			ConflictCeiling:     0.4,
		},
		Pipeline: PipelineConfig{
			QuickDeadline:    30 * time.Second,
			StandardDeadline: 60 * time.Second,
			DeepDeadline:     120 * time.Second,
			MaxRefinements:   1,
			MaxSources:       10,
		},
		Concurrency: ConcurrencyConfig{
			SearchWorkers: 4,
			VerifyWorkers: 4,
		},
		Credibility: CredibilityConfig{
			PrimaryDomains:   []string{"arxiv.org", "nature.com", "science.org", "nih.gov", "who.int"},
			SecondaryDomains: []string{"wikipedia.org", "britannica.com", "reuters.com", "apnews.com", "bbc.com"},
			PrimarySuffixes:  []string{".gov", ".edu"},
		},
		Output: OutputConfig{
			Format:        "markdown",
			CitationStyle: StyleAPA,
		},
	}
}

// Validate enforces startup-time invariants. A violation here is a fatal
// configuration error; it must abort before any request runs.
func (c *Config) Validate() error {
	w := c.Confidence
	sum := w.SourceCountWeight + w.SourceQualityWeight + w.ConsistencyWeight + w.RecencyWeight + w.VerificationWeight
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("confidence weights must sum to 1.0, got %.4f", sum)
	}
	if w.SingleSourceCeiling <= 0 || w.SingleSourceCeiling > 1 {
		return fmt.Errorf("single_source_ceiling must be in (0,1], got %v", w.SingleSourceCeiling)
	}
	if w.ConflictCeiling <= 0 || w.ConflictCeiling > 1 {
		return fmt.Errorf("conflict_ceiling must be in (0,1], got %v", w.ConflictCeiling)
	}
	if len(c.Providers.Reasoning) == 0 {
		return fmt.Errorf("providers.reasoning chain is empty")
	}
	if len(c.Providers.Search) == 0 {
		return fmt.Errorf("providers.search chain is empty")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be >= 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Pipeline.MaxRefinements < 0 {
		return fmt.Errorf("pipeline.max_refinements must be >= 0, got %d", c.Pipeline.MaxRefinements)
	}
	return nil
}

// DeadlineFor maps a depth mode to its wall-clock budget
func (c *Config) DeadlineFor(depth string) time.Duration {
	switch depth {
	case "quick":
		return c.Pipeline.QuickDeadline
	case "deep":
		return c.Pipeline.DeepDeadline
	default:
		return c.Pipeline.StandardDeadline
	}
}
