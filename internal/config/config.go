// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

package config

import (
	"errors"
	"net"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	vwerr "github.com/visuworld/visuworld/pkg/errors"
)

// EnvPrefix namespaces environment overrides, e.g. VISUWORLD_INDEX_TOP_K.
const EnvPrefix = "VISUWORLD"

// Config is the top-level visuworld configuration.
type Config struct {
	Server    ServerConfig              `mapstructure:"server"`
	Providers map[string]ProviderConfig `mapstructure:"providers"`
	Embedding EmbeddingConfig           `mapstructure:"embedding"`
	Index     IndexConfig               `mapstructure:"index"`
	Storage   StorageConfig             `mapstructure:"storage"`
	Models    ModelsConfig              `mapstructure:"models"`
	Retry     RetryConfig               `mapstructure:"retry"`
	Prompt    PromptConfig              `mapstructure:"prompt"`
	Pipeline  PipelineConfig            `mapstructure:"pipeline"`
	Ingest    IngestConfig              `mapstructure:"ingest"`
	Shaders   ShadersConfig             `mapstructure:"shaders"`
	Log       LogConfig                 `mapstructure:"log"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Listen       string          `mapstructure:"listen"`
	CORSOrigins  []string        `mapstructure:"cors_origins"`
	ReadTimeout  time.Duration   `mapstructure:"read_timeout"`
	WriteTimeout time.Duration   `mapstructure:"write_timeout"`
	RateLimit    RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig is a per-client token bucket. RequestsPerSecond 0 disables it.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// ProviderConfig holds credentials and endpoint for an upstream model API.
type ProviderConfig struct {
	APIKey   string `mapstructure:"api_key"`
	Endpoint string `mapstructure:"endpoint"`
}

// EmbeddingConfig selects the embedding model and its token budget.
type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider"`
	Model      string `mapstructure:"model"`
	Encoding   string `mapstructure:"encoding"`
	MaxTokens  int    `mapstructure:"max_tokens"`
	Dimensions int    `mapstructure:"dimensions"`
}

// IndexConfig controls retrieval.
type IndexConfig struct {
	TopK int `mapstructure:"top_k"`
}

// StorageConfig selects the vector index and shader store backend.
type StorageConfig struct {
	Backend     string `mapstructure:"backend"`
	DataDir     string `mapstructure:"data_dir"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

// ModelsConfig maps quality tiers to "provider/model" refs.
type ModelsConfig struct {
	Standard string   `mapstructure:"standard"`
	Pro      string   `mapstructure:"pro"`
	Failover []string `mapstructure:"failover"`
}

// RetryConfig bounds retries of transient upstream failures.
type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	Jitter          float64       `mapstructure:"jitter"`
}

// PromptConfig bounds the composed prompt.
type PromptConfig struct {
	MaxTokens    int `mapstructure:"max_tokens"`
	SnippetChars int `mapstructure:"snippet_chars"`
}

// PipelineConfig controls request handling.
type PipelineConfig struct {
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// IngestConfig controls catalog ingestion.
type IngestConfig struct {
	RatePerSecond float64  `mapstructure:"rate_per_second"`
	Burst         int      `mapstructure:"burst"`
	SkipPatterns  []string `mapstructure:"skip_patterns"`
}

// ShadersConfig controls the saved shader listing.
type ShadersConfig struct {
	PageSize int `mapstructure:"page_size"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.listen", "127.0.0.1:8000")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 180*time.Second)
	v.SetDefault("server.rate_limit.requests_per_second", 2.0)
	v.SetDefault("server.rate_limit.burst", 10)

	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.encoding", "cl100k_base")
	v.SetDefault("embedding.max_tokens", 8192)
	v.SetDefault("embedding.dimensions", 1536)

	v.SetDefault("index.top_k", 10)

	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("storage.data_dir", "data")
	v.SetDefault("storage.postgres_dsn", "")

	v.SetDefault("models.standard", "google/gemini-2.0-flash")
	v.SetDefault("models.pro", "google/gemini-2.5-pro")

	v.SetDefault("retry.max_attempts", 4)
	v.SetDefault("retry.initial_interval", 500*time.Millisecond)
	v.SetDefault("retry.max_interval", 8*time.Second)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter", 0.5)

	v.SetDefault("prompt.max_tokens", 24000)
	v.SetDefault("prompt.snippet_chars", 300)

	v.SetDefault("pipeline.request_timeout", 120*time.Second)

	v.SetDefault("ingest.rate_per_second", 5.0)
	v.SetDefault("ingest.burst", 1)
	v.SetDefault("ingest.skip_patterns", []string{"iChannel"})

	v.SetDefault("shaders.page_size", 6)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// providerKeyEnv lists the conventional key variables each built-in
// provider also accepts, so an existing .env works unchanged.
var providerKeyEnv = map[string][]string{
	"openai":     {"OPENAI_API_KEY"},
	"google":     {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	"anthropic":  {"ANTHROPIC_API_KEY"},
	"openrouter": {"OPENROUTER_API_KEY"},
}

// SetupEnv enables VISUWORLD_ prefixed overrides and binds provider keys.
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for name, vars := range providerKeyEnv {
		key := "providers." + name + ".api_key"
		prefixed := EnvPrefix + "_PROVIDERS_" + strings.ToUpper(name) + "_API_KEY"
		_ = v.BindEnv(append([]string{key, prefixed}, vars...)...)
	}
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, vwerr.Errorf(vwerr.CodeConfigParseInvalidFormat, "unmarshalling config: %w", err)
	}

	// A provider entry bound only through env with no value decodes as an
	// empty struct; drop it so validation sees what is really configured.
	for name, p := range cfg.Providers {
		if p == (ProviderConfig{}) {
			delete(cfg.Providers, name)
		}
	}
	if len(cfg.Providers) == 0 {
		cfg.Providers = nil
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, vwerr.Errorf(vwerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}
	return &cfg, nil
}

// Load reads configuration from path (or defaults only when empty) with
// environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, vwerr.Errorf(vwerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	return FromViper(v)
}

// Validate checks the configuration for logical errors and returns all of
// them rather than stopping at the first.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateServer()...)
	errs = append(errs, c.validateEmbedding()...)
	errs = append(errs, c.validateStorage()...)
	errs = append(errs, c.validateModels()...)
	errs = append(errs, c.validateLimits()...)

	return errs
}

func invalid(format string, args ...any) error {
	return vwerr.Errorf(vwerr.CodeConfigValidateInvalidValue, "config: "+format, args...)
}

func (c *Config) validateServer() []error {
	var errs []error

	if c.Server.Listen == "" {
		errs = append(errs, invalid("server.listen must not be empty"))
	} else if _, portStr, err := net.SplitHostPort(c.Server.Listen); err != nil {
		errs = append(errs, invalid("server.listen must be a valid host:port address, got %q: %w", c.Server.Listen, err))
	} else if port, err := strconv.Atoi(portStr); err != nil || port < 0 || port > 65535 {
		errs = append(errs, invalid("server.listen port must be a number between 0 and 65535, got %q", portStr))
	}

	if c.Server.RateLimit.RequestsPerSecond < 0 {
		errs = append(errs, invalid("server.rate_limit.requests_per_second must not be negative, got %g",
			c.Server.RateLimit.RequestsPerSecond))
	}
	if c.Server.RateLimit.RequestsPerSecond > 0 && c.Server.RateLimit.Burst <= 0 {
		errs = append(errs, invalid("server.rate_limit.burst must be greater than 0 when rate limiting is enabled, got %d",
			c.Server.RateLimit.Burst))
	}

	return errs
}

func (c *Config) validateEmbedding() []error {
	var errs []error

	validProviders := []string{"openai", "google"}
	if !slices.Contains(validProviders, c.Embedding.Provider) {
		errs = append(errs, invalid("embedding.provider must be one of %v, got %q", validProviders, c.Embedding.Provider))
	} else if c.Providers != nil {
		if _, ok := c.Providers[c.Embedding.Provider]; !ok {
			errs = append(errs, invalid("embedding.provider %q is not configured under providers", c.Embedding.Provider))
		}
	}
	if c.Embedding.Model == "" {
		errs = append(errs, invalid("embedding.model must not be empty"))
	}
	if c.Embedding.MaxTokens <= 0 {
		errs = append(errs, invalid("embedding.max_tokens must be greater than 0, got %d", c.Embedding.MaxTokens))
	}
	if c.Embedding.Dimensions <= 0 {
		errs = append(errs, invalid("embedding.dimensions must be greater than 0, got %d", c.Embedding.Dimensions))
	}

	return errs
}

func (c *Config) validateStorage() []error {
	var errs []error

	switch c.Storage.Backend {
	case "sqlite":
		if c.Storage.DataDir == "" {
			errs = append(errs, invalid("storage.data_dir must not be empty for the sqlite backend"))
		}
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, invalid("storage.postgres_dsn must be set for the postgres backend"))
		}
	default:
		errs = append(errs, invalid("storage.backend must be one of [sqlite, postgres], got %q", c.Storage.Backend))
	}

	return errs
}

func (c *Config) validateModels() []error {
	var errs []error

	check := func(field, ref string) {
		if ref == "" {
			errs = append(errs, invalid("%s must not be empty", field))
			return
		}
		provider, model, ok := strings.Cut(ref, "/")
		if !ok || provider == "" || model == "" {
			errs = append(errs, invalid("%s must be in \"provider/model\" format, got %q", field, ref))
			return
		}
		// A nil providers map means only defaults are loaded, which is valid
		// until a request is served.
		if c.Providers != nil {
			if _, ok := c.Providers[provider]; !ok {
				errs = append(errs, invalid("%s %q references provider %q which is not configured", field, ref, provider))
			}
		}
	}

	check("models.standard", c.Models.Standard)
	check("models.pro", c.Models.Pro)
	for i, ref := range c.Models.Failover {
		check("models.failover["+strconv.Itoa(i)+"]", ref)
	}

	return errs
}

func (c *Config) validateLimits() []error {
	var errs []error

	if c.Index.TopK <= 0 {
		errs = append(errs, invalid("index.top_k must be greater than 0, got %d", c.Index.TopK))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, invalid("retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts))
	}
	if c.Retry.Multiplier < 1 {
		errs = append(errs, invalid("retry.multiplier must be at least 1, got %g", c.Retry.Multiplier))
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter > 1 {
		errs = append(errs, invalid("retry.jitter must be between 0 and 1, got %g", c.Retry.Jitter))
	}
	if c.Retry.InitialInterval <= 0 || c.Retry.MaxInterval < c.Retry.InitialInterval {
		errs = append(errs, invalid("retry intervals must satisfy 0 < initial_interval <= max_interval, got %s and %s",
			c.Retry.InitialInterval, c.Retry.MaxInterval))
	}
	if c.Prompt.MaxTokens < 0 {
		errs = append(errs, invalid("prompt.max_tokens must not be negative, got %d", c.Prompt.MaxTokens))
	}
	if c.Prompt.SnippetChars <= 0 {
		errs = append(errs, invalid("prompt.snippet_chars must be greater than 0, got %d", c.Prompt.SnippetChars))
	}
	if c.Pipeline.RequestTimeout <= 0 {
		errs = append(errs, invalid("pipeline.request_timeout must be greater than 0, got %s", c.Pipeline.RequestTimeout))
	}
	if c.Ingest.RatePerSecond < 0 {
		errs = append(errs, invalid("ingest.rate_per_second must not be negative, got %g", c.Ingest.RatePerSecond))
	}
	if c.Shaders.PageSize <= 0 {
		errs = append(errs, invalid("shaders.page_size must be greater than 0, got %d", c.Shaders.PageSize))
	}
	validFormats := []string{"text", "json"}
	if !slices.Contains(validFormats, c.Log.Format) {
		errs = append(errs, invalid("log.format must be one of %v, got %q", validFormats, c.Log.Format))
	}

	return errs
}

// SplitModelRef splits "provider/model".
func SplitModelRef(ref string) (provider, model string) {
	provider, model, _ = strings.Cut(ref, "/")
	return provider, model
}
