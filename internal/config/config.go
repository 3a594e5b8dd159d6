// Package config provides configuration management for voxpipe using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/text/language"
)

// Default configuration values.
const (
	defaultServerPort            = 8080
	defaultServerTimeout         = 30 * time.Second
	defaultShutdownTimeout       = 10 * time.Second
	defaultMaxOpenConns          = 25
	defaultMaxIdleConns          = 10
	defaultConnMaxIdleTime       = 30 * time.Minute
	defaultTranscriptionWorkers  = 10
	defaultTranslationWorkers    = 8
	defaultEvaluationWorkers     = 4
	defaultMaxAttempts           = 3
	defaultBackoffBaseMs         = 1000
	defaultBackoffCapMs          = 60000
	defaultRateLimitCeiling      = 3
	defaultTranscriptionLeaseTTL = 2 * time.Hour
	defaultTranslationLeaseTTL   = 30 * time.Minute
	defaultEvaluationLeaseTTL    = 30 * time.Minute
	defaultBatchMaxSegments      = 25
	defaultQAThreshold           = 7.0
	defaultPollInterval          = 2 * time.Second
	defaultLeaseSweepInterval    = 1 * time.Minute
	defaultDrainTimeout          = 30 * time.Second
	defaultProviderTimeout       = 10 * time.Minute
)

// Config holds all configuration for the orchestrator.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Paths       PathsConfig       `mapstructure:"paths"`
	Concurrency ConcurrencyConfig `mapstructure:"concurrency"`
	Retries     RetriesConfig     `mapstructure:"retries"`
	LeaseTTL    LeaseTTLConfig    `mapstructure:"lease_ttl"`
	Translation TranslationConfig `mapstructure:"translation"`
	QA          QAConfig          `mapstructure:"qa"`
	Providers   ProvidersConfig   `mapstructure:"providers"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	NonVerbal   NonVerbalConfig   `mapstructure:"nonverbal"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
}

// ServerConfig holds the status API server configuration.
type ServerConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// PathsConfig holds filesystem locations.
type PathsConfig struct {
	// OutputRoot is the directory artifacts are written under, partitioned
	// by file id: {output_root}/{id}/{id}.{suffix}.
	OutputRoot string `mapstructure:"output_root"`
}

// ConcurrencyConfig holds per-stage-kind worker caps. Each translation_{X}
// and evaluation_{X} pool gets its kind's cap.
type ConcurrencyConfig struct {
	Transcription int `mapstructure:"transcription"`
	Translation   int `mapstructure:"translation"`
	Evaluation    int `mapstructure:"evaluation"`
}

// RetriesConfig holds the provider retry policy.
type RetriesConfig struct {
	// MaxAttempts is the per-stage attempt ceiling before hard failure.
	MaxAttempts int `mapstructure:"max_attempts"`

	// BaseMs and CapMs parameterize exponential backoff:
	// delay_n = min(cap, base * 2^n) * uniform(0.5, 1.5).
	BaseMs int `mapstructure:"base_ms"`
	CapMs  int `mapstructure:"cap_ms"`

	// RateLimitCeiling is how many rate-limited responses a single run
	// tolerates from one provider before routing to the fallback.
	// Rate-limited calls never count against MaxAttempts.
	RateLimitCeiling int `mapstructure:"rate_limit_ceiling"`
}

// Base returns the backoff base as a duration.
func (r RetriesConfig) Base() time.Duration {
	return time.Duration(r.BaseMs) * time.Millisecond
}

// Cap returns the backoff cap as a duration.
func (r RetriesConfig) Cap() time.Duration {
	return time.Duration(r.CapMs) * time.Millisecond
}

// LeaseTTLConfig holds per-stage-kind lease durations. TTLs must exceed the
// longest realistic provider call for the kind.
type LeaseTTLConfig struct {
	Transcription time.Duration `mapstructure:"transcription"`
	Translation   time.Duration `mapstructure:"translation"`
	Evaluation    time.Duration `mapstructure:"evaluation"`
}

// TranslationConfig holds translation batching configuration.
type TranslationConfig struct {
	// BatchMaxSegments caps how many consecutive same-language segments go
	// into one provider call.
	BatchMaxSegments int `mapstructure:"batch_max_segments"`

	// Targets lists the target language codes. Defaults to en, de, he.
	Targets []string `mapstructure:"targets"`
}

// QAConfig holds evaluation thresholds.
type QAConfig struct {
	// Threshold maps target language to the minimum composite score for
	// qa_completed. Scores below it yield qa_failed.
	Threshold map[string]float64 `mapstructure:"threshold"`
}

// ThresholdFor returns the QA threshold for a target language, falling back
// to the default when the target has no explicit entry.
func (q QAConfig) ThresholdFor(target string) float64 {
	if t, ok := q.Threshold[target]; ok {
		return t
	}
	return defaultQAThreshold
}

// RouteConfig names the primary and fallback provider for one capability.
type RouteConfig struct {
	Primary  string `mapstructure:"primary"`
	Fallback string `mapstructure:"fallback"`
}

// ProvidersConfig holds provider routing and credentials.
type ProvidersConfig struct {
	Transcription RouteConfig `mapstructure:"transcription"`
	Translation   RouteConfig `mapstructure:"translation"`
	Evaluation    RouteConfig `mapstructure:"evaluation"`

	// Per-target translation overrides. Hebrew routes to the LLM-backed
	// adapter first; en and de use the dedicated translator first.
	TranslationEN RouteConfig `mapstructure:"translation_en"`
	TranslationDE RouteConfig `mapstructure:"translation_de"`
	TranslationHE RouteConfig `mapstructure:"translation_he"`

	OpenAI OpenAIConfig `mapstructure:"openai"`
	DeepL  DeepLConfig  `mapstructure:"deepl"`

	// Timeout bounds a single provider HTTP call.
	Timeout time.Duration `mapstructure:"timeout"`
}

// TranslationRoute returns the route for a translation target, applying the
// per-target override when one is set.
func (p ProvidersConfig) TranslationRoute(target string) RouteConfig {
	var override RouteConfig
	switch target {
	case "en":
		override = p.TranslationEN
	case "de":
		override = p.TranslationDE
	case "he":
		override = p.TranslationHE
	}
	route := p.Translation
	if override.Primary != "" {
		route.Primary = override.Primary
	}
	if override.Fallback != "" {
		route.Fallback = override.Fallback
	}
	return route
}

// OpenAIConfig holds credentials and model selection for the OpenAI adapter.
type OpenAIConfig struct {
	APIKey          string `mapstructure:"api_key"`
	BaseURL         string `mapstructure:"base_url"`
	TranscribeModel string `mapstructure:"transcribe_model"`
	ChatModel       string `mapstructure:"chat_model"`
}

// DeepLConfig holds credentials for the DeepL adapter.
type DeepLConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// SchedulerConfig holds scheduler loop timing.
type SchedulerConfig struct {
	// PollInterval is how long the dispatcher sleeps after a pass that
	// claimed nothing.
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// LeaseSweepInterval is how often expired leases are reclaimed.
	LeaseSweepInterval time.Duration `mapstructure:"lease_sweep_interval"`

	// DrainTimeout bounds how long a graceful stop waits for in-flight work.
	DrainTimeout time.Duration `mapstructure:"drain_timeout"`
}

// NonVerbalConfig holds the non-verbal marker lexicon.
type NonVerbalConfig struct {
	// Tokens lists bracketed markers treated as non-verbal segments,
	// passed through translation verbatim.
	Tokens []string `mapstructure:"tokens"`
}

// MaintenanceConfig holds background maintenance settings.
type MaintenanceConfig struct {
	// VerifyCron schedules the artifact re-hash sweep. Empty disables it.
	VerifyCron string `mapstructure:"verify_cron"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with VOXPIPE_ and use underscores for
// nesting. Example: VOXPIPE_DATABASE_DSN=/var/lib/voxpipe/voxpipe.db.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/voxpipe")
		v.AddConfigPath("$HOME/.voxpipe")
	}

	v.SetEnvPrefix("VOXPIPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file not found is fine; defaults and env vars apply.
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "voxpipe.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Paths defaults
	v.SetDefault("paths.output_root", "./output")

	// Concurrency defaults
	v.SetDefault("concurrency.transcription", defaultTranscriptionWorkers)
	v.SetDefault("concurrency.translation", defaultTranslationWorkers)
	v.SetDefault("concurrency.evaluation", defaultEvaluationWorkers)

	// Retry defaults
	v.SetDefault("retries.max_attempts", defaultMaxAttempts)
	v.SetDefault("retries.base_ms", defaultBackoffBaseMs)
	v.SetDefault("retries.cap_ms", defaultBackoffCapMs)
	v.SetDefault("retries.rate_limit_ceiling", defaultRateLimitCeiling)

	// Lease defaults: longer than the longest realistic provider call.
	v.SetDefault("lease_ttl.transcription", defaultTranscriptionLeaseTTL)
	v.SetDefault("lease_ttl.translation", defaultTranslationLeaseTTL)
	v.SetDefault("lease_ttl.evaluation", defaultEvaluationLeaseTTL)

	// Translation defaults
	v.SetDefault("translation.batch_max_segments", defaultBatchMaxSegments)
	v.SetDefault("translation.targets", []string{"en", "de", "he"})

	// QA defaults
	v.SetDefault("qa.threshold.en", defaultQAThreshold)
	v.SetDefault("qa.threshold.de", defaultQAThreshold)
	v.SetDefault("qa.threshold.he", defaultQAThreshold)

	// Provider routing defaults. Hebrew favors the LLM-backed adapter;
	// en and de favor the dedicated translator with the LLM as last resort.
	v.SetDefault("providers.transcription.primary", "openai")
	v.SetDefault("providers.translation.primary", "deepl")
	v.SetDefault("providers.translation.fallback", "openai")
	v.SetDefault("providers.translation_he.primary", "openai")
	v.SetDefault("providers.translation_he.fallback", "deepl")
	v.SetDefault("providers.evaluation.primary", "openai")
	v.SetDefault("providers.timeout", defaultProviderTimeout)
	v.SetDefault("providers.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("providers.openai.transcribe_model", "whisper-1")
	v.SetDefault("providers.openai.chat_model", "gpt-4o")
	v.SetDefault("providers.deepl.base_url", "https://api.deepl.com/v2")

	// Scheduler defaults
	v.SetDefault("scheduler.poll_interval", defaultPollInterval)
	v.SetDefault("scheduler.lease_sweep_interval", defaultLeaseSweepInterval)
	v.SetDefault("scheduler.drain_timeout", defaultDrainTimeout)

	// Non-verbal marker lexicon
	v.SetDefault("nonverbal.tokens", []string{"[pause]", "[crying]", "[inaudible]", "[unintelligible]"})

	// Maintenance defaults: verify artifacts nightly at 03:00.
	v.SetDefault("maintenance.verify_cron", "0 3 * * *")
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if c.Paths.OutputRoot == "" {
		return fmt.Errorf("paths.output_root is required")
	}

	if c.Concurrency.Transcription < 1 {
		return fmt.Errorf("concurrency.transcription must be at least 1")
	}
	if c.Concurrency.Translation < 1 {
		return fmt.Errorf("concurrency.translation must be at least 1")
	}
	if c.Concurrency.Evaluation < 1 {
		return fmt.Errorf("concurrency.evaluation must be at least 1")
	}

	if c.Retries.MaxAttempts < 1 {
		return fmt.Errorf("retries.max_attempts must be at least 1")
	}
	if c.Retries.BaseMs < 1 {
		return fmt.Errorf("retries.base_ms must be at least 1")
	}
	if c.Retries.CapMs < c.Retries.BaseMs {
		return fmt.Errorf("retries.cap_ms must not be below retries.base_ms")
	}
	if c.Retries.RateLimitCeiling < 1 {
		return fmt.Errorf("retries.rate_limit_ceiling must be at least 1")
	}

	if c.LeaseTTL.Transcription <= 0 || c.LeaseTTL.Translation <= 0 || c.LeaseTTL.Evaluation <= 0 {
		return fmt.Errorf("lease_ttl values must be positive")
	}

	if c.Translation.BatchMaxSegments < 1 {
		return fmt.Errorf("translation.batch_max_segments must be at least 1")
	}
	if len(c.Translation.Targets) == 0 {
		return fmt.Errorf("translation.targets must not be empty")
	}
	for _, target := range c.Translation.Targets {
		if _, err := language.Parse(target); err != nil {
			return fmt.Errorf("translation.targets: invalid language code %q: %w", target, err)
		}
	}

	for target, threshold := range c.QA.Threshold {
		if threshold < 0 || threshold > 10 {
			return fmt.Errorf("qa.threshold.%s must be in [0, 10]", target)
		}
	}

	for _, target := range c.Translation.Targets {
		if c.Providers.TranslationRoute(target).Primary == "" {
			return fmt.Errorf("providers.translation.primary is required for target %s", target)
		}
	}
	if c.Providers.Transcription.Primary == "" {
		return fmt.Errorf("providers.transcription.primary is required")
	}
	if c.Providers.Evaluation.Primary == "" {
		return fmt.Errorf("providers.evaluation.primary is required")
	}

	if c.Scheduler.PollInterval <= 0 {
		return fmt.Errorf("scheduler.poll_interval must be positive")
	}
	if c.Scheduler.LeaseSweepInterval <= 0 {
		return fmt.Errorf("scheduler.lease_sweep_interval must be positive")
	}

	for _, token := range c.NonVerbal.Tokens {
		if len(token) < 3 || token[0] != '[' || token[len(token)-1] != ']' {
			return fmt.Errorf("nonverbal.tokens: %q is not a bracketed marker", token)
		}
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Redacted returns a copy of the configuration with credentials masked,
// suitable for `voxpipe config show`.
func (c *Config) Redacted() Config {
	out := *c
	if out.Providers.OpenAI.APIKey != "" {
		out.Providers.OpenAI.APIKey = "[REDACTED]"
	}
	if out.Providers.DeepL.APIKey != "" {
		out.Providers.DeepL.APIKey = "[REDACTED]"
	}
	return out
}
