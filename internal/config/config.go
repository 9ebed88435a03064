// Package config loads and validates chapterd configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mangafold/chapterd/internal/archive"
	"github.com/mangafold/chapterd/internal/render"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Render     RenderConfig     `mapstructure:"render"`
	Retry      RetryConfig      `mapstructure:"retry"`
	Listing    ListingConfig    `mapstructure:"listing"`
	Fetch      FetchConfig      `mapstructure:"fetch"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Supervisor SupervisorConfig `mapstructure:"supervisor"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// RenderConfig governs the headless rendering backend.
type RenderConfig struct {
	Backend           string  `mapstructure:"backend"`
	UserAgent         string  `mapstructure:"user_agent"`
	InitialDelaySec   int     `mapstructure:"initial_delay_seconds"`
	NavTimeoutSeconds int     `mapstructure:"nav_timeout_seconds"`
	DomainQPS         float64 `mapstructure:"domain_qps"`
}

// RetryConfig shapes the transient-failure retry loop. MaxAttempts of zero
// means retry forever, which is the historical behavior.
type RetryConfig struct {
	DelayStepSeconds int `mapstructure:"delay_step_seconds"`
	CooldownSeconds  int `mapstructure:"cooldown_seconds"`
	MaxAttempts      int `mapstructure:"max_attempts"`
}

// ListingConfig pins the listing page's template assumptions.
type ListingConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	TableIndex int    `mapstructure:"table_index"`
}

// FetchConfig configures the image fetcher.
type FetchConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// StorageConfig selects and parameterizes the artifact store.
type StorageConfig struct {
	Backend    string `mapstructure:"backend"`
	OutputRoot string `mapstructure:"output_root"`
	GCSBucket  string `mapstructure:"gcs_bucket"`
}

// SupervisorConfig controls worker relaunching. An empty WorkerArgv means
// re-exec the current binary's fetch command.
type SupervisorConfig struct {
	WorkerArgv []string `mapstructure:"worker_argv"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk and environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CHAPTERD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("render.backend", render.BackendChromedp)
	v.SetDefault("render.user_agent", "chapterd/0.1")
	v.SetDefault("render.initial_delay_seconds", 2)
	v.SetDefault("render.nav_timeout_seconds", 25)
	v.SetDefault("render.domain_qps", 0)
	v.SetDefault("retry.delay_step_seconds", 5)
	v.SetDefault("retry.cooldown_seconds", 10)
	v.SetDefault("retry.max_attempts", 0)
	v.SetDefault("listing.base_url", "https://comick.app")
	v.SetDefault("listing.table_index", 2)
	v.SetDefault("fetch.timeout_seconds", 30)
	v.SetDefault("storage.backend", archive.BackendFS)
	v.SetDefault("storage.output_root", ".")
	v.SetDefault("logging.development", true)
}

// Validate rejects configurations the pipeline cannot run with.
func (c Config) Validate() error {
	switch c.Render.Backend {
	case render.BackendChromedp, render.BackendRod:
	default:
		return fmt.Errorf("render.backend must be %q or %q, got %q",
			render.BackendChromedp, render.BackendRod, c.Render.Backend)
	}
	switch c.Storage.Backend {
	case archive.BackendFS:
	case archive.BackendGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend must be %q or %q, got %q",
			archive.BackendFS, archive.BackendGCS, c.Storage.Backend)
	}
	if c.Render.InitialDelaySec < 0 {
		return fmt.Errorf("render.initial_delay_seconds must not be negative")
	}
	if c.Retry.DelayStepSeconds <= 0 {
		return fmt.Errorf("retry.delay_step_seconds must be positive")
	}
	if c.Retry.CooldownSeconds < 0 {
		return fmt.Errorf("retry.cooldown_seconds must not be negative")
	}
	if c.Retry.MaxAttempts < 0 {
		return fmt.Errorf("retry.max_attempts must not be negative (0 retries forever)")
	}
	if c.Listing.TableIndex < 0 {
		return fmt.Errorf("listing.table_index must not be negative")
	}
	if c.Listing.BaseURL == "" {
		return fmt.Errorf("listing.base_url is required")
	}
	return nil
}

// InitialDelay returns the starting render delay as a Duration.
func (c Config) InitialDelay() time.Duration {
	return time.Duration(c.Render.InitialDelaySec) * time.Second
}

// DelayStep returns the per-retry delay increment as a Duration.
func (c Config) DelayStep() time.Duration {
	return time.Duration(c.Retry.DelayStepSeconds) * time.Second
}

// Cooldown returns the fixed wait after fetch and extraction failures.
func (c Config) Cooldown() time.Duration {
	return time.Duration(c.Retry.CooldownSeconds) * time.Second
}

// NavTimeout returns the renderer navigation timeout.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Render.NavTimeoutSeconds) * time.Second
}

// FetchTimeout returns the image fetch timeout.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}
