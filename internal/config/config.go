// Package config loads application configuration from config.yaml and the
// RADAR_* environment, and owns global logger setup.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	PNCP      PNCPConfig      `yaml:"pncp" mapstructure:"pncp"`
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Discovery DiscoveryConfig `yaml:"discovery" mapstructure:"discovery"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// PNCPConfig holds registry API settings. Login and password are optional;
// without them the client reads the public endpoints anonymously.
type PNCPConfig struct {
	BaseURL         string `yaml:"base_url" mapstructure:"base_url"`
	Login           string `yaml:"login" mapstructure:"login"`
	Password        string `yaml:"password" mapstructure:"password"`
	TimeoutSecs     int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	TokenBufferMins int    `yaml:"token_buffer_mins" mapstructure:"token_buffer_mins"`
}

// RateLimitConfig bounds outbound request rates.
type RateLimitConfig struct {
	PerMinute     int     `yaml:"per_minute" mapstructure:"per_minute"`
	PerHour       int     `yaml:"per_hour" mapstructure:"per_hour"`
	PagePacingRPS float64 `yaml:"page_pacing_rps" mapstructure:"page_pacing_rps"`
}

// RetryConfig tunes the client retry ladder.
type RetryConfig struct {
	MaxRetries    int `yaml:"max_retries" mapstructure:"max_retries"`
	BaseDelaySecs int `yaml:"base_delay_secs" mapstructure:"base_delay_secs"`
}

// DiscoveryConfig tunes the filtering pipeline.
type DiscoveryConfig struct {
	UFs            []string `yaml:"ufs" mapstructure:"ufs"`
	Modalities     []int    `yaml:"modalities" mapstructure:"modalities"`
	PageSize       int      `yaml:"page_size" mapstructure:"page_size"`
	OnlyOngoing    bool     `yaml:"only_ongoing" mapstructure:"only_ongoing"`
	MinValue       float64  `yaml:"min_value" mapstructure:"min_value"`
	MaxValue       float64  `yaml:"max_value" mapstructure:"max_value"`
	Strategy       string   `yaml:"strategy" mapstructure:"strategy"`
	SampleSize     int      `yaml:"sample_size" mapstructure:"sample_size"`
	VocabularyPath string   `yaml:"vocabulary_path" mapstructure:"vocabulary_path"`

	AutoApproveScore    float64 `yaml:"auto_approve_score" mapstructure:"auto_approve_score"`
	TitleMatchThreshold int     `yaml:"title_match_threshold" mapstructure:"title_match_threshold"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold" mapstructure:"confidence_threshold"`
	HighConfidence      float64 `yaml:"high_confidence" mapstructure:"high_confidence"`
	OrgTrustMin         int     `yaml:"org_trust_min" mapstructure:"org_trust_min"`

	SamplingConcurrency  int `yaml:"sampling_concurrency" mapstructure:"sampling_concurrency"`
	TierHighConcurrency  int `yaml:"tier_high_concurrency" mapstructure:"tier_high_concurrency"`
	TierMedConcurrency   int `yaml:"tier_medium_concurrency" mapstructure:"tier_medium_concurrency"`
	TierLowConcurrency   int `yaml:"tier_low_concurrency" mapstructure:"tier_low_concurrency"`
	PartitionConcurrency int `yaml:"partition_concurrency" mapstructure:"partition_concurrency"`

	SkipExisting bool `yaml:"skip_existing" mapstructure:"skip_existing"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RADAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.sqlite_path", "radar.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("pncp.base_url", "https://pncp.gov.br/api")
	v.SetDefault("pncp.timeout_secs", 30)
	v.SetDefault("pncp.token_buffer_mins", 5)
	v.SetDefault("rate_limit.per_minute", 60)
	v.SetDefault("rate_limit.per_hour", 1000)
	v.SetDefault("rate_limit.page_pacing_rps", 10.0)
	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.base_delay_secs", 1)
	v.SetDefault("discovery.modalities", []int{1, 4, 6, 8, 12})
	v.SetDefault("discovery.page_size", 50)
	v.SetDefault("discovery.min_value", 1000.0)
	v.SetDefault("discovery.strategy", "sampling")
	v.SetDefault("discovery.sample_size", 3)
	v.SetDefault("discovery.auto_approve_score", 70.0)
	v.SetDefault("discovery.title_match_threshold", 1)
	v.SetDefault("discovery.confidence_threshold", 50.0)
	v.SetDefault("discovery.high_confidence", 80.0)
	v.SetDefault("discovery.org_trust_min", 2)
	v.SetDefault("discovery.sampling_concurrency", 5)
	v.SetDefault("discovery.tier_high_concurrency", 10)
	v.SetDefault("discovery.tier_medium_concurrency", 5)
	v.SetDefault("discovery.tier_low_concurrency", 3)
	v.SetDefault("discovery.partition_concurrency", 3)
	v.SetDefault("discovery.skip_existing", true)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
