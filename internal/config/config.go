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
	Input    InputConfig    `yaml:"input" mapstructure:"input"`
	Geocoder GeocoderConfig `yaml:"geocoder" mapstructure:"geocoder"`
	Run      RunConfig      `yaml:"run" mapstructure:"run"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// InputConfig configures how input files are parsed.
type InputConfig struct {
	Encoding  string `yaml:"encoding" mapstructure:"encoding"`
	Delimiter string `yaml:"delimiter" mapstructure:"delimiter"`
	Fieldmap  string `yaml:"fieldmap" mapstructure:"fieldmap"`
}

// GeocoderConfig configures the geocoding provider client.
type GeocoderConfig struct {
	Provider     string `yaml:"provider" mapstructure:"provider"`
	GoogleAPIKey string `yaml:"google_api_key" mapstructure:"google_api_key"`
	DelayMs      int    `yaml:"delay_ms" mapstructure:"delay_ms"`
	TimeoutSecs  int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent    string `yaml:"user_agent" mapstructure:"user_agent"`
}

// RunConfig configures run-level behavior.
type RunConfig struct {
	Limit         int         `yaml:"limit" mapstructure:"limit"`
	FailurePolicy string      `yaml:"failure_policy" mapstructure:"failure_policy"`
	Retry         RetryConfig `yaml:"retry" mapstructure:"retry"`
}

// RetryConfig configures the retry failure policy.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
}

// StoreConfig configures the run-ledger database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
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
	v.SetEnvPrefix("GEOCODE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("input.encoding", "utf-8")
	v.SetDefault("input.delimiter", ",")
	v.SetDefault("geocoder.provider", "census")
	v.SetDefault("geocoder.delay_ms", 2000)
	v.SetDefault("geocoder.timeout_secs", 30)
	v.SetDefault("geocoder.user_agent", "geocode-cli/1.0 (+https://github.com/sells-group/geocode-cli)")
	v.SetDefault("run.limit", 5)
	v.SetDefault("run.failure_policy", "skip")
	v.SetDefault("run.retry.max_attempts", 3)
	v.SetDefault("run.retry.initial_backoff_ms", 500)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "geocode.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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
