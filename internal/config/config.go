package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	DataDir   string          `yaml:"data_dir" mapstructure:"data_dir"`
	OutputDir string          `yaml:"output_dir" mapstructure:"output_dir"`
	Listing   ListingConfig   `yaml:"listing" mapstructure:"listing"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Extract   ExtractConfig   `yaml:"extract" mapstructure:"extract"`
	Thread    ThreadConfig    `yaml:"thread" mapstructure:"thread"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Analyze   AnalyzeConfig   `yaml:"analyze" mapstructure:"analyze"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Publish   PublishConfig   `yaml:"publish" mapstructure:"publish"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// ListingConfig configures the front-page listing source.
type ListingConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Limit   int    `yaml:"limit" mapstructure:"limit"`
}

// FetchConfig configures the article fetch client.
type FetchConfig struct {
	UserAgent      string   `yaml:"user_agent" mapstructure:"user_agent"`
	MaxRetries     int      `yaml:"max_retries" mapstructure:"max_retries"`
	TimeoutSecs    int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	BackoffUnitMS  int      `yaml:"backoff_unit_ms" mapstructure:"backoff_unit_ms"`
	MaxBodyBytes   int64    `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	RatePerHost    float64  `yaml:"rate_per_host" mapstructure:"rate_per_host"`
	SkipHosts      []string `yaml:"skip_hosts" mapstructure:"skip_hosts"`
	SkipExtensions []string `yaml:"skip_extensions" mapstructure:"skip_extensions"`
}

// ExtractConfig configures article text extraction.
type ExtractConfig struct {
	MinChars            int  `yaml:"min_chars" mapstructure:"min_chars"`
	MaxChars            int  `yaml:"max_chars" mapstructure:"max_chars"`
	LookbackChars       int  `yaml:"lookback_chars" mapstructure:"lookback_chars"`
	ReadabilityFallback bool `yaml:"readability_fallback" mapstructure:"readability_fallback"`
}

// ThreadConfig configures the discussion thread API.
type ThreadConfig struct {
	APIBaseURL  string `yaml:"api_base_url" mapstructure:"api_base_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxDepth    int    `yaml:"max_depth" mapstructure:"max_depth"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
}

// AnalyzeConfig configures the analysis worker pool.
type AnalyzeConfig struct {
	Workers                 int `yaml:"workers" mapstructure:"workers"`
	TimeoutSecs             int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	CircuitFailureThreshold int `yaml:"circuit_failure_threshold" mapstructure:"circuit_failure_threshold"`
	CircuitResetSecs        int `yaml:"circuit_reset_secs" mapstructure:"circuit_reset_secs"`
}

// PipelineConfig configures stage behavior.
type PipelineConfig struct {
	YearsBack            int  `yaml:"years_back" mapstructure:"years_back"`
	AnalyzeFailedFetches bool `yaml:"analyze_failed_fetches" mapstructure:"analyze_failed_fetches"`
}

// StoreConfig configures the run ledger.
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PublishConfig configures the S3 upload of the rendered site.
type PublishConfig struct {
	Bucket string `yaml:"bucket" mapstructure:"bucket"`
	Prefix string `yaml:"prefix" mapstructure:"prefix"`
	Region string `yaml:"region" mapstructure:"region"`
}

// ServerConfig configures the static viewer.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, config.yaml, and the environment.
func Load() (*Config, error) {
	// .env is optional; existing environment variables win.
	if err := godotenv.Load(); err != nil && !isNotExist(err) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CAPSULE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("data_dir", "data")
	v.SetDefault("output_dir", "output")
	v.SetDefault("listing.base_url", "https://news.ycombinator.com")
	v.SetDefault("listing.limit", 0)
	v.SetDefault("fetch.user_agent", "Mozilla/5.0 (compatible; time-capsule/1.0)")
	v.SetDefault("fetch.max_retries", 5)
	v.SetDefault("fetch.timeout_secs", 15)
	v.SetDefault("fetch.backoff_unit_ms", 1000)
	v.SetDefault("fetch.max_body_bytes", 5<<20)
	v.SetDefault("fetch.rate_per_host", 2.0)
	v.SetDefault("fetch.skip_hosts", []string{"youtube.com", "youtu.be", "twitter.com", "x.com"})
	v.SetDefault("fetch.skip_extensions", []string{".pdf"})
	v.SetDefault("extract.min_chars", 100)
	v.SetDefault("extract.max_chars", 15000)
	v.SetDefault("extract.lookback_chars", 500)
	v.SetDefault("extract.readability_fallback", false)
	v.SetDefault("thread.api_base_url", "https://hn.algolia.com/api/v1")
	v.SetDefault("thread.timeout_secs", 30)
	v.SetDefault("thread.max_depth", 256)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 16000)
	v.SetDefault("anthropic.base_url", "")
	v.SetDefault("analyze.workers", 5)
	v.SetDefault("analyze.timeout_secs", 600)
	v.SetDefault("analyze.circuit_failure_threshold", 5)
	v.SetDefault("analyze.circuit_reset_secs", 60)
	v.SetDefault("pipeline.years_back", 10)
	v.SetDefault("pipeline.analyze_failed_fetches", false)
	v.SetDefault("store.path", "time-capsule.db")
	v.SetDefault("publish.bucket", "")
	v.SetDefault("publish.prefix", "")
	v.SetDefault("publish.region", "")
	v.SetDefault("server.port", 8080)
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

// Validate checks the settings a command mode depends on. Modes: run,
// analyze, publish, serve, status.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "run", "analyze":
		if c.DataDir == "" {
			errs = append(errs, "data_dir is required")
		}
		if c.Fetch.MaxRetries < 1 {
			errs = append(errs, "fetch.max_retries must be >= 1")
		}
		if c.Extract.MinChars < 0 || c.Extract.MaxChars <= c.Extract.MinChars {
			errs = append(errs, "extract.max_chars must exceed extract.min_chars")
		}
		if c.Analyze.Workers < 1 || c.Analyze.Workers > 50 {
			errs = append(errs, "analyze.workers must be between 1 and 50")
		}
		if mode == "analyze" && c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required")
		}
	case "publish":
		if c.Publish.Bucket == "" {
			errs = append(errs, "publish.bucket is required")
		}
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "status":
		if c.DataDir == "" {
			errs = append(errs, "data_dir is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.New(fmt.Sprintf("config: %s", strings.Join(errs, "; ")))
	}
	return nil
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

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
