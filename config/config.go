// Package config loads service configuration from defaults, an optional
// config.yaml and PRODUCTMETA_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Image    ImageConfig    `mapstructure:"image"`
	Render   RenderConfig   `mapstructure:"render"`
	Preview  PreviewConfig  `mapstructure:"preview"`
	QuickAdd QuickAddConfig `mapstructure:"quickadd"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string        `mapstructure:"port"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// FetchConfig holds page fetch settings
type FetchConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	UserAgent    string        `mapstructure:"user_agent"`
	MaxPageBytes int64         `mapstructure:"max_page_bytes"`
}

// ImageConfig holds image download and re-encoding settings
type ImageConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxBytes     int64         `mapstructure:"max_bytes"`
	MaxDimension int           `mapstructure:"max_dimension"`
	MaxPixels    int64         `mapstructure:"max_pixels"`
	Quality      int           `mapstructure:"quality"`
}

// RenderConfig selects and configures the rendering backend
type RenderConfig struct {
	Provider      string        `mapstructure:"provider"` // "none", "proxy" or "browser"
	ProxyURL      string        `mapstructure:"proxy_url"`
	APIKey        string        `mapstructure:"api_key"`
	CountryCode   string        `mapstructure:"country_code"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Hosts         []string      `mapstructure:"hosts"`
	ControlURL    string        `mapstructure:"control_url"`
}

// PreviewConfig selects the link preview provider
type PreviewConfig struct {
	Provider   string `mapstructure:"provider"` // "html", "service" or "none"
	ServiceURL string `mapstructure:"service_url"`
	APIKey     string `mapstructure:"api_key"`
}

// QuickAddConfig holds the quick-add budget
type QuickAddConfig struct {
	Budget time.Duration `mapstructure:"budget"`
}

// CacheConfig holds cache-related configuration
type CacheConfig struct {
	Type     string        `mapstructure:"type"` // "memory", "redis" or "none"
	RedisURL string        `mapstructure:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// StorageConfig selects where downsized images are kept
type StorageConfig struct {
	Type     string   `mapstructure:"type"` // "none", "filesystem" or "s3"
	BasePath string   `mapstructure:"base_path"`
	S3       S3Config `mapstructure:"s3"`
}

// S3Config holds S3-compatible bucket settings
type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string `mapstructure:"level"` // "debug", "info", "warn" or "error"
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/productmeta/")

	// PRODUCTMETA_RENDER_API_KEY -> render.api_key
	v.SetEnvPrefix("PRODUCTMETA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults registers every key so AutomaticEnv can override it
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.request_timeout", "90s")

	v.SetDefault("fetch.timeout", "20s")
	v.SetDefault("fetch.user_agent", "")
	v.SetDefault("fetch.max_page_bytes", 5*1024*1024)

	v.SetDefault("image.timeout", "15s")
	v.SetDefault("image.max_bytes", 10*1024*1024)
	v.SetDefault("image.max_dimension", 800)
	v.SetDefault("image.max_pixels", 40_000_000)
	v.SetDefault("image.quality", 70)

	v.SetDefault("render.provider", "none")
	v.SetDefault("render.proxy_url", "https://api.scraperapi.com/")
	v.SetDefault("render.api_key", "")
	v.SetDefault("render.country_code", "")
	v.SetDefault("render.timeout", "60s")
	v.SetDefault("render.rate_per_second", 1.0)
	v.SetDefault("render.hosts", []string{})
	v.SetDefault("render.control_url", "")

	v.SetDefault("preview.provider", "html")
	v.SetDefault("preview.service_url", "")
	v.SetDefault("preview.api_key", "")

	v.SetDefault("quickadd.budget", "3s")

	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.ttl", "6h")

	v.SetDefault("storage.type", "none")
	v.SetDefault("storage.base_path", "./storage")
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.region", "")
	v.SetDefault("storage.s3.bucket", "")
	v.SetDefault("storage.s3.access_key_id", "")
	v.SetDefault("storage.s3.secret_access_key", "")
	v.SetDefault("storage.s3.use_path_style", false)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "")

	v.SetDefault("log.level", "info")
}

// validate validates the configuration
func validate(config *Config) error {
	switch config.Render.Provider {
	case "none":
	case "proxy":
		if config.Render.APIKey == "" {
			return fmt.Errorf("render API key is required when render provider is 'proxy' (set PRODUCTMETA_RENDER_API_KEY)")
		}
	case "browser":
		if config.Render.ControlURL == "" {
			return fmt.Errorf("render control URL is required when render provider is 'browser'")
		}
	default:
		return fmt.Errorf("render provider must be 'none', 'proxy' or 'browser', got: %s", config.Render.Provider)
	}

	switch config.Preview.Provider {
	case "html", "none":
	case "service":
		if config.Preview.ServiceURL == "" {
			return fmt.Errorf("preview service URL is required when preview provider is 'service'")
		}
	default:
		return fmt.Errorf("preview provider must be 'html', 'service' or 'none', got: %s", config.Preview.Provider)
	}

	switch config.Cache.Type {
	case "memory", "none":
	case "redis":
		if config.Cache.RedisURL == "" {
			return fmt.Errorf("redis URL is required when cache type is 'redis'")
		}
	default:
		return fmt.Errorf("cache type must be 'memory', 'redis' or 'none', got: %s", config.Cache.Type)
	}

	switch config.Storage.Type {
	case "none", "filesystem", "s3":
	default:
		return fmt.Errorf("storage type must be 'none', 'filesystem' or 's3', got: %s", config.Storage.Type)
	}

	if config.Image.Quality < 1 || config.Image.Quality > 100 {
		return fmt.Errorf("image quality must be between 1 and 100, got: %d", config.Image.Quality)
	}
	if config.QuickAdd.Budget <= 0 {
		return fmt.Errorf("quick add budget must be positive")
	}

	return nil
}
