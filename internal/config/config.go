package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix namespaces every environment variable (SPC_SERVER_PORT, ...)
const EnvPrefix = "SPC"

// ConfigFileEnv names the variable that points at an explicit YAML file
const ConfigFileEnv = "SPC_CONFIG_FILE"

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Security  SecurityConfig  `yaml:"security" envconfig:"SECURITY"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
	Analysis  AnalysisConfig  `yaml:"analysis" envconfig:"ANALYSIS"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host" envconfig:"HOST"`
	Port            int           `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	RequestTimeout  time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT"`
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
	EnableCORS     bool            `yaml:"enable_cors" envconfig:"ENABLE_CORS"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS"`
	Burst   int     `yaml:"burst" envconfig:"BURST"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL"`
	Format   string `yaml:"format" envconfig:"FORMAT"`
	Output   string `yaml:"output" envconfig:"OUTPUT"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// TelemetryConfig controls OpenTelemetry metrics and tracing
type TelemetryConfig struct {
	Environment   string  `yaml:"environment" envconfig:"ENVIRONMENT"`
	EnableMetrics bool    `yaml:"enable_metrics" envconfig:"ENABLE_METRICS"`
	EnableTracing bool    `yaml:"enable_tracing" envconfig:"ENABLE_TRACING"`
	TraceExporter string  `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER"` // "stdout" or "none"
	SampleRatio   float64 `yaml:"sample_ratio" envconfig:"SAMPLE_RATIO"`
}

// AnalysisConfig tunes the SPC service
type AnalysisConfig struct {
	// Default spec limits applied when a request carries none; unset when
	// DefaultLSL >= DefaultUSL
	DefaultLSL        float64       `yaml:"default_lsl" envconfig:"DEFAULT_LSL"`
	DefaultUSL        float64       `yaml:"default_usl" envconfig:"DEFAULT_USL"`
	HistogramBinWidth float64       `yaml:"histogram_bin_width" envconfig:"HISTOGRAM_BIN_WIDTH"`
	CacheSize         int           `yaml:"cache_size" envconfig:"CACHE_SIZE"`
	CacheTTL          time.Duration `yaml:"cache_ttl" envconfig:"CACHE_TTL"`
	BatchConcurrency  int           `yaml:"batch_concurrency" envconfig:"BATCH_CONCURRENCY"`
	MaxUploadBytes    int64         `yaml:"max_upload_bytes" envconfig:"MAX_UPLOAD_BYTES"`
	Sheet             string        `yaml:"sheet" envconfig:"SHEET"`
	ReportDir         string        `yaml:"report_dir" envconfig:"REPORT_DIR"`
}

// HasDefaultSpec reports whether usable default spec limits are configured
func (a AnalysisConfig) HasDefaultSpec() bool {
	return a.DefaultLSL < a.DefaultUSL
}

// Address returns the listen address for the HTTP server
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Load builds the configuration from defaults, an optional YAML file and
// SPC_* environment variables, in increasing order of precedence
func Load() (*Config, error) {
	return LoadFrom(getConfigFilePath())
}

// LoadFrom is Load with an explicit config file; an empty path skips the file
func LoadFrom(configFile string) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		if err := loadFromFile(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// Only variables that are actually set override the file and defaults
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile overlays the YAML file onto cfg
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// validate validates the configuration
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}

	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("server request timeout must be positive")
	}

	if c.Security.EnableCORS && len(c.Security.AllowedOrigins) == 0 {
		return fmt.Errorf("at least one allowed origin must be specified")
	}

	if c.Security.RateLimit.Enabled && (c.Security.RateLimit.RPS <= 0 || c.Security.RateLimit.Burst <= 0) {
		return fmt.Errorf("rate limit rps and burst must be positive")
	}

	switch strings.ToLower(c.Logging.Output) {
	case "console", "stdout", "file", "both":
	default:
		return fmt.Errorf("invalid logging output: %q", c.Logging.Output)
	}

	if c.Logging.FilePath == "" {
		c.Logging.FilePath = "logs/spc.log"
	}

	switch c.Telemetry.TraceExporter {
	case "stdout", "none":
	default:
		return fmt.Errorf("invalid trace exporter: %q", c.Telemetry.TraceExporter)
	}

	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry sample ratio must be within [0,1]: %v", c.Telemetry.SampleRatio)
	}

	if !(c.Analysis.HistogramBinWidth > 0) {
		return fmt.Errorf("histogram bin width must be positive")
	}

	if c.Analysis.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload bytes must be positive")
	}

	if c.Analysis.DefaultLSL > c.Analysis.DefaultUSL {
		return fmt.Errorf("default lsl %v is above default usl %v", c.Analysis.DefaultLSL, c.Analysis.DefaultUSL)
	}

	return nil
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	if path := os.Getenv(ConfigFileEnv); path != "" {
		return path
	}

	locations := []string{
		"config.yaml",
		"configs/config.yaml",
		"../configs/config.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return "" // No config file found, use env vars only
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			MaxHeaderBytes:  1 << 20, // 1MB
			ShutdownTimeout: 30 * time.Second,
			RequestTimeout:  DefaultRequestTimeout,
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"http://localhost:8080"},
			EnableCORS:     true,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     DefaultRateLimit,
				Burst:   DefaultBurstSize,
			},
		},
		Logging: LoggingConfig{
			Level:    DefaultLogLevel,
			Format:   DefaultLogFormat,
			Output:   "console",
			FilePath: "logs/spc.log",
		},
		Telemetry: TelemetryConfig{
			Environment:   "development",
			EnableMetrics: true,
			EnableTracing: false,
			TraceExporter: "none",
			SampleRatio:   1.0,
		},
		Analysis: AnalysisConfig{
			HistogramBinWidth: 1.0,
			CacheSize:         DefaultCacheSize,
			CacheTTL:          DefaultCacheTTL,
			BatchConcurrency:  DefaultBatchConcurrency,
			MaxUploadBytes:    DefaultMaxUploadBytes,
			ReportDir:         DefaultReportDir,
		},
	}
}
