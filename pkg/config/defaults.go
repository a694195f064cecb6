package config

import (
	"strings"
	"time"

	"github.com/marmos91/staticd/pkg/adapter/http"
	"github.com/spf13/viper"
)

// Default values shared by ApplyDefaults, the viper defaults and the
// generated configuration file.
const (
	DefaultAddress         = "127.0.0.1"
	DefaultPort            = 9000
	DefaultMetricsPort     = 9090
	DefaultServerName      = "staticd"
	DefaultShutdownTimeout = 30 * time.Second
	DefaultReadTimeout     = 10 * time.Second
	DefaultReadBufferSize  = 4096
	DefaultChunkSize       = 1 << 20
	DefaultBadgerPath      = "/var/lib/staticd/badger"
	DefaultS3Region        = "us-east-1"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - document_root and thread_limit have no default: they must be configured
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyMetricsDefaults(&cfg.Metrics)
	applyContentDefaults(&cfg.Content)
	applyHTTPDefaults(&cfg.Adapters.HTTP)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ServerName == "" {
		cfg.ServerName = DefaultServerName
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = DefaultMetricsPort
	}
}

// applyContentDefaults sets content store defaults.
func applyContentDefaults(cfg *ContentConfig) {
	if cfg.Type == "" {
		cfg.Type = "filesystem"
	}

	if cfg.Filesystem == nil {
		cfg.Filesystem = make(map[string]any)
	}
	if cfg.Memory == nil {
		cfg.Memory = make(map[string]any)
	}
	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}
	if cfg.S3 == nil {
		cfg.S3 = make(map[string]any)
	}

	if _, ok := cfg.Badger["path"]; !ok {
		cfg.Badger["path"] = DefaultBadgerPath
	}
	if _, ok := cfg.S3["region"]; !ok {
		cfg.S3["region"] = DefaultS3Region
	}
}

// applyHTTPDefaults sets HTTP adapter defaults.
//
// Port 0 is kept as configured: it asks the OS for a free port. The default
// port 9000 comes from the viper defaults instead.
func applyHTTPDefaults(cfg *http.HTTPConfig) {
	if cfg.Address == "" {
		cfg.Address = DefaultAddress
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.ReadBufferSize == 0 {
		cfg.ReadBufferSize = DefaultReadBufferSize
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
}

// setViperDefaults registers a default for every scalar key so environment
// variables are honoured for keys the file does not mention.
func setViperDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("server.document_root", "")
	v.SetDefault("server.thread_limit", 0)
	v.SetDefault("server.server_name", DefaultServerName)
	v.SetDefault("server.shutdown_timeout", DefaultShutdownTimeout)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.port", DefaultMetricsPort)

	v.SetDefault("content.type", "filesystem")

	v.SetDefault("adapters.http.enabled", true)
	v.SetDefault("adapters.http.address", DefaultAddress)
	v.SetDefault("adapters.http.port", DefaultPort)
	v.SetDefault("adapters.http.read_timeout", DefaultReadTimeout)
	v.SetDefault("adapters.http.write_timeout", time.Duration(0))
	v.SetDefault("adapters.http.read_buffer_size", DefaultReadBufferSize)
	v.SetDefault("adapters.http.chunk_size", DefaultChunkSize)
	v.SetDefault("adapters.http.max_connections", 0)
	v.SetDefault("adapters.http.reuse_port", false)
	v.SetDefault("adapters.http.metrics_log_interval", time.Duration(0))
	v.SetDefault("adapters.http.rate_limit.requests_per_second", 0)
	v.SetDefault("adapters.http.rate_limit.burst", 0)
}

// GetDefaultConfig returns a Config struct with all default values applied
// and example values for the required settings.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Server: ServerConfig{
			DocumentRoot: "/var/www",
			ThreadLimit:  4,
		},
		Metrics: MetricsConfig{
			Port: DefaultMetricsPort,
		},
		Adapters: AdaptersConfig{
			HTTP: http.HTTPConfig{
				Enabled: true,
				Port:    DefaultPort,
			},
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
