// Package config parses the forecaster's runtime configuration.
//
// Every setting is available as a command-line flag and as an environment
// variable; flags take precedence, then the environment, then defaults.
//
//	LISTEN            HTTP listen address (default :8000)
//	GRPC_LISTEN       gRPC health listen address, empty disables (default :50051)
//	LOG_LEVEL         debug, info, warn, error (default info)
//	LOG_FORMAT        text or json (default text)
//	STORAGE           outcome cache: memory, redis or none (default memory)
//	REDIS_ADDR        Redis address (default localhost:6379)
//	REDIS_PASSWORD    Redis password
//	REDIS_DB          Redis database number (default 0)
//	CACHE_TTL         cached outcome lifetime (default 30m)
//	WORKERS           concurrent model evaluations (default GOMAXPROCS)
//	REQUEST_TIMEOUT   per-request forecasting budget (default 30s)
//	MAX_UPLOAD_BYTES  largest accepted request body (default 10 MiB)
//	SHUTDOWN_TIMEOUT  graceful shutdown budget (default 10s)
//	TLS_ENABLED, TLS_CERT_FILE, TLS_KEY_FILE, TLS_CA_FILE
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/HatiCode/runrate/pkg/tls"
)

// Storage backends.
const (
	StorageMemory = "memory"
	StorageRedis  = "redis"
	StorageNone   = "none"
)

// Config holds all forecaster configuration.
type Config struct {
	Listen     string
	GRPCListen string
	LogFormat  string
	LogLevel   string

	Storage       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	Workers         int
	RequestTimeout  time.Duration
	MaxUploadBytes  int64
	ShutdownTimeout time.Duration

	TLS tls.Config
}

// ParseFlags parses os.Args and the environment into a Config and exits the
// process if the result is invalid.
func ParseFlags() *Config {
	cfg, err := Parse(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// Parse registers the forecaster's flags on fs, parses args and validates
// the result.
func Parse(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := &Config{}

	fs.StringVar(&cfg.Listen, "listen", getEnv("LISTEN", ":8000"), "HTTP listen address")
	fs.StringVar(&cfg.GRPCListen, "grpc-listen", getEnv("GRPC_LISTEN", ":50051"), "gRPC health listen address (empty disables)")

	fs.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "Log format: text or json")
	fs.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")

	fs.StringVar(&cfg.Storage, "storage", getEnv("STORAGE", StorageMemory), "Outcome cache: memory, redis or none")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", getEnv("REDIS_ADDR", "localhost:6379"), "Redis server address")
	fs.StringVar(&cfg.RedisPassword, "redis-password", getEnv("REDIS_PASSWORD", ""), "Redis password")
	fs.IntVar(&cfg.RedisDB, "redis-db", getEnvInt("REDIS_DB", 0), "Redis database number")
	fs.DurationVar(&cfg.CacheTTL, "cache-ttl", getEnvDuration("CACHE_TTL", 30*time.Minute), "Cached outcome lifetime")

	fs.IntVar(&cfg.Workers, "workers", getEnvInt("WORKERS", runtime.GOMAXPROCS(0)), "Concurrent model evaluations")
	fs.DurationVar(&cfg.RequestTimeout, "request-timeout", getEnvDuration("REQUEST_TIMEOUT", 30*time.Second), "Per-request forecasting budget")
	fs.Int64Var(&cfg.MaxUploadBytes, "max-upload-bytes", getEnvInt64("MAX_UPLOAD_BYTES", 10<<20), "Largest accepted request body in bytes")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second), "Graceful shutdown budget")

	fs.BoolVar(&cfg.TLS.Enabled, "tls-enabled", getEnvBool("TLS_ENABLED", false), "Enable TLS for the HTTP and gRPC servers")
	fs.StringVar(&cfg.TLS.CertFile, "tls-cert-file", getEnv("TLS_CERT_FILE", ""), "TLS certificate file")
	fs.StringVar(&cfg.TLS.KeyFile, "tls-key-file", getEnv("TLS_KEY_FILE", ""), "TLS private key file")
	fs.StringVar(&cfg.TLS.CAFile, "tls-ca-file", getEnv("TLS_CA_FILE", ""), "TLS CA file; enables client certificate verification")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return errors.New("listen address cannot be empty")
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q (must be text or json)", c.LogFormat)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q (must be debug, info, warn or error)", c.LogLevel)
	}

	switch c.Storage {
	case StorageMemory, StorageNone:
	case StorageRedis:
		if c.RedisAddr == "" {
			return errors.New("redis address is required when storage=redis")
		}
		if c.RedisDB < 0 {
			return errors.New("redis database number must be >= 0")
		}
	default:
		return fmt.Errorf("invalid storage %q (must be memory, redis or none)", c.Storage)
	}

	if c.Storage != StorageNone && c.CacheTTL <= 0 {
		return errors.New("cache TTL must be > 0")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be >= 1, got %d", c.Workers)
	}
	if c.RequestTimeout <= 0 {
		return errors.New("request timeout must be > 0")
	}
	if c.MaxUploadBytes <= 0 {
		return errors.New("max upload bytes must be > 0")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be > 0")
	}

	return c.TLS.Validate()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		var i int64
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
