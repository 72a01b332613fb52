// Package config assembles derive's runtime configuration from defaults,
// an optional YAML file and environment variables, in that order.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/Mindburn-Labs/derive/pkg/artifacts"
	"github.com/Mindburn-Labs/derive/pkg/observability"
	"github.com/Mindburn-Labs/derive/pkg/pipeline"
)

// EnvConfigFile names the YAML file read by Load when no path is given.
const EnvConfigFile = "DERIVE_CONFIG"

// Config holds process configuration.
type Config struct {
	LogLevel       string                `yaml:"log_level"`
	LogFormat      string                `yaml:"log_format"`
	MaxImportBytes int64                 `yaml:"max_import_bytes"`
	Storage        artifacts.StoreConfig `yaml:"storage"`
	Telemetry      observability.Config  `yaml:"telemetry"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		LogLevel:       "INFO",
		LogFormat:      "text",
		MaxImportBytes: pipeline.DefaultMaxImportBytes,
		Storage:        artifacts.StoreConfig{Type: artifacts.StoreTypeFS, DataDir: "data"},
		Telemetry:      *observability.DefaultConfig(),
	}
}

// Load builds the configuration. path overrides DERIVE_CONFIG; when both
// are empty only defaults and the environment apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.LogFormat, "LOG_FORMAT")

	if v := os.Getenv("MAX_IMPORT_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("MAX_IMPORT_BYTES: %w", err)
		}
		c.MaxImportBytes = n
	}

	// Only variables that are set override the file.
	env := artifacts.StoreConfigFromEnv()
	if env.Type != "" {
		c.Storage.Type = env.Type
	}
	setFrom(&c.Storage.DataDir, env.DataDir)
	setFrom(&c.Storage.S3.Bucket, env.S3.Bucket)
	setFrom(&c.Storage.S3.Region, env.S3.Region)
	setFrom(&c.Storage.S3.Endpoint, env.S3.Endpoint)
	setFrom(&c.Storage.S3.Prefix, env.S3.Prefix)
	setFrom(&c.Storage.GCS.Bucket, env.GCS.Bucket)
	setFrom(&c.Storage.GCS.Prefix, env.GCS.Prefix)
	setFrom(&c.Storage.Redis.URL, env.Redis.URL)
	setFrom(&c.Storage.Redis.Prefix, env.Redis.Prefix)

	if err := setBool(&c.Telemetry.Enabled, "OTEL_ENABLED"); err != nil {
		return err
	}
	if err := setBool(&c.Telemetry.Insecure, "OTEL_INSECURE"); err != nil {
		return err
	}
	setString(&c.Telemetry.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&c.Telemetry.ServiceName, "OTEL_SERVICE_NAME")
	return nil
}

// Validate rejects values the loaders cannot catch on their own.
func (c *Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q: want text or json", c.LogFormat)
	}
	if c.MaxImportBytes < 0 {
		return fmt.Errorf("max import bytes must not be negative, got %d", c.MaxImportBytes)
	}
	switch c.Storage.Type {
	case "", artifacts.StoreTypeFS, artifacts.StoreTypeS3, artifacts.StoreTypeGCS, artifacts.StoreTypeRedis:
	default:
		return fmt.Errorf("unsupported artifact storage type: %s", c.Storage.Type)
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return lvl, nil
}

// Logger builds the process logger writing to w.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	lvl, err := c.Level()
	if err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func setString(dst *string, key string) {
	setFrom(dst, os.Getenv(key))
}

func setFrom(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}
