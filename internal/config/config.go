// Package config loads alienrisk settings from defaults, an optional YAML
// file and ALIENRISK_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	StorageMemory   = "memory"
	StorageFile     = "file"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageBadger   = "badger"
)

// Blob drivers. An empty driver disables archiving.
const (
	BlobNone       = ""
	BlobFilesystem = "fs"
	BlobS3         = "s3"
	BlobMemory     = "memory"
)

// Metrics exporters used by the serve command.
const (
	MetricsPrometheus = "prometheus"
	MetricsExpvar     = "expvar"
)

// Store tracers.
const (
	TraceNone = "none"
	TraceJSON = "json"
	TraceOTel = "otel"
)

// Config is the full alienrisk configuration.
type Config struct {
	Storage   Storage   `yaml:"storage"`
	Blob      Blob      `yaml:"blob"`
	Log       Log       `yaml:"log"`
	HTTP      HTTP      `yaml:"http"`
	Telemetry Telemetry `yaml:"telemetry"`
}

// Storage selects and configures the snapshot backend.
type Storage struct {
	Driver      string `yaml:"driver"`
	Key         string `yaml:"key"`
	FileDir     string `yaml:"file_dir"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
	BadgerPath  string `yaml:"badger_path"`
}

// Blob configures where exports are archived.
type Blob struct {
	Driver string `yaml:"driver"`
	FSRoot string `yaml:"fs_root"`
	S3     S3     `yaml:"s3"`
}

// S3 holds the S3 / MinIO bucket settings.
type S3 struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
}

// Log configures the process logger.
type Log struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Telemetry selects the store metrics exporter and tracer. JSON spans are
// written to stderr.
type Telemetry struct {
	Metrics string `yaml:"metrics"` // prometheus | expvar
	Trace   string `yaml:"trace"`   // none | json | otel
}

// HTTP configures the serve command.
type HTTP struct {
	Addr string `yaml:"addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Storage: Storage{
			Driver:     StorageFile,
			Key:        "alien-risk:v1:calculations",
			FileDir:    "./alienrisk-data",
			SQLitePath: "./alienrisk.db",
			BadgerPath: "./alienrisk-badger",
		},
		Blob: Blob{
			FSRoot: "./alienrisk-exports",
			S3:     S3{Region: "us-east-1"},
		},
		Log:       Log{Level: "info", Format: "text"},
		HTTP:      HTTP{Addr: "127.0.0.1:8080"},
		Telemetry: Telemetry{Metrics: MetricsPrometheus, Trace: TraceOTel},
	}
}

// Load builds the configuration. A missing file at path is ignored; an
// empty path skips the file entirely.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"ALIENRISK_STORAGE_DRIVER":   &c.Storage.Driver,
		"ALIENRISK_STORAGE_KEY":      &c.Storage.Key,
		"ALIENRISK_FILE_DIR":         &c.Storage.FileDir,
		"ALIENRISK_SQLITE_PATH":      &c.Storage.SQLitePath,
		"ALIENRISK_POSTGRES_DSN":     &c.Storage.PostgresDSN,
		"ALIENRISK_BADGER_PATH":      &c.Storage.BadgerPath,
		"ALIENRISK_BLOB_DRIVER":      &c.Blob.Driver,
		"ALIENRISK_BLOB_FS_ROOT":     &c.Blob.FSRoot,
		"ALIENRISK_BLOB_S3_BUCKET":   &c.Blob.S3.Bucket,
		"ALIENRISK_BLOB_S3_REGION":   &c.Blob.S3.Region,
		"ALIENRISK_BLOB_S3_ENDPOINT": &c.Blob.S3.Endpoint,
		"ALIENRISK_LOG_LEVEL":        &c.Log.Level,
		"ALIENRISK_LOG_FORMAT":       &c.Log.Format,
		"ALIENRISK_HTTP_ADDR":        &c.HTTP.Addr,
		"ALIENRISK_METRICS":          &c.Telemetry.Metrics,
		"ALIENRISK_TRACE":            &c.Telemetry.Trace,
	}
	for name, dst := range strs {
		if v, ok := lookup(name); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	if v, ok := lookup("ALIENRISK_BLOB_S3_PATH_STYLE"); ok && strings.TrimSpace(v) != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("ALIENRISK_BLOB_S3_PATH_STYLE: %w", err)
		}
		c.Blob.S3.PathStyle = b
	}
	return nil
}

// Validate rejects unknown drivers and incomplete driver settings.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case StorageMemory, StorageFile, StorageSQLite, StorageBadger:
	case StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage.postgres_dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Storage.Key == "" {
		return fmt.Errorf("storage.key is required")
	}
	switch c.Blob.Driver {
	case BlobNone, BlobFilesystem, BlobMemory:
	case BlobS3:
		if c.Blob.S3.Bucket == "" {
			return fmt.Errorf("blob.s3.bucket is required for the s3 driver")
		}
	default:
		return fmt.Errorf("unknown blob driver %q", c.Blob.Driver)
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	switch c.Telemetry.Metrics {
	case "", MetricsPrometheus, MetricsExpvar:
	default:
		return fmt.Errorf("unknown metrics exporter %q", c.Telemetry.Metrics)
	}
	switch c.Telemetry.Trace {
	case "", TraceNone, TraceJSON, TraceOTel:
	default:
		return fmt.Errorf("unknown tracer %q", c.Telemetry.Trace)
	}
	return nil
}
