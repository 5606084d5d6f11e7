// Package config assembles socialcore settings from defaults, an optional YAML
// file, an optional .env file and SOCIALCORE_* environment variables, in that
// order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"socialcore/internal/blob"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "SOCIALCORE_"

// Journal drivers.
const (
	JournalMemory   = "memory"
	JournalSQLite   = "sqlite"
	JournalPostgres = "postgres"
	JournalNone     = "none"
)

// BlobNone disables snapshot exports.
const BlobNone blob.Driver = "none"

// Config is the complete runtime configuration.
type Config struct {
	HTTP    HTTPConfig    `yaml:"http"`
	Log     LogConfig     `yaml:"log"`
	Journal JournalConfig `yaml:"journal"`
	Blob    blob.Config   `yaml:"blob"`
	Export  ExportConfig  `yaml:"export"`
	NATS    NATSConfig    `yaml:"nats"`
	Zipkin  ZipkinConfig  `yaml:"zipkin"`
}

// HTTPConfig controls the listener and graceful shutdown budget.
type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogConfig selects the slog level (debug, info, warn, error) and handler (json, text).
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// JournalConfig selects the change journal backend and its location.
type JournalConfig struct {
	Driver   string `yaml:"driver"`
	Capacity int    `yaml:"capacity"`
	Path     string `yaml:"sqlite_path"`
	DSN      string `yaml:"postgres_dsn"`
}

// ExportConfig sets the snapshot encoding and an optional cron schedule.
type ExportConfig struct {
	Schedule string `yaml:"schedule"`
	Format   string `yaml:"format"`
}

// NATSConfig enables change publishing when URL is set.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// ZipkinConfig enables span reporting when Endpoint is set.
type ZipkinConfig struct {
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		HTTP:    HTTPConfig{Addr: ":8080", ShutdownTimeout: 10 * time.Second},
		Log:     LogConfig{Level: "info", Format: "json"},
		Journal: JournalConfig{Driver: JournalMemory, Capacity: 1024, Path: "socialcore-journal.db"},
		Blob:    blob.Config{Driver: blob.DriverMemory, FSRoot: "./exports"},
		Export:  ExportConfig{Format: "json"},
		NATS:    NATSConfig{SubjectPrefix: "socialcore"},
		Zipkin:  ZipkinConfig{ServiceName: "socialcore"},
	}
}

// Load reads ./.env if present, then the YAML file named by SOCIALCORE_CONFIG
// (also honoured when set in .env), then the environment.
func Load() (Config, error) {
	dotenv, err := readDotenv(".env")
	if err != nil {
		return Config{}, err
	}
	lookup := layeredLookup(dotenv)
	path, _ := lookup(EnvPrefix + "CONFIG")
	return load(path, lookup)
}

// LoadFrom is Load with an explicit YAML path and .env files. Empty path skips
// the YAML layer; missing .env files are ignored.
func LoadFrom(path string, envFiles ...string) (Config, error) {
	dotenv, err := readDotenv(envFiles...)
	if err != nil {
		return Config{}, err
	}
	return load(path, layeredLookup(dotenv))
}

func load(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func readDotenv(files ...string) (map[string]string, error) {
	merged := make(map[string]string)
	for _, file := range files {
		values, err := godotenv.Read(file)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
		for k, v := range values {
			if _, ok := merged[k]; !ok {
				merged[k] = v
			}
		}
	}
	return merged, nil
}

// layeredLookup prefers the process environment over .env values.
func layeredLookup(dotenv map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	str("ADDR", &c.HTTP.Addr)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("JOURNAL_DRIVER", &c.Journal.Driver)
	str("SQLITE_PATH", &c.Journal.Path)
	str("POSTGRES_DSN", &c.Journal.DSN)
	str("BLOB_FS_ROOT", &c.Blob.FSRoot)
	str("BLOB_S3_BUCKET", &c.Blob.S3.Bucket)
	str("BLOB_S3_REGION", &c.Blob.S3.Region)
	str("BLOB_S3_ENDPOINT", &c.Blob.S3.Endpoint)
	str("BLOB_S3_ACCESS_KEY_ID", &c.Blob.S3.AccessKeyID)
	str("BLOB_S3_SECRET_ACCESS_KEY", &c.Blob.S3.SecretAccessKey)
	str("BLOB_S3_SESSION_TOKEN", &c.Blob.S3.SessionToken)
	str("EXPORT_SCHEDULE", &c.Export.Schedule)
	str("EXPORT_FORMAT", &c.Export.Format)
	str("NATS_URL", &c.NATS.URL)
	str("NATS_SUBJECT_PREFIX", &c.NATS.SubjectPrefix)
	str("ZIPKIN_ENDPOINT", &c.Zipkin.Endpoint)
	str("ZIPKIN_SERVICE_NAME", &c.Zipkin.ServiceName)

	if v, ok := lookup(EnvPrefix + "BLOB_DRIVER"); ok {
		c.Blob.Driver = blob.Driver(strings.TrimSpace(v))
	}
	if v, ok := lookup(EnvPrefix + "BLOB_S3_PATH_STYLE"); ok {
		c.Blob.S3.PathStyle = strings.EqualFold(strings.TrimSpace(v), "true")
	}
	if v, ok := lookup(EnvPrefix + "JOURNAL_CAPACITY"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%sJOURNAL_CAPACITY: %w", EnvPrefix, err)
		}
		c.Journal.Capacity = n
	}
	if v, ok := lookup(EnvPrefix + "SHUTDOWN_TIMEOUT"); ok {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%sSHUTDOWN_TIMEOUT: %w", EnvPrefix, err)
		}
		c.HTTP.ShutdownTimeout = d
	}
	return nil
}

// Validate rejects unknown drivers, formats and unparsable schedules.
func (c Config) Validate() error {
	var problems []string
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("unknown log level %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		problems = append(problems, fmt.Sprintf("unknown log format %q", c.Log.Format))
	}
	switch c.Journal.Driver {
	case JournalMemory, JournalNone:
	case JournalSQLite:
		if c.Journal.Path == "" {
			problems = append(problems, "sqlite journal requires a path")
		}
	case JournalPostgres:
		if c.Journal.DSN == "" {
			problems = append(problems, "postgres journal requires a dsn")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown journal driver %q", c.Journal.Driver))
	}
	switch c.Blob.Driver {
	case blob.DriverMemory, blob.DriverFilesystem, BlobNone:
	case blob.DriverS3:
		if c.Blob.S3.Bucket == "" {
			problems = append(problems, "s3 blob driver requires a bucket")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown blob driver %q", c.Blob.Driver))
	}
	switch c.Export.Format {
	case "json", "yaml":
	default:
		problems = append(problems, fmt.Sprintf("unknown export format %q", c.Export.Format))
	}
	if c.Export.Schedule != "" {
		if c.Blob.Driver == BlobNone {
			problems = append(problems, "export schedule requires a blob driver")
		}
		if _, err := cron.ParseStandard(c.Export.Schedule); err != nil {
			problems = append(problems, fmt.Sprintf("export schedule %q: %v", c.Export.Schedule, err))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
