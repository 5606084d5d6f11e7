package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"socialcore/internal/blob"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	cfg, err := LoadFrom("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" || cfg.Journal.Driver != JournalMemory || cfg.Blob.Driver != blob.DriverMemory {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLayering(t *testing.T) {
	dir := t.TempDir()
	yamlPath := writeFile(t, dir, "socialcore.yaml", `
http:
  addr: ":9000"
  shutdown_timeout: 3s
log:
  level: debug
journal:
  driver: sqlite
  sqlite_path: /tmp/from-yaml.db
blob:
  driver: fs
  fs_root: /tmp/exports
export:
  schedule: "@hourly"
  format: yaml
`)
	envPath := writeFile(t, dir, ".env", "SOCIALCORE_LOG_FORMAT=text\nSOCIALCORE_ADDR=:7000\nSOCIALCORE_NATS_URL=nats://from-dotenv:4222\n")
	t.Setenv("SOCIALCORE_ADDR", ":6000")
	t.Setenv("SOCIALCORE_SQLITE_PATH", filepath.Join(dir, "journal.db"))

	cfg, err := LoadFrom(yamlPath, envPath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":6000" {
		t.Fatalf("process env should win over .env, got %q", cfg.HTTP.Addr)
	}
	if cfg.HTTP.ShutdownTimeout != 3*time.Second || cfg.Log.Level != "debug" {
		t.Fatalf("yaml values missing: %+v", cfg)
	}
	if cfg.Log.Format != "text" || cfg.NATS.URL != "nats://from-dotenv:4222" {
		t.Fatalf(".env values missing: %+v", cfg)
	}
	if cfg.Journal.Path != filepath.Join(dir, "journal.db") {
		t.Fatalf("env should override yaml path, got %q", cfg.Journal.Path)
	}
	if cfg.Export.Format != "yaml" || cfg.Export.Schedule != "@hourly" || cfg.Blob.FSRoot != "/tmp/exports" {
		t.Fatalf("unexpected export settings: %+v %+v", cfg.Export, cfg.Blob)
	}
	if cfg.NATS.SubjectPrefix != "socialcore" {
		t.Fatalf("untouched defaults should survive, got %q", cfg.NATS.SubjectPrefix)
	}
}

func TestEnvParsesTypedValues(t *testing.T) {
	t.Setenv("SOCIALCORE_BLOB_DRIVER", "s3")
	t.Setenv("SOCIALCORE_BLOB_S3_BUCKET", "snapshots")
	t.Setenv("SOCIALCORE_BLOB_S3_PATH_STYLE", "TRUE")
	t.Setenv("SOCIALCORE_JOURNAL_CAPACITY", "12")
	t.Setenv("SOCIALCORE_SHUTDOWN_TIMEOUT", "250ms")
	cfg, err := LoadFrom("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Blob.Driver != blob.DriverS3 || !cfg.Blob.S3.PathStyle || cfg.Blob.S3.Bucket != "snapshots" {
		t.Fatalf("unexpected blob config: %+v", cfg.Blob)
	}
	if cfg.Journal.Capacity != 12 || cfg.HTTP.ShutdownTimeout != 250*time.Millisecond {
		t.Fatalf("unexpected typed values: %+v", cfg)
	}

	t.Setenv("SOCIALCORE_JOURNAL_CAPACITY", "lots")
	if _, err := LoadFrom(""); err == nil {
		t.Fatalf("expected capacity parse error")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		"journal driver":   func(c *Config) { c.Journal.Driver = "mysql" },
		"postgres dsn":     func(c *Config) { c.Journal.Driver = JournalPostgres; c.Journal.DSN = "" },
		"blob driver":      func(c *Config) { c.Blob.Driver = "gcs" },
		"s3 bucket":        func(c *Config) { c.Blob.Driver = blob.DriverS3 },
		"export format":    func(c *Config) { c.Export.Format = "csv" },
		"cron":             func(c *Config) { c.Export.Schedule = "every tuesday" },
		"schedule no blob": func(c *Config) { c.Export.Schedule = "@daily"; c.Blob.Driver = BlobNone },
		"log level":        func(c *Config) { c.Log.Level = "loud" },
		"log format":       func(c *Config) { c.Log.Format = "xml" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "invalid config") {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestLoadFromMissingFile(t *testing.T) {
	if _, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing yaml file")
	}
	if _, err := LoadFrom("", filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("missing .env should be ignored: %v", err)
	}
}

func TestLoadHonoursConfigEnv(t *testing.T) {
	path := writeFile(t, t.TempDir(), "c.yaml", "http:\n  addr: \":9100\"\n")
	t.Setenv("SOCIALCORE_CONFIG", path)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":9100" {
		t.Fatalf("SOCIALCORE_CONFIG not honoured, addr %q", cfg.HTTP.Addr)
	}
}
