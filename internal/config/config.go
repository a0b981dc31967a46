package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Remote backends.
const (
	BackendFirestore = "firestore"
	BackendGCS       = "gcs"
	BackendMemory    = "memory"
)

// Config is the full process configuration.
type Config struct {
	Remote   RemoteConfig   `yaml:"remote"`
	Cache    CacheConfig    `yaml:"cache"`
	Sync     SyncConfig     `yaml:"sync"`
	Rates    RatesConfig    `yaml:"rates"`
	HTTP     HTTPConfig     `yaml:"http"`
	Log      LogConfig      `yaml:"log"`
	Backup   BackupConfig   `yaml:"backup"`
	Notion   NotionConfig   `yaml:"notion"`
	BigQuery BigQueryConfig `yaml:"bigquery"`
}

type RemoteConfig struct {
	Backend    string `yaml:"backend"`
	ProjectID  string `yaml:"project_id"`
	Collection string `yaml:"collection"`
	Document   string `yaml:"document"`
	Bucket     string `yaml:"bucket"`
	Object     string `yaml:"object"`
	// PollInterval only applies to the gcs backend.
	PollInterval time.Duration `yaml:"poll_interval"`
}

type CacheConfig struct {
	// Kind is "file" or "sqlite".
	Kind string `yaml:"kind"`
	Dir  string `yaml:"dir"`
}

type SyncConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

type RatesConfig struct {
	URL      string        `yaml:"url"`
	Pair     string        `yaml:"pair"`
	Interval time.Duration `yaml:"interval"`
	Disabled bool          `yaml:"disabled"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type BackupConfig struct {
	Dir    string `yaml:"dir"`
	Bucket string `yaml:"bucket"`
}

type NotionConfig struct {
	Token      string `yaml:"token"`
	DatabaseID string `yaml:"database_id"`
}

type BigQueryConfig struct {
	ProjectID string `yaml:"project_id"`
	Dataset   string `yaml:"dataset"`
}

// Error reports a configuration problem that disables remote sync. The
// process keeps running against the local cache.
type Error struct {
	Reason string
}

func (e *Error) Error() string {
	return "configuration error: " + e.Reason
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Remote: RemoteConfig{
			Backend:      BackendFirestore,
			Collection:   "dashboards",
			Document:     "jar",
			Object:       "dashboards/jar.json",
			PollInterval: 2 * time.Second,
		},
		Cache: CacheConfig{Kind: "file", Dir: ".jar"},
		Sync:  SyncConfig{Debounce: time.Second},
		Rates: RatesConfig{
			URL:      "https://economia.awesomeapi.com.br/last",
			Pair:     "USD-BRL",
			Interval: 60 * time.Second,
		},
		HTTP:     HTTPConfig{Addr: ":8080"},
		Log:      LogConfig{Level: "info", Format: "console"},
		Backup:   BackupConfig{Dir: "."},
		BigQuery: BigQueryConfig{Dataset: "jar_dashboard"},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// the environment, in that order of precedence.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %q: %w", path, err)
		}
	}
	applyEnv(&cfg, os.LookupEnv)
	return cfg, nil
}

type lookupFunc func(string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && v != "" {
				*dst = v
				return
			}
		}
	}
	dur := func(dst *time.Duration, key string) {
		if v, ok := lookup(key); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}

	str(&cfg.Remote.Backend, "JAR_REMOTE_BACKEND")
	str(&cfg.Remote.ProjectID, "JAR_PROJECT_ID", "FIREBASE_PROJECT_ID", "GOOGLE_CLOUD_PROJECT")
	str(&cfg.Remote.Collection, "JAR_COLLECTION")
	str(&cfg.Remote.Document, "JAR_DOCUMENT")
	str(&cfg.Remote.Bucket, "JAR_BUCKET", "FIREBASE_STORAGE_BUCKET")
	str(&cfg.Remote.Object, "JAR_OBJECT")
	dur(&cfg.Remote.PollInterval, "JAR_POLL_INTERVAL")
	str(&cfg.Cache.Kind, "JAR_CACHE_KIND")
	str(&cfg.Cache.Dir, "JAR_CACHE_DIR")
	dur(&cfg.Sync.Debounce, "JAR_DEBOUNCE")
	str(&cfg.Rates.URL, "JAR_RATES_URL")
	dur(&cfg.Rates.Interval, "JAR_RATES_INTERVAL")
	str(&cfg.HTTP.Addr, "JAR_HTTP_ADDR")
	str(&cfg.Log.Level, "JAR_LOG_LEVEL")
	str(&cfg.Log.Format, "JAR_LOG_FORMAT")
	str(&cfg.Backup.Dir, "JAR_BACKUP_DIR")
	str(&cfg.Backup.Bucket, "JAR_BACKUP_BUCKET", "GCS_BUCKET")
	str(&cfg.Notion.Token, "NOTION_TOKEN")
	str(&cfg.Notion.DatabaseID, "NOTION_DATABASE_ID")
	str(&cfg.BigQuery.ProjectID, "JAR_BIGQUERY_PROJECT_ID", "JAR_PROJECT_ID", "GOOGLE_CLOUD_PROJECT")
	str(&cfg.BigQuery.Dataset, "JAR_BIGQUERY_DATASET")
}

// ValidateRemote checks that the selected remote backend has what it needs.
// A nil error means sync can start; *Error means it must be disabled.
func (c Config) ValidateRemote() error {
	var missing []string
	switch c.Remote.Backend {
	case BackendFirestore:
		if c.Remote.ProjectID == "" {
			missing = append(missing, "project id (FIREBASE_PROJECT_ID)")
		}
		if c.Remote.Collection == "" || c.Remote.Document == "" {
			missing = append(missing, "document path")
		}
	case BackendGCS:
		if c.Remote.Bucket == "" {
			missing = append(missing, "bucket (JAR_BUCKET)")
		}
		if c.Remote.Object == "" {
			missing = append(missing, "object name")
		}
	case BackendMemory:
	case "":
		return &Error{Reason: "no remote backend selected"}
	default:
		return &Error{Reason: fmt.Sprintf("unknown remote backend %q", c.Remote.Backend)}
	}
	if len(missing) > 0 {
		return &Error{Reason: "missing " + strings.Join(missing, ", ")}
	}
	return nil
}

// IsConfigError reports whether err is a configuration error.
func IsConfigError(err error) bool {
	var ce *Error
	return errors.As(err, &ce)
}
