// Package config loads runtime settings from an optional JSON file, an
// optional .env file and ARBORIA_* environment variables, in that order.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage drivers.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageMongo    = "mongo"
)

// Blob drivers.
const (
	BlobFS     = "fs"
	BlobMemory = "memory"
	BlobS3     = "s3"
)

// DefaultMaxBodyBytes is the default request body cap.
const DefaultMaxBodyBytes int64 = 64 << 20

// Config is the complete runtime configuration.
type Config struct {
	HTTP    HTTPConfig    `json:"http"`
	Storage StorageConfig `json:"storage"`
	Blob    BlobConfig    `json:"blob"`
	Backup  BackupConfig  `json:"backup"`
	Log     LogConfig     `json:"log"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Addr            string   `json:"addr"`
	ShutdownTimeout Duration `json:"shutdown_timeout"`
	// MaxBodyBytes caps request bodies. Photos travel inline in imports.
	MaxBodyBytes int64 `json:"max_body_bytes"`
}

// StorageConfig selects and configures the persistent store.
type StorageConfig struct {
	Driver        string `json:"driver"`
	SQLitePath    string `json:"sqlite_path"`
	PostgresDSN   string `json:"postgres_dsn"`
	MongoURI      string `json:"mongo_uri"`
	MongoDatabase string `json:"mongo_database"`
}

// BlobConfig selects and configures the archive blob store.
type BlobConfig struct {
	Driver            string `json:"driver"`
	FSRoot            string `json:"fs_root"`
	S3Bucket          string `json:"s3_bucket"`
	S3Region          string `json:"s3_region"`
	S3Endpoint        string `json:"s3_endpoint"`
	S3PathStyle       bool   `json:"s3_path_style"`
	S3AccessKeyID     string `json:"s3_access_key_id"`
	S3SecretAccessKey string `json:"-"`
}

// BackupConfig holds the cron spec of the archive job. Empty disables it.
type BackupConfig struct {
	Schedule string `json:"schedule"`
	FarmID   string `json:"farm_id"`
}

// LogConfig configures zap.
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Duration decodes JSON strings such as "15s".
type Duration struct {
	time.Duration
}

// UnmarshalJSON accepts a Go duration string or a number of nanoseconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		d.Duration = parsed
	case float64:
		d.Duration = time.Duration(v)
	default:
		return fmt.Errorf("invalid duration %s", string(data))
	}
	return nil
}

// MarshalJSON renders the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{Addr: ":8001", ShutdownTimeout: Duration{10 * time.Second}, MaxBodyBytes: DefaultMaxBodyBytes},
		Storage: StorageConfig{
			Driver:        StorageSQLite,
			SQLitePath:    "arboria.db",
			MongoURI:      "mongodb://localhost:27017",
			MongoDatabase: "arboria_db",
		},
		Blob: BlobConfig{Driver: BlobFS, FSRoot: "./data/blobs"},
		Log:  LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads .env (when present), then ARBORIA_CONFIG_FILE (when set), then
// environment overrides, and validates the result.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return LoadFile(os.Getenv("ARBORIA_CONFIG_FILE"))
}

// LoadFile applies the JSON file at path (skipped when empty) and the
// environment on top of the defaults.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 -- operator supplied config path
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}
	if err := overrideWithEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func overrideWithEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("ARBORIA_HTTP_ADDR", &cfg.HTTP.Addr)
	str("ARBORIA_STORAGE_DRIVER", &cfg.Storage.Driver)
	str("ARBORIA_SQLITE_PATH", &cfg.Storage.SQLitePath)
	str("ARBORIA_POSTGRES_DSN", &cfg.Storage.PostgresDSN)
	str("ARBORIA_MONGO_URI", &cfg.Storage.MongoURI)
	str("ARBORIA_MONGO_DATABASE", &cfg.Storage.MongoDatabase)
	str("ARBORIA_BLOB_DRIVER", &cfg.Blob.Driver)
	str("ARBORIA_BLOB_FS_ROOT", &cfg.Blob.FSRoot)
	str("ARBORIA_BLOB_S3_BUCKET", &cfg.Blob.S3Bucket)
	str("ARBORIA_BLOB_S3_REGION", &cfg.Blob.S3Region)
	str("ARBORIA_BLOB_S3_ENDPOINT", &cfg.Blob.S3Endpoint)
	str("ARBORIA_BLOB_S3_ACCESS_KEY_ID", &cfg.Blob.S3AccessKeyID)
	str("ARBORIA_BLOB_S3_SECRET_ACCESS_KEY", &cfg.Blob.S3SecretAccessKey)
	str("ARBORIA_BACKUP_SCHEDULE", &cfg.Backup.Schedule)
	str("ARBORIA_BACKUP_FARM_ID", &cfg.Backup.FarmID)
	str("ARBORIA_LOG_LEVEL", &cfg.Log.Level)
	str("ARBORIA_LOG_FORMAT", &cfg.Log.Format)

	var problems []string
	if v := strings.TrimSpace(os.Getenv("ARBORIA_BLOB_S3_PATH_STYLE")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			problems = append(problems, "ARBORIA_BLOB_S3_PATH_STYLE: "+err.Error())
		} else {
			cfg.Blob.S3PathStyle = b
		}
	}
	if v := strings.TrimSpace(os.Getenv("ARBORIA_SHUTDOWN_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			problems = append(problems, "ARBORIA_SHUTDOWN_TIMEOUT: "+err.Error())
		} else {
			cfg.HTTP.ShutdownTimeout = Duration{d}
		}
	}
	if v := strings.TrimSpace(os.Getenv("ARBORIA_HTTP_MAX_BODY_BYTES")); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			problems = append(problems, "ARBORIA_HTTP_MAX_BODY_BYTES: "+err.Error())
		} else {
			cfg.HTTP.MaxBodyBytes = n
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var problems []string
	switch c.Storage.Driver {
	case StorageMemory, StorageSQLite, StorageMongo:
	case StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			problems = append(problems, "storage.postgres_dsn is required for the postgres driver")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown storage driver %q", c.Storage.Driver))
	}
	switch c.Blob.Driver {
	case BlobMemory:
	case BlobFS:
		if c.Blob.FSRoot == "" {
			problems = append(problems, "blob.fs_root is required for the fs driver")
		}
	case BlobS3:
		if c.Blob.S3Bucket == "" {
			problems = append(problems, "blob.s3_bucket is required for the s3 driver")
		}
		if (c.Blob.S3AccessKeyID == "") != (c.Blob.S3SecretAccessKey == "") {
			problems = append(problems, "blob s3 access key id and secret must be set together")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown blob driver %q", c.Blob.Driver))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		problems = append(problems, fmt.Sprintf("unknown log format %q", c.Log.Format))
	}
	if c.HTTP.ShutdownTimeout.Duration <= 0 {
		problems = append(problems, "http.shutdown_timeout must be positive")
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		problems = append(problems, "http.max_body_bytes must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
