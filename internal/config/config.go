package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
	"github.com/wb-go/wbf/zlog"
)

// Config holds the main configuration for the application.
type Config struct {
	Server    Server    `mapstructure:"server"`
	Auth      Auth      `mapstructure:"auth"`
	Metadata  Metadata  `mapstructure:"metadata"`
	Database  Database  `mapstructure:"database"`
	Storage   Storage   `mapstructure:"storage"`
	Limits    Limits    `mapstructure:"limits"`
	Batch     Batch     `mapstructure:"batch"`
	Transform Transform `mapstructure:"transform"`
	Webhook   Webhook   `mapstructure:"webhook"`
	Kafka     Kafka     `mapstructure:"kafka"`
	Retry     Retry     `mapstructure:"retry"`
}

// Server holds HTTP server-related configuration.
type Server struct {
	HTTPPort     string        `mapstructure:"http_port"` // HTTP port to listen on
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Auth holds the static credential list.
type Auth struct {
	Credentials []Credential `mapstructure:"credentials"`
}

// Credential maps one API key to a display name and its allowed path prefix.
type Credential struct {
	APIKey     string `mapstructure:"api_key"`
	Name       string `mapstructure:"name"`
	PathPrefix string `mapstructure:"path_prefix"`
}

// Metadata selects and configures the metadata index backend.
type Metadata struct {
	Backend string `mapstructure:"backend"` // "file" or "postgres"
	File    struct {
		Path string `mapstructure:"path"` // location of the JSON index
	} `mapstructure:"file"`
}

// Database holds database master and slave configuration. It is used only
// when the metadata backend is "postgres".
type Database struct {
	Master DatabaseNode   `mapstructure:"master"`
	Slaves []DatabaseNode `mapstructure:"slaves"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DatabaseNode holds connection parameters for a single database node.
type DatabaseNode struct {
	Host    string `mapstructure:"host"`
	Port    string `mapstructure:"port"`
	User    string `mapstructure:"user"`
	Pass    string `mapstructure:"pass"`
	Name    string `mapstructure:"name"`
	SSLMode string `mapstructure:"ssl_mode"`
}

// Storage selects and configures the blob storage backend.
type Storage struct {
	Backend string `mapstructure:"backend"` // "local" or "minio"
	Local   struct {
		BaseDir string `mapstructure:"base_dir"`
	} `mapstructure:"local"`
	Minio Minio `mapstructure:"minio"`
}

// Minio holds configuration for the S3-compatible storage backend.
type Minio struct {
	Endpoint   string `mapstructure:"endpoint"`
	AccessKey  string `mapstructure:"access_key"`
	SecretKey  string `mapstructure:"secret_key"`
	BucketName string `mapstructure:"bucket_name"`
	UseSSL     bool   `mapstructure:"use_ssl"`
}

// Limits bounds single-upload processing.
type Limits struct {
	MaxFileSize   int64         `mapstructure:"max_file_size"` // bytes
	UploadTimeout time.Duration `mapstructure:"upload_timeout"`
}

// Batch configures the batch upload coordinator.
type Batch struct {
	Workers   int           `mapstructure:"workers"`   // worker pool size per batch
	MaxFiles  int           `mapstructure:"max_files"` // maximum items per batch
	Retention time.Duration `mapstructure:"retention"` // how long completed jobs stay pollable
}

// Transform configures on-the-fly image derivation.
type Transform struct {
	MaxDimension   int       `mapstructure:"max_dimension"`
	DefaultQuality int       `mapstructure:"default_quality"`
	Watermark      Watermark `mapstructure:"watermark"`
}

// Watermark, when Text is non-empty, stamps derived renditions. Originals
// are never touched.
type Watermark struct {
	Text     string `mapstructure:"text"`
	FontPath string `mapstructure:"font_path"`
}

// Webhook configures the optional HTTP event sink.
type Webhook struct {
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
	Timeout time.Duration     `mapstructure:"timeout"`
}

// Kafka configures the optional event topic. Empty brokers disable it.
type Kafka struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// Retry defines retry policy configuration.
type Retry struct {
	Attempts int           `mapstructure:"attempts"` // Number of retry attempts
	Delay    time.Duration `mapstructure:"delay"`    // Initial delay between retries
	Backoff  float64       `mapstructure:"backoff"`  // Backoff multiplier for delays
}

// DSN returns the PostgreSQL DSN string for connecting to this database node.
func (n DatabaseNode) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		n.User, n.Pass, n.Host, n.Port, n.Name, n.SSLMode,
	)
}

// mustBindEnv binds critical environment variables to Viper keys.
//
// It panics if any environment variable cannot be bound.
func mustBindEnv() {
	bindings := map[string]string{
		"database.master.host":     "DB_HOST",
		"database.master.port":     "DB_PORT",
		"database.master.user":     "DB_USER",
		"database.master.pass":     "DB_PASSWORD",
		"database.master.name":     "DB_NAME",
		"storage.minio.access_key": "MINIO_ACCESS_KEY",
		"storage.minio.secret_key": "MINIO_SECRET_KEY",
		"webhook.url":              "WEBHOOK_URL",
	}

	for key, env := range bindings {
		if err := viper.BindEnv(key, env); err != nil {
			zlog.Logger.Panic().Err(err).Msgf("failed to bind env %s", env)
		}
	}
}

// MustLoad loads the configuration from the specified file path.
// It panics if the configuration file cannot be loaded or unmarshaled.
func MustLoad(path string) *Config {
	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		zlog.Logger.Panic().Err(err).Msg("failed to read config")
	}

	mustBindEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		zlog.Logger.Panic().Err(err).Msgf("failed to unmarshal config: %v", err)
	}

	return &cfg
}
