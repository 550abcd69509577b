package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Backend   BackendConfig   `yaml:"backend"`
	Sender    SenderConfig    `yaml:"sender"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Cluster   ClusterConfig   `yaml:"cluster"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	NATS      NATSConfig      `yaml:"nats"`
	MinIO     MinIOConfig     `yaml:"minio"`
	Index     IndexConfig     `yaml:"index"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// BackendConfig points the sender at the analytics backend.
type BackendConfig struct {
	URL     string        `yaml:"url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

type SenderConfig struct {
	Workers         int           `yaml:"workers"`
	SubmitAttempts  int           `yaml:"submit_attempts"`
	SubmitDelay     time.Duration `yaml:"submit_delay"`
	DefaultCamera   string        `yaml:"default_camera"`
	TemplatesDir    string        `yaml:"templates_dir"`
	TemplatesBucket string        `yaml:"templates_bucket"`
	PaceInterval    time.Duration `yaml:"pace_interval"`
}

// ReconcileConfig tunes timestamp correlation. PageSize bounds how many of the
// newest backend objects one attempt inspects: if more objects than that are
// created inside the retry window, resolution reports exhaustion falsely.
type ReconcileConfig struct {
	Attempts int           `yaml:"attempts"`
	Delay    time.Duration `yaml:"delay"`
	PageSize int           `yaml:"page_size"`
}

type ClusterConfig struct {
	Attempts int           `yaml:"attempts"`
	Delay    time.Duration `yaml:"delay"`
}

type ServerConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// Enabled reports whether a Postgres host is configured.
func (d DatabaseConfig) Enabled() bool {
	return d.Host != ""
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// IndexConfig controls the backend indexer.
type IndexConfig struct {
	Workers          int     `yaml:"workers"`
	ClusterThreshold float64 `yaml:"cluster_threshold"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
// An empty path skips the file and yields defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	return cfg, nil
}

// Default returns a config with every default applied and no file or
// environment input.
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

func setDefaults(cfg *Config) {
	if cfg.Backend.URL == "" {
		cfg.Backend.URL = "http://localhost:8080"
	}
	if cfg.Backend.Timeout == 0 {
		cfg.Backend.Timeout = 30 * time.Second
	}
	if cfg.Sender.Workers == 0 {
		cfg.Sender.Workers = 10
	}
	if cfg.Sender.SubmitAttempts == 0 {
		cfg.Sender.SubmitAttempts = 3
	}
	if cfg.Sender.SubmitDelay == 0 {
		cfg.Sender.SubmitDelay = time.Second
	}
	if cfg.Sender.DefaultCamera == "" {
		cfg.Sender.DefaultCamera = "camera-1"
	}
	if cfg.Sender.TemplatesDir == "" {
		cfg.Sender.TemplatesDir = "templates"
	}
	if cfg.Sender.PaceInterval == 0 {
		cfg.Sender.PaceInterval = time.Second
	}
	if cfg.Reconcile.Attempts == 0 {
		cfg.Reconcile.Attempts = 10
	}
	if cfg.Reconcile.Delay == 0 {
		cfg.Reconcile.Delay = 2 * time.Second
	}
	if cfg.Reconcile.PageSize == 0 {
		cfg.Reconcile.PageSize = 250
	}
	if cfg.Cluster.Attempts == 0 {
		cfg.Cluster.Attempts = 15
	}
	if cfg.Cluster.Delay == 0 {
		cfg.Cluster.Delay = 2 * time.Second
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = "fd-objects"
	}
	if cfg.Index.Workers == 0 {
		cfg.Index.Workers = 4
	}
	if cfg.Index.ClusterThreshold == 0 {
		cfg.Index.ClusterThreshold = 0.02
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FD_BACKEND_URL"); v != "" {
		cfg.Backend.URL = v
	}
	if v := os.Getenv("FD_BACKEND_TOKEN"); v != "" {
		cfg.Backend.Token = v
	}
	if v := os.Getenv("FD_SENDER_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sender.Workers = n
		}
	}
	if v := os.Getenv("FD_DEFAULT_CAMERA"); v != "" {
		cfg.Sender.DefaultCamera = v
	}
	if v := os.Getenv("FD_TEMPLATES_DIR"); v != "" {
		cfg.Sender.TemplatesDir = v
	}
	if v := os.Getenv("FD_TEMPLATES_BUCKET"); v != "" {
		cfg.Sender.TemplatesBucket = v
	}
	if v := os.Getenv("FD_RECONCILE_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Reconcile.PageSize = n
		}
	}
	if v := os.Getenv("FD_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("FD_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("FD_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("FD_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("FD_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("FD_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("FD_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("FD_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("FD_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("FD_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("FD_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("FD_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("FD_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
