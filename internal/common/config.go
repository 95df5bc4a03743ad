package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config is the top-level application configuration, loaded from TOML
// with environment-variable overrides for secrets.
type Config struct {
	Environment string         `toml:"environment" validate:"oneof=development production"`
	Server      ServerConfig   `toml:"server"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Queue       QueueConfig    `toml:"queue"`
	Storage     StorageConfig  `toml:"storage"`
	Fetcher     FetcherConfig  `toml:"fetcher"`
	Aggregation AggregationConfig `toml:"aggregation"`
	Anomaly     AnomalyConfig  `toml:"anomaly"`
	Logging     LoggingConfig  `toml:"logging"`
	LLM         LLMConfig      `toml:"llm"`
	Sites       []SiteConfig   `toml:"sites"`
}

// SiteConfig declares one monitored site's log formats, resolved into the
// JobRunner's site->format lookups at startup (spec §4.8 step 3: "select
// parser from site's log_format").
type SiteConfig struct {
	Name        string `toml:"name" validate:"required"`
	LogFormat   string `toml:"log_format"`       // nginx_combined | apache_combined
	ErrorFormat string `toml:"error_format"`      // python | javascript | java | http | apache | auto
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"min=1,max=65535"`
	Host string `toml:"host"`
}

// SchedulerConfig describes the fixed-cadence due-source tick (spec §4.7).
type SchedulerConfig struct {
	TickInterval string `toml:"tick_interval"` // not read: the scheduler always ticks every scheduler.TickInterval (60s)
}

// QueueConfig configures the goqite-backed TaskQueue.
type QueueConfig struct {
	DSN                string `toml:"dsn"`                 // shown in the startup banner only; the queue shares the job store's sqlite database
	QueueName          string `toml:"queue_name"`
	PollInterval       string `toml:"poll_interval"`        // e.g. "1s"
	VisibilityTimeout  string `toml:"visibility_timeout"`   // late-ack redelivery window
	MaxReceive         int    `toml:"max_receive" validate:"min=1"`
	Concurrency        int    `toml:"concurrency" validate:"min=1"`
}

type StorageConfig struct {
	SQLite SQLiteConfig `toml:"sqlite"`
	Object ObjectStoreConfig `toml:"object"`
}

type SQLiteConfig struct {
	Path string `toml:"path"`
}

// ObjectStoreConfig selects and configures the backing ObjectStore.
type ObjectStoreConfig struct {
	Provider  string `toml:"provider" validate:"oneof=s3 gcs"`
	Bucket    string `toml:"bucket" validate:"required"`
	Region    string `toml:"region"`
	Endpoint  string `toml:"endpoint"` // non-empty for S3-compatible endpoints
}

// FetcherConfig bounds the SFTP/object-store fetcher's network behavior.
type FetcherConfig struct {
	ConnectTimeout      string `toml:"connect_timeout"`       // SFTP connect, default 10s
	Retries             int    `toml:"retries" validate:"min=0"`
	RetryDelay          string `toml:"retry_delay"`           // linear backoff base
	KnownHostsFile      string `toml:"known_hosts_file"`
	InsecureIgnoreHostKey bool `toml:"insecure_ignore_host_key"`
}

// AggregationConfig bounds top-K list sizes.
type AggregationConfig struct {
	TopN int `toml:"top_n" validate:"min=1,max=10"`
}

// AnomalyConfig mirrors the AnomalyDetector's tunables (spec §4.4).
type AnomalyConfig struct {
	BaselineDays     int     `toml:"baseline_days" validate:"min=1"`
	MinBaselineHours int     `toml:"min_baseline_hours" validate:"min=1"`
	ZThreshold       float64 `toml:"z_threshold" validate:"min=0"`
	NewPathMinCount  int     `toml:"new_path_min_count" validate:"min=1"`
}

type LoggingConfig struct {
	Level      string   `toml:"level" validate:"oneof=debug info warn error"`
	Format     string   `toml:"format" validate:"oneof=text json"`
	Output     []string `toml:"output"`
	TimeFormat string   `toml:"time_format"`
}

// LLMConfig configures the optional error-group/anomaly explain feature.
type LLMConfig struct {
	Enabled   bool   `toml:"enabled"`
	APIKey    string `toml:"api_key"`
	Model     string `toml:"model"`
	Timeout   string `toml:"timeout"` // 60s per spec §5
}

// NewDefaultConfig returns a configuration with production-sane defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Scheduler: SchedulerConfig{
			TickInterval: "60s",
		},
		Queue: QueueConfig{
			DSN:               "./data/queue.db",
			QueueName:         "logsentinel_jobs",
			PollInterval:      "1s",
			VisibilityTimeout: "5m",
			MaxReceive:        3,
			Concurrency:       4,
		},
		Storage: StorageConfig{
			SQLite: SQLiteConfig{Path: "./data/logsentinel.db"},
			Object: ObjectStoreConfig{Provider: "s3"},
		},
		Fetcher: FetcherConfig{
			ConnectTimeout: "10s",
			Retries:        2,
			RetryDelay:     "2s",
		},
		Aggregation: AggregationConfig{TopN: 10},
		Anomaly: AnomalyConfig{
			BaselineDays:     7,
			MinBaselineHours: 24,
			ZThreshold:       3.0,
			NewPathMinCount:  20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout", "file"},
		},
		LLM: LLMConfig{
			Enabled: false,
			Model:   "claude-haiku-3-5-20241022",
			Timeout: "60s",
		},
	}
}

var validate = validator.New()

// LoadFromFile loads configuration with priority: defaults -> file -> env.
// path == "" loads defaults with env overrides only.
func LoadFromFile(path string) (*Config, error) {
	config := NewDefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func applyEnvOverrides(config *Config) {
	if env := os.Getenv("LOGSENTINEL_ENV"); env != "" {
		config.Environment = env
	}
	if port := os.Getenv("LOGSENTINEL_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if level := os.Getenv("LOGSENTINEL_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		config.LLM.APIKey = apiKey
	}
	if dsn := os.Getenv("LOGSENTINEL_QUEUE_DSN"); dsn != "" {
		config.Queue.DSN = dsn
	}
	if dbPath := os.Getenv("LOGSENTINEL_DB_PATH"); dbPath != "" {
		config.Storage.SQLite.Path = dbPath
	}
	if bucket := os.Getenv("LOGSENTINEL_OBJECT_BUCKET"); bucket != "" {
		config.Storage.Object.Bucket = bucket
	}
}

// IsProduction returns true if the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// ParseDuration parses a config duration string, falling back to a
// provided default when the string is empty or invalid.
func ParseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
