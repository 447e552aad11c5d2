package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

const (
	QueueBackendSQS   = "sqs"
	QueueBackendRedis = "redis"
)

// Config holds all application configuration.
type Config struct {
	LogLevel           string        `env:"LOG_LEVEL" envDefault:"info"`
	PostgresURL        string        `env:"POSTGRES_URL,required,notEmpty"`
	PIIRedactionFields string        `env:"PII_REDACTION_FIELDS" envDefault:"password,token,secret,credit_card,ssn"`
	ShutdownTimeout    time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	API     APIConfig     `envPrefix:"API_"`
	Queue   QueueConfig   `envPrefix:"QUEUE_"`
	Worker  WorkerConfig  `envPrefix:"WORKER_"`
	Search  SearchConfig  `envPrefix:"SEARCH_"`
	AWS     AWSConfig     `envPrefix:"AWS_"`
	WAL     WALConfig     `envPrefix:"WAL_"`
	Archive ArchiveConfig `envPrefix:"ARCHIVE_"`
}

// APIConfig configures the HTTP API and the admin/metrics server.
type APIConfig struct {
	ServerAddr     string        `env:"SERVER_ADDR" envDefault:":8080"`
	AdminAddr      string        `env:"ADMIN_ADDR" envDefault:":9091"`
	MaxBodyBytes   int64         `env:"MAX_BODY_BYTES" envDefault:"1048576"` // 1MB
	RateLimitRPS   float64       `env:"RATE_LIMIT_RPS" envDefault:"100"`
	RateLimitBurst int           `env:"RATE_LIMIT_BURST" envDefault:"200"`
	TenantCacheTTL time.Duration `env:"TENANT_CACHE_TTL" envDefault:"5m"`
}

// QueueConfig selects and addresses the task queue.
type QueueConfig struct {
	Backend string `env:"BACKEND" envDefault:"sqs"`
	Name    string `env:"NAME" envDefault:"audit-log-queue"`
	// DeadLetterURL is the SQS queue URL (or Redis stream key) receiving
	// exhausted tasks. Empty disables dead-lettering.
	DeadLetterURL string `env:"DEAD_LETTER_URL"`
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"redis://localhost:6379/0"`
	RedisGroup    string `env:"REDIS_GROUP" envDefault:"audit-workers"`
}

// WorkerConfig tunes the consumer loop.
type WorkerConfig struct {
	MaxMessages       int32         `env:"MAX_MESSAGES" envDefault:"10"`
	WaitTime          time.Duration `env:"WAIT_TIME" envDefault:"20s"`
	VisibilityTimeout time.Duration `env:"VISIBILITY_TIMEOUT" envDefault:"30s"`
	HandlerTimeout    time.Duration `env:"HANDLER_TIMEOUT" envDefault:"20s"`
	MaxRetries        int           `env:"MAX_RETRIES" envDefault:"3"`
	RetryDelay        time.Duration `env:"RETRY_DELAY" envDefault:"0s"`
	ErrorBackoff      time.Duration `env:"ERROR_BACKOFF" envDefault:"1s"`
	MaxErrorBackoff   time.Duration `env:"MAX_ERROR_BACKOFF" envDefault:"30s"`
	MetricsAddr       string        `env:"METRICS_ADDR" envDefault:":9092"`
}

// SearchConfig addresses the search engine.
type SearchConfig struct {
	URL              string        `env:"URL" envDefault:"http://localhost:9200"`
	Index            string        `env:"INDEX" envDefault:"audit_logs"`
	Timeout          time.Duration `env:"TIMEOUT" envDefault:"30s"`
	BreakerThreshold uint32        `env:"BREAKER_THRESHOLD" envDefault:"5"`
	BreakerCooldown  time.Duration `env:"BREAKER_COOLDOWN" envDefault:"30s"`
}

// AWSConfig is shared by the SQS queue backend and the S3 archive store.
type AWSConfig struct {
	Region          string `env:"REGION" envDefault:"ap-northeast-1"`
	EndpointURL     string `env:"ENDPOINT_URL"`
	AccessKeyID     string `env:"ACCESS_KEY_ID"`
	SecretAccessKey string `env:"SECRET_ACCESS_KEY"`
}

// WALConfig configures the local spill log for envelopes that could not be enqueued.
type WALConfig struct {
	Path              string        `env:"PATH"`
	SegmentSize       int64         `env:"SEGMENT_SIZE_BYTES" envDefault:"104857600"` // 100MB
	MaxDiskSize       int64         `env:"MAX_DISK_SIZE_BYTES" envDefault:"1073741824"` // 1GB
	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL" envDefault:"30s"`
}

// ArchiveConfig configures ARCHIVE_LOG output. An empty bucket disables archiving.
type ArchiveConfig struct {
	Bucket       string `env:"BUCKET"`
	Prefix       string `env:"PREFIX" envDefault:"audit-logs"`
	UsePathStyle bool   `env:"USE_PATH_STYLE" envDefault:"false"`
	PageSize     int    `env:"PAGE_SIZE" envDefault:"1000"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Attempt to load .env file for local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects combinations the worker cannot run with safely.
func (c *Config) Validate() error {
	var errs []error

	switch c.Queue.Backend {
	case QueueBackendSQS:
		if c.Worker.MaxMessages < 1 || c.Worker.MaxMessages > 10 {
			errs = append(errs, fmt.Errorf("WORKER_MAX_MESSAGES must be between 1 and 10 for sqs, got %d", c.Worker.MaxMessages))
		}
	case QueueBackendRedis:
		if c.Worker.MaxMessages < 1 {
			errs = append(errs, fmt.Errorf("WORKER_MAX_MESSAGES must be positive, got %d", c.Worker.MaxMessages))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown QUEUE_BACKEND %q", c.Queue.Backend))
	}

	if c.Queue.Name == "" {
		errs = append(errs, errors.New("QUEUE_NAME is required"))
	}
	if c.Worker.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("WORKER_MAX_RETRIES must be at least 1, got %d", c.Worker.MaxRetries))
	}
	if c.Worker.VisibilityTimeout <= c.Worker.HandlerTimeout {
		errs = append(errs, fmt.Errorf("WORKER_VISIBILITY_TIMEOUT (%s) must exceed WORKER_HANDLER_TIMEOUT (%s)",
			c.Worker.VisibilityTimeout, c.Worker.HandlerTimeout))
	}
	if c.Worker.WaitTime < 0 || c.Worker.WaitTime > 20*time.Second {
		errs = append(errs, fmt.Errorf("WORKER_WAIT_TIME must be within 0s..20s, got %s", c.Worker.WaitTime))
	}
	if c.Search.Index == "" {
		errs = append(errs, errors.New("SEARCH_INDEX is required"))
	}

	return errors.Join(errs...)
}
