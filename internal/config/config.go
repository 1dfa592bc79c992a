package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type DBConfig struct {
	DSN               string        `envconfig:"DB_DSN" required:"true"`
	MaxConns          int32         `envconfig:"DB_POOL_MAX_CONNS" default:"20"`
	MinConns          int32         `envconfig:"DB_POOL_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_POOL_MAX_CONN_LIFETIME" default:"30m"`
	MaxConnIdleTime   time.Duration `envconfig:"DB_POOL_MAX_CONN_IDLE_TIME" default:"5m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_POOL_HEALTH_CHECK_PERIOD" default:"30s"`
}

type AWSConfig struct {
	Region             string `envconfig:"AWS_REGION" required:"true"`
	JobQueueURL        string `envconfig:"SQS_JOB_QUEUE_URL" required:"true"`
	EventQueueURL      string `envconfig:"SQS_EVENT_QUEUE_URL" required:"true"`
	JobQueueFIFO       bool   `envconfig:"SQS_JOB_QUEUE_FIFO" default:"false"`
	JobGroupBuckets    int    `envconfig:"SQS_JOB_GROUP_BUCKETS" default:"64"`
	LocalstackEndpoint string `envconfig:"LOCALSTACK_ENDPOINT"`
}

type RedisConfig struct {
	Addr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	Database int    `envconfig:"REDIS_DB" default:"0"`
}

// ExternalConfig holds base urls and protection settings for the outbound services.
type ExternalConfig struct {
	NotificationBaseURL string `envconfig:"NOTIFICATION_BASE_URL" required:"true"`
	DialogBaseURL       string `envconfig:"DIALOG_BASE_URL" required:"true"`
	LegacyBridgeBaseURL string `envconfig:"LEGACY_BRIDGE_BASE_URL" required:"true"`
	RegisterBaseURL     string `envconfig:"REGISTER_BASE_URL" required:"true"`
	APIKey              string `envconfig:"EXTERNAL_API_KEY"`

	HTTPTimeout     time.Duration `envconfig:"EXTERNAL_HTTP_TIMEOUT" default:"8s"`
	CallTimeout     time.Duration `envconfig:"EXTERNAL_CALL_TIMEOUT" default:"6s"`
	RPSPerPod       float64       `envconfig:"EXTERNAL_RPS_PER_POD" default:"20"`
	Burst           int           `envconfig:"EXTERNAL_BURST" default:"40"`
	BreakerFailures uint32        `envconfig:"EXTERNAL_BREAKER_FAILURES" default:"10"`
	BreakerOpenFor  time.Duration `envconfig:"EXTERNAL_BREAKER_OPEN_FOR" default:"20s"`
	PartyCacheTTL   time.Duration `envconfig:"PARTY_CACHE_TTL" default:"1h"`
}

// Shared blocks are embedded so their env keys stay unprefixed.

type APIConfig struct {
	Port      string `envconfig:"PORT" default:"8080"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	DBConfig
	AWSConfig
	RedisConfig
	ExternalConfig
	LockConfig

	ConfirmPatchTimeout time.Duration `envconfig:"CONFIRM_PATCH_TIMEOUT" default:"5s"`
}

type WorkerConfig struct {
	Port      string `envconfig:"PORT" default:"8080"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	DBConfig
	AWSConfig
	RedisConfig
	ExternalConfig
	LockConfig
	JobsConfig

	SQSWaitTime   int32 `envconfig:"SQS_WAIT_TIME" default:"20"`
	SQSMaxMsgs    int32 `envconfig:"SQS_MAX_MSGS" default:"10"`
	SQSVizTimeout int32 `envconfig:"SQS_VISIBILITY_TIMEOUT" default:"120"`

	WorkerConcurrency int `envconfig:"WORKER_CONCURRENCY" default:"20"`

	// Notification timing
	NotificationSendDelay time.Duration `envconfig:"NOTIFICATION_SEND_DELAY" default:"5m"`
	ReminderDelay         time.Duration `envconfig:"REMINDER_DELAY" default:"1h"`
	DeliveryCheckDelay    time.Duration `envconfig:"DELIVERY_CHECK_DELAY" default:"5m"`
	DeliveryCheckWindow   time.Duration `envconfig:"DELIVERY_CHECK_WINDOW" default:"24h"`
	DefaultLanguage       string        `envconfig:"DEFAULT_LANGUAGE" default:"nb"`
	ConfirmPatchTimeout   time.Duration `envconfig:"CONFIRM_PATCH_TIMEOUT" default:"5s"`

	// Public address of the api, used as the reminder condition callback.
	PublicBaseURL string `envconfig:"PUBLIC_BASE_URL"`
}

type LockConfig struct {
	Expiry     time.Duration `envconfig:"LOCK_EXPIRY" default:"30s"`
	Retries    int           `envconfig:"LOCK_RETRIES" default:"2"`
	RetryDelay time.Duration `envconfig:"LOCK_RETRY_DELAY" default:"100ms"`
}

type JobsConfig struct {
	PollInterval time.Duration `envconfig:"JOB_POLL_INTERVAL" default:"2s"`
	BatchSize    int           `envconfig:"JOB_BATCH_SIZE" default:"100"`
	MaxAttempts  int           `envconfig:"JOB_MAX_ATTEMPTS" default:"10"`
	StaleAfter   time.Duration `envconfig:"JOB_STALE_AFTER" default:"10m"`
}

func LoadAPI() APIConfig {
	var cfg APIConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}

func LoadWorker() WorkerConfig {
	var cfg WorkerConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}
