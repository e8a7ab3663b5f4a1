package config

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Environment string `envconfig:"ENV" default:"development"`

	DBConnectionString string `envconfig:"DB_CONNECTION_STRING" required:"true"`

	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	// RedisPasswordSecretName, when set, overrides REDIS_PASSWORD with the
	// value fetched from Secret Manager at startup.
	RedisPasswordSecretName string `envconfig:"REDIS_PASSWORD_SECRET_NAME"`

	JWTSecret           string `envconfig:"JWT_SECRET"`
	JWTSecretSecretName string `envconfig:"JWT_SECRET_SECRET_NAME"`
	SessionIPSalt       string `envconfig:"SESSION_IP_SALT" default:"pixelpress"`

	S3URL       string `envconfig:"S3_URL" required:"true"`
	S3Bucket    string `envconfig:"S3_BUCKET" required:"true"`
	S3Region    string `envconfig:"S3_REGION" required:"true"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY" required:"true"`
	S3SecretKey string `envconfig:"S3_SECRET_KEY" required:"true"`

	GCPProjectID      string `envconfig:"GCP_PROJECT_ID"`
	LimitWarningTopic string `envconfig:"LIMIT_WARNING_TOPIC" default:"limit_warnings"`

	// Encoder service settings
	EncoderBaseURL           string `envconfig:"ENCODER_BASE_URL" required:"true"`
	EncoderRequestTimeoutSec int    `envconfig:"ENCODER_REQUEST_TIMEOUT_SEC" default:"120"`

	// Result cache settings
	CacheLocalMaxEntries    int `envconfig:"CACHE_LOCAL_MAX_ENTRIES" default:"512"`
	CacheBaseTTLMin         int `envconfig:"CACHE_BASE_TTL_MIN" default:"60"`
	CacheInFlightTTLSec     int `envconfig:"CACHE_INFLIGHT_TTL_SEC" default:"120"`
	CacheJoinTimeoutSec     int `envconfig:"CACHE_JOIN_TIMEOUT_SEC" default:"30"`
	CacheSweepIntervalMin   int `envconfig:"CACHE_SWEEP_INTERVAL_MIN" default:"15"`
	CacheStaleThresholdHour int `envconfig:"CACHE_STALE_THRESHOLD_HOUR" default:"48"`

	// Conversion queue settings
	QueuePrefix           string `envconfig:"QUEUE_PREFIX" default:"convert"`
	QueuePollTimeoutSec   int    `envconfig:"QUEUE_POLL_TIMEOUT_SEC" default:"5"`
	QueuePollMaxMsg       int    `envconfig:"QUEUE_POLL_MAX_MSG" default:"1"`
	RawWorkerConcurrency  int    `envconfig:"RAW_WORKER_CONCURRENCY" default:"2"`
	StdWorkerConcurrency  int    `envconfig:"STD_WORKER_CONCURRENCY" default:"8"`
	BlobMaxRetries        int    `envconfig:"BLOB_MAX_RETRIES" default:"5"`
	BlobBackoffInitialSec int    `envconfig:"BLOB_BACKOFF_INITIAL_SEC" default:"1"`
	BlobBackoffMaxSec     int    `envconfig:"BLOB_BACKOFF_MAX_SEC" default:"60"`
	JobRetentionHours     int    `envconfig:"JOB_RETENTION_HOURS" default:"24"`
	JobSweepIntervalMin   int    `envconfig:"JOB_SWEEP_INTERVAL_MIN" default:"30"`

	// QuotaStrictEnforcement closes the check-then-record race by making
	// RecordOperation a conditional increment against the plan ceilings.
	// Off by default: the soft limit tolerates a small overshoot under
	// concurrent traffic in exchange for one fewer predicate per write.
	QuotaStrictEnforcement bool `envconfig:"QUOTA_STRICT_ENFORCEMENT" default:"false"`

	// Limit-warning dedup cache settings
	WarningDedupTTLHours   int `envconfig:"WARNING_DEDUP_TTL_HOURS" default:"24"`
	WarningDedupMaxEntries int `envconfig:"WARNING_DEDUP_MAX_ENTRIES" default:"4096"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
