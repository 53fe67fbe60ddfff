package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type envConfig struct {
	Port        string `env:"PORT" env-default:"8080"`
	Environment string `env:"ENVIRONMENT" env-default:"development"`

	DatabaseType string `env:"DATABASE_TYPE" env-default:"memory"`
	DatabaseURL  string `env:"DATABASE_URL" env-default:""`
	QueueType    string `env:"QUEUE_TYPE" env-default:""`

	StorageBackend string `env:"STORAGE_BACKEND" env-default:"memory"`
	FSBaseDir      string `env:"FS_BASE_DIR" env-default:"./data/blobs"`
	TempDir        string `env:"TEMP_DIR" env-default:"./data/tmp"`

	WorkerCount  int           `env:"WORKER_COUNT" env-default:"4"`
	MaxAttempts  int           `env:"JOB_MAX_ATTEMPTS" env-default:"3"`
	LeaseTimeout time.Duration `env:"JOB_LEASE_TIMEOUT" env-default:"30s"`
	RetryBackoff time.Duration `env:"JOB_RETRY_BACKOFF" env-default:"1s"`

	ReapInterval time.Duration `env:"REAP_INTERVAL" env-default:"1m"`
	TempTTL      time.Duration `env:"TEMP_TTL" env-default:"1h"`
	GracePeriod  time.Duration `env:"DELETE_GRACE_PERIOD" env-default:"0s"`
}

type s3EnvConfig struct {
	Region          string `env:"AWS_REGION" env-default:"us-east-1"`
	Bucket          string `env:"AWS_S3_BUCKET" env-default:""`
	AccessKeyID     string `env:"AWS_ACCESS_KEY_ID" env-default:""`
	SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" env-default:""`
	Endpoint        string `env:"AWS_S3_ENDPOINT" env-default:""`
	UsePathStyle    bool   `env:"AWS_S3_USE_PATH_STYLE" env-default:"false"`
	CreateBucket    bool   `env:"AWS_S3_CREATE_BUCKET" env-default:"false"`
}

// LoadServerConfig reads server configuration from the environment.
func LoadServerConfig() (*ServerConfig, error) {
	var env envConfig
	if err := cleanenv.ReadEnv(&env); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	var s3env s3EnvConfig
	if err := cleanenv.ReadEnv(&s3env); err != nil {
		return nil, fmt.Errorf("failed to read s3 environment: %w", err)
	}

	cfg := &ServerConfig{
		Port:           env.Port,
		Environment:    env.Environment,
		DatabaseType:   env.DatabaseType,
		DatabaseURL:    env.DatabaseURL,
		QueueType:      env.QueueType,
		StorageBackend: env.StorageBackend,
		FSBaseDir:      env.FSBaseDir,
		TempDir:        env.TempDir,
		WorkerCount:    env.WorkerCount,
		MaxAttempts:    env.MaxAttempts,
		LeaseTimeout:   env.LeaseTimeout,
		RetryBackoff:   env.RetryBackoff,
		ReapInterval:   env.ReapInterval,
		TempTTL:        env.TempTTL,
		GracePeriod:    env.GracePeriod,
		S3: S3Config{
			Region:          s3env.Region,
			Bucket:          s3env.Bucket,
			AccessKeyID:     s3env.AccessKeyID,
			SecretAccessKey: s3env.SecretAccessKey,
			Endpoint:        s3env.Endpoint,
			UsePathStyle:    s3env.UsePathStyle,
			CreateBucket:    s3env.CreateBucket,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
