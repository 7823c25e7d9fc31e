package config

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`
	APIPort     int    `env:"API_PORT,default=8080"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT,default=587"`
	SMTPFrom     string `env:"SMTP_FROM"`
	SMTPPassword string `env:"SMTP_PASSWORD"`

	PushGatewayURL string `env:"PUSH_GATEWAY_URL"`

	RateLimitPerSec   int `env:"RATE_LIMIT_PER_SEC,default=100"`
	DispatchBatchSize int `env:"DISPATCH_BATCH_SIZE,default=100"`
	DispatchParallel  int `env:"DISPATCH_PARALLELISM,default=16"`
	DefaultMaxRetries int `env:"DEFAULT_MAX_RETRIES,default=3"`

	PromoteInterval time.Duration `env:"PROMOTE_INTERVAL,default=10m"`
	PendingInterval time.Duration `env:"PENDING_INTERVAL,default=5m"`
	RetryInterval   time.Duration `env:"RETRY_INTERVAL,default=15m"`
	ExpireInterval  time.Duration `env:"EXPIRE_INTERVAL,default=1h"`
	PurgeInterval   time.Duration `env:"PURGE_INTERVAL,default=24h"`

	PromoteLookback time.Duration `env:"PROMOTE_LOOKBACK,default=10m"`
	PendingMaxAge   time.Duration `env:"PENDING_MAX_AGE,default=24h"`
	RetentionPeriod time.Duration `env:"RETENTION_PERIOD,default=720h"`
	BaseRetryDelay  time.Duration `env:"BASE_RETRY_DELAY,default=1m"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
