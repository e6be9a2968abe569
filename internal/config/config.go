package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	APIAddr string `env:"API_ADDR" envDefault:":8080"`
	Debug   bool   `env:"DEBUG" envDefault:"false"`
	LogJSON bool   `env:"LOG_JSON" envDefault:"true"`

	PostgresDSN   string `env:"POSTGRES_DSN"`
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	// Repository selects the assessment store implementation. The in-memory
	// variant is a first-class implementation, not an error fallback.
	Repository string `env:"REPOSITORY" envDefault:"postgres"`

	Bucket string `env:"S3_BUCKET"`

	WorkerCount       int   `env:"WORKER_COUNT" envDefault:"1"`
	MaxRetries        int64 `env:"WORKER_MAX_RETRIES" envDefault:"5"`
	ClaimIdleMS       int   `env:"WORKER_CLAIM_IDLE_MS" envDefault:"30000"`
	ReadBlockMS       int   `env:"WORKER_READ_BLOCK_MS" envDefault:"5000"`
	CacheTTLSec       int   `env:"CACHE_TTL_SEC" envDefault:"86400"`
	DeterministicSeed int64 `env:"DETERMINISTIC_SEED" envDefault:"42"`

	// StageAdapter is resolved once at startup: "local" or "http".
	StageAdapter         string  `env:"STAGE_ADAPTER" envDefault:"local"`
	AdapterAllowFallback bool    `env:"ADAPTER_ALLOW_FALLBACK" envDefault:"true"`
	AdapterHTTPURL       string  `env:"ADAPTER_HTTP_URL"`
	AdapterTimeoutSec    int     `env:"ADAPTER_TIMEOUT_SEC" envDefault:"20"`
	AdapterMaxRetries    int     `env:"ADAPTER_MAX_RETRIES" envDefault:"2"`
	AdapterBackoffMS     int     `env:"ADAPTER_BACKOFF_MS" envDefault:"250"`
	AdapterBackoffMult   float64 `env:"ADAPTER_BACKOFF_MULT" envDefault:"2"`
}

func Load() Config {
	var c Config
	if err := env.Parse(&c); err != nil {
		log.Fatal(err)
	}
	return c
}

func (c Config) ClaimIdle() time.Duration { return time.Duration(c.ClaimIdleMS) * time.Millisecond }

func (c Config) ReadBlock() time.Duration { return time.Duration(c.ReadBlockMS) * time.Millisecond }

func (c Config) CacheTTL() time.Duration { return time.Duration(c.CacheTTLSec) * time.Second }

func (c Config) AdapterTimeout() time.Duration {
	return time.Duration(c.AdapterTimeoutSec) * time.Second
}

func (c Config) AdapterBackoff() time.Duration {
	return time.Duration(c.AdapterBackoffMS) * time.Millisecond
}
