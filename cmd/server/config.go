package main

import (
	"github.com/spongetheory/marketplace/access"
	"github.com/spongetheory/marketplace/billing"
	"github.com/spongetheory/marketplace/identity"
	"github.com/spongetheory/marketplace/jobs"
	"github.com/spongetheory/marketplace/pkg/config"
	"github.com/spongetheory/marketplace/pkg/httpserver"
	"github.com/spongetheory/marketplace/pkg/logger"
	"github.com/spongetheory/marketplace/pkg/pg"
	"github.com/spongetheory/marketplace/pkg/redis"
)

const (
	driverMemory   = "memory"
	driverPostgres = "postgres"
	driverRedis    = "redis"
)

type appConfig struct {
	Env         string `env:"APP_ENV" envDefault:"development"`
	Name        string `env:"APP_NAME" envDefault:"marketplace"`
	StoreDriver string `env:"STORE_DRIVER" envDefault:"memory"`
	NonceDriver string `env:"NONCE_STORE" envDefault:"memory"`
	NonceCache  int    `env:"NONCE_CACHE_SIZE" envDefault:"100000"`
}

func (c appConfig) production() bool {
	return c.Env == logger.EnvProduction || c.Env == "prod"
}

// settings groups every Config the server reads. Postgres and Redis
// settings are loaded only when selected, since their URLs are required.
type settings struct {
	app      appConfig
	http     httpserver.Config
	billing  billing.Config
	stripe   billing.StripeConfig
	paddle   billing.PaddleConfig
	identity identity.Config
	access   access.Config
	jobs     jobs.Config
	pg       pg.Config
	redis    redis.Config
}

func loadSettings() (settings, error) {
	var (
		s   settings
		err error
	)
	if s.app, err = config.Load[appConfig](); err != nil {
		return s, err
	}
	if s.http, err = config.Load[httpserver.Config](); err != nil {
		return s, err
	}
	if s.billing, err = config.Load[billing.Config](); err != nil {
		return s, err
	}
	if s.stripe, err = config.Load[billing.StripeConfig](); err != nil {
		return s, err
	}
	if s.paddle, err = config.Load[billing.PaddleConfig](); err != nil {
		return s, err
	}
	if s.identity, err = config.Load[identity.Config](); err != nil {
		return s, err
	}
	if s.access, err = config.Load[access.Config](); err != nil {
		return s, err
	}
	if s.jobs, err = config.Load[jobs.Config](); err != nil {
		return s, err
	}
	if s.app.StoreDriver == driverPostgres {
		if s.pg, err = config.Load[pg.Config](); err != nil {
			return s, err
		}
	}
	if s.app.NonceDriver == driverRedis {
		if s.redis, err = config.Load[redis.Config](); err != nil {
			return s, err
		}
	}
	return s, nil
}
