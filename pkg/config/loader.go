package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var dotenvOnce sync.Once

// Load parses the environment into a new T. Nested structs are parsed
// recursively, so composed configs only need tags on the leaf fields.
func Load[T any](opts ...env.Options) (T, error) {
	dotenvOnce.Do(func() {
		_ = godotenv.Load()
	})

	var o env.Options
	if len(opts) > 0 {
		o = opts[0]
	}

	cfg, err := env.ParseAsWithOptions[T](o)
	if err != nil {
		var zero T
		return zero, errors.Join(ErrParsingConfig, err)
	}
	return cfg, nil
}

// MustLoad is Load that panics on error. Meant for main.
func MustLoad[T any](opts ...env.Options) T {
	cfg, err := Load[T](opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
	return cfg
}
