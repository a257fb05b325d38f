// Package config loads typed configuration from the process environment.
//
// A .env file in the working directory, when present, is loaded once before
// the first parse; real environment variables always win over it. Every
// package declares its own Config struct with `env` and `envDefault` tags and
// the binary composes them:
//
//	type App struct {
//		HTTP httpserver.Config
//		PG   pg.Config
//	}
//
//	cfg, err := config.Load[App]()
package config
