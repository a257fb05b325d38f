package httpserver

import (
	"log/slog"
	"time"
)

type Config struct {
	Addr            string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

type config struct {
	Config
	logger *slog.Logger
}

type Option func(*config)

// WithShutdownTimeout caps how long in-flight requests may run after the
// context is cancelled.
func WithShutdownTimeout(d time.Duration) Option {
	return func(c *config) { c.ShutdownTimeout = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewFromConfig creates a server from cfg. Zero fields fall back to the
// defaults of New; options are applied last.
func NewFromConfig(cfg Config, opts ...Option) *Server {
	c := &config{Config: cfg, logger: slog.New(slog.DiscardHandler)}
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	for _, opt := range opts {
		opt(c)
	}
	return &Server{cfg: c}
}
