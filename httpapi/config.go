// Package httpapi exposes TicketOrchestrator over HTTP: ticket create,
// update and listing, plus minimal role administration. Handlers are
// thin — decode, call the orchestrator, map errors to status codes,
// encode — with no business logic of their own.
package httpapi

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the HTTP server's listen/timeout configuration, with the
// same three-layer priority model as store.Config: defaults, then
// environment variables, then functional options.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Option mutates a Config under construction.
type Option func(*Config) error

// DefaultConfig returns sensible local-development defaults.
func DefaultConfig() *Config {
	return &Config{
		Addr:         ":8080",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// LoadFromEnv overlays TICKETS_HTTP_* environment variables onto c.
func (c *Config) LoadFromEnv() {
	if v := os.Getenv("TICKETS_HTTP_ADDR"); v != "" {
		c.Addr = v
	}
	if v := os.Getenv("TICKETS_HTTP_READ_TIMEOUT_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			c.ReadTimeout = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("TICKETS_HTTP_WRITE_TIMEOUT_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			c.WriteTimeout = time.Duration(secs) * time.Second
		}
	}
}

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(c *Config) error {
		if addr == "" {
			return fmt.Errorf("httpapi: addr must not be empty")
		}
		c.Addr = addr
		return nil
	}
}

// WithTimeouts sets the read/write/idle timeouts.
func WithTimeouts(read, write, idle time.Duration) Option {
	return func(c *Config) error {
		c.ReadTimeout, c.WriteTimeout, c.IdleTimeout = read, write, idle
		return nil
	}
}

// NewConfig builds a Config from defaults, then environment variables,
// then opts, in that priority order — options win.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()
	cfg.LoadFromEnv()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("httpapi: apply option: %w", err)
		}
	}
	return cfg, nil
}
