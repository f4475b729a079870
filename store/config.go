// Package store persists tickets, active-ticket assignments, users,
// notifications and role definitions, with an in-memory implementation
// for tests and a Postgres-backed implementation for production.
package store

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the Postgres connection configuration, with a three-layer
// priority model: defaults, then environment variables, then functional
// options — matching the teacher's core.Config construction order.
type Config struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Option mutates a Config under construction.
type Option func(*Config) error

// DefaultConfig returns sensible local-development defaults.
func DefaultConfig() *Config {
	return &Config{
		Host:            "localhost",
		Port:            5432,
		User:            "tickets_user",
		Database:        "tickets",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}
}

// LoadFromEnv overlays TICKETS_DB_* environment variables onto c.
// Invalid numeric values are ignored, leaving the existing value in
// place.
func (c *Config) LoadFromEnv() {
	if v := os.Getenv("TICKETS_DB_HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv("TICKETS_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}
	if v := os.Getenv("TICKETS_DB_USER"); v != "" {
		c.User = v
	}
	if v := os.Getenv("TICKETS_DB_PASSWORD"); v != "" {
		c.Password = v
	}
	if v := os.Getenv("TICKETS_DB_NAME"); v != "" {
		c.Database = v
	}
	if v := os.Getenv("TICKETS_DB_SSL_MODE"); v != "" {
		c.SSLMode = v
	}
}

// WithHost sets the database host.
func WithHost(host string) Option {
	return func(c *Config) error { c.Host = host; return nil }
}

// WithPort sets the database port.
func WithPort(port int) Option {
	return func(c *Config) error {
		if port < 1 || port > 65535 {
			return fmt.Errorf("store: invalid port %d", port)
		}
		c.Port = port
		return nil
	}
}

// WithCredentials sets the database user and password.
func WithCredentials(user, password string) Option {
	return func(c *Config) error { c.User, c.Password = user, password; return nil }
}

// WithDatabase sets the database name.
func WithDatabase(database string) Option {
	return func(c *Config) error { c.Database = database; return nil }
}

// WithPoolLimits sets the connection pool bounds.
func WithPoolLimits(maxOpen, maxIdle int, maxLifetime time.Duration) Option {
	return func(c *Config) error {
		c.MaxOpenConns, c.MaxIdleConns, c.ConnMaxLifetime = maxOpen, maxIdle, maxLifetime
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
			return nil, fmt.Errorf("store: apply option: %w", err)
		}
	}
	return cfg, nil
}

// DSN renders c as a libpq connection string for pgx.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}
