// Package config loads the process-wide configuration: server bind
// address, persistence backend, and JWT signing parameters. Loading is
// fail-fast — a missing required field aborts startup rather than
// falling back to a guessed default.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rakunlabs/chu"
	_ "github.com/rakunlabs/chu/loader/external/loaderconsul"
	_ "github.com/rakunlabs/chu/loader/external/loadervault"
	"github.com/rakunlabs/chu/loader/loaderenv"
	"github.com/rakunlabs/logi"
)

// Service identifies this process in logs, set by main() from its
// build-time name/version.
var Service = ""

// Config is the top-level struct-tagged configuration tree, populated by
// github.com/rakunlabs/chu from environment variables (prefix LOOM_) and,
// when a config path is given, a YAML file.
type Config struct {
	LogLevel string `cfg:"log_level,no_prefix" default:"info"`

	Server Server `cfg:"server"`
	Store  Store  `cfg:"store"`
	JWT    JWT    `cfg:"jwt"`
	Crypto Crypto `cfg:"crypto"`
}

// Crypto configures at-rest encryption of sensitive node parameters (e.g.
// SendEmail's app_password) before they reach the workflow store. Key is
// an arbitrary-length passphrase, stretched to an AES-256 key via
// crypto.DeriveKey; when empty, those parameters are stored in plaintext.
type Crypto struct {
	Key string `cfg:"key" log:"-"`
}

// Server configures the HTTP API's bind address.
type Server struct {
	Host string `cfg:"host"`
	Port string `cfg:"port" default:"8080"`
}

// JWT configures the auth collaborator's token minting/verification.
// Secret is required: there is no safe default for a signing key.
type JWT struct {
	Secret        string `cfg:"secret" log:"-"`
	Algorithm     string `cfg:"algorithm" default:"HS256"`
	ExpiryMinutes int    `cfg:"expiry_minutes" default:"60"`
}

// Store selects exactly one persistence backend. When neither Postgres
// nor SQLite is set, the process falls back to the in-memory store
// (internal/store/memory) — fine for development, not for production.
type Store struct {
	Postgres *StorePostgres `cfg:"postgres"`
	SQLite   *StoreSQLite   `cfg:"sqlite"`
}

type StorePostgres struct {
	TablePrefix     *string        `cfg:"table_prefix"`
	Datasource      string         `cfg:"datasource" log:"-"`
	Schema          string         `cfg:"schema"`
	ConnMaxLifetime *time.Duration `cfg:"conn_max_lifetime"`
	MaxIdleConns    *int           `cfg:"max_idle_conns"`
	MaxOpenConns    *int           `cfg:"max_open_conns"`

	Migrate Migrate `cfg:"migrate"`
}

type StoreSQLite struct {
	TablePrefix *string `cfg:"table_prefix"`
	Datasource  string  `cfg:"datasource" default:"loom.db"`

	Migrate Migrate `cfg:"migrate"`
}

type Migrate struct {
	Datasource string            `cfg:"datasource" log:"-"`
	Schema     string            `cfg:"schema"`
	Table      string            `cfg:"table"`
	Values     map[string]string `cfg:"values"`
}

// Load loads configuration for the named service from environment
// variables (prefix LOOM_) and, if path names a readable file, YAML.
// A missing JWT secret is a fail-fast error: there is no safe default.
func Load(ctx context.Context, path string) (*Config, error) {
	var cfg Config
	if err := chu.Load(ctx, path, &cfg, chu.WithLoaderOption(loaderenv.New(loaderenv.WithPrefix("LOOM_")))); err != nil {
		return nil, err
	}

	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt.secret is required")
	}

	if err := logi.SetLogLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("set log level %s: %w", cfg.LogLevel, err)
	}

	slog.Info("loaded configuration", "config", chu.MarshalMap(cfg))

	return &cfg, nil
}
