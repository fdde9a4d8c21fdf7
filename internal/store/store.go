// Package store selects and constructs the persistence backend named by
// configuration: Postgres, SQLite, or (the default) the in-memory store.
package store

import (
	"context"
	"fmt"

	"github.com/flowloom/loom/internal/config"
	"github.com/flowloom/loom/internal/crypto"
	"github.com/flowloom/loom/internal/service"
	"github.com/flowloom/loom/internal/store/memory"
	"github.com/flowloom/loom/internal/store/postgres"
	"github.com/flowloom/loom/internal/store/sqlite3"
)

// Storer combines the workflow, user, and execution persistence
// interfaces with a Close method for shutdown.
type Storer interface {
	service.WorkflowStorer
	service.UserStorer
	service.ExecutionStorer
	Close()
}

// New constructs a Storer from cfg. At most one of cfg.Postgres and
// cfg.SQLite may be set; when neither is set, an in-memory store is used
// (data does not survive process restarts). When cryptoKey is non-empty,
// the returned Storer transparently encrypts credential-bearing node
// parameters (SendEmail's app_password) before they reach the backend and
// decrypts them on the way out.
func New(ctx context.Context, cfg config.Store, cryptoKey string) (Storer, error) {
	var (
		backend Storer
		err     error
	)

	switch {
	case cfg.Postgres != nil && cfg.SQLite != nil:
		return nil, fmt.Errorf("store: only one of postgres or sqlite may be configured")
	case cfg.Postgres != nil:
		backend, err = postgres.New(ctx, cfg.Postgres)
	case cfg.SQLite != nil:
		backend, err = sqlite3.New(ctx, cfg.SQLite)
	default:
		backend = memory.New()
	}
	if err != nil {
		return nil, err
	}

	if cryptoKey == "" {
		return backend, nil
	}

	key, err := crypto.DeriveKey(cryptoKey)
	if err != nil {
		return nil, fmt.Errorf("derive crypto key: %w", err)
	}

	return withEncryption(backend, key), nil
}
