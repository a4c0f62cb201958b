package keys

import (
	"context"
	"fmt"
	"time"

	"mercator-hq/relay/pkg/config"
)

// Store persists a collection of records.
//
// Load and Save move the whole collection; Save is a full rewrite. ModTime
// reports when the stored collection last changed and is what the registry
// compares against its last load to decide whether a reload is needed.
type Store interface {
	// Load returns every record in the store.
	Load(ctx context.Context) ([]Record, error)

	// Save replaces the stored collection with records.
	Save(ctx context.Context, records []Record) error

	// ModTime returns the time of the last change to the stored collection.
	// The zero time means the store has never been written.
	ModTime(ctx context.Context) (time.Time, error)

	// Name identifies the backend in logs ("file", "sqlite", "redis").
	Name() string

	// Close releases resources held by the store.
	Close() error
}

// OpenStore opens the store selected by cfg.Backend.
func OpenStore(ctx context.Context, cfg *config.KeysConfig) (Store, error) {
	switch cfg.Backend {
	case "", "file":
		return NewFileStore(cfg.File), nil
	case "sqlite":
		return NewSQLStore(SQLStoreConfig{
			Path:        cfg.SQLite.Path,
			Driver:      cfg.SQLite.Driver,
			BusyTimeout: cfg.SQLite.BusyTimeout,
		})
	case "redis":
		return NewRedisStore(ctx, RedisStoreConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
	default:
		return nil, fmt.Errorf("unknown key store backend %q", cfg.Backend)
	}
}
