package keys

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // registers "sqlite3" (cgo)
	_ "modernc.org/sqlite"          // registers "sqlite" (pure Go)
)

// SQLStoreConfig configures the SQL key store.
type SQLStoreConfig struct {
	// Path is the database file path.
	Path string

	// Driver is the database/sql driver name: "sqlite" or "sqlite3".
	// Default: "sqlite"
	Driver string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// SQLStore keeps records in a SQLite database.
//
// The api_keys table holds one row per record, including usage counters, so
// a restart does not reset them. key_store_meta.updated_at is bumped on every
// Save and serves as the store's modification time.
type SQLStore struct {
	db        *sql.DB
	driver    string
	path      string
	logger    *slog.Logger
	closeOnce sync.Once
}

// NewSQLStore opens (and if needed creates) the key database.
func NewSQLStore(cfg SQLStoreConfig) (*SQLStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.Driver == "" {
		cfg.Driver = "sqlite"
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	var dsn string
	switch cfg.Driver {
	case "sqlite":
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)",
			cfg.Path, cfg.BusyTimeout.Milliseconds())
	case "sqlite3":
		dsn = fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=%d",
			cfg.Path, cfg.BusyTimeout.Milliseconds())
	default:
		return nil, fmt.Errorf("unsupported sqlite driver %q", cfg.Driver)
	}

	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLStore{
		db:     db,
		driver: cfg.Driver,
		path:   cfg.Path,
		logger: slog.Default().With("component", "keys.sql", "driver", cfg.Driver),
	}

	if err := s.initSchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// initSchema creates the database schema if it doesn't exist.
func (s *SQLStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS api_keys (
		secret TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		usage_count INTEGER NOT NULL DEFAULT 0,
		last_used INTEGER NOT NULL DEFAULT 0,
		is_active INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS key_store_meta (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		updated_at INTEGER NOT NULL
	);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Name returns "sqlite".
func (s *SQLStore) Name() string {
	return "sqlite"
}

// Load returns every row of api_keys.
func (s *SQLStore) Load(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT secret, name, description, created_at, usage_count, last_used, is_active
		FROM api_keys
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query api keys: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			r         Record
			createdAt int64
			lastUsed  int64
			active    int
		)
		if err := rows.Scan(&r.Secret, &r.Name, &r.Description, &createdAt, &r.UsageCount, &lastUsed, &active); err != nil {
			return nil, fmt.Errorf("failed to scan api key: %w", err)
		}
		r.CreatedAt = time.Unix(0, createdAt)
		if lastUsed != 0 {
			r.LastUsed = time.Unix(0, lastUsed)
		}
		r.Active = active != 0
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate api keys: %w", err)
	}

	return records, nil
}

// Save replaces the table contents in a single transaction.
func (s *SQLStore) Save(ctx context.Context, records []Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM api_keys`); err != nil {
		return fmt.Errorf("failed to clear api keys: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO api_keys (secret, name, description, created_at, usage_count, last_used, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		var lastUsed int64
		if !r.LastUsed.IsZero() {
			lastUsed = r.LastUsed.UnixNano()
		}
		active := 0
		if r.Active {
			active = 1
		}
		if _, err := stmt.ExecContext(ctx, r.Secret, r.Name, r.Description,
			r.CreatedAt.UnixNano(), r.UsageCount, lastUsed, active); err != nil {
			return fmt.Errorf("failed to insert api key %q: %w", r.Name, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO key_store_meta (id, updated_at) VALUES (1, ?)
		ON CONFLICT (id) DO UPDATE SET updated_at = excluded.updated_at
	`, time.Now().UnixNano()); err != nil {
		return fmt.Errorf("failed to update store metadata: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit api keys: %w", err)
	}

	s.logger.DebugContext(ctx, "api keys written", "records", len(records))
	return nil
}

// ModTime returns key_store_meta.updated_at, or the zero time before the
// first Save.
func (s *SQLStore) ModTime(ctx context.Context) (time.Time, error) {
	var updatedAt int64
	err := s.db.QueryRowContext(ctx, `SELECT updated_at FROM key_store_meta WHERE id = 1`).Scan(&updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("failed to read store metadata: %w", err)
	}
	return time.Unix(0, updatedAt), nil
}

// Close closes the database.
func (s *SQLStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.db.Close()
	})
	return err
}
