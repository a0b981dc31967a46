package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/jar-dashboard/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLite stores the state in a key-value table, one row per StorageKey.
type SQLite struct {
	db  *sql.DB
	log zerolog.Logger
	mu  sync.Mutex
}

// NewSQLite opens (or creates) the cache database at dbPath.
func NewSQLite(dbPath string, log zerolog.Logger) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	c := &SQLite{db: db, log: log}
	if err := c.ensureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *SQLite) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS kv (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updated_at TEXT NOT NULL
);
`
	if _, err := c.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create kv table: %w", err)
	}
	return nil
}

func (c *SQLite) Read() (domain.ApplicationState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var value string
	err := c.db.QueryRowContext(context.Background(), `SELECT value FROM kv WHERE key = ?`, StorageKey).Scan(&value)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			c.log.Warn().Err(err).Msg("Failed to read state cache")
		}
		return domain.ApplicationState{}, false
	}
	s, ok := decode([]byte(value))
	if !ok {
		c.log.Warn().Msg("Ignoring corrupt state cache")
	}
	return s, ok
}

func (c *SQLite) Write(state domain.ApplicationState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.Marshal(state)
	if err != nil {
		c.log.Warn().Err(err).Msg("Failed to encode state cache")
		return
	}
	const stmt = `
INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at;
`
	if _, err := c.db.ExecContext(context.Background(), stmt, StorageKey, string(data), time.Now().UTC().Format(time.RFC3339)); err != nil {
		c.log.Warn().Err(err).Msg("Failed to write state cache")
	}
}

// Close releases the database handle.
func (c *SQLite) Close() error {
	return c.db.Close()
}

var _ Cache = (*SQLite)(nil)
