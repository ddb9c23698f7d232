package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/steveyegge/tasksync/internal/repository"
	"github.com/steveyegge/tasksync/internal/types"
)

// SQLite keeps one row per owner holding the JSON snapshot of the
// collection.
type SQLite struct {
	conn *sql.DB
}

// OpenSQLite opens (creating if needed) the cache database at path.
func OpenSQLite(path string) (*SQLite, error) {
	conn, err := repository.OpenSQLiteDB(path)
	if err != nil {
		return nil, err
	}

	c := &SQLite{conn: conn}
	if err := c.initSchema(context.Background()); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

func (c *SQLite) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS task_cache (
		owner_id TEXT PRIMARY KEY,
		snapshot TEXT NOT NULL,
		written_at TEXT NOT NULL
	);
	`
	if _, err := c.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize cache schema: %w", err)
	}
	return nil
}

// ReadCollection implements Cache.ReadCollection.
func (c *SQLite) ReadCollection(ctx context.Context, owner string) (Entry, bool, error) {
	var snapshot string
	err := c.conn.QueryRowContext(ctx,
		`SELECT snapshot FROM task_cache WHERE owner_id = ?`, owner).Scan(&snapshot)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("failed to read cache entry: %w", err)
	}

	e, err := decodeEntry([]byte(snapshot))
	if err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

// WriteCollection implements Cache.WriteCollection.
func (c *SQLite) WriteCollection(ctx context.Context, owner string, tasks []types.Task) error {
	e := newEntry(tasks)
	data, err := encodeEntry(e)
	if err != nil {
		return err
	}

	_, err = c.conn.ExecContext(ctx, `
	INSERT INTO task_cache (owner_id, snapshot, written_at) VALUES (?, ?, ?)
	ON CONFLICT(owner_id) DO UPDATE SET
		snapshot = excluded.snapshot,
		written_at = excluded.written_at
	`, owner, string(data), e.WrittenAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (c *SQLite) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	if err != nil {
		return fmt.Errorf("failed to close cache database: %w", err)
	}
	return nil
}
