package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/steveyegge/tasksync/internal/types"
)

// SQLite is a Repository backed by an embedded SQLite database in WAL mode.
//
// Timestamps are stored as RFC3339Nano text in UTC.
type SQLite struct {
	conn *sql.DB
	path string
}

// OpenSQLite opens (creating if needed) the database at path and
// initializes the schema.
//
// The caller MUST call Close() when done.
func OpenSQLite(path string) (*SQLite, error) {
	conn, err := openSQLiteConn(path)
	if err != nil {
		return nil, err
	}

	r := &SQLite{conn: conn, path: path}
	if err := r.InitSchema(context.Background()); err != nil {
		_ = r.Close()
		return nil, err
	}
	return r, nil
}

// openSQLiteConn opens a WAL-mode connection pool. Shared with the auth
// user table through OpenSQLiteDB.
func openSQLiteConn(path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	dsn := path
	if !strings.HasPrefix(dsn, "file:") {
		// Ensure parent directory exists
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = "file:" + path
	}

	// Every pooled connection gets the busy timeout, and transactions take
	// the write lock at BEGIN so read-then-write updates wait for each
	// other instead of failing with SQLITE_BUSY on lock upgrade.
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	dsn += sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)&_txlock=immediate"

	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	return conn, nil
}

// OpenSQLiteDB opens a raw WAL-mode SQLite pool at path. Other packages use
// it to keep their tables next to the task data with the same settings.
func OpenSQLiteDB(path string) (*sql.DB, error) {
	return openSQLiteConn(path)
}

// InitSchema creates the tasks table if it doesn't exist. Idempotent.
func (r *SQLite) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		due_date TEXT,
		completed INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_owner ON tasks(owner_id);
	`

	if _, err := r.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Close closes the database connection after a WAL checkpoint.
func (r *SQLite) Close() error {
	if r.conn == nil {
		return nil
	}

	if _, err := r.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := r.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	r.conn = nil
	return nil
}

const taskColumns = `id, owner_id, title, description, due_date, completed,
	created_at, updated_at, version`

// ListTasks implements Repository.ListTasks.
func (r *SQLite) ListTasks(ctx context.Context, owner string) ([]types.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE owner_id = ? ORDER BY rowid ASC`

	rows, err := r.conn.QueryContext(ctx, query, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	tasks := []types.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return tasks, nil
}

// GetTask implements Repository.GetTask.
func (r *SQLite) GetTask(ctx context.Context, owner, id string) (types.Task, error) {
	return getTask(ctx, r.conn, owner, id)
}

// queryRower is satisfied by *sql.DB and *sql.Tx.
type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getTask(ctx context.Context, q queryRower, owner, id string) (types.Task, error) {
	row := q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)

	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Task{}, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return types.Task{}, err
	}
	if err := checkOwner(t, owner); err != nil {
		return types.Task{}, fmt.Errorf("task %s: %w", id, err)
	}
	return t, nil
}

// CreateTask implements Repository.CreateTask.
func (r *SQLite) CreateTask(ctx context.Context, owner string, draft types.Draft) (types.Task, error) {
	now := newTimestamp()
	t := types.Task{
		ID:          uuid.NewString(),
		OwnerID:     owner,
		Title:       draft.Title,
		Description: draft.Description,
		DueDate:     draft.DueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     1,
	}

	query := `INSERT INTO tasks (` + taskColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.conn.ExecContext(ctx, query,
		t.ID,
		t.OwnerID,
		t.Title,
		t.Description,
		timeToNullString(t.DueDate),
		t.Completed,
		formatTime(t.CreatedAt),
		formatTime(t.UpdatedAt),
		t.Version,
	)
	if err != nil {
		return types.Task{}, fmt.Errorf("failed to create task: %w: %v", ErrUnavailable, err)
	}
	return t.Clone(), nil
}

// UpdateTask implements Repository.UpdateTask.
func (r *SQLite) UpdateTask(ctx context.Context, owner, id string, patch types.Patch) (types.Task, error) {
	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return types.Task{}, fmt.Errorf("failed to begin transaction: %w: %v", ErrUnavailable, err)
	}
	defer tx.Rollback()

	t, err := getTask(ctx, tx, owner, id)
	if err != nil {
		return types.Task{}, err
	}
	if err := checkVersion(t, patch); err != nil {
		return types.Task{}, fmt.Errorf("task %s: %w", id, err)
	}

	prevVersion := t.Version
	applyUpdate(&t, patch)

	query := `
	UPDATE tasks SET
		title = ?,
		description = ?,
		due_date = ?,
		completed = ?,
		updated_at = ?,
		version = ?
	WHERE id = ? AND version = ?
	`
	res, err := tx.ExecContext(ctx, query,
		t.Title,
		t.Description,
		timeToNullString(t.DueDate),
		t.Completed,
		formatTime(t.UpdatedAt),
		t.Version,
		id,
		prevVersion,
	)
	if err != nil {
		return types.Task{}, fmt.Errorf("failed to update task %s: %w: %v", id, ErrUnavailable, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return types.Task{}, fmt.Errorf("task %s: %w", id, ErrConflict)
	}

	if err := tx.Commit(); err != nil {
		return types.Task{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return t, nil
}

// DeleteTask implements Repository.DeleteTask.
func (r *SQLite) DeleteTask(ctx context.Context, owner, id string) (bool, error) {
	if _, err := getTask(ctx, r.conn, owner, id); err != nil {
		return false, err
	}

	query := `DELETE FROM tasks WHERE id = ? AND owner_id = ?`
	if _, err := r.conn.ExecContext(ctx, query, id, owner); err != nil {
		return false, fmt.Errorf("failed to delete task %s: %w: %v", id, ErrUnavailable, err)
	}
	return true, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanTask reads one row in taskColumns order.
func scanTask(row rowScanner) (types.Task, error) {
	var t types.Task
	var createdAt, updatedAt string
	var dueDate sql.NullString

	err := row.Scan(
		&t.ID,
		&t.OwnerID,
		&t.Title,
		&t.Description,
		&dueDate,
		&t.Completed,
		&createdAt,
		&updatedAt,
		&t.Version,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Task{}, err
		}
		return types.Task{}, fmt.Errorf("failed to scan task: %w", err)
	}

	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return types.Task{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return types.Task{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	t.DueDate = nullStringToTime(dueDate)

	return t, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// timeToNullString converts a time pointer to a nullable string for SQL.
func timeToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

// nullStringToTime converts a nullable SQL string to a time pointer.
func nullStringToTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil
	}
	return &t
}
