package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/steveyegge/tasksync/internal/types"
)

// Postgres is a Repository backed by a PostgreSQL server through a pgx
// connection pool. Timestamps use timestamptz and are returned in UTC.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to dsn, verifies the connection and creates the
// schema if needed.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w: %v", ErrUnavailable, err)
	}

	r := &Postgres{pool: pool}
	if err := r.InitSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return r, nil
}

// InitSchema creates the tasks table if it doesn't exist. Idempotent.
func (r *Postgres) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		seq BIGSERIAL,
		id UUID PRIMARY KEY,
		owner_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		due_date TIMESTAMPTZ,
		completed BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		version BIGINT NOT NULL DEFAULT 1
	);
	CREATE INDEX IF NOT EXISTS idx_tasks_owner ON tasks(owner_id, seq);
	`
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Close closes the pool.
func (r *Postgres) Close() error {
	r.pool.Close()
	return nil
}

const pgTaskColumns = `id::text, owner_id, title, description, due_date, completed,
	created_at, updated_at, version`

// ListTasks implements Repository.ListTasks.
func (r *Postgres) ListTasks(ctx context.Context, owner string) ([]types.Task, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+pgTaskColumns+` FROM tasks WHERE owner_id = $1 ORDER BY seq ASC`, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	tasks := []types.Task{}
	for rows.Next() {
		t, err := scanPgTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w: %v", ErrUnavailable, err)
	}
	return tasks, nil
}

// GetTask implements Repository.GetTask.
func (r *Postgres) GetTask(ctx context.Context, owner, id string) (types.Task, error) {
	return r.getTask(ctx, r.pool, owner, id, false)
}

type pgQueryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *Postgres) getTask(ctx context.Context, q pgQueryRower, owner, id string, forUpdate bool) (types.Task, error) {
	if _, err := uuid.Parse(id); err != nil {
		return types.Task{}, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}

	query := `SELECT ` + pgTaskColumns + ` FROM tasks WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	t, err := scanPgTask(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
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
func (r *Postgres) CreateTask(ctx context.Context, owner string, draft types.Draft) (types.Task, error) {
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

	_, err := r.pool.Exec(ctx, `
	INSERT INTO tasks (id, owner_id, title, description, due_date, completed, created_at, updated_at, version)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		t.ID, t.OwnerID, t.Title, t.Description, t.DueDate, t.Completed,
		t.CreatedAt, t.UpdatedAt, t.Version,
	)
	if err != nil {
		return types.Task{}, fmt.Errorf("failed to create task: %w: %v", ErrUnavailable, err)
	}
	return t.Clone(), nil
}

// UpdateTask implements Repository.UpdateTask.
func (r *Postgres) UpdateTask(ctx context.Context, owner, id string, patch types.Patch) (types.Task, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return types.Task{}, fmt.Errorf("failed to begin transaction: %w: %v", ErrUnavailable, err)
	}
	defer tx.Rollback(ctx)

	t, err := r.getTask(ctx, tx, owner, id, true)
	if err != nil {
		return types.Task{}, err
	}
	if err := checkVersion(t, patch); err != nil {
		return types.Task{}, fmt.Errorf("task %s: %w", id, err)
	}

	applyUpdate(&t, patch)

	_, err = tx.Exec(ctx, `
	UPDATE tasks SET title = $1, description = $2, due_date = $3, completed = $4,
		updated_at = $5, version = $6
	WHERE id = $7`,
		t.Title, t.Description, t.DueDate, t.Completed, t.UpdatedAt, t.Version, id,
	)
	if err != nil {
		return types.Task{}, fmt.Errorf("failed to update task %s: %w: %v", id, ErrUnavailable, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return types.Task{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return t, nil
}

// DeleteTask implements Repository.DeleteTask.
func (r *Postgres) DeleteTask(ctx context.Context, owner, id string) (bool, error) {
	if _, err := r.getTask(ctx, r.pool, owner, id, false); err != nil {
		return false, err
	}

	tag, err := r.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1 AND owner_id = $2`, id, owner)
	if err != nil {
		return false, fmt.Errorf("failed to delete task %s: %w: %v", id, ErrUnavailable, err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanPgTask(row pgx.Row) (types.Task, error) {
	var t types.Task
	var due *time.Time

	err := row.Scan(
		&t.ID,
		&t.OwnerID,
		&t.Title,
		&t.Description,
		&due,
		&t.Completed,
		&t.CreatedAt,
		&t.UpdatedAt,
		&t.Version,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.Task{}, err
		}
		return types.Task{}, fmt.Errorf("failed to scan task: %w", err)
	}

	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	if due != nil {
		d := due.UTC()
		t.DueDate = &d
	}
	return t, nil
}
