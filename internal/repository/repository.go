// Package repository provides the remote task repository: the per-owner
// source of truth the task store synchronizes against.
//
// Every backend scopes records by owner id. Timestamps are normalized to
// time.Time inside the backends; callers never see storage formats.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/steveyegge/tasksync/internal/types"
)

var (
	// ErrNotFound is returned when no task has the requested id.
	ErrNotFound = errors.New("task not found")
	// ErrOwnerMismatch is returned when the task belongs to another owner.
	ErrOwnerMismatch = errors.New("task belongs to a different owner")
	// ErrConflict is returned when Patch.IfVersion does not match the stored version.
	ErrConflict = errors.New("task was modified concurrently")
	// ErrUnavailable marks transport or service failures.
	ErrUnavailable = errors.New("task repository unavailable")
)

// Repository is the remote task store contract.
type Repository interface {
	// ListTasks returns every task owned by owner in creation order.
	ListTasks(ctx context.Context, owner string) ([]types.Task, error)

	// GetTask returns one task. Fails with ErrNotFound or ErrOwnerMismatch.
	GetTask(ctx context.Context, owner, id string) (types.Task, error)

	// CreateTask persists a new task. The repository assigns the id,
	// timestamps and version; Completed starts false.
	CreateTask(ctx context.Context, owner string, draft types.Draft) (types.Task, error)

	// UpdateTask applies patch and refreshes UpdatedAt. Fails with
	// ErrNotFound, ErrOwnerMismatch or ErrConflict.
	UpdateTask(ctx context.Context, owner, id string, patch types.Patch) (types.Task, error)

	// DeleteTask removes a task. Fails with ErrNotFound or ErrOwnerMismatch.
	DeleteTask(ctx context.Context, owner, id string) (bool, error)

	// Close releases backend resources.
	Close() error
}

// nextUpdatedAt returns a timestamp strictly after prev. Backends store
// microsecond precision at worst, so the bump is one microsecond.
func nextUpdatedAt(prev time.Time) time.Time {
	now := time.Now().UTC().Truncate(time.Microsecond)
	if !now.After(prev) {
		now = prev.Add(time.Microsecond)
	}
	return now
}

// newTimestamp returns the current time at the precision every backend keeps.
func newTimestamp() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// checkOwner returns ErrOwnerMismatch when t is not owned by owner.
func checkOwner(t types.Task, owner string) error {
	if t.OwnerID != owner {
		return ErrOwnerMismatch
	}
	return nil
}

// checkVersion enforces Patch.IfVersion.
func checkVersion(t types.Task, patch types.Patch) error {
	if patch.IfVersion != nil && *patch.IfVersion != t.Version {
		return ErrConflict
	}
	return nil
}

// applyUpdate applies patch to t and advances its timestamp and version.
func applyUpdate(t *types.Task, patch types.Patch) {
	patch.Apply(t)
	t.UpdatedAt = nextUpdatedAt(t.UpdatedAt)
	t.Version++
}
