package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/steveyegge/tasksync/internal/types"
)

// Memory is an in-process Repository. It keeps creation order and can be
// switched into an outage mode to exercise callers' failure paths.
type Memory struct {
	mu    sync.RWMutex
	tasks map[string]types.Task
	order []string

	down bool
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *Memory {
	return &Memory{tasks: map[string]types.Task{}}
}

// SetUnavailable toggles outage mode. While down, every call fails with
// ErrUnavailable.
func (r *Memory) SetUnavailable(down bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.down = down
}

func (r *Memory) unavailable(op string) error {
	if r.down {
		return fmt.Errorf("%s: %w", op, ErrUnavailable)
	}
	return nil
}

// ListTasks implements Repository.ListTasks.
func (r *Memory) ListTasks(ctx context.Context, owner string) ([]types.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := r.unavailable("list tasks"); err != nil {
		return nil, err
	}

	out := make([]types.Task, 0, len(r.order))
	for _, id := range r.order {
		t := r.tasks[id]
		if t.OwnerID == owner {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

// GetTask implements Repository.GetTask.
func (r *Memory) GetTask(ctx context.Context, owner, id string) (types.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := r.unavailable("get task"); err != nil {
		return types.Task{}, err
	}
	return r.lookup(owner, id)
}

func (r *Memory) lookup(owner, id string) (types.Task, error) {
	t, ok := r.tasks[id]
	if !ok {
		return types.Task{}, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err := checkOwner(t, owner); err != nil {
		return types.Task{}, fmt.Errorf("task %s: %w", id, err)
	}
	return t.Clone(), nil
}

// CreateTask implements Repository.CreateTask.
func (r *Memory) CreateTask(ctx context.Context, owner string, draft types.Draft) (types.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.unavailable("create task"); err != nil {
		return types.Task{}, err
	}

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
	t = t.Clone()

	r.tasks[t.ID] = t
	r.order = append(r.order, t.ID)
	return t.Clone(), nil
}

// UpdateTask implements Repository.UpdateTask.
func (r *Memory) UpdateTask(ctx context.Context, owner, id string, patch types.Patch) (types.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.unavailable("update task"); err != nil {
		return types.Task{}, err
	}

	t, err := r.lookup(owner, id)
	if err != nil {
		return types.Task{}, err
	}
	if err := checkVersion(t, patch); err != nil {
		return types.Task{}, fmt.Errorf("task %s: %w", id, err)
	}

	applyUpdate(&t, patch)
	r.tasks[id] = t
	return t.Clone(), nil
}

// DeleteTask implements Repository.DeleteTask.
func (r *Memory) DeleteTask(ctx context.Context, owner, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.unavailable("delete task"); err != nil {
		return false, err
	}

	if _, err := r.lookup(owner, id); err != nil {
		return false, err
	}

	delete(r.tasks, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true, nil
}

// Close implements Repository.Close.
func (r *Memory) Close() error {
	return nil
}
