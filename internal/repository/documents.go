package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/steveyegge/tasksync/internal/types"
)

// Documents is a Repository that stores one JSON document per task under
// root/<owner>/<id>.json. It suits a synced folder acting as the remote.
type Documents struct {
	root string
	mu   sync.Mutex

	// lastCreated keeps creation timestamps strictly increasing so that
	// ListTasks can order by CreatedAt.
	lastCreated time.Time
}

// OpenDocuments prepares root for use as a document store.
func OpenDocuments(root string) (*Documents, error) {
	if root == "" {
		return nil, fmt.Errorf("documents root is required")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create documents root: %w", err)
	}
	return &Documents{root: root}, nil
}

// validName rejects ids that would escape the root directory.
func validName(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\`)
}

func (r *Documents) path(owner, id string) string {
	return filepath.Join(r.root, owner, id+".json")
}

// readDocument reads and parses a task document.
func readDocument(path string) (types.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Task{}, err
	}

	var t types.Task
	if err := json.Unmarshal(data, &t); err != nil {
		return types.Task{}, fmt.Errorf("failed to parse task document %s: %w", path, err)
	}
	if err := t.Validate(); err != nil {
		return types.Task{}, fmt.Errorf("invalid task document %s: %w", path, err)
	}
	return t, nil
}

// writeDocument writes t as pretty-printed JSON, replacing any previous
// version atomically.
func (r *Documents) writeDocument(t types.Task) error {
	dir := filepath.Join(r.root, t.OwnerID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create owner directory: %w", err)
	}

	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal task %s: %w", t.ID, err)
	}

	tmp, err := os.CreateTemp(dir, ".task-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write task %s: %w", t.ID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write task %s: %w", t.ID, err)
	}
	if err := os.Rename(tmp.Name(), r.path(t.OwnerID, t.ID)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write task %s: %w", t.ID, err)
	}
	return nil
}

// ListTasks implements Repository.ListTasks.
func (r *Documents) ListTasks(ctx context.Context, owner string) ([]types.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !validName(owner) {
		return []types.Task{}, nil
	}

	entries, err := os.ReadDir(filepath.Join(r.root, owner))
	if err != nil {
		if os.IsNotExist(err) {
			return []types.Task{}, nil
		}
		return nil, fmt.Errorf("failed to read owner directory: %w: %v", ErrUnavailable, err)
	}

	tasks := []types.Task{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		t, err := readDocument(filepath.Join(r.root, owner, entry.Name()))
		if err != nil {
			// Log warning but continue processing other files
			fmt.Fprintf(os.Stderr, "Warning: skipping task document %s: %v\n", entry.Name(), err)
			continue
		}
		tasks = append(tasks, t)
	}

	sort.SliceStable(tasks, func(i, j int) bool {
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
		}
		return tasks[i].ID < tasks[j].ID
	})
	return tasks, nil
}

// GetTask implements Repository.GetTask.
func (r *Documents) GetTask(ctx context.Context, owner, id string) (types.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lookup(owner, id)
}

func (r *Documents) lookup(owner, id string) (types.Task, error) {
	if !validName(id) || !validName(owner) {
		return types.Task{}, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}

	t, err := readDocument(r.path(owner, id))
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return types.Task{}, fmt.Errorf("failed to read task %s: %w: %v", id, ErrUnavailable, err)
	}

	// Distinguish a missing task from one stored under another owner.
	matches, _ := filepath.Glob(filepath.Join(r.root, "*", id+".json"))
	if len(matches) > 0 {
		return types.Task{}, fmt.Errorf("task %s: %w", id, ErrOwnerMismatch)
	}
	return types.Task{}, fmt.Errorf("task %s: %w", id, ErrNotFound)
}

// CreateTask implements Repository.CreateTask.
func (r *Documents) CreateTask(ctx context.Context, owner string, draft types.Draft) (types.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !validName(owner) {
		return types.Task{}, fmt.Errorf("invalid owner id %q", owner)
	}

	now := nextUpdatedAt(r.lastCreated)
	r.lastCreated = now
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

	if err := r.writeDocument(t); err != nil {
		return types.Task{}, fmt.Errorf("failed to create task: %w: %v", ErrUnavailable, err)
	}
	return t, nil
}

// UpdateTask implements Repository.UpdateTask.
func (r *Documents) UpdateTask(ctx context.Context, owner, id string, patch types.Patch) (types.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, err := r.lookup(owner, id)
	if err != nil {
		return types.Task{}, err
	}
	if err := checkVersion(t, patch); err != nil {
		return types.Task{}, fmt.Errorf("task %s: %w", id, err)
	}

	applyUpdate(&t, patch)
	if err := r.writeDocument(t); err != nil {
		return types.Task{}, fmt.Errorf("failed to update task %s: %w: %v", id, ErrUnavailable, err)
	}
	return t, nil
}

// DeleteTask implements Repository.DeleteTask.
func (r *Documents) DeleteTask(ctx context.Context, owner, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.lookup(owner, id); err != nil {
		return false, err
	}
	if err := os.Remove(r.path(owner, id)); err != nil {
		return false, fmt.Errorf("failed to delete task %s: %w: %v", id, ErrUnavailable, err)
	}
	return true, nil
}

// Close implements Repository.Close.
func (r *Documents) Close() error {
	return nil
}
