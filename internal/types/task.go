// Package types defines the domain entities shared by the task store and its
// collaborators.
package types

import (
	"fmt"
	"time"
)

// Task is a single to-do item owned by one identity.
//
// ID, OwnerID, CreatedAt, UpdatedAt and Version are assigned by the remote
// repository; the client never sets them.
type Task struct {
	// ===== Identification =====
	ID      string `json:"id" yaml:"id" toml:"id"`
	OwnerID string `json:"owner_id" yaml:"owner_id" toml:"owner_id"`

	// ===== Content =====
	Title       string `json:"title" yaml:"title" toml:"title"`
	Description string `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`

	// ===== Scheduling =====
	DueDate *time.Time `json:"due_date,omitempty" yaml:"due_date,omitempty" toml:"due_date,omitempty"` // nil means no due date

	// ===== State =====
	Completed bool `json:"completed" yaml:"completed" toml:"completed"`

	// ===== Timestamps =====
	CreatedAt time.Time `json:"created_at" yaml:"created_at" toml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at" toml:"updated_at"`

	// Version is incremented by the repository on every update.
	Version int64 `json:"version" yaml:"version" toml:"version"`
}

// Clone returns a deep copy of the task.
func (t Task) Clone() Task {
	if t.DueDate != nil {
		d := *t.DueDate
		t.DueDate = &d
	}
	return t
}

// Validate checks the fields a repository requires on a stored task.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("id is required")
	}
	if t.OwnerID == "" {
		return fmt.Errorf("owner_id is required")
	}
	if t.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	if t.UpdatedAt.IsZero() {
		return fmt.Errorf("updated_at is required")
	}
	return nil
}

// Draft is the client-supplied part of a new task.
type Draft struct {
	Title       string
	Description string
	DueDate     *time.Time
}

// Patch represents a partial update.
// nil pointer => "no change".
type Patch struct {
	Title       *string
	Description *string
	DueDate     *time.Time
	// ClearDueDate removes the due date; it wins over DueDate.
	ClearDueDate bool
	Completed    *bool

	// IfVersion makes the update conditional on the stored version.
	IfVersion *int64
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.DueDate == nil &&
		!p.ClearDueDate && p.Completed == nil
}

// Apply writes the patch fields onto t. Timestamps and version are left to
// the caller.
func (p Patch) Apply(t *Task) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	switch {
	case p.ClearDueDate:
		t.DueDate = nil
	case p.DueDate != nil:
		d := *p.DueDate
		t.DueDate = &d
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
}

// Ptr returns a pointer to v. Handy for building patches.
func Ptr[T any](v T) *T {
	return &v
}

// CloneTasks deep-copies a task slice. A nil input yields an empty slice.
func CloneTasks(tasks []Task) []Task {
	out := make([]Task, len(tasks))
	for i, t := range tasks {
		out[i] = t.Clone()
	}
	return out
}
