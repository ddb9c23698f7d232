// Package cache persists the last known task collection per owner so the
// store can show something when the remote repository is unreachable.
//
// An entry is the whole collection, overwritten on every write. Entries do
// not expire.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/steveyegge/tasksync/internal/types"
)

// Entry is one owner's cached collection.
type Entry struct {
	Tasks     []types.Task `json:"tasks"`
	WrittenAt time.Time    `json:"written_at"`
}

// Cache is the local persisted cache contract.
type Cache interface {
	// ReadCollection returns the entry for owner. ok is false when nothing
	// has been written for owner yet.
	ReadCollection(ctx context.Context, owner string) (entry Entry, ok bool, err error)

	// WriteCollection replaces the entry for owner with tasks.
	WriteCollection(ctx context.Context, owner string, tasks []types.Task) error

	// Close releases backend resources.
	Close() error
}

func newEntry(tasks []types.Task) Entry {
	if tasks == nil {
		tasks = []types.Task{}
	}
	return Entry{
		Tasks:     types.CloneTasks(tasks),
		WrittenAt: time.Now().UTC().Truncate(time.Microsecond),
	}
}

func encodeEntry(e Entry) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	return data, nil
}

func decodeEntry(data []byte) (Entry, error) {
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, fmt.Errorf("failed to unmarshal cache entry: %w", err)
	}
	if e.Tasks == nil {
		e.Tasks = []types.Task{}
	}
	return e, nil
}
