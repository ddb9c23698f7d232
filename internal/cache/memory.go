package cache

import (
	"context"
	"sync"

	"github.com/steveyegge/tasksync/internal/types"
)

// Memory is a process-local Cache. Writes can be made to fail to exercise
// callers that must tolerate cache errors.
type Memory struct {
	mu      sync.Mutex
	entries map[string]Entry

	writeErr error
	readErr  error
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{entries: map[string]Entry{}}
}

// FailWrites makes every subsequent write return err. A nil err restores
// normal behaviour.
func (c *Memory) FailWrites(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}

// FailReads makes every subsequent read return err.
func (c *Memory) FailReads(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readErr = err
}

// ReadCollection implements Cache.ReadCollection.
func (c *Memory) ReadCollection(ctx context.Context, owner string) (Entry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.readErr != nil {
		return Entry{}, false, c.readErr
	}
	e, ok := c.entries[owner]
	if !ok {
		return Entry{}, false, nil
	}
	return Entry{Tasks: types.CloneTasks(e.Tasks), WrittenAt: e.WrittenAt}, true, nil
}

// WriteCollection implements Cache.WriteCollection.
func (c *Memory) WriteCollection(ctx context.Context, owner string, tasks []types.Task) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.writeErr != nil {
		return c.writeErr
	}
	c.entries[owner] = newEntry(tasks)
	return nil
}

// Close implements Cache.Close.
func (c *Memory) Close() error {
	return nil
}
