package store

import (
	"time"

	"github.com/steveyegge/tasksync/internal/types"
)

// User-facing error messages recorded in State.Error.
const (
	MsgSyncFailed   = "Failed to sync tasks. Please try again."
	MsgCreateFailed = "Failed to create task. Please try again."
	MsgUpdateFailed = "Failed to update task. Please try again."
	MsgDeleteFailed = "Failed to delete task. Please try again."
	MsgToggleFailed = "Failed to update task status. Please try again."
	MsgSelectFailed = "Failed to load task. Please try again."
)

// Source tells where the current collection came from.
type Source int

const (
	// SourceNone means nothing has been loaded.
	SourceNone Source = iota
	// SourceCache means the collection was loaded from the local cache and
	// no sync has been attempted yet.
	SourceCache
	// SourceRemote means the collection reflects the remote repository.
	SourceRemote
	// SourceStale means the last sync failed and the collection is the
	// cached fallback.
	SourceStale
)

func (s Source) String() string {
	switch s {
	case SourceCache:
		return "cache"
	case SourceRemote:
		return "remote"
	case SourceStale:
		return "stale"
	default:
		return "none"
	}
}

// MarshalText renders the source by name, for JSON observers.
func (s Source) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// State is a point-in-time copy of the store's state.
type State struct {
	Tasks    []types.Task `json:"tasks"`
	Selected *types.Task  `json:"selected,omitempty"`
	Loading  bool         `json:"loading"`
	Error    string       `json:"error,omitempty"`

	Source Source `json:"source"`
	// LastSynced is when the collection was last confirmed by the remote
	// repository. Zero if never.
	LastSynced time.Time `json:"last_synced"`
}

// clone deep-copies the state so callers can't reach the store's slices.
func (st State) clone() State {
	st.Tasks = types.CloneTasks(st.Tasks)
	if st.Selected != nil {
		sel := st.Selected.Clone()
		st.Selected = &sel
	}
	return st
}

// Task returns the task with id from the snapshot.
func (st State) Task(id string) (types.Task, bool) {
	for _, t := range st.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return types.Task{}, false
}
