package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/steveyegge/tasksync/internal/auth"
	"github.com/steveyegge/tasksync/internal/cache"
	"github.com/steveyegge/tasksync/internal/repository"
	"github.com/steveyegge/tasksync/internal/types"
)

var timeNow = func() time.Time { return time.Now().UTC() }

// Options wires a Store to its collaborators. Auth, Repository and Cache
// are required.
type Options struct {
	Auth       auth.Gateway
	Repository repository.Repository
	Cache      cache.Cache

	// Logger receives cache failures and sync diagnostics. Defaults to
	// stderr with a "[store] " prefix.
	Logger *log.Logger
}

// Store is the task synchronization store. It is safe for concurrent use.
type Store struct {
	auth   auth.Gateway
	repo   repository.Repository
	cache  cache.Cache
	logger *log.Logger

	mu        sync.Mutex
	state     State
	owner     string
	observers []observer
	nextObs   int
	closed    bool

	// cacheMu orders write-through so the last cache write carries the
	// latest collection.
	cacheMu sync.Mutex

	unsubscribe func()
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

type observer struct {
	id int
	fn func(State)
}

// New creates a store for the gateway's current identity, loading that
// identity's cached collection without touching the network. When an
// identity is present, New also starts a background Sync; Loading stays true
// until it finishes. Close waits for it.
func New(opts Options) (*Store, error) {
	if opts.Auth == nil {
		return nil, fmt.Errorf("auth gateway is required")
	}
	if opts.Repository == nil {
		return nil, fmt.Errorf("task repository is required")
	}
	if opts.Cache == nil {
		return nil, fmt.Errorf("task cache is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[store] ", log.LstdFlags)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		auth:   opts.Auth,
		repo:   opts.Repository,
		cache:  opts.Cache,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		state:  State{Tasks: []types.Task{}},
	}

	if id := opts.Auth.Current(); id != nil {
		s.owner = id.UserID
		s.state.Loading = true
		if entry, ok := s.readCache(ctx, id.UserID); ok {
			s.state.Tasks = entry.Tasks
			s.state.Source = SourceCache
			s.state.LastSynced = entry.WrittenAt
		}
	}

	signedIn := s.owner != ""
	s.unsubscribe = opts.Auth.Subscribe(s.onIdentityChange)

	if signedIn {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			_ = s.Sync(s.ctx)
		}()
	}
	return s, nil
}

// Close releases the identity subscription, waits for background syncs and
// drops observers. Safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.observers = nil
	s.mu.Unlock()

	s.unsubscribe()
	s.cancel()
	s.wg.Wait()
	return nil
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Subscribe registers fn to receive a snapshot after every state change.
// fn runs on the goroutine that made the change, without the store's lock.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers = append(s.observers, observer{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, o := range s.observers {
				if o.id == id {
					s.observers = append(s.observers[:i], s.observers[i+1:]...)
					break
				}
			}
		})
	}
}

// apply runs fn on the state under the lock, unless owner is non-empty and
// no longer the current identity. It returns what emit needs to notify
// observers; ok reports whether fn ran.
func (s *Store) apply(owner string, fn func(st *State)) (snap State, obs []observer, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if owner != "" && s.owner != owner {
		return State{}, nil, false
	}
	fn(&s.state)
	obs = make([]observer, len(s.observers))
	copy(obs, s.observers)
	return s.state.clone(), obs, true
}

// emit hands snap to every observer. Called without any store lock held.
func emit(snap State, obs []observer) {
	for _, o := range obs {
		o.fn(snap)
	}
}

// update applies fn to the state and notifies observers.
func (s *Store) update(fn func(st *State)) {
	snap, obs, _ := s.apply("", fn)
	emit(snap, obs)
}

// updateOwned is update, skipped when the identity changed away from owner
// while a call was in flight. Returns whether fn ran.
func (s *Store) updateOwned(owner string, fn func(st *State)) bool {
	snap, obs, ok := s.apply(owner, fn)
	if ok {
		emit(snap, obs)
	}
	return ok
}

func (s *Store) currentOwner() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner
}

// onIdentityChange is the gateway subscription callback.
func (s *Store) onIdentityChange(id *types.Identity) {
	if id == nil {
		s.update(func(st *State) {
			s.owner = ""
			*st = State{Tasks: []types.Task{}}
		})
		return
	}

	owner := id.UserID
	entry, cached := s.readCache(s.ctx, owner)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	switched := s.owner != owner
	s.owner = owner
	s.wg.Add(1)
	s.mu.Unlock()

	s.update(func(st *State) {
		if switched {
			*st = State{Tasks: []types.Task{}}
			if cached {
				st.Tasks = entry.Tasks
				st.Source = SourceCache
				st.LastSynced = entry.WrittenAt
			}
		}
		st.Loading = true
	})

	go func() {
		defer s.wg.Done()
		_ = s.Sync(s.ctx)
	}()
}

// verify returns the current owner after confirming the session is fresh.
func (s *Store) verify(ctx context.Context) (string, error) {
	owner := s.currentOwner()
	if owner == "" {
		return "", &auth.Error{
			Op:      auth.OpVerify,
			Message: auth.ErrNotAuthenticated.Error(),
			Err:     auth.ErrNotAuthenticated,
		}
	}
	if err := s.auth.VerifyFresh(ctx); err != nil {
		return "", err
	}
	return owner, nil
}

// Sync replaces the collection with the repository's tasks for the current
// owner and writes them through to the cache. On failure it records
// MsgSyncFailed and falls back to the cached collection; the failure is not
// returned. Sync returns an error only when ctx is done before it starts.
func (s *Store) Sync(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	owner := s.currentOwner()
	if owner == "" {
		s.update(func(st *State) { st.Loading = false })
		return nil
	}

	s.updateOwned(owner, func(st *State) {
		st.Loading = true
		st.Error = ""
	})

	tasks, err := s.fetch(ctx, owner)
	if err != nil {
		s.logger.Printf("Sync for %s failed: %v", owner, err)
		entry, cached := s.readCache(ctx, owner)
		s.updateOwned(owner, func(st *State) {
			st.Error = MsgSyncFailed
			st.Loading = false
			if cached {
				st.Tasks = entry.Tasks
				st.Source = SourceStale
				st.LastSynced = entry.WrittenAt
			}
		})
		return nil
	}

	s.writeThrough(ctx, owner, func(st *State) {
		st.Tasks = types.CloneTasks(tasks)
		st.Loading = false
		st.Source = SourceRemote
		st.LastSynced = timeNow()
	})
	return nil
}

func (s *Store) fetch(ctx context.Context, owner string) ([]types.Task, error) {
	if err := s.auth.VerifyFresh(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListTasks(ctx, owner)
}

// Create persists a new task and appends it to the collection. The title is
// not validated here.
func (s *Store) Create(ctx context.Context, draft types.Draft) (types.Task, error) {
	s.clearError()

	owner, err := s.verify(ctx)
	if err == nil {
		var t types.Task
		t, err = s.repo.CreateTask(ctx, owner, draft)
		if err == nil {
			s.writeThrough(ctx, owner, func(st *State) {
				st.Tasks = append(st.Tasks, t.Clone())
			})
			return t, nil
		}
	}

	s.setError(MsgCreateFailed)
	return types.Task{}, fmt.Errorf("failed to create task: %w", err)
}

// Update applies patch to task id and merges the result into the collection
// and the selection.
func (s *Store) Update(ctx context.Context, id string, patch types.Patch) (types.Task, error) {
	s.clearError()

	t, err := s.updateTask(ctx, id, patch)
	if err != nil {
		s.setError(MsgUpdateFailed)
		return types.Task{}, fmt.Errorf("failed to update task %s: %w", id, err)
	}
	return t, nil
}

func (s *Store) updateTask(ctx context.Context, id string, patch types.Patch) (types.Task, error) {
	owner, err := s.verify(ctx)
	if err != nil {
		return types.Task{}, err
	}
	t, err := s.repo.UpdateTask(ctx, owner, id, patch)
	if err != nil {
		return types.Task{}, err
	}

	s.writeThrough(ctx, owner, func(st *State) {
		for i := range st.Tasks {
			if st.Tasks[i].ID == id {
				st.Tasks[i] = t.Clone()
				break
			}
		}
		if st.Selected != nil && st.Selected.ID == id {
			sel := t.Clone()
			st.Selected = &sel
		}
	})
	return t, nil
}

// Delete removes task id. It returns true once the repository confirms.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	s.clearError()

	owner, err := s.verify(ctx)
	if err == nil {
		var ok bool
		ok, err = s.repo.DeleteTask(ctx, owner, id)
		if err == nil {
			s.writeThrough(ctx, owner, func(st *State) {
				for i := range st.Tasks {
					if st.Tasks[i].ID == id {
						st.Tasks = append(st.Tasks[:i], st.Tasks[i+1:]...)
						break
					}
				}
				if st.Selected != nil && st.Selected.ID == id {
					st.Selected = nil
				}
			})
			return ok, nil
		}
	}

	s.setError(MsgDeleteFailed)
	return false, fmt.Errorf("failed to delete task %s: %w", id, err)
}

// ToggleCompletion reads task id from the repository and flips its
// completion flag.
func (s *Store) ToggleCompletion(ctx context.Context, id string) (types.Task, error) {
	s.clearError()

	t, err := s.toggle(ctx, id)
	if err != nil {
		s.setError(MsgToggleFailed)
		return types.Task{}, fmt.Errorf("failed to toggle task %s: %w", id, err)
	}
	return t, nil
}

func (s *Store) toggle(ctx context.Context, id string) (types.Task, error) {
	owner, err := s.verify(ctx)
	if err != nil {
		return types.Task{}, err
	}
	cur, err := s.repo.GetTask(ctx, owner, id)
	if err != nil {
		return types.Task{}, err
	}
	return s.updateTask(ctx, id, types.Patch{Completed: types.Ptr(!cur.Completed)})
}

// SetSelected stages t for detail viewing or editing. No validation.
func (s *Store) SetSelected(t *types.Task) {
	var sel *types.Task
	if t != nil {
		cp := t.Clone()
		sel = &cp
	}
	s.update(func(st *State) { st.Selected = sel })
}

// Select fetches a fresh copy of task id and makes it the selection.
func (s *Store) Select(ctx context.Context, id string) (types.Task, error) {
	owner, err := s.verify(ctx)
	if err == nil {
		var t types.Task
		t, err = s.repo.GetTask(ctx, owner, id)
		if err == nil {
			s.updateOwned(owner, func(st *State) {
				sel := t.Clone()
				st.Selected = &sel
			})
			return t, nil
		}
	}

	s.setError(MsgSelectFailed)
	return types.Task{}, fmt.Errorf("failed to load task %s: %w", id, err)
}

func (s *Store) clearError() {
	s.update(func(st *State) { st.Error = "" })
}

func (s *Store) setError(msg string) {
	s.update(func(st *State) { st.Error = msg })
}

// writeThrough applies a successful repository result to the state, then
// overwrites the owner's cache entry with the resulting collection. Cache
// failures are logged and swallowed.
func (s *Store) writeThrough(ctx context.Context, owner string, fn func(st *State)) {
	s.cacheMu.Lock()
	snap, obs, ok := s.apply(owner, fn)
	if ok {
		if err := s.cache.WriteCollection(ctx, owner, snap.Tasks); err != nil {
			s.logger.Printf("Warning: failed to write task cache for %s: %v", owner, err)
		}
	}
	s.cacheMu.Unlock()

	if ok {
		emit(snap, obs)
	}
}

// readCache returns the owner's cache entry. Failures are logged and
// reported as a miss.
func (s *Store) readCache(ctx context.Context, owner string) (cache.Entry, bool) {
	entry, ok, err := s.cache.ReadCollection(ctx, owner)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Printf("Warning: failed to read task cache for %s: %v", owner, err)
		}
		return cache.Entry{}, false
	}
	return entry, ok
}
