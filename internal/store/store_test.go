package store

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/steveyegge/tasksync/internal/auth"
	"github.com/steveyegge/tasksync/internal/cache"
	"github.com/steveyegge/tasksync/internal/repository"
	"github.com/steveyegge/tasksync/internal/types"
)

// fakeGateway is an in-memory auth.Gateway that notifies subscribers
// synchronously, like the real one.
type fakeGateway struct {
	mu        sync.Mutex
	current   *types.Identity
	subs      map[int]func(*types.Identity)
	order     []int
	next      int
	verifyErr error
}

func newFakeGateway(userID string) *fakeGateway {
	g := &fakeGateway{subs: map[int]func(*types.Identity){}}
	if userID != "" {
		g.current = &types.Identity{UserID: userID, Email: userID + "@example.com"}
	}
	return g
}

func (g *fakeGateway) Current() *types.Identity {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current == nil {
		return nil
	}
	id := *g.current
	return &id
}

func (g *fakeGateway) Subscribe(fn func(*types.Identity)) func() {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.next
	g.next++
	g.subs[id] = fn
	g.order = append(g.order, id)
	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		delete(g.subs, id)
	}
}

func (g *fakeGateway) subscriberCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.subs)
}

func (g *fakeGateway) set(id *types.Identity) {
	g.mu.Lock()
	g.current = id
	var fns []func(*types.Identity)
	for _, k := range g.order {
		if fn, ok := g.subs[k]; ok {
			fns = append(fns, fn)
		}
	}
	g.mu.Unlock()

	for _, fn := range fns {
		fn(id)
	}
}

func (g *fakeGateway) SignIn(ctx context.Context, email, password string) (*types.Identity, error) {
	id := &types.Identity{UserID: email, Email: email}
	g.set(id)
	return id, nil
}

func (g *fakeGateway) SignUp(ctx context.Context, email, password string) (*types.Identity, error) {
	return g.SignIn(ctx, email, password)
}

func (g *fakeGateway) SignOut(ctx context.Context) error {
	g.set(nil)
	return nil
}

func (g *fakeGateway) VerifyFresh(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current == nil {
		return auth.ErrNotAuthenticated
	}
	return g.verifyErr
}

type fixture struct {
	gw    *fakeGateway
	repo  *repository.Memory
	cache *cache.Memory
	store *Store
}

// setupStore creates a store for user u1 over in-memory collaborators.
func setupStore(t *testing.T) *fixture {
	t.Helper()
	return setupStoreWith(t, newFakeGateway("u1"), repository.NewMemory(), cache.NewMemory())
}

func setupStoreWith(t *testing.T, gw *fakeGateway, repo *repository.Memory, c *cache.Memory) *fixture {
	t.Helper()

	s, err := New(Options{
		Auth:       gw,
		Repository: repo,
		Cache:      c,
		Logger:     log.New(io.Discard, "", 0),
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	// Let the construction-time sync settle so tests start from a known state.
	s.wg.Wait()

	return &fixture{gw: gw, repo: repo, cache: c, store: s}
}

// blockedRepo holds ListTasks until release is closed.
type blockedRepo struct {
	*repository.Memory
	release chan struct{}
}

func (b *blockedRepo) ListTasks(ctx context.Context, owner string) ([]types.Task, error) {
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return b.Memory.ListTasks(ctx, owner)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func seed(t *testing.T, repo repository.Repository, owner string, titles ...string) []types.Task {
	t.Helper()
	var out []types.Task
	for _, title := range titles {
		task, err := repo.CreateTask(context.Background(), owner, types.Draft{Title: title})
		if err != nil {
			t.Fatalf("seed CreateTask(%q) failed: %v", title, err)
		}
		out = append(out, task)
	}
	return out
}

func assertMatchesRepository(t *testing.T, f *fixture, step string) {
	t.Helper()
	want, err := f.repo.ListTasks(context.Background(), "u1")
	if err != nil {
		t.Fatalf("%s: ListTasks() failed: %v", step, err)
	}
	if diff := cmp.Diff(want, f.store.Snapshot().Tasks); diff != "" {
		t.Errorf("%s: collection differs from repository (-repo +store):\n%s", step, diff)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Error("expected error for missing collaborators")
	}
	if _, err := New(Options{Auth: newFakeGateway(""), Repository: repository.NewMemory()}); err == nil {
		t.Error("expected error for missing cache")
	}
}

func TestNewSyncsInBackground(t *testing.T) {
	mem := repository.NewMemory()
	remote := seed(t, mem, "u1", "from remote")
	repo := &blockedRepo{Memory: mem, release: make(chan struct{})}

	c := cache.NewMemory()
	cached := []types.Task{
		{ID: "a", OwnerID: "u1", Title: "one", CreatedAt: time.Now(), UpdatedAt: time.Now()},
		{ID: "b", OwnerID: "u1", Title: "two", CreatedAt: time.Now(), UpdatedAt: time.Now()},
	}
	if err := c.WriteCollection(context.Background(), "u1", cached); err != nil {
		t.Fatalf("WriteCollection() failed: %v", err)
	}

	created := make(chan *Store, 1)
	go func() {
		s, err := New(Options{
			Auth:       newFakeGateway("u1"),
			Repository: repo,
			Cache:      c,
			Logger:     log.New(io.Discard, "", 0),
		})
		if err != nil {
			t.Errorf("New() failed: %v", err)
		}
		created <- s
	}()

	var s *Store
	select {
	case s = <-created:
	case <-time.After(2 * time.Second):
		close(repo.release)
		t.Fatal("New() blocked on the remote repository")
	}
	if s == nil {
		return
	}
	defer s.Close()

	st := s.Snapshot()
	if len(st.Tasks) != 2 {
		t.Fatalf("expected 2 cached tasks, got %d", len(st.Tasks))
	}
	if !st.Loading {
		t.Error("Loading = false while the first sync is running, want true")
	}
	if st.Source != SourceCache {
		t.Errorf("Source = %v, want %v", st.Source, SourceCache)
	}

	close(repo.release)
	waitFor(t, "construction sync", func() bool { return !s.Snapshot().Loading })

	st = s.Snapshot()
	if diff := cmp.Diff(remote, st.Tasks); diff != "" {
		t.Errorf("collection differs from repository (-repo +store):\n%s", diff)
	}
	if st.Source != SourceRemote {
		t.Errorf("Source = %v, want %v", st.Source, SourceRemote)
	}
	if st.Error != "" {
		t.Errorf("Error = %q, want empty", st.Error)
	}
}

func TestNewSyncFailureFallsBackToCache(t *testing.T) {
	repo := repository.NewMemory()
	repo.SetUnavailable(true)
	c := cache.NewMemory()
	cached := seed(t, repository.NewMemory(), "u1", "one", "two")
	if err := c.WriteCollection(context.Background(), "u1", cached); err != nil {
		t.Fatalf("WriteCollection() failed: %v", err)
	}

	f := setupStoreWith(t, newFakeGateway("u1"), repo, c)
	st := f.store.Snapshot()

	if diff := cmp.Diff(cached, st.Tasks); diff != "" {
		t.Errorf("collection is not the cached set (-cached +got):\n%s", diff)
	}
	if st.Loading {
		t.Error("Loading = true after the construction sync failed")
	}
	if st.Error != MsgSyncFailed {
		t.Errorf("Error = %q, want %q", st.Error, MsgSyncFailed)
	}
	if st.Source != SourceStale {
		t.Errorf("Source = %v, want %v", st.Source, SourceStale)
	}
}

func TestNewWithoutIdentity(t *testing.T) {
	f := setupStoreWith(t, newFakeGateway(""), repository.NewMemory(), cache.NewMemory())
	st := f.store.Snapshot()

	if st.Loading {
		t.Error("Loading = true without identity")
	}
	if len(st.Tasks) != 0 || st.Tasks == nil {
		t.Errorf("Tasks = %#v, want empty slice", st.Tasks)
	}

	if err := f.store.Sync(context.Background()); err != nil {
		t.Fatalf("Sync() without identity failed: %v", err)
	}
	if f.store.Snapshot().Loading {
		t.Error("Loading = true after Sync without identity")
	}
}

func TestSequentialOperationsMatchRepository(t *testing.T) {
	f := setupStore(t)
	ctx := context.Background()
	seed(t, f.repo, "u1", "existing")

	if err := f.store.Sync(ctx); err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}
	assertMatchesRepository(t, f, "sync")

	a, err := f.store.Create(ctx, types.Draft{Title: "a"})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	assertMatchesRepository(t, f, "create a")

	b, err := f.store.Create(ctx, types.Draft{Title: "b", Description: "second"})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	assertMatchesRepository(t, f, "create b")

	if _, err := f.store.Update(ctx, a.ID, types.Patch{Title: types.Ptr("a2")}); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	assertMatchesRepository(t, f, "update a")

	if _, err := f.store.ToggleCompletion(ctx, b.ID); err != nil {
		t.Fatalf("ToggleCompletion() failed: %v", err)
	}
	assertMatchesRepository(t, f, "toggle b")

	if _, err := f.store.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	assertMatchesRepository(t, f, "delete a")

	entry, ok, err := f.cache.ReadCollection(ctx, "u1")
	if err != nil || !ok {
		t.Fatalf("ReadCollection() = ok %v, err %v", ok, err)
	}
	if diff := cmp.Diff(f.store.Snapshot().Tasks, entry.Tasks); diff != "" {
		t.Errorf("cache differs from store (-store +cache):\n%s", diff)
	}
}

func TestSyncIdempotent(t *testing.T) {
	f := setupStore(t)
	ctx := context.Background()
	seed(t, f.repo, "u1", "one", "two", "three")

	if err := f.store.Sync(ctx); err != nil {
		t.Fatalf("first Sync() failed: %v", err)
	}
	first := f.store.Snapshot()

	if err := f.store.Sync(ctx); err != nil {
		t.Fatalf("second Sync() failed: %v", err)
	}
	second := f.store.Snapshot()

	if diff := cmp.Diff(first.Tasks, second.Tasks); diff != "" {
		t.Errorf("second Sync changed the collection (-first +second):\n%s", diff)
	}
	if second.Loading {
		t.Error("Loading = true after Sync")
	}
	if second.Source != SourceRemote {
		t.Errorf("Source = %v, want %v", second.Source, SourceRemote)
	}
	if second.LastSynced.IsZero() {
		t.Error("LastSynced not set after a successful sync")
	}
}

func TestSyncReplacesCollection(t *testing.T) {
	f := setupStore(t)
	ctx := context.Background()
	tasks := seed(t, f.repo, "u1", "keep", "drop")

	if err := f.store.Sync(ctx); err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}
	// Removed behind the store's back.
	if _, err := f.repo.DeleteTask(ctx, "u1", tasks[1].ID); err != nil {
		t.Fatalf("DeleteTask() failed: %v", err)
	}
	if err := f.store.Sync(ctx); err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}

	assertMatchesRepository(t, f, "resync")
}

func TestSyncOutageFallsBackToCache(t *testing.T) {
	f := setupStore(t)
	ctx := context.Background()

	cached := seed(t, repository.NewMemory(), "u1", "one", "two", "three")
	if err := f.cache.WriteCollection(ctx, "u1", cached); err != nil {
		t.Fatalf("WriteCollection() failed: %v", err)
	}
	seed(t, f.repo, "u1", "remote only")
	if err := f.store.Sync(ctx); err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}
	// The successful sync above overwrote the cache; restore the three.
	if err := f.cache.WriteCollection(ctx, "u1", cached); err != nil {
		t.Fatalf("WriteCollection() failed: %v", err)
	}

	f.repo.SetUnavailable(true)
	if err := f.store.Sync(ctx); err != nil {
		t.Fatalf("Sync() during outage returned %v, want nil", err)
	}

	st := f.store.Snapshot()
	if diff := cmp.Diff(cached, st.Tasks); diff != "" {
		t.Errorf("collection is not the cached set (-cached +got):\n%s", diff)
	}
	if st.Loading {
		t.Error("Loading = true after failed sync")
	}
	if st.Error != MsgSyncFailed {
		t.Errorf("Error = %q, want %q", st.Error, MsgSyncFailed)
	}
	if st.Source != SourceStale {
		t.Errorf("Source = %v, want %v", st.Source, SourceStale)
	}
}

func TestSyncOutageWithoutCacheKeepsCollection(t *testing.T) {
	repo := repository.NewMemory()
	repo.SetUnavailable(true)
	f := setupStoreWith(t, newFakeGateway("u1"), repo, cache.NewMemory())
	ctx := context.Background()

	if err := f.store.Sync(ctx); err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}

	st := f.store.Snapshot()
	if st.Error == "" {
		t.Error("Error is empty after failed sync")
	}
	if st.Source != SourceNone {
		t.Errorf("Source = %v, never-synced store should stay %v", st.Source, SourceNone)
	}
	if st.Loading {
		t.Error("Loading = true after failed sync")
	}
}

func TestSyncVerifyFailureIsSyncFailure(t *testing.T) {
	f := setupStore(t)
	f.gw.verifyErr = auth.ErrTokenExpired

	if err := f.store.Sync(context.Background()); err != nil {
		t.Fatalf("Sync() returned %v, want nil", err)
	}
	if got := f.store.Snapshot().Error; got != MsgSyncFailed {
		t.Errorf("Error = %q, want %q", got, MsgSyncFailed)
	}
}

func TestSignOutClearsSynchronously(t *testing.T) {
	f := setupStore(t)
	ctx := context.Background()
	seed(t, f.repo, "u1", "one", "two")

	if err := f.store.Sync(ctx); err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}
	tasks := f.store.Snapshot().Tasks
	f.store.SetSelected(&tasks[0])

	// Registered after the store, so it observes the store's reaction.
	var inside State
	f.gw.Subscribe(func(*types.Identity) { inside = f.store.Snapshot() })

	if err := f.gw.SignOut(ctx); err != nil {
		t.Fatalf("SignOut() failed: %v", err)
	}

	for name, st := range map[string]State{"inside notification": inside, "after": f.store.Snapshot()} {
		if len(st.Tasks) != 0 {
			t.Errorf("%s: expected 0 tasks, got %d", name, len(st.Tasks))
		}
		if st.Selected != nil {
			t.Errorf("%s: Selected = %+v, want nil", name, st.Selected)
		}
		if st.Loading {
			t.Errorf("%s: Loading = true", name)
		}
	}
}

func TestSignInTriggersSync(t *testing.T) {
	f := setupStoreWith(t, newFakeGateway(""), repository.NewMemory(), cache.NewMemory())
	seed(t, f.repo, "bob@example.com", "bob's task")

	if _, err := f.gw.SignIn(context.Background(), "bob@example.com", "pw"); err != nil {
		t.Fatalf("SignIn() failed: %v", err)
	}

	waitFor(t, "background sync", func() bool {
		st := f.store.Snapshot()
		return !st.Loading && st.Source == SourceRemote
	})

	st := f.store.Snapshot()
	if len(st.Tasks) != 1 || st.Tasks[0].Title != "bob's task" {
		t.Errorf("Tasks = %+v, want bob's task", st.Tasks)
	}
}

func TestIdentitySwitchReplacesCollection(t *testing.T) {
	f := setupStore(t)
	ctx := context.Background()
	seed(t, f.repo, "u1", "alice's")

	if err := f.store.Sync(ctx); err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}

	// Hold the new user's sync so the immediate reaction is observable.
	f.repo.SetUnavailable(true)
	f.gw.set(&types.Identity{UserID: "u2"})

	st := f.store.Snapshot()
	for _, task := range st.Tasks {
		if task.OwnerID != "u2" {
			t.Errorf("task %s owned by %s survived identity switch", task.ID, task.OwnerID)
		}
	}

	waitFor(t, "background sync", func() bool { return !f.store.Snapshot().Loading })
}

func TestToggleUnknownTaskNotFound(t *testing.T) {
	f := setupStore(t)
	ctx := context.Background()
	seed(t, f.repo, "u1", "one")

	if err := f.store.Sync(ctx); err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}
	before := f.store.Snapshot().Tasks

	_, err := f.store.ToggleCompletion(ctx, "missing")
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("ToggleCompletion() error = %v, want ErrNotFound", err)
	}

	st := f.store.Snapshot()
	if diff := cmp.Diff(before, st.Tasks); diff != "" {
		t.Errorf("collection changed (-before +after):\n%s", diff)
	}
	if st.Error != MsgToggleFailed {
		t.Errorf("Error = %q, want %q", st.Error, MsgToggleFailed)
	}
}

func TestBuyMilkScenario(t *testing.T) {
	f := setupStore(t)
	ctx := context.Background()

	if err := f.store.Sync(ctx); err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}
	start := len(f.store.Snapshot().Tasks)

	created, err := f.store.Create(ctx, types.Draft{Title: "Buy milk"})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if got := len(f.store.Snapshot().Tasks); got != start+1 {
		t.Errorf("collection length = %d, want %d", got, start+1)
	}
	if created.ID == "" {
		t.Error("created task has empty ID")
	}
	if created.Completed {
		t.Error("created task is already completed")
	}

	toggled, err := f.store.ToggleCompletion(ctx, created.ID)
	if err != nil {
		t.Fatalf("ToggleCompletion() failed: %v", err)
	}
	if !toggled.Completed {
		t.Error("Completed = false after toggle")
	}
	if !toggled.UpdatedAt.After(toggled.CreatedAt) {
		t.Errorf("UpdatedAt %v not after CreatedAt %v", toggled.UpdatedAt, toggled.CreatedAt)
	}

	ok, err := f.store.Delete(ctx, created.ID)
	if err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if !ok {
		t.Error("Delete() = false")
	}
	if got := len(f.store.Snapshot().Tasks); got != start {
		t.Errorf("collection length = %d, want %d", got, start)
	}
	if _, err := f.repo.GetTask(ctx, "u1", created.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("GetTask() after delete error = %v, want ErrNotFound", err)
	}
}

// gatedRepo holds every GetTask until n callers have read, so concurrent
// toggles are guaranteed to observe the same prior state.
type gatedRepo struct {
	*repository.Memory
	arrived sync.WaitGroup
}

func (g *gatedRepo) GetTask(ctx context.Context, owner, id string) (types.Task, error) {
	t, err := g.Memory.GetTask(ctx, owner, id)
	g.arrived.Done()
	g.arrived.Wait()
	return t, err
}

func TestConcurrentTogglesLastWriteWins(t *testing.T) {
	gw := newFakeGateway("u1")
	mem := repository.NewMemory()
	repo := &gatedRepo{Memory: mem}
	repo.arrived.Add(2)

	s, err := New(Options{
		Auth:       gw,
		Repository: repo,
		Cache:      cache.NewMemory(),
		Logger:     log.New(io.Discard, "", 0),
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer s.Close()
	s.wg.Wait()

	ctx := context.Background()
	task := seed(t, mem, "u1", "flip me")[0]
	if err := s.Sync(ctx); err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.ToggleCompletion(ctx, task.ID)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("toggle %d failed: %v", i, err)
		}
	}

	// Both toggles read completed=false and both wrote true. A serial pair
	// would have ended at false; the overlap loses one flip.
	stored, err := mem.GetTask(ctx, "u1", task.ID)
	if err != nil {
		t.Fatalf("GetTask() failed: %v", err)
	}
	if !stored.Completed {
		t.Error("Completed = false, want true (one toggle lost)")
	}
	if stored.Version != 3 {
		t.Errorf("Version = %d, want 3 (both updates applied)", stored.Version)
	}

	got, ok := s.Snapshot().Task(task.ID)
	if !ok {
		t.Fatal("task missing from collection")
	}
	if !got.Completed {
		t.Error("store disagrees with the last repository response")
	}
}

func TestUpdateConflictPropagates(t *testing.T) {
	f := setupStore(t)
	ctx := context.Background()
	task := seed(t, f.repo, "u1", "versioned")[0]
	if err := f.store.Sync(ctx); err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}

	if _, err := f.store.Update(ctx, task.ID, types.Patch{Title: types.Ptr("first")}); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	_, err := f.store.Update(ctx, task.ID, types.Patch{
		Title:     types.Ptr("stale"),
		IfVersion: types.Ptr(task.Version),
	})
	if !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("Update() error = %v, want ErrConflict", err)
	}
	if got := f.store.Snapshot().Error; got != MsgUpdateFailed {
		t.Errorf("Error = %q, want %q", got, MsgUpdateFailed)
	}
	if got, _ := f.store.Snapshot().Task(task.ID); got.Title != "first" {
		t.Errorf("Title = %q, want %q", got.Title, "first")
	}
}

func TestMutationFailuresLeaveCollection(t *testing.T) {
	f := setupStore(t)
	ctx := context.Background()
	task := seed(t, f.repo, "u1", "one")[0]
	if err := f.store.Sync(ctx); err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}
	before := f.store.Snapshot().Tasks

	f.repo.SetUnavailable(true)

	if _, err := f.store.Create(ctx, types.Draft{Title: "x"}); !errors.Is(err, repository.ErrUnavailable) {
		t.Errorf("Create() error = %v, want ErrUnavailable", err)
	}
	if got := f.store.Snapshot().Error; got != MsgCreateFailed {
		t.Errorf("Error = %q, want %q", got, MsgCreateFailed)
	}

	if _, err := f.store.Delete(ctx, task.ID); !errors.Is(err, repository.ErrUnavailable) {
		t.Errorf("Delete() error = %v, want ErrUnavailable", err)
	}
	if got := f.store.Snapshot().Error; got != MsgDeleteFailed {
		t.Errorf("Error = %q, want %q", got, MsgDeleteFailed)
	}

	if diff := cmp.Diff(before, f.store.Snapshot().Tasks); diff != "" {
		t.Errorf("collection changed (-before +after):\n%s", diff)
	}

	// The next operation clears the previous error.
	f.repo.SetUnavailable(false)
	if _, err := f.store.Create(ctx, types.Draft{Title: "y"}); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if got := f.store.Snapshot().Error; got != "" {
		t.Errorf("Error = %q after success, want empty", got)
	}
}

func TestMutationWithoutIdentity(t *testing.T) {
	f := setupStoreWith(t, newFakeGateway(""), repository.NewMemory(), cache.NewMemory())

	_, err := f.store.Create(context.Background(), types.Draft{Title: "nobody's"})
	if !errors.Is(err, auth.ErrNotAuthenticated) {
		t.Fatalf("Create() error = %v, want ErrNotAuthenticated", err)
	}
	if !auth.IsAuthError(err) {
		t.Error("expected an *auth.Error in the chain")
	}
}

func TestCreateDoesNotValidateTitle(t *testing.T) {
	f := setupStore(t)

	task, err := f.store.Create(context.Background(), types.Draft{Title: ""})
	if err != nil {
		t.Fatalf("Create() with empty title failed: %v", err)
	}
	if task.Title != "" {
		t.Errorf("Title = %q, want empty", task.Title)
	}
}

func TestSelectionFollowsMutations(t *testing.T) {
	f := setupStore(t)
	ctx := context.Background()
	task := seed(t, f.repo, "u1", "select me")[0]
	if err := f.store.Sync(ctx); err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}

	f.store.SetSelected(&task)
	if sel := f.store.Snapshot().Selected; sel == nil || sel.ID != task.ID {
		t.Fatalf("Selected = %+v, want %s", sel, task.ID)
	}

	if _, err := f.store.Update(ctx, task.ID, types.Patch{Title: types.Ptr("renamed")}); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	if sel := f.store.Snapshot().Selected; sel == nil || sel.Title != "renamed" {
		t.Errorf("Selected = %+v, want refreshed title", sel)
	}

	if _, err := f.store.Delete(ctx, task.ID); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if sel := f.store.Snapshot().Selected; sel != nil {
		t.Errorf("Selected = %+v after delete, want nil", sel)
	}

	f.store.SetSelected(nil)
	if sel := f.store.Snapshot().Selected; sel != nil {
		t.Errorf("SetSelected(nil) left %+v", sel)
	}
}

func TestSelectFetchesFreshCopy(t *testing.T) {
	f := setupStore(t)
	ctx := context.Background()
	task := seed(t, f.repo, "u1", "detail")[0]

	// Changed remotely; the store never synced.
	if _, err := f.repo.UpdateTask(ctx, "u1", task.ID, types.Patch{Description: types.Ptr("fresh")}); err != nil {
		t.Fatalf("UpdateTask() failed: %v", err)
	}

	got, err := f.store.Select(ctx, task.ID)
	if err != nil {
		t.Fatalf("Select() failed: %v", err)
	}
	if got.Description != "fresh" {
		t.Errorf("Description = %q, want %q", got.Description, "fresh")
	}
	if sel := f.store.Snapshot().Selected; sel == nil || sel.Description != "fresh" {
		t.Errorf("Selected = %+v", sel)
	}

	if _, err := f.store.Select(ctx, "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("Select() missing error = %v, want ErrNotFound", err)
	}
}

func TestCacheFailuresAreSwallowed(t *testing.T) {
	f := setupStore(t)
	ctx := context.Background()
	boom := errors.New("disk full")

	f.cache.FailWrites(boom)
	f.cache.FailReads(boom)

	if _, err := f.store.Create(ctx, types.Draft{Title: "still works"}); err != nil {
		t.Fatalf("Create() failed on cache error: %v", err)
	}
	if err := f.store.Sync(ctx); err != nil {
		t.Fatalf("Sync() failed on cache error: %v", err)
	}

	st := f.store.Snapshot()
	if st.Error != "" {
		t.Errorf("Error = %q, cache failures must not surface", st.Error)
	}
	if len(st.Tasks) != 1 {
		t.Errorf("expected 1 task, got %d", len(st.Tasks))
	}
}

func TestObservers(t *testing.T) {
	f := setupStore(t)
	ctx := context.Background()

	var mu sync.Mutex
	var states []State
	unsubscribe := f.store.Subscribe(func(st State) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, st)
	})

	if _, err := f.store.Create(ctx, types.Draft{Title: "watched"}); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	mu.Lock()
	n := len(states)
	mu.Unlock()
	if n == 0 {
		t.Fatal("observer not called")
	}
	last := states[n-1]
	if len(last.Tasks) != 1 || last.Tasks[0].Title != "watched" {
		t.Errorf("last observed Tasks = %+v", last.Tasks)
	}

	unsubscribe()
	unsubscribe()
	f.store.SetSelected(nil)

	mu.Lock()
	defer mu.Unlock()
	if len(states) != n {
		t.Errorf("observer called after unsubscribe")
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	f := setupStore(t)
	ctx := context.Background()
	if _, err := f.store.Create(ctx, types.Draft{Title: "original"}); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	st := f.store.Snapshot()
	st.Tasks[0].Title = "mutated"

	if got := f.store.Snapshot().Tasks[0].Title; got != "original" {
		t.Errorf("Title = %q, snapshot aliased store state", got)
	}
}

func TestCloseUnsubscribes(t *testing.T) {
	f := setupStore(t)
	ctx := context.Background()
	seed(t, f.repo, "u1", "one")
	if err := f.store.Sync(ctx); err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}

	if got := f.gw.subscriberCount(); got != 1 {
		t.Fatalf("subscriberCount = %d, want 1", got)
	}
	if err := f.store.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if err := f.store.Close(); err != nil {
		t.Fatalf("second Close() failed: %v", err)
	}
	if got := f.gw.subscriberCount(); got != 0 {
		t.Errorf("subscriberCount after Close = %d, want 0", got)
	}

	_ = f.gw.SignOut(ctx)
	if len(f.store.Snapshot().Tasks) != 1 {
		t.Error("closed store still reacts to identity changes")
	}
}

func TestContext(t *testing.T) {
	f := setupStore(t)

	ctx := NewContext(context.Background(), f.store)
	got, ok := FromContext(ctx)
	if !ok || got != f.store {
		t.Errorf("FromContext() = %p, %v; want %p", got, ok, f.store)
	}

	if _, ok := FromContext(context.Background()); ok {
		t.Error("FromContext() on empty context reported a store")
	}
}

func TestSourceString(t *testing.T) {
	tests := []struct {
		src  Source
		want string
	}{
		{SourceNone, "none"},
		{SourceCache, "cache"},
		{SourceRemote, "remote"},
		{SourceStale, "stale"},
	}
	for _, tt := range tests {
		if got := tt.src.String(); got != tt.want {
			t.Errorf("Source(%d).String() = %q, want %q", tt.src, got, tt.want)
		}
	}
}
