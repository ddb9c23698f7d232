package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/steveyegge/tasksync/internal/auth"
	"github.com/steveyegge/tasksync/internal/cache"
	"github.com/steveyegge/tasksync/internal/config"
	"github.com/steveyegge/tasksync/internal/repository"
	"github.com/steveyegge/tasksync/internal/store"
	"github.com/steveyegge/tasksync/internal/types"
)

// app holds the services a command runs against.
type app struct {
	users *sql.DB
	auth  *auth.Local
	repo  repository.Repository
	cache cache.Cache
	store *store.Store
}

// openAuth opens only the account database and session.
func openAuth(ctx context.Context) (*app, error) {
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	secret, err := cfg.AuthSecret()
	if err != nil {
		return nil, err
	}

	users, err := repository.OpenSQLiteDB(cfg.UsersPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open user database: %w", err)
	}

	ac := auth.DefaultConfig()
	ac.Secret = secret
	ac.SessionPath = cfg.SessionPath()
	if cfg.Auth.AccessTTL > 0 {
		ac.AccessTTL = cfg.Auth.AccessTTL
	}
	if cfg.Auth.RefreshTTL > 0 {
		ac.RefreshTTL = cfg.Auth.RefreshTTL
	}

	gw, err := auth.NewLocal(ctx, users, ac, sink.Logger("auth"))
	if err != nil {
		users.Close()
		return nil, err
	}
	return &app{users: users, auth: gw}, nil
}

// openApp opens every service and the store on top of them.
func openApp(ctx context.Context) (*app, error) {
	a, err := openAuth(ctx)
	if err != nil {
		return nil, err
	}

	a.repo, err = openRepository(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.cache, err = openCache(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.store, err = store.New(store.Options{
		Auth:       a.auth,
		Repository: a.repo,
		Cache:      a.cache,
		Logger:     sink.Logger("store"),
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// openRepository returns an untyped nil on failure so Close can skip it.
func openRepository(ctx context.Context, c *config.Config) (repository.Repository, error) {
	var (
		repo repository.Repository
		err  error
	)
	switch c.Remote.Driver {
	case config.DriverPostgres:
		var pg *repository.Postgres
		if pg, err = repository.OpenPostgres(ctx, c.RemoteDSN()); err == nil {
			repo = pg
		}
	case config.DriverDocuments:
		var docs *repository.Documents
		if docs, err = repository.OpenDocuments(c.RemoteDSN()); err == nil {
			repo = docs
		}
	default:
		var lite *repository.SQLite
		if lite, err = repository.OpenSQLite(c.RemoteDSN()); err == nil {
			repo = lite
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s repository: %w", c.Remote.Driver, err)
	}
	return repo, nil
}

func openCache(ctx context.Context, c *config.Config) (cache.Cache, error) {
	if c.Cache.Driver == config.DriverRedis {
		rc, err := cache.OpenRedis(ctx, c.Cache.RedisAddr, c.Cache.RedisPrefix)
		if err != nil {
			return nil, fmt.Errorf("failed to open redis cache: %w", err)
		}
		return rc, nil
	}
	lc, err := cache.OpenSQLite(c.CachePath())
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	return lc, nil
}

// Close releases everything in reverse order of opening.
func (a *app) Close() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	if a.repo != nil {
		errs = append(errs, a.repo.Close())
	}
	if a.users != nil {
		errs = append(errs, a.users.Close())
	}
	return errors.Join(errs...)
}

// mustApp opens the full app or exits.
func mustApp(ctx context.Context) *app {
	a, err := openApp(ctx)
	if err != nil {
		fatalf("%v", err)
	}
	return a
}

// mustSignedIn exits unless someone is signed in.
func (a *app) mustSignedIn() *types.Identity {
	id := a.auth.Current()
	if id == nil {
		a.Close()
		fatalf("not signed in (run 'tasks signin' first)")
	}
	return id
}

// resolveID expands a full id or unique id prefix against the collection.
// Ids not found in the collection are passed through for the repository to
// judge.
func resolveID(st store.State, arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return "", fmt.Errorf("task id is required")
	}

	var matches []string
	for _, t := range st.Tasks {
		if t.ID == arg {
			return t.ID, nil
		}
		if strings.HasPrefix(t.ID, arg) {
			matches = append(matches, t.ID)
		}
	}

	switch len(matches) {
	case 0:
		return arg, nil
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("ambiguous task id %q matches %d tasks", arg, len(matches))
	}
}
