package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/steveyegge/tasksync/internal/types"
)

// Config configures a Local gateway.
type Config struct {
	// Secret signs access and refresh tokens. Required.
	Secret string
	Issuer string

	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// SessionPath is where the signed-in session is kept between runs.
	// Empty keeps the session in memory only.
	SessionPath string

	// BcryptCost defaults to DefaultBcryptCost.
	BcryptCost int
}

// DefaultConfig returns defaults for everything but Secret and SessionPath.
func DefaultConfig() Config {
	return Config{
		Issuer:     "tasksync",
		AccessTTL:  time.Hour,
		RefreshTTL: 30 * 24 * time.Hour,
	}
}

type subscription struct {
	id int
	fn func(*types.Identity)
}

// Local is a self-hosted Gateway. Accounts live in a SQLite users table,
// passwords are bcrypt hashes and sessions are HS256 JWT pairs persisted to
// a session file.
type Local struct {
	users       *userStore
	hasher      *passwordHasher
	tokens      *tokenManager
	sessionPath string
	logger      *log.Logger

	mu      sync.Mutex
	current *session
	subs    []subscription
	nextSub int
}

var _ Gateway = (*Local)(nil)

// NewLocal creates the users table on conn if needed and restores a saved
// session from cfg.SessionPath. A saved session whose refresh token no
// longer verifies is discarded.
func NewLocal(ctx context.Context, conn *sql.DB, cfg Config, logger *log.Logger) (*Local, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("auth secret is required")
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[auth] ", log.LstdFlags)
	}
	defaults := DefaultConfig()
	if cfg.Issuer == "" {
		cfg.Issuer = defaults.Issuer
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = defaults.AccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = defaults.RefreshTTL
	}

	users, err := newUserStore(ctx, conn)
	if err != nil {
		return nil, err
	}

	l := &Local{
		users:  users,
		hasher: newPasswordHasher(cfg.BcryptCost),
		tokens: &tokenManager{
			secret:     []byte(cfg.Secret),
			issuer:     cfg.Issuer,
			accessTTL:  cfg.AccessTTL,
			refreshTTL: cfg.RefreshTTL,
			now:        time.Now,
		},
		sessionPath: cfg.SessionPath,
		logger:      logger,
	}

	s, err := loadSession(cfg.SessionPath)
	if err != nil {
		logger.Printf("Discarding unreadable session: %v", err)
	}
	if s != nil {
		if _, err := l.tokens.validate(s.Tokens.Refresh, tokenRefresh); err != nil {
			logger.Printf("Discarding saved session for %s: %v", s.Identity.Email, err)
			_ = removeSession(cfg.SessionPath)
		} else {
			l.current = s
		}
	}

	return l, nil
}

// Current implements Gateway.Current.
func (l *Local) Current() *types.Identity {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.identityLocked()
}

func (l *Local) identityLocked() *types.Identity {
	if l.current == nil {
		return nil
	}
	id := l.current.Identity
	return &id
}

// Subscribe implements Gateway.Subscribe.
func (l *Local) Subscribe(fn func(*types.Identity)) func() {
	l.mu.Lock()
	id := l.nextSub
	l.nextSub++
	l.subs = append(l.subs, subscription{id: id, fn: fn})
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			for i, s := range l.subs {
				if s.id == id {
					l.subs = append(l.subs[:i], l.subs[i+1:]...)
					break
				}
			}
		})
	}
}

// notify calls every subscriber in registration order. Must be called
// without l.mu held.
func (l *Local) notify(identity *types.Identity) {
	l.mu.Lock()
	subs := make([]subscription, len(l.subs))
	copy(subs, l.subs)
	l.mu.Unlock()

	for _, s := range subs {
		var arg *types.Identity
		if identity != nil {
			cp := *identity
			arg = &cp
		}
		s.fn(arg)
	}
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// SignIn implements Gateway.SignIn.
func (l *Local) SignIn(ctx context.Context, email, password string) (*types.Identity, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, newError(OpSignIn, err)
	}

	u, err := l.users.byEmail(ctx, email)
	if err != nil {
		return nil, newError(OpSignIn, err)
	}
	if u == nil || !l.hasher.verify(password, u.PasswordHash) {
		return nil, newError(OpSignIn, ErrInvalidCredentials)
	}

	identity, err := l.startSession(u)
	if err != nil {
		return nil, newError(OpSignIn, err)
	}
	l.logger.Printf("Signed in %s", u.Email)
	return identity, nil
}

// SignUp implements Gateway.SignUp.
func (l *Local) SignUp(ctx context.Context, email, password string) (*types.Identity, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, newError(OpSignUp, err)
	}
	if err := validatePassword(password); err != nil {
		return nil, newError(OpSignUp, err)
	}

	existing, err := l.users.byEmail(ctx, email)
	if err != nil {
		return nil, newError(OpSignUp, err)
	}
	if existing != nil {
		return nil, newError(OpSignUp, ErrEmailTaken)
	}

	hash, err := l.hasher.hash(password)
	if err != nil {
		return nil, newError(OpSignUp, fmt.Errorf("failed to hash password: %w", err))
	}

	u := &user{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := l.users.insert(ctx, u); err != nil {
		return nil, newError(OpSignUp, err)
	}

	identity, err := l.startSession(u)
	if err != nil {
		return nil, newError(OpSignUp, err)
	}
	l.logger.Printf("Registered %s", u.Email)
	return identity, nil
}

func (l *Local) startSession(u *user) (*types.Identity, error) {
	pair, err := l.tokens.issue(u.ID, u.Email)
	if err != nil {
		return nil, err
	}
	s := &session{
		Identity: types.Identity{UserID: u.ID, Email: u.Email, ExpiresAt: pair.ExpiresAt},
		Tokens:   pair,
	}
	if err := saveSession(l.sessionPath, s); err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.current = s
	identity := l.identityLocked()
	l.mu.Unlock()

	l.notify(identity)
	return identity, nil
}

// SignOut implements Gateway.SignOut. Signing out with nobody signed in is
// a no-op and notifies nobody.
func (l *Local) SignOut(ctx context.Context) error {
	l.mu.Lock()
	if l.current == nil {
		l.mu.Unlock()
		return nil
	}
	email := l.current.Identity.Email
	l.current = nil
	l.mu.Unlock()

	err := removeSession(l.sessionPath)
	l.notify(nil)
	if err != nil {
		return newError(OpSignOut, err)
	}
	l.logger.Printf("Signed out %s", email)
	return nil
}

// VerifyFresh implements Gateway.VerifyFresh.
func (l *Local) VerifyFresh(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current == nil {
		return newError(OpVerify, ErrNotAuthenticated)
	}

	if _, err := l.tokens.validate(l.current.Tokens.Access, tokenAccess); err == nil {
		return nil
	}

	c, err := l.tokens.validate(l.current.Tokens.Refresh, tokenRefresh)
	if err != nil {
		return newError(OpVerify, ErrTokenExpired)
	}
	if c.UserID != l.current.Identity.UserID {
		return newError(OpVerify, ErrTokenExpired)
	}

	pair, err := l.tokens.issue(c.UserID, c.Email)
	if err != nil {
		return newError(OpVerify, err)
	}
	refreshed := &session{
		Identity: l.current.Identity,
		Tokens:   pair,
	}
	refreshed.Identity.ExpiresAt = pair.ExpiresAt
	if err := saveSession(l.sessionPath, refreshed); err != nil {
		l.logger.Printf("Warning: failed to persist refreshed session: %v", err)
	}
	l.current = refreshed
	return nil
}

// IsAuthError reports whether err came from a gateway operation.
func IsAuthError(err error) bool {
	var ae *Error
	return errors.As(err, &ae)
}
