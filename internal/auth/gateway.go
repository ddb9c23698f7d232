// Package auth provides the authentication gateway: the current identity,
// sign-in/sign-up/sign-out, token freshness checks and identity-change
// notifications.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/steveyegge/tasksync/internal/types"
)

var (
	// ErrInvalidCredentials is returned when the email or password is wrong.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrEmailTaken is returned when signing up with a registered email.
	ErrEmailTaken = errors.New("email already in use")
	// ErrInvalidEmail is returned when the email is malformed.
	ErrInvalidEmail = errors.New("invalid email format")
	// ErrWeakPassword is returned when the password is too short.
	ErrWeakPassword = errors.New("password must be at least 6 characters")
	// ErrNotAuthenticated is returned when no identity is signed in.
	ErrNotAuthenticated = errors.New("user not authenticated")
	// ErrTokenExpired is returned when the session can no longer be refreshed.
	ErrTokenExpired = errors.New("token verification failed")
)

// Gateway is the authentication provider consumed by the task store and the
// presentation layer.
type Gateway interface {
	// Current returns the signed-in identity, or nil.
	Current() *types.Identity

	// Subscribe registers fn for identity transitions. fn is not called for
	// the state at subscription time. The returned function unsubscribes and
	// is safe to call more than once.
	Subscribe(fn func(*types.Identity)) (unsubscribe func())

	SignIn(ctx context.Context, email, password string) (*types.Identity, error)
	SignUp(ctx context.Context, email, password string) (*types.Identity, error)
	SignOut(ctx context.Context) error

	// VerifyFresh fails closed when nobody is signed in and refreshes an
	// expired access token when possible.
	VerifyFresh(ctx context.Context) error
}

// Op names the gateway operation that failed.
type Op string

const (
	OpSignIn  Op = "Login"
	OpSignUp  Op = "Registration"
	OpSignOut Op = "Logout"
	OpVerify  Op = "Verification"
)

// Error carries a human-readable message for the presentation layer.
type Error struct {
	Op      Op
	Message string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op Op, err error) *Error {
	return &Error{Op: op, Message: err.Error(), Err: err}
}
