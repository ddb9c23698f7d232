package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenAccess  = "access"
	tokenRefresh = "refresh"
)

var errInvalidToken = errors.New("invalid token")

type claims struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

type tokenManager struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

type tokenPair struct {
	Access    string    `json:"access_token"`
	Refresh   string    `json:"refresh_token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (m *tokenManager) issue(userID, email string) (tokenPair, error) {
	now := m.now()
	access, err := m.sign(userID, email, tokenAccess, now, m.accessTTL)
	if err != nil {
		return tokenPair{}, err
	}
	refresh, err := m.sign(userID, email, tokenRefresh, now, m.refreshTTL)
	if err != nil {
		return tokenPair{}, err
	}
	return tokenPair{
		Access:    access,
		Refresh:   refresh,
		ExpiresAt: now.Add(m.accessTTL).UTC().Truncate(time.Second),
	}, nil
}

func (m *tokenManager) sign(userID, email, typ string, now time.Time, ttl time.Duration) (string, error) {
	c := claims{
		UserID:    userID,
		Email:     email,
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", typ, err)
	}
	return s, nil
}

// validate parses token and checks its type. Expired tokens yield
// ErrTokenExpired.
func (m *tokenManager) validate(token, typ string) (*claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errInvalidToken
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now), jwt.WithIssuer(m.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, errInvalidToken
	}

	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid || c.TokenType != typ {
		return nil, errInvalidToken
	}
	return c, nil
}
