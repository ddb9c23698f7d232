package types

import "time"

// Identity is the authenticated user that scopes every task record.
type Identity struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`

	// ExpiresAt is when the current access token stops being valid.
	ExpiresAt time.Time `json:"expires_at"`
}

// SameUser reports whether a and b refer to the same user. Two nil
// identities are the same user.
func SameUser(a, b *Identity) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.UserID == b.UserID
}
