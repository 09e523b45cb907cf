package models

import "time"

// RefreshToken is one server-side session. The token string is opaque; the
// row, not the string, carries the revocation and expiry state.
type RefreshToken struct {
	ID        string     `db:"id" json:"id"`
	UserID    string     `db:"user_id" json:"user_id"`
	Token     string     `db:"token" json:"token"`
	ExpiresAt time.Time  `db:"expires_at" json:"expires_at"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	Revoked   bool       `db:"revoked" json:"revoked"`
	RevokedAt *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
	IPAddress string     `db:"ip_address" json:"ip_address"`
	UserAgent string     `db:"user_agent" json:"user_agent"`
}

// Exchangeable reports whether the session can still be traded for a new
// token pair at the given instant.
func (t *RefreshToken) Exchangeable(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}
