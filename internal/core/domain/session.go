package domain

import "time"

type Session struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Live reports whether the session is still valid at now. The comparison is
// strict: a session expiring exactly at now is expired.
func (s Session) Live(now time.Time) bool {
	return s.ExpiresAt.After(now)
}
