package session

import "time"

// Session is a standing authorization grant bound to one user and one
// client context.
//
// Generation increments on every renewal and lets callers detect refresh
// tokens minted before the latest rotation.
type Session struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	UserAgent  string    `json:"userAgent,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
	Generation uint32    `json:"-"`
}

// Expired reports whether the session is logically dead at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
