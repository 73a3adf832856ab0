package authcore

import (
	"context"
	"time"
)

// Authenticate validates an access token and the live session behind it.
//
// Authenticate returns ErrTokenInvalid for bad tokens, ErrSessionNotFound
// or ErrSessionExpired when the session is gone, and ErrUnauthorized when
// the session belongs to another user.
func (e *Engine) Authenticate(ctx context.Context, accessToken string) (*Principal, error) {
	start := time.Now()
	p, err := e.flow.Authenticate(ctx, accessToken)
	if err != nil {
		e.metricInc(MetricAuthenticateFailure)
	}
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricAuthenticateLatency, time.Since(start))
	}
	return p, err
}

// ListSessions returns the principal's live sessions, newest first, with
// the calling session flagged.
func (e *Engine) ListSessions(ctx context.Context, p Principal) ([]SessionView, error) {
	return e.flow.ListSessions(ctx, p)
}

// CurrentUser loads the user record behind an authenticated principal.
func (e *Engine) CurrentUser(ctx context.Context, p Principal) (*User, error) {
	return e.flow.CurrentUser(ctx, p)
}

// DeleteSession deletes one of the principal's sessions. Sessions owned by
// someone else report ErrSessionNotOwned.
func (e *Engine) DeleteSession(ctx context.Context, p Principal, sessionID string) error {
	return e.flow.DeleteSession(ctx, p, sessionID)
}
