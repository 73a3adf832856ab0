package flows

import (
	"context"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/session"
)

// TokenPair is a freshly signed access and refresh token for one session.
type TokenPair struct {
	SessionID        string
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// issueSession creates a session and signs both tokens for it. A signing
// failure removes the session again so no orphan is left behind.
func issueSession(ctx context.Context, userID, userAgent string, deps *Deps) (*TokenPair, error) {
	sess, err := deps.Sessions.Create(ctx, userID, userAgent)
	if err != nil {
		return nil, deps.storeErr(err)
	}
	deps.MetricInc(deps.Metrics.SessionCreated)

	access, accessExp, err := signAccess(sess, deps)
	if err != nil {
		discardSession(ctx, sess.ID, deps)
		return nil, err
	}
	refresh, refreshExp, err := signRefresh(sess, deps)
	if err != nil {
		discardSession(ctx, sess.ID, deps)
		return nil, err
	}

	return &TokenPair{
		SessionID:        sess.ID,
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func signAccess(sess *session.Session, deps *Deps) (string, time.Time, error) {
	token, exp, err := deps.Tokens.Sign(jwt.Claims{
		UserID:    sess.UserID,
		SessionID: sess.ID,
	}, jwt.ClassAccess)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return token, exp, nil
}

func signRefresh(sess *session.Session, deps *Deps) (string, time.Time, error) {
	token, exp, err := deps.Tokens.Sign(jwt.Claims{
		SessionID:  sess.ID,
		Generation: sess.Generation,
	}, jwt.ClassRefresh)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return token, exp, nil
}

func discardSession(ctx context.Context, sessionID string, deps *Deps) {
	if err := deps.Sessions.DeleteByID(ctx, sessionID); err != nil {
		deps.Log.Warn(ctx, "discard session after signing failure", "session_id", sessionID, "error", err)
	}
}
