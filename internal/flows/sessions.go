package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/authcore/identity"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/session"
)

// Principal identifies the caller of an authenticated request.
type Principal struct {
	UserID    string
	SessionID string
}

// SessionView is one active session as shown to its owner.
type SessionView struct {
	session.Session
	IsCurrent bool `json:"isCurrent"`
}

// RunAuthenticate verifies an access token and requires the session it
// names to still exist, be live and belong to the token's user.
func RunAuthenticate(ctx context.Context, accessToken string, deps Deps) (*Principal, error) {
	deps.normalize()
	if !deps.ready() {
		return nil, deps.Errors.EngineNotReady
	}

	claims, err := deps.Tokens.Verify(accessToken, jwt.ClassAccess)
	if err != nil {
		return nil, deps.Errors.TokenInvalid
	}

	sess, err := deps.Sessions.Get(ctx, claims.SessionID)
	if errors.Is(err, session.ErrNotFound) {
		return nil, deps.Errors.SessionNotFound
	}
	if err != nil {
		return nil, deps.storeErr(err)
	}
	if sess.Expired(deps.Now()) {
		return nil, deps.Errors.SessionExpired
	}
	if sess.UserID != claims.UserID {
		return nil, deps.Errors.Unauthorized
	}

	return &Principal{UserID: sess.UserID, SessionID: sess.ID}, nil
}

// RunListSessions returns the principal's live sessions, newest first.
func RunListSessions(ctx context.Context, p Principal, deps Deps) ([]SessionView, error) {
	deps.normalize()
	if !deps.ready() {
		return nil, deps.Errors.EngineNotReady
	}
	if p.UserID == "" {
		return nil, deps.Errors.Unauthorized
	}

	sessions, err := deps.Sessions.ListActiveForUser(ctx, p.UserID)
	if err != nil {
		return nil, deps.storeErr(err)
	}

	views := make([]SessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, SessionView{
			Session:   *s,
			IsCurrent: s.ID == p.SessionID,
		})
	}
	return views, nil
}

// RunCurrentUser loads the principal's user from the user store.
func RunCurrentUser(ctx context.Context, p Principal, deps Deps) (*identity.User, error) {
	deps.normalize()
	if !deps.ready() {
		return nil, deps.Errors.EngineNotReady
	}
	return loadUser(ctx, p.UserID, &deps)
}

// RunDeleteSession deletes one of the principal's own sessions.
func RunDeleteSession(ctx context.Context, p Principal, sessionID string, deps Deps) error {
	deps.normalize()
	if !deps.ready() {
		return deps.Errors.EngineNotReady
	}
	if p.UserID == "" {
		return deps.Errors.Unauthorized
	}

	err := deps.Sessions.DeleteOwned(ctx, p.UserID, sessionID)
	if errors.Is(err, session.ErrNotFound) {
		deps.EmitAudit(ctx, deps.Events.SessionDeleted, false, p.UserID, sessionID, deps.Errors.SessionNotOwned, nil)
		return deps.Errors.SessionNotOwned
	}
	if err != nil {
		return deps.storeErr(err)
	}

	deps.MetricInc(deps.Metrics.SessionDeleted)
	deps.EmitAudit(ctx, deps.Events.SessionDeleted, true, p.UserID, sessionID, nil, nil)
	return nil
}

// RunLogout deletes one session. Deleting a missing session succeeds.
func RunLogout(ctx context.Context, sessionID string, deps Deps) error {
	deps.normalize()
	if deps.Sessions == nil {
		return deps.Errors.EngineNotReady
	}
	if sessionID == "" {
		return nil
	}

	if err := deps.Sessions.DeleteByID(ctx, sessionID); err != nil {
		return deps.storeErr(err)
	}

	deps.MetricInc(deps.Metrics.Logout)
	deps.EmitAudit(ctx, deps.Events.Logout, true, "", sessionID, nil, nil)
	return nil
}

// RunLogoutAll deletes every session of a user.
func RunLogoutAll(ctx context.Context, userID string, deps Deps) (int, error) {
	deps.normalize()
	if deps.Sessions == nil {
		return 0, deps.Errors.EngineNotReady
	}

	n, err := deps.Sessions.DeleteAllForUser(ctx, userID)
	if err != nil {
		return 0, deps.storeErr(err)
	}

	deps.MetricInc(deps.Metrics.SessionsRevokedAll)
	deps.EmitAudit(ctx, deps.Events.SessionsRevoked, true, userID, "", nil, nil)
	return n, nil
}
