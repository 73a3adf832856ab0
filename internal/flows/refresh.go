package flows

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/session"
)

// RefreshResult always carries a new access token. RefreshToken is only set
// when the session was renewed and the refresh token rotated.
type RefreshResult struct {
	UserID           string
	SessionID        string
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	Rotated          bool
}

// RunRefresh exchanges a refresh token for a new access token, renewing the
// session and rotating the refresh token when the session is close to
// expiry.
func RunRefresh(ctx context.Context, refreshToken string, deps Deps) (*RefreshResult, error) {
	deps.normalize()
	if !deps.ready() {
		return nil, deps.Errors.EngineNotReady
	}

	claims, err := deps.Tokens.Verify(refreshToken, jwt.ClassRefresh)
	if err != nil {
		return nil, refreshFailure(ctx, "", "", deps.Errors.TokenInvalid, &deps)
	}

	sess, err := deps.Sessions.Get(ctx, claims.SessionID)
	if errors.Is(err, session.ErrNotFound) {
		return nil, refreshFailure(ctx, "", claims.SessionID, deps.Errors.SessionNotFound, &deps)
	}
	if err != nil {
		return nil, deps.storeErr(err)
	}
	if sess.Expired(deps.Now()) {
		return nil, refreshFailure(ctx, sess.UserID, sess.ID, deps.Errors.SessionExpired, &deps)
	}

	if deps.StrictRefreshRotation && claims.Generation != sess.Generation {
		return nil, refreshReuse(ctx, sess, claims.Generation, &deps)
	}

	renewed, err := deps.Sessions.RenewIfNeeded(ctx, sess)
	switch {
	case errors.Is(err, session.ErrNotFound):
		return nil, refreshFailure(ctx, sess.UserID, sess.ID, deps.Errors.SessionNotFound, &deps)
	case errors.Is(err, session.ErrExpired):
		return nil, refreshFailure(ctx, sess.UserID, sess.ID, deps.Errors.SessionExpired, &deps)
	case errors.Is(err, session.ErrStaleGeneration):
		return nil, refreshReuse(ctx, sess, claims.Generation, &deps)
	case err != nil:
		return nil, deps.storeErr(err)
	}

	res := &RefreshResult{
		UserID:    sess.UserID,
		SessionID: sess.ID,
		Rotated:   renewed,
	}

	res.AccessToken, res.AccessExpiresAt, err = signAccess(sess, &deps)
	if err != nil {
		return nil, err
	}
	if renewed {
		res.RefreshToken, res.RefreshExpiresAt, err = signRefresh(sess, &deps)
		if err != nil {
			return nil, err
		}
		deps.MetricInc(deps.Metrics.RefreshRotated)
	}

	deps.MetricInc(deps.Metrics.RefreshSuccess)
	deps.EmitAudit(ctx, deps.Events.Refresh, true, sess.UserID, sess.ID, nil, func() map[string]string {
		if renewed {
			return map[string]string{"rotated": "true"}
		}
		return map[string]string{"rotated": "false"}
	})

	return res, nil
}

func refreshFailure(ctx context.Context, userID, sessionID string, err error, deps *Deps) error {
	deps.MetricInc(deps.Metrics.RefreshFailure)
	deps.EmitAudit(ctx, deps.Events.Refresh, false, userID, sessionID, err, nil)
	return err
}

// refreshReuse revokes the session a rotated-away token belongs to.
func refreshReuse(ctx context.Context, sess *session.Session, presented uint32, deps *Deps) error {
	if err := deps.Sessions.DeleteByID(ctx, sess.ID); err != nil {
		deps.Log.Error(ctx, "revoke session after refresh reuse", "session_id", sess.ID, "error", err)
	}
	deps.MetricInc(deps.Metrics.RefreshReuseDetected)
	deps.Log.Warn(ctx, "refresh token reuse", "user_id", sess.UserID, "session_id", sess.ID)
	deps.EmitAudit(ctx, deps.Events.RefreshReuse, false, sess.UserID, sess.ID, deps.Errors.RefreshReuse, func() map[string]string {
		return map[string]string{
			"presented_generation": strconv.FormatUint(uint64(presented), 10),
			"session_generation":   strconv.FormatUint(uint64(sess.Generation), 10),
		}
	})
	return deps.Errors.RefreshReuse
}
