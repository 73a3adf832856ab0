package flows

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/authcore/identity"
	"github.com/MrEthical07/authcore/internal/stores"
)

// RunVerifyEmail consumes an email-verification code and marks its owner
// verified. Unknown, expired, reused and orphaned codes all fail the same way.
func RunVerifyEmail(ctx context.Context, code string, deps Deps) (*identity.User, error) {
	deps.normalize()
	if !deps.ready() {
		return nil, deps.Errors.EngineNotReady
	}

	code = strings.TrimSpace(code)
	if code == "" {
		return nil, emailVerificationFailure(ctx, "", "empty_code", &deps)
	}

	userID, err := deps.Codes.Consume(ctx, code, stores.PurposeEmailVerification)
	if errors.Is(err, stores.ErrCodeNotFound) {
		return nil, emailVerificationFailure(ctx, "", "code_not_found", &deps)
	}
	if err != nil {
		return nil, deps.storeErr(err)
	}

	user, err := deps.Users.MarkEmailVerified(ctx, userID)
	if errors.Is(err, identity.ErrNotFound) {
		return nil, emailVerificationFailure(ctx, userID, "user_not_found", &deps)
	}
	if err != nil {
		return nil, deps.storeErr(err)
	}

	deps.MetricInc(deps.Metrics.EmailVerificationSuccess)
	deps.EmitAudit(ctx, deps.Events.EmailVerification, true, user.ID, "", nil, nil)
	return user, nil
}

func emailVerificationFailure(ctx context.Context, userID, reason string, deps *Deps) error {
	deps.MetricInc(deps.Metrics.EmailVerificationFailure)
	deps.EmitAudit(ctx, deps.Events.EmailVerification, false, userID, "", deps.Errors.VerificationCodeInvalid, func() map[string]string {
		return map[string]string{"reason": reason}
	})
	return deps.Errors.VerificationCodeInvalid
}
