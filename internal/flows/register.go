package flows

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/MrEthical07/authcore/identity"
	"github.com/MrEthical07/authcore/internal/stores"
	"github.com/MrEthical07/authcore/notify"
)

// RegisterInput is an already decoded registration request.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// RunRegister creates the user and sends the account confirmation link.
// When only the notification fails the created user is returned together
// with a NotificationFailed error.
func RunRegister(ctx context.Context, in RegisterInput, deps Deps) (*identity.User, error) {
	deps.normalize()
	if !deps.ready() {
		return nil, deps.Errors.EngineNotReady
	}

	name := strings.TrimSpace(in.Name)
	email := identity.NormalizeEmail(in.Email)
	if name == "" {
		return nil, deps.Errors.Validation("name", "Name is required")
	}
	if email == "" {
		return nil, deps.Errors.Validation("email", "Email is required")
	}
	if err := deps.checkPassword("password", in.Password); err != nil {
		return nil, err
	}

	if _, err := deps.Users.ByEmail(ctx, email); err == nil {
		return nil, registerDuplicate(ctx, email, &deps)
	} else if !errors.Is(err, identity.ErrNotFound) {
		return nil, deps.storeErr(err)
	}

	hash, err := deps.Passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := deps.Users.Create(ctx, identity.NewUser{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
	})
	if errors.Is(err, identity.ErrEmailTaken) {
		return nil, registerDuplicate(ctx, email, &deps)
	}
	if err != nil {
		return nil, deps.storeErr(err)
	}

	deps.MetricInc(deps.Metrics.RegisterSuccess)
	deps.EmitAudit(ctx, deps.Events.Register, true, user.ID, "", nil, nil)

	if err := sendEmailVerification(ctx, user, &deps); err != nil {
		return user, err
	}
	return user, nil
}

func registerDuplicate(ctx context.Context, email string, deps *Deps) error {
	deps.MetricInc(deps.Metrics.RegisterDuplicate)
	deps.EmitAudit(ctx, deps.Events.Register, false, "", "", deps.Errors.EmailExists, func() map[string]string {
		return map[string]string{"email": email}
	})
	return deps.Errors.EmailExists
}

func sendEmailVerification(ctx context.Context, user *identity.User, deps *Deps) error {
	code, err := deps.Codes.Issue(ctx, user.ID, stores.PurposeEmailVerification, deps.EmailVerification.Lifetime, deps.EmailVerification.Limit)
	if errors.Is(err, stores.ErrRateLimited) {
		return deps.Errors.EmailVerificationRateLimited
	}
	if err != nil {
		return deps.storeErr(err)
	}

	link := buildLink(deps.Origin, "/confirm-account", url.Values{"code": {code.Value}})
	return deliver(ctx, notify.Message{
		Kind:      notify.KindEmailVerification,
		To:        user.Email,
		Name:      user.Name,
		Subject:   notify.Subject(notify.KindEmailVerification),
		Link:      link,
		ExpiresAt: code.ExpiresAt,
	}, user.ID, deps)
}

func deliver(ctx context.Context, msg notify.Message, userID string, deps *Deps) error {
	if err := deps.Notifier.Notify(ctx, msg); err != nil {
		deps.MetricInc(deps.Metrics.NotificationFailure)
		deps.Log.Error(ctx, "notification failed", "kind", string(msg.Kind), "user_id", userID, "error", err)
		return fmt.Errorf("%w: %v", deps.Errors.NotificationFailed, err)
	}
	return nil
}

// buildLink joins origin and path and appends the query in a stable order.
func buildLink(origin, path string, query url.Values) string {
	return strings.TrimSuffix(origin, "/") + path + "?" + encodeOrdered(query)
}

func encodeOrdered(query url.Values) string {
	// code always leads; the rest follows in key order.
	var b strings.Builder
	if v, ok := query["code"]; ok && len(v) > 0 {
		b.WriteString("code=")
		b.WriteString(url.QueryEscape(v[0]))
		delete(query, "code")
	}
	rest := query.Encode()
	if rest != "" {
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(rest)
	}
	return b.String()
}
