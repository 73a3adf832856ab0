package flows

import (
	"context"

	"github.com/MrEthical07/authcore/identity"
)

// Service is the flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	deps.normalize()
	return Service{deps: deps}
}

// Initialized reports whether every required collaborator is wired.
func (s Service) Initialized() bool {
	return s.deps.ready()
}

func (s Service) Register(ctx context.Context, in RegisterInput) (*identity.User, error) {
	return RunRegister(ctx, in, s.deps)
}

func (s Service) Login(ctx context.Context, email, password, userAgent string) (*LoginResult, error) {
	return RunLogin(ctx, email, password, userAgent, s.deps)
}

func (s Service) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	return RunRefresh(ctx, refreshToken, s.deps)
}

func (s Service) VerifyEmail(ctx context.Context, code string) (*identity.User, error) {
	return RunVerifyEmail(ctx, code, s.deps)
}

func (s Service) ForgotPassword(ctx context.Context, email string) (*ForgotPasswordResult, error) {
	return RunForgotPassword(ctx, email, s.deps)
}

func (s Service) ResetPassword(ctx context.Context, newPassword, code string) error {
	return RunResetPassword(ctx, newPassword, code, s.deps)
}

func (s Service) BeginMFASetup(ctx context.Context, userID string) (*MFASetupResult, error) {
	return RunBeginMFASetup(ctx, userID, s.deps)
}

func (s Service) ConfirmMFASetup(ctx context.Context, userID, code, secretKey string) (*identity.User, bool, error) {
	return RunConfirmMFASetup(ctx, userID, code, secretKey, s.deps)
}

func (s Service) VerifyMFALogin(ctx context.Context, email, code, userAgent string) (*LoginResult, error) {
	return RunVerifyMFALogin(ctx, email, code, userAgent, s.deps)
}

func (s Service) RevokeMFA(ctx context.Context, userID string) (*identity.User, bool, error) {
	return RunRevokeMFA(ctx, userID, s.deps)
}

func (s Service) Authenticate(ctx context.Context, accessToken string) (*Principal, error) {
	return RunAuthenticate(ctx, accessToken, s.deps)
}

func (s Service) ListSessions(ctx context.Context, p Principal) ([]SessionView, error) {
	return RunListSessions(ctx, p, s.deps)
}

func (s Service) CurrentUser(ctx context.Context, p Principal) (*identity.User, error) {
	return RunCurrentUser(ctx, p, s.deps)
}

func (s Service) DeleteSession(ctx context.Context, p Principal, sessionID string) error {
	return RunDeleteSession(ctx, p, sessionID, s.deps)
}

func (s Service) Logout(ctx context.Context, sessionID string) error {
	return RunLogout(ctx, sessionID, s.deps)
}

func (s Service) LogoutAll(ctx context.Context, userID string) (int, error) {
	return RunLogoutAll(ctx, userID, s.deps)
}
