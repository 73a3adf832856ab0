package authcore

import (
	"github.com/MrEthical07/authcore/identity"
	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/session"
)

type (
	// User is the identity record. Credential fields never serialize.
	User        = identity.User
	Preferences = identity.Preferences
	// UserStore is the durable credential store the engine is built on.
	UserStore = identity.Store
	Session   = session.Session

	// Principal is the authenticated caller, produced by Authenticate and
	// passed explicitly into every session and MFA operation.
	Principal = flows.Principal

	RegisterInput = flows.RegisterInput
	TokenPair     = flows.TokenPair
	// LoginResult carries Tokens only when MFARequired is false.
	LoginResult          = flows.LoginResult
	RefreshResult        = flows.RefreshResult
	ForgotPasswordResult = flows.ForgotPasswordResult
	MFASetupResult       = flows.MFASetupResult
	// SessionView flags the session the request was made with.
	SessionView = flows.SessionView
)

// MFAStatus is returned by ConfirmMFASetup and RevokeMFA. Changed is false
// when the call was a no-op.
type MFAStatus struct {
	User    *User
	Changed bool
}
