package mfa

// State is the MFA enrollment state of a user.
type State uint8

const (
	StateDisabled State = iota
	StatePending
	StateEnabled
)

func (s State) String() string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StatePending:
		return "pending"
	case StateEnabled:
		return "enabled"
	default:
		return "unknown"
	}
}

// StateOf derives the state from the stored flag and secret.
func StateOf(enabled bool, secret string) State {
	switch {
	case enabled:
		return StateEnabled
	case secret != "":
		return StatePending
	default:
		return StateDisabled
	}
}
