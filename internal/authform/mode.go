package authform

import "fmt"

// Mode selects which remote operation a submission performs.
type Mode int

const (
	// ModeLogin signs in an existing identity.
	ModeLogin Mode = iota
	// ModeSignup registers a new identity and provisions its profile.
	ModeSignup
)

// String returns the wire name of the mode ("login" or "signup").
func (m Mode) String() string {
	switch m {
	case ModeLogin:
		return "login"
	case ModeSignup:
		return "signup"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Valid reports whether m is one of the two defined modes.
func (m Mode) Valid() bool {
	return m == ModeLogin || m == ModeSignup
}

// ParseMode converts a wire name into a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "login":
		return ModeLogin, nil
	case "signup":
		return ModeSignup, nil
	default:
		return ModeLogin, fmt.Errorf("unknown auth mode %q", s)
	}
}
