package authform

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Stable error codes. Callers may match on these.
const (
	CodeKeyLengthMin     = "PROTOCOL_ERR: KEY_LENGTH_MIN_6"
	CodeIdentityReserved = "IDENTITY_CONFLICT: ID_RESERVED"
	CodeLinkFailure      = "LINK_FAILURE"
)

// MinPasswordLength is the shortest password accepted before any remote call.
const MinPasswordLength = 6

// conflictMarker identifies a sign-up rejected because the email is taken.
const conflictMarker = "already registered"

// validatePassword returns the error code for a password that is too short,
// or "" when it is acceptable. Length is counted in characters, not bytes.
func validatePassword(password string) string {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return CodeKeyLengthMin
	}
	return ""
}

// isIdentityConflict reports whether a sign-up failure message says the
// identity already exists.
func isIdentityConflict(message string) bool {
	return strings.Contains(strings.ToLower(message), conflictMarker)
}

// NormalizeMessage turns a remote failure message into a display code: the
// message upper-cased with every whitespace run replaced by a single
// underscore. An empty message yields CodeLinkFailure.
//
// The result is not stable across remote message changes and must only be
// displayed.
func NormalizeMessage(message string) string {
	if message == "" {
		return CodeLinkFailure
	}

	upper := cases.Upper(language.Und).String(message)

	var b strings.Builder
	b.Grow(len(upper))
	inSpace := false
	for _, r := range upper {
		if unicode.IsSpace(r) {
			if !inSpace {
				b.WriteByte('_')
			}
			inSpace = true
			continue
		}
		inSpace = false
		b.WriteRune(r)
	}
	return b.String()
}

// localPart returns the part of email before the first "@", or the whole
// string when there is none.
func localPart(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}
