// Package csrf protects form posts with the double-submit cookie pattern:
// the same random token is set in a cookie and embedded in the form, and a
// post is accepted only when the two match. A cross-site page can make the
// browser send the cookie but cannot read it to fill in the form field.
package csrf

import (
	"crypto/rand"
	"crypto/subtle"
	"net/http"
)

const (
	// CookieName is the name of the CSRF token cookie.
	CookieName = "uplink_csrf"

	// FormFieldName is the name of the CSRF token form field.
	FormFieldName = "csrf_token"

	// CookieMaxAge is the lifetime of the CSRF cookie in seconds.
	CookieMaxAge = 3600
)

// GenerateToken returns a new random token carrying 128 bits of entropy.
func GenerateToken() string {
	return rand.Text()
}

// ValidateToken reports whether both tokens are present and equal.
func ValidateToken(cookieToken, formToken string) bool {
	if cookieToken == "" || formToken == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(cookieToken), []byte(formToken)) == 1
}

// ValidateRequest compares the cookie token with the posted form field.
func ValidateRequest(r *http.Request) bool {
	return ValidateToken(GetTokenFromRequest(r), r.PostFormValue(FormFieldName))
}

// SetCookie sets the CSRF token cookie on the response.
func SetCookie(w http.ResponseWriter, token string, isSecure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   CookieMaxAge,
		HttpOnly: true, // only the server-rendered form needs it
		Secure:   isSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

// GetTokenFromRequest returns the token from the request cookie, or "".
func GetTokenFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// EnsureToken returns the request's token, issuing a new cookie when there
// is none. Handlers call it when rendering a form.
func EnsureToken(w http.ResponseWriter, r *http.Request, isSecure bool) string {
	if token := GetTokenFromRequest(r); token != "" {
		return token
	}
	return RefreshToken(w, isSecure)
}

// RefreshToken issues a new token. Call it after a successful submission so
// a token is never reused across sign-ins.
func RefreshToken(w http.ResponseWriter, isSecure bool) string {
	token := GenerateToken()
	SetCookie(w, token, isSecure)
	return token
}
