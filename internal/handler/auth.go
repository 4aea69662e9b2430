// Package handler contains HTTP handlers for the Uplink operator screens.
//
// This file implements the credential-entry form: rendering it in login or
// signup mode, switching modes, and submitting it through authform.
package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/DukeRupert/uplink/internal/authform"
	"github.com/DukeRupert/uplink/internal/csrf"
	"github.com/DukeRupert/uplink/internal/domain"
)

// TemplateRenderer is the interface for rendering HTML templates.
type TemplateRenderer interface {
	RenderHTTP(w http.ResponseWriter, name string, data interface{})
	RenderHTTPStatus(w http.ResponseWriter, status int, name string, data interface{})
}

// AuthHandler serves the credential-entry form.
//
// Routes handled:
//   - GET  /login   -> ShowLogin
//   - POST /login   -> Login
//   - POST /mode    -> SwitchMode
//   - GET  /welcome -> Welcome
type AuthHandler struct {
	forms           *authform.Orchestrator
	renderer        TemplateRenderer
	logger          *slog.Logger
	isSecure        bool
	successRedirect string
}

// NewAuthHandler creates a new AuthHandler. successRedirect is where the
// browser is sent after a successful submission.
func NewAuthHandler(
	forms *authform.Orchestrator,
	renderer TemplateRenderer,
	logger *slog.Logger,
	isSecure bool,
	successRedirect string,
) *AuthHandler {
	if successRedirect == "" {
		successRedirect = "/welcome"
	}
	return &AuthHandler{
		forms:           forms,
		renderer:        renderer,
		logger:          logger,
		isSecure:        isSecure,
		successRedirect: successRedirect,
	}
}

// =============================================================================
// Template Data Types
// =============================================================================

// LoginPageData is passed to the auth/login template. The password is never
// echoed back.
type LoginPageData struct {
	CurrentPath string
	CSRFToken   string
	Mode        string // "login" or "signup"
	Signup      bool
	Email       string
	Username    string
	Error       string // Error code from the form, empty when none
}

func (h *AuthHandler) pageData(r *http.Request, token string, form *authform.Form, fields authform.Fields) LoginPageData {
	mode := form.Mode()
	return LoginPageData{
		CurrentPath: r.URL.Path,
		CSRFToken:   token,
		Mode:        mode.String(),
		Signup:      mode == authform.ModeSignup,
		Email:       fields.Email,
		Username:    fields.Username,
		Error:       form.Err(),
	}
}

// parseMode reads a mode parameter. An absent value means login.
func parseMode(op, value string) (authform.Mode, error) {
	if value == "" {
		return authform.ModeLogin, nil
	}
	mode, err := authform.ParseMode(value)
	if err != nil {
		return 0, domain.Invalid(op, "Unknown mode. Use 'login' or 'signup'.")
	}
	return mode, nil
}

// fieldsFromForm reads the submitted fields. The request form must already
// be parsed.
func fieldsFromForm(r *http.Request) authform.Fields {
	return authform.Fields{
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
		Username: strings.TrimSpace(r.PostFormValue("username")),
	}
}

// parsePost parses a form post and checks its CSRF token. It writes the
// error response and returns false when the request must not proceed.
func (h *AuthHandler) parsePost(w http.ResponseWriter, r *http.Request, op string) bool {
	if err := r.ParseForm(); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Invalid form submission"))
		return false
	}
	if !csrf.ValidateRequest(r) {
		h.logger.Warn("csrf validation failed", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
		ForbiddenResponse(w, r, h.logger)
		return false
	}
	return true
}

// =============================================================================
// Handlers
// =============================================================================

// ShowLogin renders the form in the mode named by the "mode" query parameter.
func (h *AuthHandler) ShowLogin(w http.ResponseWriter, r *http.Request) {
	mode, err := parseMode("handler.show_login", r.URL.Query().Get("mode"))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	token := csrf.EnsureToken(w, r, h.isSecure)
	form := h.forms.NewFormInMode(mode, nil)
	h.renderer.RenderHTTP(w, "auth/login", h.pageData(r, token, form, authform.Fields{}))
}

// Login submits the form in the posted mode. On success the browser is
// redirected; otherwise the form is rendered again with the error code.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	const op = "handler.login"

	if !h.parsePost(w, r, op) {
		return
	}
	mode, err := parseMode(op, r.PostFormValue("mode"))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	fields := fieldsFromForm(r)
	granted := false
	form := h.forms.NewFormInMode(mode, func() { granted = true })
	out := form.Submit(r.Context(), fields)

	if granted {
		csrf.RefreshToken(w, h.isSecure)
		h.logger.Info("operator link established",
			"mode", out.Mode.String(),
			"identity_id", out.IdentityID,
		)
		http.Redirect(w, r, h.successRedirect, http.StatusSeeOther)
		return
	}

	h.logger.Info("operator link refused",
		"mode", out.Mode.String(),
		"status", out.Status.String(),
		"code", out.Code,
	)
	token := csrf.GetTokenFromRequest(r)
	h.renderer.RenderHTTPStatus(w, http.StatusUnprocessableEntity, "auth/login", h.pageData(r, token, form, fields))
}

// SwitchMode renders the form in the mode named by the "to" field, keeping
// the email and username and clearing any error.
func (h *AuthHandler) SwitchMode(w http.ResponseWriter, r *http.Request) {
	const op = "handler.switch_mode"

	if !h.parsePost(w, r, op) {
		return
	}
	current, err := parseMode(op, r.PostFormValue("mode"))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	target, err := parseMode(op, r.PostFormValue("to"))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	form := h.forms.NewFormInMode(current, nil)
	form.SetMode(target)

	fields := fieldsFromForm(r)
	fields.Password = ""
	token := csrf.GetTokenFromRequest(r)
	h.renderer.RenderHTTP(w, "auth/login", h.pageData(r, token, form, fields))
}

// Welcome renders the landing page shown after a successful submission.
func (h *AuthHandler) Welcome(w http.ResponseWriter, r *http.Request) {
	h.renderer.RenderHTTP(w, "auth/welcome", nil)
}

// RegisterRoutes registers the form's routes on mux.
func (h *AuthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /login", h.ShowLogin)
	mux.HandleFunc("POST /login", h.Login)
	mux.HandleFunc("POST /mode", h.SwitchMode)
	mux.HandleFunc("GET /welcome", h.Welcome)
}
