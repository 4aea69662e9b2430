// Package authform implements the credential-entry logic shared by every
// shell: switching between login and signup, validating the submitted
// fields, delegating to the identity service, and turning failures into the
// error codes shown to the operator.
//
// A Form owns the mode, the current error code and the busy flag for one
// form instance. The shell owns the field values and passes them to Submit.
// Only one Submit may be in flight per Form; keeping it that way (for example
// by disabling the submit control while Busy reports true) is the shell's job.
package authform

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/DukeRupert/uplink/internal/domain"
	"github.com/DukeRupert/uplink/internal/metrics"
)

// Identity is the remote identity/account service a form talks to.
type Identity interface {
	// SignIn validates credentials and returns the resulting session.
	SignIn(ctx context.Context, email, password string) (*domain.Session, error)

	// SignUp registers a new identity. The returned session's IdentityID
	// may be empty when the service defers account creation.
	SignUp(ctx context.Context, params domain.SignUpParams) (*domain.Session, error)

	// UpsertProfile creates or replaces the profile keyed by profile.ID.
	UpsertProfile(ctx context.Context, profile domain.Profile) error
}

// Fields are the values entered by the operator at submit time.
type Fields struct {
	Email    string
	Password string
	Username string // Signup only; defaults to the email's local part
}

// profileUsername returns the username to register and provision.
func (f Fields) profileUsername() string {
	if f.Username != "" {
		return f.Username
	}
	return localPart(f.Email)
}

// Status is the resolution of one submission.
type Status int

const (
	// StatusSucceeded means the remote call succeeded and OnSuccess fired.
	StatusSucceeded Status = iota
	// StatusRejected means local validation failed; nothing was sent.
	StatusRejected
	// StatusFailed means the remote service reported a failure.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSucceeded:
		return "succeeded"
	case StatusRejected:
		return "rejected"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Outcome describes how a submission resolved.
type Outcome struct {
	Mode       Mode
	Status     Status
	Code       string // Error code shown to the operator; empty on success
	IdentityID string // Identity returned by the service, if any
}

// OK reports whether the submission succeeded.
func (o Outcome) OK() bool {
	return o.Status == StatusSucceeded
}

// Orchestrator runs submissions against an identity service. It holds no
// per-form state and is safe to share between forms.
type Orchestrator struct {
	identity Identity
	logger   *slog.Logger
}

// NewOrchestrator creates an Orchestrator backed by identity.
func NewOrchestrator(identity Identity, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Orchestrator{
		identity: identity,
		logger:   logger,
	}
}

// NewForm creates a form in login mode. onSuccess is called once per
// successful submission, before Submit returns; it may be nil.
func (o *Orchestrator) NewForm(onSuccess func()) *Form {
	return o.NewFormInMode(ModeLogin, onSuccess)
}

// NewFormInMode creates a form starting in mode. An invalid mode falls back
// to login.
func (o *Orchestrator) NewFormInMode(mode Mode, onSuccess func()) *Form {
	if !mode.Valid() {
		mode = ModeLogin
	}
	if onSuccess == nil {
		onSuccess = func() {}
	}
	return &Form{
		orch:      o,
		mode:      mode,
		onSuccess: onSuccess,
	}
}

// Form is the state of one credential-entry form.
type Form struct {
	orch      *Orchestrator
	onSuccess func()

	mu   sync.Mutex
	mode Mode
	err  string
	busy bool
}

// Mode returns the active mode.
func (f *Form) Mode() Mode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mode
}

// SetMode switches the active mode and clears any error. It never changes
// the busy flag. Invalid modes are ignored.
func (f *Form) SetMode(mode Mode) {
	if !mode.Valid() {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mode = mode
	f.err = ""
}

// Err returns the current error code, or "" when there is none.
func (f *Form) Err() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Busy reports whether a submission is in flight.
func (f *Form) Busy() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.busy
}

func (f *Form) setErr(code string) {
	f.mu.Lock()
	f.err = code
	f.mu.Unlock()
}

func (f *Form) setBusy(busy bool) {
	f.mu.Lock()
	f.busy = busy
	f.mu.Unlock()
}

// Submit validates fields, performs the remote operation for the active
// mode and records the result on the form. It always returns an Outcome;
// failures are reported through Outcome.Code and Err, never as a panic.
//
// Fields are not modified. The success callback runs while the form is
// still busy. Cancelling ctx does not stop a submission once it has started;
// the identity client's own timeout is the only bound.
func (f *Form) Submit(ctx context.Context, fields Fields) Outcome {
	ctx = context.WithoutCancel(ctx)

	f.mu.Lock()
	f.err = ""
	mode := f.mode
	f.mu.Unlock()

	if code := validatePassword(fields.Password); code != "" {
		f.setErr(code)
		metrics.SubmitOutcome(mode.String(), StatusRejected.String())
		f.orch.logger.Debug("auth submission rejected", "mode", mode.String(), "code", code)
		return Outcome{Mode: mode, Status: StatusRejected, Code: code}
	}

	f.setBusy(true)
	metrics.SubmitStarted()
	start := time.Now()
	defer func() {
		f.setBusy(false)
		metrics.SubmitFinished(mode.String(), time.Since(start))
	}()

	out := f.run(ctx, mode, fields)
	f.setErr(out.Code)
	metrics.SubmitOutcome(mode.String(), out.Status.String())
	return out
}

// run performs the remote operation and the success callback, converting a
// panic from either into a failed outcome.
func (f *Form) run(ctx context.Context, mode Mode, fields Fields) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			f.orch.logger.Error("auth submission panicked", "mode", mode.String(), "panic", r)
			out = Outcome{Mode: mode, Status: StatusFailed, Code: NormalizeMessage(panicMessage(r))}
		}
	}()

	switch mode {
	case ModeSignup:
		out = f.orch.signUp(ctx, fields)
	default:
		out = f.orch.signIn(ctx, fields)
	}

	if out.OK() {
		f.onSuccess()
	}
	return out
}

func (o *Orchestrator) signIn(ctx context.Context, fields Fields) Outcome {
	session, err := o.identity.SignIn(ctx, fields.Email, fields.Password)
	if err != nil {
		o.logger.Info("sign in failed", "code", domain.ErrorCode(err), "error", err)
		return Outcome{Mode: ModeLogin, Status: StatusFailed, Code: NormalizeMessage(domain.ErrorMessage(err))}
	}

	out := Outcome{Mode: ModeLogin, Status: StatusSucceeded}
	if session != nil {
		out.IdentityID = session.IdentityID
	}
	o.logger.Info("signed in", "identity_id", out.IdentityID)
	return out
}

func (o *Orchestrator) signUp(ctx context.Context, fields Fields) Outcome {
	username := fields.profileUsername()

	session, err := o.identity.SignUp(ctx, domain.SignUpParams{
		Email:    fields.Email,
		Password: fields.Password,
		Username: username,
	})
	if err != nil {
		msg := domain.ErrorMessage(err)
		if isIdentityConflict(msg) {
			o.logger.Info("sign up conflict", "username", username)
			return Outcome{Mode: ModeSignup, Status: StatusFailed, Code: CodeIdentityReserved}
		}
		o.logger.Info("sign up failed", "code", domain.ErrorCode(err), "error", err)
		return Outcome{Mode: ModeSignup, Status: StatusFailed, Code: NormalizeMessage(msg)}
	}

	out := Outcome{Mode: ModeSignup, Status: StatusSucceeded}
	if session != nil && session.IdentityID != "" {
		out.IdentityID = session.IdentityID
		o.provisionProfile(ctx, domain.NewProfile(session.IdentityID, username))
	}
	o.logger.Info("signed up", "identity_id", out.IdentityID, "username", username)
	return out
}

// provisionProfile upserts the new identity's profile. Failures are logged
// and counted but never change the outcome of the sign-up.
func (o *Orchestrator) provisionProfile(ctx context.Context, profile domain.Profile) {
	defer func() {
		if r := recover(); r != nil {
			metrics.ProfileProvisionFailed()
			o.logger.Error("profile provisioning panicked", "identity_id", profile.ID, "panic", r)
		}
	}()

	if err := o.identity.UpsertProfile(ctx, profile); err != nil {
		metrics.ProfileProvisionFailed()
		o.logger.Warn("profile provisioning failed",
			"identity_id", profile.ID,
			"error", err,
		)
		return
	}
	metrics.ProfileProvisioned()
}

func panicMessage(r any) string {
	if err, ok := r.(error); ok {
		return err.Error()
	}
	return fmt.Sprint(r)
}
