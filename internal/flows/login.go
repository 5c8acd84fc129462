package flows

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/MrEthical07/ledgerAuth/backend"
	"github.com/MrEthical07/ledgerAuth/session"
)

// LoginStore is the part of the session store the login steps use.
type LoginStore interface {
	Load(ctx context.Context) error
	IsAuthenticated() bool
	Pending() *session.Pending
	BeginPending(ctx context.Context, p session.Pending) error
	ClearPending(ctx context.Context) error
	EstablishFromPending(ctx context.Context, s session.Session) error
}

type LoginMetrics struct {
	SubmitSuccess      int
	SubmitFailure      int
	Unverified         int
	VerifySuccess      int
	VerifyFailure      int
	Resend             int
	ResendFailure      int
	ValidationRejected int
	TransportFailure   int
}

type LoginEvents struct {
	Submit string
	Verify string
	Resend string
}

type LoginErrors struct {
	ClientNotReady       error
	AlreadyAuthenticated error
	NoPendingSession     error
	InvalidEmail         error
	PasswordRequired     error
	InvalidCode          error
	InvalidCredentials   error
	UnverifiedEmail      error
	OTPRejected          error
	ResendFailed         error
	MalformedToken       error
	Transport            error
	SessionUnavailable   error
	FlowAbandoned        error
}

// LoginDeps captures login step dependencies.
type LoginDeps struct {
	Common

	Store             LoginStore
	CodeDigits        int
	UnverifiedMarkers []string

	ValidEmail     func(string) bool
	ValidCode      func(string, int) bool
	InspectToken   func(string) error
	NormalizeRoles func([]string) []string
	Landing        func([]string) string

	Metrics LoginMetrics
	Events  LoginEvents
	Errors  LoginErrors
}

// VerifyResult is the outcome of a successful code exchange.
type VerifyResult struct {
	Session session.Session
	Landing string
}

// RunSubmitCredentials validates the credentials locally, exchanges them for
// a temporary token and persists the pending session.
func RunSubmitCredentials(ctx context.Context, email, password string, deps LoginDeps) (session.Pending, error) {
	normalizeLoginDeps(&deps)
	if deps.API == nil || deps.Store == nil {
		return session.Pending{}, deps.Errors.ClientNotReady
	}
	email = strings.TrimSpace(email)

	if deps.Store.IsAuthenticated() {
		deps.EmitAudit(ctx, deps.Events.Submit, false, email, deps.Errors.AlreadyAuthenticated, reasonMeta("already_authenticated"))
		return session.Pending{}, deps.Fail(deps.Errors.AlreadyAuthenticated, "", nil)
	}

	var invalid error
	switch {
	case !deps.ValidEmail(email):
		invalid = deps.Errors.InvalidEmail
	case password == "":
		invalid = deps.Errors.PasswordRequired
	}
	if invalid != nil {
		discardPending(ctx, deps)
		deps.MetricInc(deps.Metrics.ValidationRejected)
		deps.EmitAudit(ctx, deps.Events.Submit, false, email, invalid, reasonMeta("validation"))
		return session.Pending{}, deps.Fail(invalid, "", nil)
	}

	resp, err := deps.API.SubmitCredentials(ctx, backend.Credentials{Email: email, Password: password})
	if err != nil {
		discardPending(ctx, deps)
		detail := backend.Detail(err)
		switch {
		case !isRejection(err):
			deps.MetricInc(deps.Metrics.TransportFailure)
			deps.EmitAudit(ctx, deps.Events.Submit, false, email, deps.Errors.Transport, reasonMeta("transport"))
			return session.Pending{}, deps.Fail(deps.Errors.Transport, detail, err)
		case backend.ContainsMarker(detail, deps.UnverifiedMarkers):
			deps.MetricInc(deps.Metrics.Unverified)
			deps.EmitAudit(ctx, deps.Events.Submit, false, email, deps.Errors.UnverifiedEmail, reasonMeta("unverified"))
			return session.Pending{}, deps.Fail(deps.Errors.UnverifiedEmail, detail, err)
		default:
			deps.MetricInc(deps.Metrics.SubmitFailure)
			deps.EmitAudit(ctx, deps.Events.Submit, false, email, deps.Errors.InvalidCredentials, reasonMeta("rejected"))
			return session.Pending{}, deps.Fail(deps.Errors.InvalidCredentials, detail, err)
		}
	}

	if resp.Verified != nil && !*resp.Verified {
		discardPending(ctx, deps)
		deps.MetricInc(deps.Metrics.Unverified)
		deps.EmitAudit(ctx, deps.Events.Submit, false, email, deps.Errors.UnverifiedEmail, reasonMeta("unverified_flag"))
		return session.Pending{}, deps.Fail(deps.Errors.UnverifiedEmail, "", nil)
	}

	token := strings.TrimSpace(resp.Token)
	if err := deps.InspectToken(token); err != nil {
		discardPending(ctx, deps)
		deps.MetricInc(deps.Metrics.SubmitFailure)
		deps.EmitAudit(ctx, deps.Events.Submit, false, email, deps.Errors.MalformedToken, reasonMeta("malformed_token"))
		return session.Pending{}, deps.Fail(deps.Errors.MalformedToken, "", err)
	}

	pending := session.Pending{
		TempToken: token,
		TempRoles: deps.NormalizeRoles(resp.Roles),
		Email:     email,
	}
	if err := deps.Commit(func() error { return deps.Store.BeginPending(ctx, pending) }); err != nil {
		return session.Pending{}, loginStoreFailure(ctx, deps, deps.Events.Submit, email, err)
	}

	deps.MetricInc(deps.Metrics.SubmitSuccess)
	deps.EmitAudit(ctx, deps.Events.Submit, true, email, nil, nil)
	return pending, nil
}

// RunVerifyCode exchanges the one-time code for the final session. A response
// is trusted only when it carries verified=true and a signed-token-shaped
// token.
func RunVerifyCode(ctx context.Context, code string, deps LoginDeps) (VerifyResult, error) {
	normalizeLoginDeps(&deps)
	if deps.API == nil || deps.Store == nil {
		return VerifyResult{}, deps.Errors.ClientNotReady
	}

	if deps.Store.IsAuthenticated() {
		return VerifyResult{}, deps.Fail(deps.Errors.AlreadyAuthenticated, "", nil)
	}
	pending := deps.Store.Pending()
	if pending == nil {
		deps.EmitAudit(ctx, deps.Events.Verify, false, "", deps.Errors.NoPendingSession, reasonMeta("no_pending_session"))
		return VerifyResult{}, deps.Fail(deps.Errors.NoPendingSession, "", nil)
	}
	email := pending.Email

	code = strings.TrimSpace(code)
	if !deps.ValidCode(code, deps.CodeDigits) {
		deps.MetricInc(deps.Metrics.ValidationRejected)
		deps.EmitAudit(ctx, deps.Events.Verify, false, email, deps.Errors.InvalidCode, reasonMeta("validation"))
		return VerifyResult{}, deps.Fail(deps.Errors.InvalidCode, "", nil)
	}

	resp, err := deps.API.VerifyCode(ctx, backend.CodeRequest{Email: email, OTP: code})
	if err != nil {
		detail := backend.Detail(err)
		if isRejection(err) && signedInElsewhere(ctx, deps) {
			deps.EmitAudit(ctx, deps.Events.Verify, false, email, deps.Errors.AlreadyAuthenticated, reasonMeta("already_authenticated"))
			return VerifyResult{}, deps.Fail(deps.Errors.AlreadyAuthenticated, "", err)
		}
		if isRejection(err) {
			deps.MetricInc(deps.Metrics.VerifyFailure)
			deps.EmitAudit(ctx, deps.Events.Verify, false, email, deps.Errors.OTPRejected, reasonMeta("rejected"))
			return VerifyResult{}, deps.Fail(deps.Errors.OTPRejected, detail, err)
		}
		deps.MetricInc(deps.Metrics.TransportFailure)
		deps.EmitAudit(ctx, deps.Events.Verify, false, email, deps.Errors.Transport, reasonMeta("transport"))
		return VerifyResult{}, deps.Fail(deps.Errors.Transport, detail, err)
	}

	if !resp.IsVerified() {
		deps.MetricInc(deps.Metrics.VerifyFailure)
		deps.EmitAudit(ctx, deps.Events.Verify, false, email, deps.Errors.OTPRejected, reasonMeta("not_confirmed"))
		return VerifyResult{}, deps.Fail(deps.Errors.OTPRejected, "", nil)
	}

	token := strings.TrimSpace(resp.Token)
	if err := deps.InspectToken(token); err != nil {
		// The exchange cannot be retried with this pending session.
		discardPending(ctx, deps)
		deps.MetricInc(deps.Metrics.VerifyFailure)
		deps.EmitAudit(ctx, deps.Events.Verify, false, email, deps.Errors.MalformedToken, reasonMeta("malformed_token"))
		return VerifyResult{}, deps.Fail(deps.Errors.MalformedToken, "", err)
	}

	roles := deps.NormalizeRoles(resp.Roles)
	if len(roles) == 0 {
		roles = deps.NormalizeRoles(pending.TempRoles)
	}
	sess := session.Session{Token: token, Roles: roles}

	if err := deps.Commit(func() error { return deps.Store.EstablishFromPending(ctx, sess) }); err != nil {
		return VerifyResult{}, loginStoreFailure(ctx, deps, deps.Events.Verify, email, err)
	}

	landing := deps.Landing(roles)
	deps.MetricInc(deps.Metrics.VerifySuccess)
	deps.EmitAudit(ctx, deps.Events.Verify, true, email, nil, func() map[string]string {
		return map[string]string{"landing": landing}
	})
	return VerifyResult{Session: sess, Landing: landing}, nil
}

// RunResendCode asks the backend to send a new code for the pending session.
// It never reads or writes session state beyond the pending lookup.
func RunResendCode(ctx context.Context, deps LoginDeps) error {
	normalizeLoginDeps(&deps)
	if deps.API == nil || deps.Store == nil {
		return deps.Errors.ClientNotReady
	}

	pending := deps.Store.Pending()
	if pending == nil {
		deps.EmitAudit(ctx, deps.Events.Resend, false, "", deps.Errors.NoPendingSession, reasonMeta("no_pending_session"))
		return deps.Fail(deps.Errors.NoPendingSession, "", nil)
	}

	err := deps.API.DispatchCode(ctx, pending.TempToken, backend.EmailRequest{Email: pending.Email})
	if err != nil {
		deps.MetricInc(deps.Metrics.ResendFailure)
		deps.EmitAudit(ctx, deps.Events.Resend, false, pending.Email, deps.Errors.ResendFailed, nil)
		return deps.Fail(deps.Errors.ResendFailed, backend.Detail(err), err)
	}

	deps.MetricInc(deps.Metrics.Resend)
	deps.EmitAudit(ctx, deps.Events.Resend, true, pending.Email, nil, nil)
	return nil
}

// isRejection reports whether err is a 4xx answer from the backend, as
// opposed to a transport failure or server fault.
func isRejection(err error) bool {
	status := backend.StatusCode(err)
	return status >= http.StatusBadRequest && status < http.StatusInternalServerError && status != http.StatusTooManyRequests
}

// signedInElsewhere reloads the store and reports whether a concurrent flow,
// possibly in another process, finished this login with the same code.
func signedInElsewhere(ctx context.Context, deps LoginDeps) bool {
	if err := deps.Store.Load(ctx); err != nil {
		deps.Warn(ctx, "reload session after code rejection failed", err)
	}
	return deps.Store.IsAuthenticated()
}

func discardPending(ctx context.Context, deps LoginDeps) {
	err := deps.Commit(func() error { return deps.Store.ClearPending(ctx) })
	if err != nil && !errors.Is(err, deps.Errors.FlowAbandoned) {
		deps.Warn(ctx, "discard pending session failed", err)
	}
}

func loginStoreFailure(ctx context.Context, deps LoginDeps, event, email string, err error) error {
	switch {
	case errors.Is(err, deps.Errors.FlowAbandoned):
		deps.EmitAudit(ctx, event, false, email, err, reasonMeta("abandoned"))
		return err
	case errors.Is(err, session.ErrAlreadyAuthenticated):
		deps.EmitAudit(ctx, event, false, email, deps.Errors.AlreadyAuthenticated, reasonMeta("already_authenticated"))
		return deps.Fail(deps.Errors.AlreadyAuthenticated, "", err)
	case errors.Is(err, session.ErrNoPendingSession):
		deps.EmitAudit(ctx, event, false, email, deps.Errors.NoPendingSession, reasonMeta("no_pending_session"))
		return deps.Fail(deps.Errors.NoPendingSession, "", err)
	default:
		deps.Warn(ctx, "session store write failed", err)
		deps.EmitAudit(ctx, event, false, email, deps.Errors.SessionUnavailable, reasonMeta("store"))
		return deps.Fail(deps.Errors.SessionUnavailable, "", err)
	}
}

func normalizeLoginDeps(deps *LoginDeps) {
	normalizeCommon(&deps.Common)
	if deps.CodeDigits <= 0 {
		deps.CodeDigits = 6
	}
	if deps.ValidEmail == nil {
		deps.ValidEmail = func(s string) bool { return s != "" }
	}
	if deps.ValidCode == nil {
		deps.ValidCode = func(s string, n int) bool { return len(s) == n }
	}
	if deps.InspectToken == nil {
		deps.InspectToken = func(s string) error {
			if s == "" {
				return deps.Errors.MalformedToken
			}
			return nil
		}
	}
	if deps.NormalizeRoles == nil {
		deps.NormalizeRoles = func(r []string) []string { return r }
	}
	if deps.Landing == nil {
		deps.Landing = func([]string) string { return "" }
	}
}
