package flows

import (
	"context"
	"net/http"
	"strings"

	"github.com/MrEthical07/ledgerAuth/backend"
)

type SignupMetrics struct {
	Success            int
	Failure            int
	Duplicate          int
	ValidationRejected int
	TransportFailure   int
}

type SignupEvents struct {
	Signup string
}

type SignupErrors struct {
	ClientNotReady   error
	NameRequired     error
	InvalidEmail     error
	PasswordMismatch error
	AccountExists    error
	SignupFailed     error
	Transport        error
}

// SignupInput is the account creation form.
type SignupInput struct {
	Name            string
	Email           string
	Password        string
	ConfirmPassword string
}

// SignupDeps captures account creation dependencies.
type SignupDeps struct {
	Common

	ValidEmail func(string) bool
	// CheckPassword returns the policy reason error for password, or nil.
	CheckPassword func(string) error

	Metrics SignupMetrics
	Events  SignupEvents
	Errors  SignupErrors
}

// RunSignup validates the form locally, in field order, and creates the
// account. It never touches session state.
func RunSignup(ctx context.Context, in SignupInput, deps SignupDeps) (string, error) {
	normalizeSignupDeps(&deps)
	if deps.API == nil {
		return "", deps.Errors.ClientNotReady
	}

	name := strings.TrimSpace(in.Name)
	email := strings.TrimSpace(in.Email)

	var invalid error
	switch {
	case name == "":
		invalid = deps.Errors.NameRequired
	case !deps.ValidEmail(email):
		invalid = deps.Errors.InvalidEmail
	case in.Password != in.ConfirmPassword:
		invalid = deps.Errors.PasswordMismatch
	default:
		invalid = deps.CheckPassword(in.Password)
	}
	if invalid != nil {
		deps.MetricInc(deps.Metrics.ValidationRejected)
		deps.EmitAudit(ctx, deps.Events.Signup, false, email, invalid, reasonMeta("validation"))
		return "", deps.Fail(invalid, "", nil)
	}

	msg, err := deps.API.CreateAccount(ctx, backend.SignupRequest{
		Name:     name,
		Email:    email,
		Password: in.Password,
	})
	if err != nil {
		detail := backend.Detail(err)
		switch {
		case backend.StatusCode(err) == http.StatusConflict:
			deps.MetricInc(deps.Metrics.Duplicate)
			deps.EmitAudit(ctx, deps.Events.Signup, false, email, deps.Errors.AccountExists, reasonMeta("duplicate"))
			return "", deps.Fail(deps.Errors.AccountExists, detail, err)
		case isRejection(err):
			deps.MetricInc(deps.Metrics.Failure)
			deps.EmitAudit(ctx, deps.Events.Signup, false, email, deps.Errors.SignupFailed, reasonMeta("rejected"))
			return "", deps.Fail(deps.Errors.SignupFailed, detail, err)
		default:
			deps.MetricInc(deps.Metrics.TransportFailure)
			deps.EmitAudit(ctx, deps.Events.Signup, false, email, deps.Errors.Transport, reasonMeta("transport"))
			return "", deps.Fail(deps.Errors.Transport, detail, err)
		}
	}

	deps.MetricInc(deps.Metrics.Success)
	deps.EmitAudit(ctx, deps.Events.Signup, true, email, nil, nil)
	return msg, nil
}

func normalizeSignupDeps(deps *SignupDeps) {
	normalizeCommon(&deps.Common)
	if deps.ValidEmail == nil {
		deps.ValidEmail = func(s string) bool { return s != "" }
	}
	if deps.CheckPassword == nil {
		deps.CheckPassword = func(string) error { return nil }
	}
}
