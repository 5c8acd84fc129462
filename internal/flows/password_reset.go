package flows

import (
	"context"
	"net/http"
	"strings"

	"github.com/MrEthical07/ledgerAuth/backend"
)

type PasswordResetMetrics struct {
	Request            int
	RequestFailure     int
	ConfirmSuccess     int
	ConfirmFailure     int
	ValidationRejected int
	TransportFailure   int
}

type PasswordResetEvents struct {
	Request string
	Code    string
	Confirm string
}

type PasswordResetErrors struct {
	ClientNotReady   error
	InvalidEmail     error
	InvalidCode      error
	PasswordMismatch error
	PasswordTooShort error
	ResetFailed      error
	Transport        error
}

// ResetInput is the final reset step, carrying what the earlier steps
// collected.
type ResetInput struct {
	Email           string
	Code            string
	NewPassword     string
	ConfirmPassword string
}

// PasswordResetDeps captures password reset dependencies.
type PasswordResetDeps struct {
	Common

	CodeDigits        int
	MinPasswordLength int
	ValidEmail        func(string) bool
	ValidCode         func(string, int) bool

	Metrics PasswordResetMetrics
	Events  PasswordResetEvents
	Errors  PasswordResetErrors
}

// RunRequestPasswordReset asks the backend to email a reset code. A 404 is
// treated like success so the outcome does not reveal whether the account
// exists.
func RunRequestPasswordReset(ctx context.Context, email string, deps PasswordResetDeps) (string, error) {
	normalizePasswordResetDeps(&deps)
	if deps.API == nil {
		return "", deps.Errors.ClientNotReady
	}

	email = strings.TrimSpace(email)
	if !deps.ValidEmail(email) {
		deps.MetricInc(deps.Metrics.ValidationRejected)
		deps.EmitAudit(ctx, deps.Events.Request, false, email, deps.Errors.InvalidEmail, reasonMeta("validation"))
		return "", deps.Fail(deps.Errors.InvalidEmail, "", nil)
	}

	msg, err := deps.API.RequestReset(ctx, backend.EmailRequest{Email: email})
	if err != nil {
		detail := backend.Detail(err)
		switch {
		case backend.StatusCode(err) == http.StatusNotFound:
			deps.MetricInc(deps.Metrics.Request)
			deps.EmitAudit(ctx, deps.Events.Request, true, email, nil, func() map[string]string {
				return map[string]string{"enumeration_safe": "true"}
			})
			return detail, nil
		case isRejection(err):
			deps.MetricInc(deps.Metrics.RequestFailure)
			deps.EmitAudit(ctx, deps.Events.Request, false, email, deps.Errors.ResetFailed, reasonMeta("rejected"))
			return "", deps.Fail(deps.Errors.ResetFailed, detail, err)
		default:
			deps.MetricInc(deps.Metrics.TransportFailure)
			deps.EmitAudit(ctx, deps.Events.Request, false, email, deps.Errors.Transport, reasonMeta("transport"))
			return "", deps.Fail(deps.Errors.Transport, detail, err)
		}
	}

	deps.MetricInc(deps.Metrics.Request)
	deps.EmitAudit(ctx, deps.Events.Request, true, email, nil, nil)
	return msg, nil
}

// RunCheckResetCode shape-checks the emailed code. It makes no backend call;
// the code is only verified by the final step.
func RunCheckResetCode(ctx context.Context, email, code string, deps PasswordResetDeps) error {
	normalizePasswordResetDeps(&deps)

	if !deps.ValidCode(strings.TrimSpace(code), deps.CodeDigits) {
		deps.MetricInc(deps.Metrics.ValidationRejected)
		deps.EmitAudit(ctx, deps.Events.Code, false, email, deps.Errors.InvalidCode, reasonMeta("validation"))
		return deps.Fail(deps.Errors.InvalidCode, "", nil)
	}
	deps.EmitAudit(ctx, deps.Events.Code, true, email, nil, nil)
	return nil
}

// RunConfirmPasswordReset checks the new password locally and submits email,
// code and password in a single call. Only an explicit 2xx is success.
func RunConfirmPasswordReset(ctx context.Context, in ResetInput, deps PasswordResetDeps) (string, error) {
	normalizePasswordResetDeps(&deps)
	if deps.API == nil {
		return "", deps.Errors.ClientNotReady
	}

	var invalid error
	switch {
	case in.NewPassword != in.ConfirmPassword:
		invalid = deps.Errors.PasswordMismatch
	case len([]rune(in.NewPassword)) < deps.MinPasswordLength:
		invalid = deps.Errors.PasswordTooShort
	}
	if invalid != nil {
		deps.MetricInc(deps.Metrics.ValidationRejected)
		deps.EmitAudit(ctx, deps.Events.Confirm, false, in.Email, invalid, reasonMeta("validation"))
		return "", deps.Fail(invalid, "", nil)
	}

	msg, err := deps.API.ResetWithCode(ctx, backend.ResetRequest{
		Email:           in.Email,
		OTP:             strings.TrimSpace(in.Code),
		NewPassword:     in.NewPassword,
		ConfirmPassword: in.ConfirmPassword,
	})
	if err != nil {
		detail := backend.Detail(err)
		if isRejection(err) {
			deps.MetricInc(deps.Metrics.ConfirmFailure)
			deps.EmitAudit(ctx, deps.Events.Confirm, false, in.Email, deps.Errors.ResetFailed, reasonMeta("rejected"))
			return "", deps.Fail(deps.Errors.ResetFailed, detail, err)
		}
		deps.MetricInc(deps.Metrics.TransportFailure)
		deps.EmitAudit(ctx, deps.Events.Confirm, false, in.Email, deps.Errors.Transport, reasonMeta("transport"))
		return "", deps.Fail(deps.Errors.Transport, detail, err)
	}

	deps.MetricInc(deps.Metrics.ConfirmSuccess)
	deps.EmitAudit(ctx, deps.Events.Confirm, true, in.Email, nil, nil)
	return msg, nil
}

func normalizePasswordResetDeps(deps *PasswordResetDeps) {
	normalizeCommon(&deps.Common)
	if deps.CodeDigits <= 0 {
		deps.CodeDigits = 6
	}
	if deps.MinPasswordLength <= 0 {
		deps.MinPasswordLength = 8
	}
	if deps.ValidEmail == nil {
		deps.ValidEmail = func(s string) bool { return s != "" }
	}
	if deps.ValidCode == nil {
		deps.ValidCode = func(s string, n int) bool { return len(s) == n }
	}
}
