package flows

import (
	"context"
	"strings"

	"github.com/MrEthical07/ledgerAuth/backend"
)

type EmailVerificationMetrics struct {
	Success          int
	Failure          int
	TransportFailure int
}

type EmailVerificationEvents struct {
	Confirm string
}

type EmailVerificationErrors struct {
	ClientNotReady     error
	InvalidLink        error
	VerificationFailed error
	Transport          error
}

// EmailVerificationDeps captures email confirmation dependencies.
type EmailVerificationDeps struct {
	Common

	Metrics EmailVerificationMetrics
	Events  EmailVerificationEvents
	Errors  EmailVerificationErrors
}

// RunVerifyEmail confirms an address with the token from the emailed link.
// It never touches session state.
func RunVerifyEmail(ctx context.Context, token string, deps EmailVerificationDeps) (string, error) {
	normalizeCommon(&deps.Common)
	if deps.API == nil {
		return "", deps.Errors.ClientNotReady
	}

	token = strings.TrimSpace(token)
	if token == "" {
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Events.Confirm, false, "", deps.Errors.InvalidLink, reasonMeta("missing_token"))
		return "", deps.Fail(deps.Errors.InvalidLink, "", nil)
	}

	msg, err := deps.API.VerifyEmail(ctx, token)
	if err != nil {
		detail := backend.Detail(err)
		if isRejection(err) {
			deps.MetricInc(deps.Metrics.Failure)
			deps.EmitAudit(ctx, deps.Events.Confirm, false, "", deps.Errors.VerificationFailed, reasonMeta("rejected"))
			return "", deps.Fail(deps.Errors.VerificationFailed, detail, err)
		}
		deps.MetricInc(deps.Metrics.TransportFailure)
		deps.EmitAudit(ctx, deps.Events.Confirm, false, "", deps.Errors.Transport, reasonMeta("transport"))
		return "", deps.Fail(deps.Errors.Transport, detail, err)
	}

	deps.MetricInc(deps.Metrics.Success)
	deps.EmitAudit(ctx, deps.Events.Confirm, true, "", nil, nil)
	return msg, nil
}
