package flows

import (
	"context"

	"github.com/MrEthical07/ledgerAuth/session"
)

// LogoutStore is the part of the session store logout uses.
type LogoutStore interface {
	Current() *session.Session
	Clear(ctx context.Context) error
}

type LogoutMetrics struct {
	Logout         int
	BackendFailure int
}

type LogoutEvents struct {
	Logout string
}

type LogoutErrors struct {
	ClientNotReady     error
	SessionUnavailable error
}

// LogoutDeps captures logout dependencies.
type LogoutDeps struct {
	Common

	Store LogoutStore

	Metrics LogoutMetrics
	Events  LogoutEvents
	Errors  LogoutErrors
}

// RunLogout tells the backend to revoke the final token, then clears local
// state whatever the backend said. Only a local clear failure is returned.
func RunLogout(ctx context.Context, deps LogoutDeps) error {
	normalizeCommon(&deps.Common)
	if deps.Store == nil {
		return deps.Errors.ClientNotReady
	}

	current := deps.Store.Current()
	subject := ""
	if current != nil {
		subject = current.Subject
		if deps.API != nil && current.Token != "" {
			if err := deps.API.Logout(ctx, current.Token); err != nil {
				deps.MetricInc(deps.Metrics.BackendFailure)
				deps.Warn(ctx, "backend logout failed; clearing local session anyway", err)
			}
		}
	}

	if err := deps.Store.Clear(ctx); err != nil {
		deps.EmitAudit(ctx, deps.Events.Logout, false, subject, deps.Errors.SessionUnavailable, reasonMeta("store"))
		return deps.Fail(deps.Errors.SessionUnavailable, "", err)
	}

	deps.MetricInc(deps.Metrics.Logout)
	deps.EmitAudit(ctx, deps.Events.Logout, true, subject, nil, nil)
	return nil
}
