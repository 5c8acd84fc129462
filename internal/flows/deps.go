package flows

import (
	"context"

	"github.com/MrEthical07/ledgerAuth/backend"
)

// Common carries the hooks every flow shares.
type Common struct {
	API backend.API

	// Fail builds the error returned to callers. detail is the server
	// message, if any; cause is the underlying error for logging.
	Fail func(reason error, detail string, cause error) error
	// Commit runs fn only while the calling step is still current. It
	// returns the flow's abandoned error otherwise.
	Commit func(fn func() error) error

	MetricInc func(int)
	EmitAudit func(ctx context.Context, event string, success bool, email string, err error, metadata func() map[string]string)
	Warn      func(ctx context.Context, msg string, err error)
}

func normalizeCommon(c *Common) {
	if c.Fail == nil {
		c.Fail = func(reason error, _ string, _ error) error { return reason }
	}
	if c.Commit == nil {
		c.Commit = func(fn func() error) error { return fn() }
	}
	if c.MetricInc == nil {
		c.MetricInc = func(int) {}
	}
	if c.EmitAudit == nil {
		c.EmitAudit = func(context.Context, string, bool, string, error, func() map[string]string) {}
	}
	if c.Warn == nil {
		c.Warn = func(context.Context, string, error) {}
	}
}

func reasonMeta(reason string) func() map[string]string {
	return func() map[string]string {
		return map[string]string{"reason": reason}
	}
}
