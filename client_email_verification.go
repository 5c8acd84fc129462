package ledgerAuth

import (
	"context"
	"net/url"
	"time"

	"github.com/MrEthical07/ledgerAuth/internal/flows"
)

// Verified is returned when an email address was confirmed.
type Verified struct {
	Message string
	// Next is the login route.
	Next          string
	RedirectAfter time.Duration
}

// VerifyEmail confirms an address with the token from the emailed link.
func (c *Client) VerifyEmail(ctx context.Context, token string) (Verified, error) {
	msg, err := flows.RunVerifyEmail(ctx, token, flows.EmailVerificationDeps{
		Common: c.common(nil),
		Metrics: flows.EmailVerificationMetrics{
			Success:          int(MetricEmailVerificationSuccess),
			Failure:          int(MetricEmailVerificationFailure),
			TransportFailure: int(MetricTransportFailure),
		},
		Events: flows.EmailVerificationEvents{Confirm: EventEmailVerify},
		Errors: flows.EmailVerificationErrors{
			ClientNotReady:     ErrClientNotReady,
			InvalidLink:        ErrInvalidLink,
			VerificationFailed: ErrVerificationFailed,
			Transport:          ErrTransport,
		},
	})
	if err != nil {
		return Verified{}, err
	}
	return Verified{
		Message:       msg,
		Next:          c.config.Routes.Login,
		RedirectAfter: c.config.Routes.VerifyRedirectDelay,
	}, nil
}

// VerifyEmailLink extracts the token query parameter from link and calls
// [Client.VerifyEmail]. A link without a token fails with [ErrInvalidLink]
// and no network call.
func (c *Client) VerifyEmailLink(ctx context.Context, link string) (Verified, error) {
	token := ""
	if u, err := url.Parse(link); err == nil {
		token = u.Query().Get("token")
	}
	return c.VerifyEmail(ctx, token)
}
