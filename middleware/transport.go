package middleware

import (
	"context"
	"net/http"

	"github.com/MrEthical07/ledgerAuth/session"
)

// SessionStore is the part of [session.Store] the transport uses.
type SessionStore interface {
	Current() *session.Session
	ClearIf(ctx context.Context, token string) (bool, error)
}

// BearerTransport adds "Authorization: Bearer <final token>" to every
// request while a session exists. Requests without a session are sent
// unchanged.
type BearerTransport struct {
	Store SessionStore
	// Base defaults to http.DefaultTransport.
	Base http.RoundTripper
	// ClearOnUnauthorized clears the session when the backend answers 401 to
	// a request that carried the current token.
	ClearOnUnauthorized bool
	// OnClearError is called when that clear fails. Optional.
	OnClearError func(error)
}

func (t *BearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	var sess *session.Session
	if t.Store != nil {
		sess = t.Store.Current()
	}
	if sess == nil || sess.Token == "" {
		return base.RoundTrip(req)
	}

	out := req.Clone(req.Context())
	out.Header.Set("Authorization", "Bearer "+sess.Token)

	resp, err := base.RoundTrip(out)
	if err != nil || resp.StatusCode != http.StatusUnauthorized || !t.ClearOnUnauthorized {
		return resp, err
	}

	// A newer login may have replaced the token while this request ran.
	if _, clearErr := t.Store.ClearIf(req.Context(), sess.Token); clearErr != nil && t.OnClearError != nil {
		t.OnClearError(clearErr)
	}
	return resp, nil
}

// Client returns an *http.Client using a BearerTransport over store.
func Client(store SessionStore, clearOnUnauthorized bool) *http.Client {
	return &http.Client{Transport: &BearerTransport{Store: store, ClearOnUnauthorized: clearOnUnauthorized}}
}
