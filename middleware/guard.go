package middleware

import (
	"context"
	"net/http"
	"net/url"

	"github.com/MrEthical07/ledgerAuth/roles"
	"github.com/MrEthical07/ledgerAuth/session"
)

// SessionReader is the read side of [session.Store].
type SessionReader interface {
	Current() *session.Session
}

type sessionContextKey struct{}

// SessionFromContext returns the session injected by [RequireSession].
func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	s, ok := ctx.Value(sessionContextKey{}).(*session.Session)
	return s, ok
}

// RequireSession redirects to loginRoute unless a final session exists. The
// original path is passed as the "next" query parameter.
func RequireSession(store SessionReader, loginRoute string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var sess *session.Session
			if store != nil {
				sess = store.Current()
			}
			if sess == nil || sess.Token == "" {
				http.Redirect(w, r, loginRedirect(loginRoute, r), http.StatusSeeOther)
				return
			}

			ctx := context.WithValue(r.Context(), sessionContextKey{}, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin is RequireSession plus an administrative role check. Signed-in
// users without one are sent to the router's dashboard route.
func RequireAdmin(store SessionReader, router roles.Router, loginRoute string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		admin := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, _ := SessionFromContext(r.Context())
			if sess == nil || !router.IsAdmin(sess.Roles) {
				http.Redirect(w, r, router.LandingFor(nil), http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
		return RequireSession(store, loginRoute)(admin)
	}
}

func loginRedirect(loginRoute string, r *http.Request) string {
	if loginRoute == "" {
		loginRoute = "/login"
	}
	if r.URL.Path == "" || r.URL.Path == loginRoute {
		return loginRoute
	}
	return loginRoute + "?" + url.Values{"next": {r.URL.RequestURI()}}.Encode()
}
