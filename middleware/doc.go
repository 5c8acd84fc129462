// Package middleware connects the session store to HTTP code on both sides
// of the client.
//
//   - [BearerTransport] is an [http.RoundTripper] for collaborators that call
//     the backing service (accounts, transactions, budgets). It attaches the
//     final session token and never the temporary login token.
//   - [RequireSession] and [RequireAdmin] guard locally served screens and
//     redirect to the login or dashboard route.
//
// This package reads session state and may clear it after a 401. It does not
// talk to the authentication endpoints itself.
package middleware
