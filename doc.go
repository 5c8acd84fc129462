// Package ledgerAuth is the authentication and session core of the ledger
// personal finance client.
//
// It drives the two-step login (password, then an emailed one-time code),
// account signup, email confirmation links, the three-step password reset,
// and logout against the backing REST service, and persists the resulting
// session through a pluggable [session.Store].
//
// Build a [Client] with [New]:
//
//	client, err := ledgerAuth.New().
//		WithConfig(cfg).
//		WithLogger(logger).
//		Build()
//
// Login and password reset are stateful and are driven through
// [Client.Login] and [Client.PasswordReset]. Every failure is a
// [*FlowError] matching both a reason sentinel and a category sentinel
// under [errors.Is].
package ledgerAuth
