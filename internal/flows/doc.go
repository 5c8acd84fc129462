// Package flows contains the step functions behind every client operation.
//
// Each function (RunSubmitCredentials, RunVerifyCode, RunSignup, etc.)
// accepts a typed dependency struct and returns results without side effects
// beyond those dependencies. The root package owns the flow objects, their
// step state and their locks; this package owns the ordering of validation,
// backend calls and session writes within one step.
//
// # Architecture boundaries
//
// Flow functions coordinate the backend API, the session store, audit and
// metrics. They do NOT own any of these resources.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import ledgerAuth (to avoid import cycles).
//   - Log or audit passwords, one-time codes, or tokens.
package flows
