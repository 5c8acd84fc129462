// Package internal holds code private to ledgerAuth.
//
//   - audit: asynchronous event dispatch and sinks
//   - flows: the login, signup, verification, reset and logout steps run by
//     the root package facades
//   - forms: shared input rules (email grammar, code shape, password policy)
//   - devserver: in-memory backend speaking the authentication REST contract
package internal
