// Package jwt wraps github.com/golang-jwt/jwt/v5 for the two places signed
// tokens appear in ledgerAuth: the client inspects server-issued tokens
// without holding a verification key ([Inspect]), and the development backend
// issues and verifies them ([Signer]).
//
// Inspect only proves that a string is shaped like a signed token and exposes
// its claims. It never establishes trust; trust comes from the backing
// service's explicit verification flag.
package jwt
