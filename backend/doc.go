// Package backend defines the REST contract of the backing expense tracker
// service and a JSON/HTTP client for it.
//
// # Architecture boundaries
//
// This package owns transport concerns: request encoding, status mapping, the
// outbound rate limit, and correlation IDs. It does NOT interpret outcomes as
// authentication results or touch the session store; that belongs to the
// flows in the root package.
//
// A behavioural in-memory implementation of [API] lives in backendtest.
package backend
