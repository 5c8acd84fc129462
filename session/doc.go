// Package session persists the client-side authentication state: the
// pending (password-verified, code outstanding) session and the final
// session, under five independent keys.
//
// # Storage
//
// A [Store] wraps a [Backend]. Backends are dumb key/value stores that apply a
// [Mutation] atomically: [MemoryBackend] for a single process, [RedisBackend]
// when several processes share one login, and [SQLiteBackend] for a local
// file that survives restarts.
//
// # Architecture boundaries
//
// This package owns persistence and the pending/final exclusivity rule. It
// does NOT talk to the backing service, decide landing routes, or verify
// token signatures.
//
// # What this package must NOT do
//
//   - Import ledgerAuth or any flow package (no upward imports).
//   - Persist passwords or one-time codes.
//   - Let a caller other than [Store] write to a [Backend].
package session
