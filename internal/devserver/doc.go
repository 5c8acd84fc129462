// Package devserver is an in-memory implementation of the authentication
// REST contract the client consumes. It backs end-to-end tests and local
// development; it is not a production service.
//
// Passwords are stored as bcrypt hashes. Login and reset codes are HOTP
// values derived from a per-account secret and expire after a TTL.
// Outgoing mail is captured by an [Outbox] and written to the log.
package devserver
