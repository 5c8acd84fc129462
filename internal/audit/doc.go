// Package audit delivers authentication flow events to a caller-supplied
// sink without blocking the flow that produced them.
//
//   - [Sink]: event consumer (channel, JSON lines, zerolog, no-op).
//   - [Dispatcher]: buffered relay that drops or blocks when full.
//   - [Event]: one flow outcome with the email it concerned.
//
// This package does NOT decide which events to emit; the flows do. Events
// never carry passwords, one-time codes, or tokens.
package audit
