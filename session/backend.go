package session

import "context"

// Mutation is applied atomically by a [Backend]: every Set and every Delete
// becomes visible together or not at all.
type Mutation struct {
	Set    map[string]string
	Delete []string
}

// Backend is key/value persistence for a [Store].
type Backend interface {
	// Get returns the values of the keys that exist. Missing keys are absent
	// from the map.
	Get(ctx context.Context, keys ...string) (map[string]string, error)
	Apply(ctx context.Context, m Mutation) error
	Close() error
}
