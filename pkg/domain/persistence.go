package domain

import "context"

// Backend is the durable key/payload primitive the snapshot store writes
// through. Every write replaces the whole payload stored under key.
type Backend interface {
	// Read returns the payload stored under key, or nil, nil when the key is absent.
	Read(ctx context.Context, key string) ([]byte, error)
	// Write replaces the payload stored under key.
	Write(ctx context.Context, key string, payload []byte) error
	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
	// Close releases backend resources.
	Close() error
}
