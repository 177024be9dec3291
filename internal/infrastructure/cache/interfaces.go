package cache

import (
	"context"
	"time"
)

// Cache is the generic key-value caching contract backing the registry's
// read-through caches.
type Cache interface {
	// Get retrieves a raw value by key.
	Get(ctx context.Context, key string) (string, error)

	// Set stores a value with optional TTL.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Delete removes a key.
	Delete(ctx context.Context, key string) error

	// Exists checks if a key exists.
	Exists(ctx context.Context, key string) (bool, error)

	// GetJSON retrieves and unmarshals JSON data.
	GetJSON(ctx context.Context, key string, dest interface{}) error

	// SetJSON marshals and stores JSON data.
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Close closes the cache connection.
	Close() error
}
