package metadata

import "context"

// Repository is a small key-value store for per-partition sync state:
// change tokens, the scope selector, migration flags, last-sync timestamps.
type Repository interface {
	// Get returns the value for key, or nil when absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set upserts a value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes a key; removing an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Clear wipes all metadata.
	Clear(ctx context.Context) error
}
