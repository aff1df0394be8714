package cache

import (
	"context"
	"errors"
)

// ErrMiss is returned when a key is absent. Callers treat a miss the same as
// "not yet computed".
var ErrMiss = errors.New("cache: miss")

// Cache is a key-value store for precomputed aggregates. Values are stored
// as JSON. Entries have no expiry; they live until overwritten.
type Cache interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any) error

	// SetMulti publishes all entries as one unit so that readers never
	// observe a partially written set of slots.
	SetMulti(ctx context.Context, entries map[string]any) error
}
