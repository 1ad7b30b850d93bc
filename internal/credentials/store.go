package credentials

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Store.Get when no value exists for the key.
var ErrNotFound = errors.New("credentials: not found")

// Store is the durable key-value backend holding the JSON credential blob.
// Puts are last-writer-wins; implementations must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}
