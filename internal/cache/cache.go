// Package cache defines the byte store behind the capability document memo.
package cache

import "context"

// Store is one tier of the capability cache. A miss is reported as
// (nil, false, nil); err is reserved for backend failures.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte) error
}
