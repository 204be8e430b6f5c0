// Package store persists tracker records as opaque values addressed by a
// prefix and a key.
package store

import (
	"context"

	"github.com/juju/errors"
)

type Store interface {
	// Get returns nil without error for a missing key.
	Get(ctx context.Context, prefix, key string) ([]byte, error)
	Set(ctx context.Context, prefix, key string, value []byte) error
	// Remove of a missing key is not an error.
	Remove(ctx context.Context, prefix, key string) error
	// List calls iterator with every key under prefix until it returns false.
	List(ctx context.Context, prefix string, iterator func(key string) bool) error
}

// Keys collects every key under prefix.
func Keys(ctx context.Context, s Store, prefix string) ([]string, error) {
	keys := make([]string, 0)
	err := s.List(ctx, prefix, func(key string) bool {
		keys = append(keys, key)
		return true
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	return keys, nil
}

// Close closes s when it holds resources.
func Close(s Store) error {
	if closer, ok := s.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
