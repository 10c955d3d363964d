// Package storage defines the durable key-value API the token store persists
// sessions through. Implementations live in the sub-packages.
package storage

import (
	"context"
	"errors"
)

// ErrClosed is returned by a Store after Close.
var ErrClosed = errors.New("storage closed")

// Store is a durable string key-value store.
//
// GetMany must read every requested key from one consistent view so that a
// restored session is never assembled from two different writes. Keys that are
// absent are simply missing from the result. Delete of a missing key is not an
// error.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	GetMany(ctx context.Context, keys ...string) (map[string]string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}
