// Package kv defines the key-value persistence ports. Every key holds one
// whole-collection snapshot; callers read, modify and write it back inside
// Update, which is the only place writes may happen.
package kv

import (
	"context"
	"errors"
)

// ErrClosed is returned by stores used after Close.
var ErrClosed = errors.New("kv store closed")

// Ports for persistence adapters.
type (
	Reader interface {
		// Get returns the raw value for key and whether it exists.
		Get(key string) ([]byte, bool, error)
	}

	Tx interface {
		Reader
		Put(key string, value []byte) error
		Delete(key string) error
	}

	Store interface {
		// View runs fn against a consistent read view.
		View(ctx context.Context, fn func(Reader) error) error
		// Update runs fn inside a write transaction. Changes are applied only
		// when fn returns nil; concurrent Updates are serialized.
		Update(ctx context.Context, fn func(Tx) error) error
		Close() error
	}
)
