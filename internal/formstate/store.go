// Package formstate persists allow-listed form fields across sessions.
package formstate

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a key has never been stored.
var ErrNotFound = errors.New("formstate: key not found")

// Store is the key-value persistence boundary. Keys and values are opaque;
// the manager above decides what goes in.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
