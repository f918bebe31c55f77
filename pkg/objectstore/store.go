// Package objectstore provides the abstract blob store every other storage component is built on.
// Objects are opaque byte payloads addressed by path; the store itself knows nothing about blocks,
// SSTables, or log entries.
package objectstore

import (
	"context"
	"errors"
	"fmt"
)

// ErrObjectNotFound is returned by Get/GetRange/Remove when path does not exist.
var ErrObjectNotFound = errors.New("objectstore: object not found")

// NotFoundError wraps ErrObjectNotFound with the offending path; errors.Is(err, ErrObjectNotFound) still matches.
type NotFoundError struct{ Path string }

func (e *NotFoundError) Error() string { return fmt.Sprintf("objectstore: object not found: %s", e.Path) }
func (e *NotFoundError) Unwrap() error { return ErrObjectNotFound }

// Store is the contract every object store implementation (in-memory, remote blob store) satisfies.
// All operations are addressed by path and fail with a *NotFoundError when the path is absent.
type Store interface {
	// Put writes bytes at path, replacing any previous content.
	Put(ctx context.Context, path string, data []byte) error
	// Get reads the entire object at path.
	Get(ctx context.Context, path string) ([]byte, error)
	// GetRange reads the half-open byte range [lo, hi) of the object at path.
	GetRange(ctx context.Context, path string, lo, hi int64) ([]byte, error)
	// Remove deletes the object at path. Removing an absent path is not an error.
	Remove(ctx context.Context, path string) error
}
