// Package storage provides object storage abstractions for table segment
// objects.
package storage

import (
	"context"
	"errors"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound     = errors.New("object not found")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrPutFailed          = errors.New("put failed")
	ErrGetFailed          = errors.New("get failed")
	ErrDeleteFailed       = errors.New("delete failed")
)

// ObjectStorage abstracts a key-value object store holding whole objects.
// Implementations include S3 and the local filesystem for testing. ETags
// support optimistic concurrency: a reader remembers the etag it saw and a
// writer passes it to PutIf so a concurrent rewrite fails instead of being
// silently clobbered.
type ObjectStorage interface {
	// Get returns the object's bytes and its current etag.
	Get(ctx context.Context, key string) (data []byte, etag string, err error)

	// Put stores the object unconditionally and returns the new etag.
	Put(ctx context.Context, key string, data []byte) (etag string, err error)

	// PutIf stores the object only when its current etag matches expected.
	// An empty expected etag makes the write unconditional.
	PutIf(ctx context.Context, key string, data []byte, expected string) (etag string, err error)

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether the object is present.
	Exists(ctx context.Context, key string) (bool, error)

	// List returns all keys under the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}
