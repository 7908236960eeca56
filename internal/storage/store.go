// Package storage persists raw log files and generated polars as immutable
// objects under a key hierarchy:
//
//	boats/{boat}/logs/{id}-{filename}
//	boats/{boat}/polars/v{NNNN}.pol    Expedition polar text
//	boats/{boat}/polars/v{NNNN}.json   generation summary sidecar
//
// The layout matches the cloud bucket the upload API exposes, so the same
// keys work against an S3-compatible backend; the bundled implementation
// is filesystem-backed.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound reports a key with no stored object.
var ErrNotFound = errors.New("object not found")

// ErrInvalidBoat reports a boat identifier that cannot be used as a key
// segment.
var ErrInvalidBoat = errors.New("invalid boat id")

// ObjectStore is a flat key-to-blob store. Implementations must make Put
// atomic: readers never observe a partially written object.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, key string) error
}
