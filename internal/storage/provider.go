// Package storage defines the blob store contract used to archive renders.
// Implementations live in the local, memory and gcs subpackages.
package storage

import (
	"context"
	"io"
)

// BlobStore persists an object and returns a URI that names it.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}
