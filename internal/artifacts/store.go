// Package artifacts handles session file uploads: blob storage behind a
// pluggable backend plus a metadata repository the ticket validator and the
// retention sweeper query.
package artifacts

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned for unknown artifact ids.
var ErrNotFound = errors.New("artifact not found")

// ErrTooLarge is returned when an upload exceeds the configured limit.
var ErrTooLarge = errors.New("artifact exceeds size limit")

// PutOptions carries optional blob attributes.
type PutOptions struct {
	MimeType string
	Metadata map[string]string
}

// BlobStore persists raw artifact bytes. Put returns a backend-specific
// reference (file:// or s3:// URI) recorded in the artifact metadata.
type BlobStore interface {
	Put(ctx context.Context, artifactID string, data io.Reader, opts PutOptions) (string, error)
	Get(ctx context.Context, artifactID string) (io.ReadCloser, error)
	Delete(ctx context.Context, artifactID string) error
	Close() error
}
