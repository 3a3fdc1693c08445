package domain

import (
	"context"
	"io"
)

// BlobWriter writes objects to a blob store. Used by the audit archiver.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}
