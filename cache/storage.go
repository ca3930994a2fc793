// Package cache keeps generated and proxied images so the relay can serve
// them again without calling the generator or the upstream host.
//
// Blobs live in a FileStore: the local filesystem or any S3-compatible
// bucket. ImageCache layers a content-addressed entry format on top.
package cache

import (
	"context"
	"io"
)

// FileStore is a minimal interface for blob storage.
//
// Paths are forward-slash separated and relative to the store root.
// Implementations must be safe for concurrent use.
type FileStore interface {
	// Read opens the named file. A missing file yields an error wrapping
	// os.ErrNotExist.
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// Write opens the named file for writing, truncating it. The caller
	// must close the writer to flush data.
	Write(ctx context.Context, path string) (io.WriteCloser, error)

	// Delete removes the named file. Missing files are not an error.
	Delete(ctx context.Context, path string) error

	// Exists reports whether the named file exists.
	Exists(ctx context.Context, path string) (bool, error)
}
