package blobstore

import (
	"context"
	"errors"
	"io"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies `errors.Is(err, ErrNotFound)`.
// The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// BlobStore is an abstraction for accessing immutable data blobs (shard objects).
type BlobStore interface {
	// Open opens a blob for reading.
	Open(ctx context.Context, name string) (Blob, error)
	// Put writes a blob atomically, replacing any existing blob of that name.
	Put(ctx context.Context, name string, data []byte) error
	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error
	// List returns the sorted names of all blobs with the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Blob is a read-only handle to a data blob.
type Blob interface {
	// ReadAt reads len(p) bytes starting at off. It returns io.EOF when fewer
	// bytes are available.
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)
	// ReadRange returns a reader for length bytes starting at off, clamped to the blob.
	ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error)
	// Size returns the size of the blob in bytes.
	Size() int64
	io.Closer
}

// Getter is an optional interface for stores that can read the head of an
// object into a buffer in a single request.
type Getter interface {
	// GetInto fills buf with the first len(buf) bytes of the named blob and
	// reports whether the blob is larger than buf.
	GetInto(ctx context.Context, name string, buf []byte) (n int, truncated bool, err error)
}

// ReadInto reads the named blob into buf. If the blob is larger than buf, the
// first len(buf) bytes are read and truncated is true. A missing blob yields
// an error satisfying errors.Is(err, ErrNotFound).
func ReadInto(ctx context.Context, store BlobStore, name string, buf []byte) (n int, truncated bool, err error) {
	if g, ok := store.(Getter); ok {
		return g.GetInto(ctx, name, buf)
	}

	b, err := store.Open(ctx, name)
	if err != nil {
		return 0, false, err
	}
	defer func() { _ = b.Close() }()

	size := b.Size()
	truncated = size > int64(len(buf))
	want := min(size, int64(len(buf)))
	if want == 0 {
		return 0, truncated, nil
	}

	n, err = b.ReadAt(ctx, buf[:want], 0)
	if errors.Is(err, io.EOF) && int64(n) == want {
		err = nil
	}
	return n, truncated, err
}
