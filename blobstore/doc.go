// Package blobstore provides the storage abstraction shard objects are read from.
//
// BlobStore is the interface for reading and writing immutable objects.
// Implementations must be safe for concurrent use: a selector keeps many
// fetches in flight against the same store.
//
// # Built-in Implementations
//
//   - MemoryStore: in-memory, for tests and local runs
//   - LocalStore: a directory on the local file system, read through mmap
//   - s3.Store: Amazon S3 (aws-sdk-go-v2)
//   - minio.Store: MinIO and other S3-compatible services (minio-go)
//
// # Reading into a fixed buffer
//
// Selectors read whole objects into reusable fixed-size buffers:
//
//	n, truncated, err := blobstore.ReadInto(ctx, store, "17", buf)
//	if errors.Is(err, blobstore.ErrNotFound) { ... }
//
// Backends that can fetch an object in a single request implement Getter and
// ReadInto uses it; otherwise the object is opened and read with ReadAt.
package blobstore
