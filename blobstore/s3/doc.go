// Package s3 provides an S3 implementation of the blobstore.BlobStore interface.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("shards/"),
//	    s3.WithRegion("us-east-1"),
//	)
//
// # Features
//
//   - Single-request head reads into fixed buffers (blobstore.Getter)
//   - Range reads through blobstore.Blob
//   - Multipart uploads for large objects via the upload manager
//   - Automatic pagination for listing
package s3
