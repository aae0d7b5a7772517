package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hupe1980/treetopk"
	"github.com/hupe1980/treetopk/blobstore"
	minioblob "github.com/hupe1980/treetopk/blobstore/minio"
	s3blob "github.com/hupe1980/treetopk/blobstore/s3"
	"github.com/hupe1980/treetopk/config"
)

// openStore builds the blob store selected by sc.Backend.
func openStore(ctx context.Context, sc config.StorageConfig) (blobstore.BlobStore, error) {
	switch sc.Backend {
	case "memory":
		return blobstore.NewMemoryStore(), nil

	case "local":
		root := sc.Root
		if sc.Prefix != "" {
			root = strings.TrimSuffix(root, "/") + "/" + strings.Trim(sc.Prefix, "/")
		}
		return blobstore.NewLocalStore(root), nil

	case "s3":
		opts := []s3blob.Option{
			s3blob.WithPrefix(sc.Prefix),
			s3blob.WithPathStyle(sc.PathStyle),
		}
		if sc.Region != "" {
			opts = append(opts, s3blob.WithRegion(sc.Region))
		}
		if sc.Endpoint != "" {
			opts = append(opts, s3blob.WithEndpoint(sc.Endpoint))
		}
		return s3blob.New(ctx, sc.Bucket, opts...)

	case "minio":
		endpoint := sc.Endpoint
		if endpoint == "" {
			endpoint = "localhost:9000"
		}
		creds := credentials.NewChainCredentials([]credentials.Provider{
			&credentials.EnvMinio{},
			&credentials.EnvAWS{},
		})
		if sc.AccessKey != "" {
			creds = credentials.NewStaticV4(sc.AccessKey, sc.SecretKey, "")
		}
		client, err := minio.New(endpoint, &minio.Options{
			Creds:  creds,
			Secure: sc.Secure,
			Region: sc.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("minio client: %w", err)
		}
		return minioblob.NewStore(client, sc.Bucket, sc.Prefix), nil

	default:
		return nil, fmt.Errorf("%w: unknown backend %q", treetopk.ErrConfig, sc.Backend)
	}
}
