package resource

import (
	"context"

	"github.com/hupe1980/treetopk/blobstore"
)

// ThrottledStore wraps a BlobStore and charges every head read against the
// controller's IO limit.
type ThrottledStore struct {
	blobstore.BlobStore
	rc *Controller
}

var _ blobstore.Getter = (*ThrottledStore)(nil)

// Throttle returns store unchanged when rc has no IO limit.
func Throttle(store blobstore.BlobStore, rc *Controller) blobstore.BlobStore {
	if rc == nil || rc.ioLimiter == nil {
		return store
	}
	return &ThrottledStore{BlobStore: store, rc: rc}
}

// GetInto implements blobstore.Getter.
func (s *ThrottledStore) GetInto(ctx context.Context, name string, buf []byte) (int, bool, error) {
	n, truncated, err := blobstore.ReadInto(ctx, s.BlobStore, name, buf)
	if err != nil {
		return n, truncated, err
	}
	if err := s.rc.AcquireIO(ctx, n); err != nil {
		return 0, false, err
	}
	return n, truncated, nil
}
