package node

import "time"

// Metrics receives per-node operational events.
type Metrics interface {
	// RecordFetch is called for every completed object read. err is nil for
	// found and not-found objects alike.
	RecordFetch(duration time.Duration, bytes int, found bool, err error)
	// RecordFold is called after an object has been decoded and merged.
	RecordFold(values, malformed int)
	// RecordSend is called after a snapshot has been sent.
	RecordSend(bytes int, err error)
	// RecordReceive is called after a snapshot has been received.
	RecordReceive(bytes int, err error)
}

type noopMetrics struct{}

func (noopMetrics) RecordFetch(time.Duration, int, bool, error) {}
func (noopMetrics) RecordFold(int, int)                         {}
func (noopMetrics) RecordSend(int, error)                       {}
func (noopMetrics) RecordReceive(int, error)                    {}
