package treetopk

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    fetchHistogram prometheus.Histogram
//	    missingCounter prometheus.Counter
//	}
//
//	func (p *PrometheusCollector) RecordFetch(d time.Duration, bytes int, found bool, err error) {
//	    p.fetchHistogram.Observe(d.Seconds())
//	    if !found && err == nil {
//	        p.missingCounter.Inc()
//	    }
//	}
type MetricsCollector interface {
	// RecordFetch is called after each object read. found is false for
	// missing objects; err is set for other read failures.
	RecordFetch(duration time.Duration, bytes int, found bool, err error)

	// RecordFold is called after an object has been decoded and merged.
	RecordFold(values, malformed int)

	// RecordSend is called after each snapshot send.
	RecordSend(bytes int, err error)

	// RecordReceive is called after each snapshot receive.
	RecordReceive(bytes int, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordFetch(time.Duration, int, bool, error) {}
func (NoopMetricsCollector) RecordFold(int, int)                         {}
func (NoopMetricsCollector) RecordSend(int, error)                       {}
func (NoopMetricsCollector) RecordReceive(int, error)                    {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	FetchCount      atomic.Int64
	FetchMissing    atomic.Int64
	FetchErrors     atomic.Int64
	FetchBytes      atomic.Int64
	FetchTotalNanos atomic.Int64
	FoldCount       atomic.Int64
	FoldValues      atomic.Int64
	FoldMalformed   atomic.Int64
	SendCount       atomic.Int64
	SendErrors      atomic.Int64
	ReceiveCount    atomic.Int64
	ReceiveErrors   atomic.Int64
}

// RecordFetch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFetch(duration time.Duration, bytes int, found bool, err error) {
	b.FetchCount.Add(1)
	b.FetchTotalNanos.Add(duration.Nanoseconds())
	b.FetchBytes.Add(int64(bytes))
	switch {
	case err != nil:
		b.FetchErrors.Add(1)
	case !found:
		b.FetchMissing.Add(1)
	}
}

// RecordFold implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFold(values, malformed int) {
	b.FoldCount.Add(1)
	b.FoldValues.Add(int64(values))
	b.FoldMalformed.Add(int64(malformed))
}

// RecordSend implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSend(_ int, err error) {
	b.SendCount.Add(1)
	if err != nil {
		b.SendErrors.Add(1)
	}
}

// RecordReceive implements MetricsCollector.
func (b *BasicMetricsCollector) RecordReceive(_ int, err error) {
	b.ReceiveCount.Add(1)
	if err != nil {
		b.ReceiveErrors.Add(1)
	}
}

// FetchStats is a point-in-time view of fetch metrics.
type FetchStats struct {
	Count        int64
	Missing      int64
	Errors       int64
	Bytes        int64
	AvgLatencyNs int64
}

// GetFetchStats returns fetch statistics.
func (b *BasicMetricsCollector) GetFetchStats() FetchStats {
	count := b.FetchCount.Load()
	s := FetchStats{
		Count:   count,
		Missing: b.FetchMissing.Load(),
		Errors:  b.FetchErrors.Load(),
		Bytes:   b.FetchBytes.Load(),
	}
	if count > 0 {
		s.AvgLatencyNs = b.FetchTotalNanos.Load() / count
	}
	return s
}
