package authcore

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one engine counter or histogram.
type MetricID uint16

const (
	// MetricLoginIssued counts successful session issuances.
	MetricLoginIssued MetricID = iota
	// MetricRotateSuccess counts refresh rotations that won the consume race.
	MetricRotateSuccess
	// MetricRotateFailure counts rejected rotation attempts of any kind.
	MetricRotateFailure
	// MetricRefreshReuseDetected counts rotations against already-spent tokens.
	MetricRefreshReuseDetected
	// MetricLogout counts explicit logouts.
	MetricLogout
	// MetricVerifySuccess counts access tokens that passed verification.
	MetricVerifySuccess
	// MetricVerifyFailure counts access tokens that failed verification.
	MetricVerifyFailure
	// MetricAPITokenAuthorized counts successful API token authorizations.
	MetricAPITokenAuthorized
	// MetricAPITokenUnauthorized counts API credentials that failed to identify a token.
	MetricAPITokenUnauthorized
	// MetricAPITokenForbidden counts valid API tokens missing the required scope.
	MetricAPITokenForbidden
	// MetricRateLimitHit counts requests blocked by the fixed-window limiter.
	MetricRateLimitHit
	// MetricRateLimitFailOpen counts rate checks answered by the local fallback limiter.
	MetricRateLimitFailOpen
	// MetricEdgeRedirect counts edge requests redirected to the login page.
	MetricEdgeRedirect
	// MetricEdgeSilentRefresh counts successful in-band refreshes at the edge.
	MetricEdgeSilentRefresh
	// MetricVerifyLatency is the access verification latency histogram.
	MetricVerifyLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

// paddedCounter keeps each counter on its own cache line so concurrent
// increments of different metrics do not false-share.
type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a fixed-size set of lock-free counters plus one latency
// histogram. A nil or disabled Metrics accepts writes and reads as zeros.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of every counter and histogram.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to a counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records one latency sample. Only MetricVerifyLatency carries a
// histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricVerifyLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value reads one counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies all counters and, when latency is enabled, the verify
// histogram.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricVerifyLatency].buckets[i])
		}
		s.Histograms[MetricVerifyLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
