package tokengate

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one in-process counter or histogram.
type MetricID uint16

const (
	// MetricPairingIssued counts pairing tokens handed out.
	MetricPairingIssued MetricID = iota
	// MetricPairingRateLimited counts pairing requests refused by the limiter.
	MetricPairingRateLimited
	// MetricEnrollSuccess counts completed device enrollments.
	MetricEnrollSuccess
	// MetricEnrollFailure counts rejected enrollment attempts.
	MetricEnrollFailure
	// MetricEnrollScopeMismatch counts enrollments rejected for presenting a
	// token scoped to a different device type.
	MetricEnrollScopeMismatch
	// MetricEnrollRateLimited counts enrollment attempts refused by the limiter.
	MetricEnrollRateLimited
	// MetricTicketIssued counts entry tickets minted.
	MetricTicketIssued
	// MetricRedeemPass counts gate decisions that admitted the holder.
	MetricRedeemPass
	// MetricRedeemFail counts gate decisions that refused the holder.
	MetricRedeemFail
	// MetricRedeemDuplicate counts idempotent replays within the duplicate
	// suppression window.
	MetricRedeemDuplicate
	// MetricRedeemRateLimited counts redemptions refused by the limiter.
	MetricRedeemRateLimited
	// MetricQuotaExhausted counts attempts against spent tickets.
	MetricQuotaExhausted
	// MetricSignatureInvalid counts presentations failing signature checks.
	MetricSignatureInvalid
	// MetricTokenRevoked counts explicit revocations.
	MetricTokenRevoked
	// MetricTokensSwept counts lapsed tokens marked EXPIRED by the sweep.
	MetricTokensSwept
	// MetricRateLimitHit counts limiter refusals across all actions.
	MetricRateLimitHit
	// MetricRedeemLatency is the gate decision latency histogram.
	MetricRedeemLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is the engine's lock-free counter set.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters and histograms.
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
	m.Add(id, 1)
}

// Add adds n to a counter.
func (m *Metrics) Add(id MetricID, n uint64) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, n)
}

// Observe records a latency sample. Only the redeem latency histogram is
// populated.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricRedeemLatency {
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

// Snapshot copies every counter and histogram at once.
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
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricRedeemLatency].buckets[i])
		}
		s.Histograms[MetricRedeemLatency] = buckets
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
