package minidrive

import (
	"net/http"
	"sync/atomic"
	"time"
)

// MetricID identifies one counter or histogram.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricSignupSuccess
	MetricSignupFailure
	MetricLogout
	MetricSessionRehydrated
	MetricSessionRehydrateFailed
	MetricSessionInvalidated
	MetricUserUpdated
	// MetricRequests counts every response received, whatever the status.
	MetricRequests
	// MetricRequestErrors counts 4xx and 5xx responses other than 401.
	MetricRequestErrors
	MetricUnauthorized
	// MetricTransportErrors counts requests that never got a response.
	MetricTransportErrors
	MetricRequestLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type paddedCounter struct {
	value atomic.Uint64
	_     [cacheLineSize - 8]byte
}

type histogram struct {
	buckets [histBucketCount]atomic.Uint64
	sumNs   atomic.Int64
}

// Metrics holds lock-free counters. A nil or disabled Metrics records
// nothing. It satisfies transport.Recorder.
type Metrics struct {
	enabled  bool
	latency  bool
	counters [metricIDCount]paddedCounter
	hist     histogram
}

// MetricsSnapshot is a point-in-time copy. Histogram buckets are
// non-cumulative, upper bounds 5, 10, 25, 50, 100, 250, 500 ms and +Inf.
// Sums holds the total observed duration per histogram.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
	Sums       map[MetricID]time.Duration
}

// NewMetrics returns a Metrics configured by cfg. Latency histograms are
// only kept when metrics are enabled.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled: cfg.Enabled,
		latency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether m records anything. A nil Metrics is disabled.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// Inc adds one to counter id. Unknown ids are ignored.
func (m *Metrics) Inc(id MetricID) {
	if !m.Enabled() || id >= metricIDCount {
		return
	}
	m.counters[id].value.Add(1)
}

// Observe records a latency sample. Only MetricRequestLatency is a histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if !m.Enabled() || !m.latency || id != MetricRequestLatency {
		return
	}
	m.hist.buckets[bucketIndex(d)].Add(1)
	m.hist.sumNs.Add(int64(d))
}

// Value returns counter id, or 0 when disabled.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.counters[id].value.Load()
}

// Snapshot copies every counter and, when enabled, the latency histogram.
// Maps are never nil. Counters are read one by one, so a snapshot taken
// under load is not a single atomic cut.
func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
		Sums:       map[MetricID]time.Duration{},
	}
	if !m.Enabled() {
		return s
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		if id == MetricRequestLatency {
			continue
		}
		s.Counters[id] = m.counters[id].value.Load()
	}
	if m.latency {
		buckets := make([]uint64, histBucketCount)
		for i := range buckets {
			buckets[i] = m.hist.buckets[i].Load()
		}
		s.Histograms[MetricRequestLatency] = buckets
		s.Sums[MetricRequestLatency] = time.Duration(m.hist.sumNs.Load())
	}
	return s
}

// ObserveRequest implements transport.Recorder.
func (m *Metrics) ObserveRequest(_ string, status int, d time.Duration) {
	m.Inc(MetricRequests)
	if status >= http.StatusBadRequest && status != http.StatusUnauthorized {
		m.Inc(MetricRequestErrors)
	}
	m.Observe(MetricRequestLatency, d)
}

// TransportError implements transport.Recorder.
func (m *Metrics) TransportError() {
	m.Inc(MetricTransportErrors)
}

// Unauthorized implements transport.Recorder.
func (m *Metrics) Unauthorized() {
	m.Inc(MetricUnauthorized)
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
