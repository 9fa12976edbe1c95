package authcore

import (
	"time"

	"github.com/MrEthical07/authcore/internal/metrics"
)

// MetricID identifies one engine counter or histogram.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginLocked
	MetricLoginUnverified
	MetricLockoutTriggered
	MetricAccountUnlocked
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricRefreshReplay
	MetricLogout
	MetricRateLimitHit
	MetricRateLimitFailOpen
	MetricAccountCreated
	MetricAccountDuplicate
	MetricPasswordResetRequest
	MetricPasswordResetSuccess
	MetricPasswordResetFailure
	MetricEmailVerificationRequest
	MetricEmailVerificationSuccess
	MetricEmailVerificationFailure
	MetricPasswordUpgraded
	// MetricValidateLatency is the only histogram: ValidateAccess latency.
	MetricValidateLatency
	metricIDCount
)

// Metrics is the engine's in-process metric set.
type Metrics struct {
	set *metrics.Set
}

// MetricsSnapshot is a point-in-time copy of every metric.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics returns a metric set honoring cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{set: metrics.New(int(metricIDCount), cfg.Enabled, cfg.EnableLatencyHistograms)}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.set.Enabled()
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || id >= metricIDCount {
		return
	}
	m.set.Inc(int(id))
}

// Observe records d for histogram metrics. Counter ids are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || id != MetricValidateLatency {
		return
	}
	m.set.Observe(int(id), d)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.set.Value(int(id))
}

// Snapshot returns empty maps when metrics are disabled.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if !m.Enabled() {
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
		if id == MetricValidateLatency {
			continue
		}
		s.Counters[id] = m.set.Value(int(id))
	}
	if m.set.LatencyEnabled() {
		s.Histograms[MetricValidateLatency] = m.set.Buckets(int(MetricValidateLatency))
	}
	return s
}
