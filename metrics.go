package poaAuth

import (
	"sync/atomic"
	"time"
)

// MetricID names one engine counter, or the authenticate latency histogram.
// IDs are stable for the life of a process; exporters key their descriptors
// on them.
type MetricID uint16

// Registration and login.
const (
	MetricRegisterSuccess MetricID = iota
	MetricRegisterDuplicate
	MetricLoginSuccess
	MetricLoginFailure
	MetricLoginRateLimited
	MetricMFARequired
	MetricMFASuccess
	MetricMFAFailure
	// MetricMFAReplay counts second-factor attempts against a handle that
	// was already spent or expired.
	MetricMFAReplay
)

// Token lifecycle and the identity cache.
const (
	MetricRefreshSuccess MetricID = iota + MetricMFAReplay + 1
	MetricRefreshFailure
	MetricAuthenticateSuccess
	MetricAuthenticateFailure
	MetricCacheHit
	MetricCacheMiss
	MetricCacheEvicted
	MetricLogout
)

// Account management.
const (
	MetricPasswordChangeSuccess MetricID = iota + MetricLogout + 1
	MetricPasswordChangeInvalidCurrent
	MetricPasswordChangeReuseRejected
	MetricPasswordResetRequest
	MetricPasswordResetRequestThrottled
	MetricPasswordResetConfirmSuccess
	MetricPasswordResetConfirmFailure
	MetricInvitationCreated
	MetricInvitationAccepted
	MetricInvitationAcceptFailure
	MetricIdentityDeactivated
	MetricIdentityRoleChanged
)

// Second factor.
const (
	MetricTOTPSetup MetricID = iota + MetricIdentityRoleChanged + 1
	MetricTOTPEnabled
	MetricTOTPDisabled
	MetricTOTPFailure
	MetricTOTPSuccess
	MetricBackupCodeUsed
	MetricBackupCodeFailed
	MetricBackupCodeRegenerated

	// MetricAuthenticateLatency is the only histogram. Its buckets are
	// bounded at 5, 10, 25, 50, 100, 250 and 500ms plus an overflow bucket.
	MetricAuthenticateLatency

	metricIDCount
)

// latencyBounds are the inclusive upper bounds of all but the last bucket.
var latencyBounds = [...]time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

const histBucketCount = len(latencyBounds) + 1

// counterSlot keeps each counter on its own cache line.
type counterSlot struct {
	n atomic.Uint64
	_ [56]byte
}

// Metrics holds lock-free engine counters. The zero value and a nil
// *Metrics record nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]counterSlot
	latency       [histBucketCount]atomic.Uint64
}

// MetricsSnapshot is a copy of every counter and, when latency recording is
// on, the authenticate histogram.
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

// Inc adds one to id.
func (m *Metrics) Inc(id MetricID) {
	if !m.Enabled() || id >= metricIDCount {
		return
	}
	m.counters[id].n.Add(1)
}

// Observe records d for MetricAuthenticateLatency and ignores any other id.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if id != MetricAuthenticateLatency || !m.LatencyEnabled() {
		return
	}
	m.latency[latencyBucket(d)].Add(1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.counters[id].n.Load()
}

// Snapshot reads counters one at a time, so under load it is not a single
// instant.
func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
	}
	if !m.Enabled() {
		return s
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = m.counters[id].n.Load()
	}
	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := range buckets {
			buckets[i] = m.latency[i].Load()
		}
		s.Histograms[MetricAuthenticateLatency] = buckets
	}
	return s
}

func latencyBucket(d time.Duration) int {
	for i, bound := range latencyBounds {
		if d <= bound {
			return i
		}
	}
	return len(latencyBounds)
}
