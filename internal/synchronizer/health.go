package synchronizer

import (
	"slices"
	"sync"
	"time"
)

type HealthStatus string

const (
	HealthStatusUnknown   HealthStatus = "UNKNOWN"
	HealthStatusHealthy   HealthStatus = "HEALTHY"
	HealthStatusDegraded  HealthStatus = "DEGRADED"
	HealthStatusUnhealthy HealthStatus = "UNHEALTHY"

	// DefaultUnhealthyThreshold is the number of consecutive failed
	// refreshes before the feed is considered unhealthy.
	DefaultUnhealthyThreshold = 5

	// DefaultDegradedLatencyThreshold is the P95 refresh latency above
	// which the feed is considered degraded.
	DefaultDegradedLatencyThreshold = 3 * time.Second

	// staleIntervals is how many poll intervals may pass without a good
	// refresh before a healthy feed is reported as degraded.
	staleIntervals = 3

	latencyWindowSize = 10
)

// Health tracks refresh outcomes. A failing poll keeps serving the previous
// snapshot, so this is the only place trouble shows up.
type Health struct {
	network string
	now     func() time.Time

	mu           sync.RWMutex
	failing      int // consecutive failures
	unhealthy    bool
	lastOK       time.Time
	lastFail     time.Time
	lastErr      string
	latencies    []time.Duration
	staleAfter   time.Duration // 0 disables the staleness check
	failLimit    int
	slowLatency  time.Duration
	everReported bool
}

func NewHealth(network string) *Health {
	return &Health{
		network:     network,
		now:         time.Now,
		latencies:   make([]time.Duration, 0, latencyWindowSize),
		failLimit:   DefaultUnhealthyThreshold,
		slowLatency: DefaultDegradedLatencyThreshold,
	}
}

// expectEvery tells the tracker the poll interval so it can flag a feed
// that stopped refreshing without reporting failures.
func (h *Health) expectEvery(interval time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.staleAfter = staleIntervals * interval
}

// RecordSuccess returns true when this success ends an unhealthy streak.
func (h *Health) RecordSuccess(latency time.Duration) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	recovered := h.unhealthy
	h.everReported = true
	h.failing = 0
	h.unhealthy = false
	h.lastOK = h.now()
	h.lastErr = ""
	if len(h.latencies) == latencyWindowSize {
		h.latencies = h.latencies[1:]
	}
	h.latencies = append(h.latencies, latency)
	return recovered
}

// RecordFailure returns true when this failure makes the feed unhealthy.
func (h *Health) RecordFailure(err error) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.everReported = true
	h.failing++
	h.lastFail = h.now()
	if err != nil {
		h.lastErr = err.Error()
	}
	if h.failing >= h.failLimit && !h.unhealthy {
		h.unhealthy = true
		return true
	}
	return false
}

func (h *Health) Snapshot() HealthSnapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	snap := HealthSnapshot{
		Network:             h.network,
		Status:              string(h.statusLocked()),
		ConsecutiveFailures: h.failing,
		LastError:           h.lastErr,
	}
	if !h.lastOK.IsZero() {
		t := h.lastOK
		snap.LastSuccessAt = &t
	}
	if !h.lastFail.IsZero() {
		t := h.lastFail
		snap.LastFailureAt = &t
	}
	return snap
}

func (h *Health) statusLocked() HealthStatus {
	switch {
	case !h.everReported:
		return HealthStatusUnknown
	case h.unhealthy:
		return HealthStatusUnhealthy
	case h.failing > 0:
		return HealthStatusDegraded
	case h.p95() > h.slowLatency:
		return HealthStatusDegraded
	case h.staleAfter > 0 && !h.lastOK.IsZero() && h.now().Sub(h.lastOK) > h.staleAfter:
		return HealthStatusDegraded
	default:
		return HealthStatusHealthy
	}
}

// p95 needs at least two samples; a single slow first fetch is normal.
func (h *Health) p95() time.Duration {
	n := len(h.latencies)
	if n < 2 {
		return 0
	}
	sorted := slices.Clone(h.latencies)
	slices.Sort(sorted)
	idx := (95*n - 1) / 100
	return sorted[min(max(idx, 0), n-1)]
}

// HealthSnapshot is the JSON form served on /v1/health.
type HealthSnapshot struct {
	Network             string     `json:"network"`
	Status              string     `json:"status"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastSuccessAt       *time.Time `json:"last_success_at,omitempty"`
	LastFailureAt       *time.Time `json:"last_failure_at,omitempty"`
	LastError           string     `json:"last_error,omitempty"`
}
