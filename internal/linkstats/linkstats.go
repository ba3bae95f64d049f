// Package linkstats tracks notification health for a device session: how
// many frames arrived, how many the decoder threw away, and the observed
// notification rate over a sliding window.
package linkstats

import (
	"sync"
	"time"
)

// ringSize bounds the rate window. At the usual 1-4 notifications per second
// this covers roughly the last half minute of traffic.
const ringSize = 32

// Monitor accumulates frame timestamps for one session. Safe for use from a
// notification callback and the poll goroutine at the same time.
type Monitor struct {
	mu       sync.Mutex
	stamps   [ringSize]time.Time
	total    int
	rejected int
}

func NewMonitor() *Monitor {
	return &Monitor{}
}

// Record notes one accepted frame observed at time t.
func (m *Monitor) Record(t time.Time) {
	m.mu.Lock()
	m.stamps[m.total%ringSize] = t
	m.total++
	m.mu.Unlock()
}

// Reject notes one frame the decoder discarded.
func (m *Monitor) Reject() {
	m.mu.Lock()
	m.rejected++
	m.mu.Unlock()
}

// Snapshot is a point-in-time copy of the monitor, shaped for the status
// endpoint.
type Snapshot struct {
	Frames    int       `json:"frames"`
	Rejected  int       `json:"rejected"`
	RateHz    float64   `json:"rate_hz"`
	LastFrame time.Time `json:"last_frame"`
}

// Snapshot reports totals and the rate across the retained window. Fewer
// than three frames is not enough signal, so the rate stays zero.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{Frames: m.total, Rejected: m.rejected}
	if m.total == 0 {
		return s
	}

	newest := m.stamps[(m.total-1)%ringSize]
	s.LastFrame = newest

	count := m.total
	oldest := m.stamps[0]
	if m.total > ringSize {
		count = ringSize
		oldest = m.stamps[m.total%ringSize]
	}
	if count < 3 {
		return s
	}
	window := newest.Sub(oldest).Seconds()
	if window <= 0 {
		return s
	}
	s.RateHz = float64(count-1) / window
	return s
}
