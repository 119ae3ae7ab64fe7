package build

import (
	"sync"
	"time"
)

// Metrics tracks build session outcomes across a process.
type Metrics struct {
	TotalBuilds      int64         `json:"total_builds"`
	SuccessfulBuilds int64         `json:"successful_builds"`
	FailedBuilds     int64         `json:"failed_builds"`
	CancelledBuilds  int64         `json:"cancelled_builds"`
	CacheHits        int64         `json:"cache_hits"`
	UnitsBuilt       int64         `json:"units_built"`
	UnitsCached      int64         `json:"units_cached"`
	AverageDuration  time.Duration `json:"average_duration"`
	TotalDuration    time.Duration `json:"total_duration"`
	mutex            sync.RWMutex
}

// NewMetrics creates a new metrics tracker
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Record adds one finished session to the metrics.
func (m *Metrics) Record(state State, result Result) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.TotalBuilds++
	m.TotalDuration += result.Duration
	m.UnitsBuilt += int64(result.Units - result.CachedUnits)
	m.UnitsCached += int64(result.CachedUnits)

	if result.CacheHit {
		m.CacheHits++
	}

	switch state {
	case StateSucceeded:
		m.SuccessfulBuilds++
	case StateCancelled:
		m.CancelledBuilds++
	default:
		m.FailedBuilds++
	}

	m.AverageDuration = m.TotalDuration / time.Duration(m.TotalBuilds)
}

// Snapshot returns a copy of the current metrics
func (m *Metrics) Snapshot() *Metrics {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return &Metrics{
		TotalBuilds:      m.TotalBuilds,
		SuccessfulBuilds: m.SuccessfulBuilds,
		FailedBuilds:     m.FailedBuilds,
		CancelledBuilds:  m.CancelledBuilds,
		CacheHits:        m.CacheHits,
		UnitsBuilt:       m.UnitsBuilt,
		UnitsCached:      m.UnitsCached,
		AverageDuration:  m.AverageDuration,
		TotalDuration:    m.TotalDuration,
	}
}

// Reset resets all metrics
func (m *Metrics) Reset() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.TotalBuilds = 0
	m.SuccessfulBuilds = 0
	m.FailedBuilds = 0
	m.CancelledBuilds = 0
	m.CacheHits = 0
	m.UnitsBuilt = 0
	m.UnitsCached = 0
	m.AverageDuration = 0
	m.TotalDuration = 0
}

// CacheHitRate returns the share of builds served entirely from the cache,
// as a percentage.
func (m *Metrics) CacheHitRate() float64 {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if m.TotalBuilds == 0 {
		return 0.0
	}

	return float64(m.CacheHits) / float64(m.TotalBuilds) * 100.0
}

// SuccessRate returns the success rate as a percentage
func (m *Metrics) SuccessRate() float64 {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if m.TotalBuilds == 0 {
		return 0.0
	}

	return float64(m.SuccessfulBuilds) / float64(m.TotalBuilds) * 100.0
}
