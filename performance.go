package cinefusion

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PerformanceMonitor counts engine requests and records search latency.
type PerformanceMonitor struct {
	searches      atomic.Uint64
	cachedHits    atomic.Uint64
	invalid       atomic.Uint64
	suggestions   atomic.Uint64
	totalLatency  atomic.Int64
	searchLatency prometheus.Histogram
}

// PerformanceSnapshot is a point-in-time copy of the monitor counters.
type PerformanceSnapshot struct {
	Searches       uint64        `json:"searches"`
	CachedSearches uint64        `json:"cached_searches"`
	Invalid        uint64        `json:"invalid"`
	Suggestions    uint64        `json:"suggestions"`
	AverageLatency time.Duration `json:"average_latency"`
}

func NewPerformanceMonitor() *PerformanceMonitor {
	return &PerformanceMonitor{
		searchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cinefusion",
			Name:      "search_duration_seconds",
			Help:      "Latency of admitted searches.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
		}),
	}
}

func (pm *PerformanceMonitor) RecordSearch(latency time.Duration, cached bool) {
	pm.searches.Add(1)
	if cached {
		pm.cachedHits.Add(1)
	}
	pm.totalLatency.Add(int64(latency))
	pm.searchLatency.Observe(latency.Seconds())
}

func (pm *PerformanceMonitor) RecordInvalid() { pm.invalid.Add(1) }

func (pm *PerformanceMonitor) RecordSuggest() { pm.suggestions.Add(1) }

func (pm *PerformanceMonitor) Snapshot() PerformanceSnapshot {
	s := PerformanceSnapshot{
		Searches:       pm.searches.Load(),
		CachedSearches: pm.cachedHits.Load(),
		Invalid:        pm.invalid.Load(),
		Suggestions:    pm.suggestions.Load(),
	}
	if s.Searches > 0 {
		s.AverageLatency = time.Duration(pm.totalLatency.Load() / int64(s.Searches))
	}
	return s
}
