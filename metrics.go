package cinefusion

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports engine statistics as Prometheus metrics. Register it
// with prometheus.MustRegister(NewCollector(engine)).
type Collector struct {
	engine *Engine

	records       *prometheus.Desc
	cacheEntries  *prometheus.Desc
	cacheCapacity *prometheus.Desc
	cacheHits     *prometheus.Desc
	cacheMisses   *prometheus.Desc
	cacheEvicted  *prometheus.Desc
	cacheExpired  *prometheus.Desc
	rateAdmitted  *prometheus.Desc
	rateRejected  *prometheus.Desc
	rateClients   *prometheus.Desc
	searches      *prometheus.Desc
	invalid       *prometheus.Desc
	suggestions   *prometheus.Desc
}

func NewCollector(e *Engine) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName("cinefusion", "", name), help, nil, nil)
	}
	return &Collector{
		engine:        e,
		records:       desc("records", "Number of indexed records."),
		cacheEntries:  desc("cache_entries", "Resident result cache entries."),
		cacheCapacity: desc("cache_capacity", "Result cache capacity."),
		cacheHits:     desc("cache_hits_total", "Result cache hits."),
		cacheMisses:   desc("cache_misses_total", "Result cache misses."),
		cacheEvicted:  desc("cache_evictions_total", "Result cache entries evicted for capacity."),
		cacheExpired:  desc("cache_expirations_total", "Result cache entries dropped after their TTL."),
		rateAdmitted:  desc("ratelimit_admitted_total", "Searches admitted by the rate limiter."),
		rateRejected:  desc("ratelimit_rejected_total", "Searches rejected by the rate limiter."),
		rateClients:   desc("ratelimit_clients", "Clients tracked by the rate limiter."),
		searches:      desc("searches_total", "Searches executed or served from cache."),
		invalid:       desc("invalid_queries_total", "Searches rejected as invalid."),
		suggestions:   desc("suggestions_total", "Suggestion requests."),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.records, c.cacheEntries, c.cacheCapacity, c.cacheHits, c.cacheMisses,
		c.cacheEvicted, c.cacheExpired, c.rateAdmitted, c.rateRejected, c.rateClients,
		c.searches, c.invalid, c.suggestions,
	} {
		ch <- d
	}
	c.engine.monitor.searchLatency.Describe(ch)
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	st := c.engine.Stats()
	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
	}
	counter := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	gauge(c.records, float64(st.Records))
	gauge(c.cacheEntries, float64(st.Cache.Size))
	gauge(c.cacheCapacity, float64(st.Cache.Capacity))
	counter(c.cacheHits, st.Cache.Hits)
	counter(c.cacheMisses, st.Cache.Misses)
	counter(c.cacheEvicted, st.Cache.Evictions)
	counter(c.cacheExpired, st.Cache.Expirations)
	counter(c.rateAdmitted, st.RateLimiter.Admitted)
	counter(c.rateRejected, st.RateLimiter.Rejected)
	gauge(c.rateClients, float64(st.RateLimiter.Clients))
	counter(c.searches, st.Performance.Searches)
	counter(c.invalid, st.Performance.Invalid)
	counter(c.suggestions, st.Performance.Suggestions)
	c.engine.monitor.searchLatency.Collect(ch)
}
