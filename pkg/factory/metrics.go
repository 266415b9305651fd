package factory

// metrics.go adapts the cache layer's Prometheus-or-noop sink pattern to the
// factory's own counters: hits/misses/out-of-resources are meaningful here
// in exactly the same shape they were for a generic cache, just relabelled.
//
// © 2025 resourcecore authors. MIT License.

import (
	"github.com/prometheus/client_golang/prometheus"
)

// metricsSink abstracts away the concrete backend (Prometheus vs noop) so
// the factory's hot path never branches on whether metrics are enabled.
type metricsSink interface {
	incGetHit()
	incGetMiss()
	incOutOfResources()
	incReload()
	setLiveResources(n int)
}

type noopMetrics struct{}

func (noopMetrics) incGetHit()          {}
func (noopMetrics) incGetMiss()         {}
func (noopMetrics) incOutOfResources()  {}
func (noopMetrics) incReload()          {}
func (noopMetrics) setLiveResources(int) {}

type promMetrics struct {
	hits            prometheus.Counter
	misses          prometheus.Counter
	outOfResources  prometheus.Counter
	reloads         prometheus.Counter
	liveResources   prometheus.Gauge
}

func newPromMetrics(reg *prometheus.Registry) *promMetrics {
	pm := &promMetrics{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "resourcecore",
			Name:      "factory_get_hits_total",
			Help:      "Number of Get calls served from the live cache.",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "resourcecore",
			Name:      "factory_get_misses_total",
			Help:      "Number of Get calls that loaded a resource from mounts.",
		}),
		outOfResources: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "resourcecore",
			Name:      "factory_out_of_resources_total",
			Help:      "Number of Get calls rejected because the cache was at capacity.",
		}),
		reloads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "resourcecore",
			Name:      "factory_reloads_total",
			Help:      "Number of successful resource reloads.",
		}),
		liveResources: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "resourcecore",
			Name:      "factory_live_resources",
			Help:      "Number of resources currently cached (refcount > 0).",
		}),
	}
	reg.MustRegister(pm.hits, pm.misses, pm.outOfResources, pm.reloads, pm.liveResources)
	return pm
}

func (m *promMetrics) incGetHit()            { m.hits.Inc() }
func (m *promMetrics) incGetMiss()           { m.misses.Inc() }
func (m *promMetrics) incOutOfResources()    { m.outOfResources.Inc() }
func (m *promMetrics) incReload()            { m.reloads.Inc() }
func (m *promMetrics) setLiveResources(n int) { m.liveResources.Set(float64(n)) }

func newMetricsSink(reg *prometheus.Registry) metricsSink {
	if reg == nil {
		return noopMetrics{}
	}
	return newPromMetrics(reg)
}
