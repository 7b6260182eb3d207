// Package metrics exposes plugin host instrumentation in Prometheus format.
//
// A Recorder subscribes to plugin manager events and counts plugin outcomes,
// merged and dropped contributions, cycle durations and registry resets.
// Registry sizes and event bus totals are read at scrape time.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dshills/plughost/internal/event"
	"github.com/dshills/plughost/internal/plugin"
)

// Namespace prefixes every metric name.
const Namespace = "plughost"

// Recorder records plugin manager activity.
type Recorder struct {
	registry *prometheus.Registry

	plugins        *prometheus.CounterVec
	contributions  *prometheus.CounterVec
	pluginDuration *prometheus.HistogramVec
	cycles         prometheus.Counter
	cycleDuration  prometheus.Histogram
	resets         prometheus.Counter
	lastCycle      prometheus.Gauge
}

// Option configures a Recorder.
type Option func(*options)

type options struct {
	runtime bool
}

// WithRuntimeMetrics adds the Go runtime and process collectors.
func WithRuntimeMetrics() Option {
	return func(o *options) { o.runtime = true }
}

// New creates a Recorder with its own registry.
func New(opts ...Option) *Recorder {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	r := &Recorder{
		registry: prometheus.NewRegistry(),
		plugins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "plugins_total",
			Help:      "Plugins processed by load cycles, by source and outcome.",
		}, []string{"source", "state"}),
		contributions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "contributions_total",
			Help:      "Plugin contributions by registry kind and merge outcome.",
		}, []string{"kind", "outcome"}),
		pluginDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "plugin_setup_duration_seconds",
			Help:      "Time to fetch and set up one plugin.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"source"}),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "load_cycles_total",
			Help:      "Completed load cycles.",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "load_cycle_duration_seconds",
			Help:      "Duration of complete load cycles.",
			Buckets:   prometheus.DefBuckets,
		}),
		resets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "registry_resets_total",
			Help:      "Times the plugin registries were emptied.",
		}),
		lastCycle: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "last_load_cycle_timestamp_seconds",
			Help:      "Unix time the last load cycle completed.",
		}),
	}

	r.registry.MustRegister(
		r.plugins,
		r.contributions,
		r.pluginDuration,
		r.cycles,
		r.cycleDuration,
		r.resets,
		r.lastCycle,
	)
	if o.runtime {
		r.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return r
}

// Registry returns the underlying Prometheus registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Attach subscribes the recorder to m and returns the unsubscribe func.
func (r *Recorder) Attach(m *plugin.Manager) func() {
	return m.Subscribe(r.Observe)
}

// Observe records one manager event.
func (r *Recorder) Observe(ev plugin.ManagerEvent) {
	switch ev.Type {
	case plugin.EventPluginLoaded, plugin.EventPluginSkipped, plugin.EventPluginFailed:
		st := ev.Status
		r.plugins.WithLabelValues(st.Source.String(), st.State.String()).Inc()
		if st.State != plugin.StateSkipped {
			r.pluginDuration.WithLabelValues(st.Source.String()).Observe(st.Duration.Seconds())
		}
		r.addCounts("accepted", st.Merge.Accepted)
		r.addCounts("denied", st.Merge.Denied)
		r.addCounts("duplicate", st.Merge.Duplicates)
	case plugin.EventRegistryReset:
		r.resets.Inc()
	case plugin.EventCycleCompleted:
		r.cycles.Inc()
		if ev.Report != nil {
			r.cycleDuration.Observe(ev.Report.Duration.Seconds())
			r.lastCycle.Set(float64(ev.Report.Started.Add(ev.Report.Duration).Unix()))
		}
	}
}

func (r *Recorder) addCounts(outcome string, counts plugin.Counts) {
	for kind, n := range counts {
		if n > 0 {
			r.contributions.WithLabelValues(string(kind), outcome).Add(float64(n))
		}
	}
}

// WatchRegistry exports the current size of each registry.
func (r *Recorder) WatchRegistry(reg *plugin.Registry) {
	r.registry.MustRegister(&registryCollector{
		reg: reg,
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "registry", "entries"),
			"Entries currently registered, by registry kind.",
			[]string{"kind"}, nil,
		),
	})
}

// WatchBus exports event bus totals.
func (r *Recorder) WatchBus(bus *event.Bus) {
	r.registry.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "events_published_total",
			Help:      "Events published on the host bus.",
		}, func() float64 { return float64(bus.Stats().Published) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "events_delivered_total",
			Help:      "Event deliveries to subscribers.",
		}, func() float64 { return float64(bus.Stats().Delivered) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "event_handler_panics_total",
			Help:      "Recovered panics in event handlers.",
		}, func() float64 { return float64(bus.Stats().HandlerPanics) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "event_subscriptions",
			Help:      "Active event subscriptions.",
		}, func() float64 { return float64(bus.Stats().Subscriptions) }),
	)
}

type registryCollector struct {
	reg  *plugin.Registry
	desc *prometheus.Desc
}

func (c *registryCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *registryCollector) Collect(ch chan<- prometheus.Metric) {
	counts := c.reg.Counts()
	for _, kind := range plugin.Kinds() {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(counts[kind]), string(kind))
	}
}
