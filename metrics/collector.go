package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "jsbridge"

// Collector records bridge activity. A nil *Collector is valid and
// records nothing, so callers never need to check.
type Collector struct {
	registry *prometheus.Registry

	registrations *prometheus.CounterVec
	invocations   *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	asyncInflight prometheus.Gauge
	asyncTasks    *prometheus.CounterVec
	posts         *prometheus.CounterVec
}

// NewCollector creates a collector registered on reg. A nil reg gets a
// private registry, reachable through Registry.
func NewCollector(namespace string, reg *prometheus.Registry) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	c := &Collector{
		registry: reg,
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Module registrations by result.",
		}, []string{"result"}),
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invocations_total",
			Help:      "Function invocations by module and result.",
		}, []string{"module", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "invocation_duration_seconds",
			Help:      "Invocation latency including event loop drain.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}, []string{"module"}),
		asyncInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "async_tasks_inflight",
			Help:      "Background tasks currently running.",
		}),
		asyncTasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "async_tasks_total",
			Help:      "Finished background tasks by result.",
		}, []string{"result"}),
		posts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_posted_total",
			Help:      "Messages posted to the host port by kind and result.",
		}, []string{"kind", "result"}),
	}

	reg.MustRegister(c.registrations, c.invocations, c.duration, c.asyncInflight, c.asyncTasks, c.posts)
	return c
}

// Registry returns the registry the collector is registered on.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

// Registration counts one module registration.
func (c *Collector) Registration(ok bool) {
	if c == nil {
		return
	}
	c.registrations.WithLabelValues(result(ok)).Inc()
}

// Invocation counts one invoke and observes its latency.
func (c *Collector) Invocation(module string, ok bool, d time.Duration) {
	if c == nil {
		return
	}
	c.invocations.WithLabelValues(module, result(ok)).Inc()
	c.duration.WithLabelValues(module).Observe(d.Seconds())
}

// AsyncStarted marks a background task as running.
func (c *Collector) AsyncStarted() {
	if c == nil {
		return
	}
	c.asyncInflight.Inc()
}

// AsyncFinished marks a background task as done.
func (c *Collector) AsyncFinished(err error) {
	if c == nil {
		return
	}
	c.asyncInflight.Dec()
	c.asyncTasks.WithLabelValues(result(err == nil)).Inc()
}

// MessagePosted counts one post to the host port.
func (c *Collector) MessagePosted(kind string, ok bool) {
	if c == nil {
		return
	}
	c.posts.WithLabelValues(kind, result(ok)).Inc()
}
