// Package metrics exports thread pool activity to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jzx17/simplepool/pkg/types"
)

// Collector implements worker.Observer on top of Prometheus metrics.
type Collector struct {
	registerer prometheus.Registerer

	Submitted prometheus.Counter
	Executed  *prometheus.CounterVec
	Cleared   prometheus.Counter
	Duration  prometheus.Histogram
}

// NewCollector creates the pool metrics on registerer.
// A nil registerer uses prometheus.DefaultRegisterer.
func NewCollector(registerer prometheus.Registerer) *Collector {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &Collector{
		registerer: registerer,
		Submitted: promauto.With(registerer).NewCounter(
			prometheus.CounterOpts{
				Name: "simplepool_tasks_submitted_total",
				Help: "Total number of tasks accepted by the pool",
			},
		),
		Executed: promauto.With(registerer).NewCounterVec(
			prometheus.CounterOpts{
				Name: "simplepool_tasks_executed_total",
				Help: "Total number of executed tasks by outcome",
			},
			[]string{"status"}, // status: ok, failed
		),
		Cleared: promauto.With(registerer).NewCounter(
			prometheus.CounterOpts{
				Name: "simplepool_tasks_cleared_total",
				Help: "Total number of queued tasks discarded without running",
			},
		),
		Duration: promauto.With(registerer).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "simplepool_task_duration_seconds",
				Help:    "Task execution duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10), // 100us to ~26s
			},
		),
	}
}

func (c *Collector) TaskSubmitted() {
	c.Submitted.Inc()
}

func (c *Collector) TaskCompleted(d time.Duration, failed bool) {
	status := "ok"
	if failed {
		status = "failed"
	}
	c.Executed.WithLabelValues(status).Inc()
	c.Duration.Observe(d.Seconds())
}

func (c *Collector) TasksCleared(n int) {
	c.Cleared.Add(float64(n))
}

// Instrument registers gauges that sample the pool's queue length, size and
// active workers on every scrape.
func (c *Collector) Instrument(pool types.WorkerPool) {
	factory := promauto.With(c.registerer)

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "simplepool_queue_length",
		Help: "Number of tasks waiting in the queue",
	}, func() float64 { return float64(pool.QueueSize()) })

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "simplepool_workers",
		Help: "Number of worker threads",
	}, func() float64 { return float64(pool.Size()) })

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "simplepool_active_workers",
		Help: "Number of workers executing a task",
	}, func() float64 { return float64(pool.Stats().ActiveWorkers) })
}
