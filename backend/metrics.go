package backend

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/blockstore/metric"
)

// backendMetrics holds the pipeline's instrumentation. All collectors are
// registered under the "backend" component of the shared registry.
type backendMetrics struct {
	blocksWritten  prometheus.Counter
	blocksRead     prometheus.Counter
	blocksNotFound prometheus.Counter
	bytesWritten   prometheus.Counter
	bytesRead      prometheus.Counter
	fatalErrors    prometheus.Counter

	writeQueueDepth  prometheus.Gauge
	readQueueDepth   prometheus.Gauge
	resultQueueDepth prometheus.Gauge

	throttleWait *prometheus.HistogramVec
}

// WithMetrics registers the pipeline's collectors with reg and enables the
// periodic queue depth sampler.
func WithMetrics(reg *metric.Registry) Option {
	return func(b *Backend) {
		b.metrics = newBackendMetrics(reg, b.medium.Name())
	}
}

func newBackendMetrics(reg *metric.Registry, mediumName string) *backendMetrics {
	labels := prometheus.Labels{"medium": mediumName}

	m := &backendMetrics{
		blocksWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "blockstore_blocks_written_total",
			Help:        "Blocks written to the storage medium.",
			ConstLabels: labels,
		}),
		blocksRead: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "blockstore_blocks_read_total",
			Help:        "Blocks read from the storage medium.",
			ConstLabels: labels,
		}),
		blocksNotFound: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "blockstore_blocks_not_found_total",
			Help:        "Read requests for uids the medium does not hold.",
			ConstLabels: labels,
		}),
		bytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "blockstore_bytes_written_total",
			Help:        "Payload bytes written to the storage medium.",
			ConstLabels: labels,
		}),
		bytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "blockstore_bytes_read_total",
			Help:        "Payload bytes read from the storage medium.",
			ConstLabels: labels,
		}),
		fatalErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "blockstore_fatal_errors_total",
			Help:        "Fatal medium errors that latched the backend.",
			ConstLabels: labels,
		}),
		writeQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "blockstore_write_queue_depth",
			Help:        "Jobs waiting in the write queue.",
			ConstLabels: labels,
		}),
		readQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "blockstore_read_queue_depth",
			Help:        "Requests waiting in the read queue.",
			ConstLabels: labels,
		}),
		resultQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "blockstore_result_queue_depth",
			Help:        "Completed reads waiting for collection.",
			ConstLabels: labels,
		}),
		throttleWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "blockstore_throttle_wait_seconds",
			Help:        "Time workers slept to honor bandwidth limits.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"direction"}),
	}

	for name, c := range map[string]prometheus.Collector{
		"blocks_written":     m.blocksWritten,
		"blocks_read":        m.blocksRead,
		"blocks_not_found":   m.blocksNotFound,
		"bytes_written":      m.bytesWritten,
		"bytes_read":         m.bytesRead,
		"fatal_errors":       m.fatalErrors,
		"write_queue_depth":  m.writeQueueDepth,
		"read_queue_depth":   m.readQueueDepth,
		"result_queue_depth": m.resultQueueDepth,
		"throttle_wait":      m.throttleWait,
	} {
		if err := reg.Register("backend", name, c); err != nil {
			// Duplicate registration means two backends share a medium
			// name on one registry; keep the first collector.
			continue
		}
	}
	return m
}

// metricsLoop samples queue depths once a second until shutdown. Push-side
// updates keep the gauges fresh between samples.
func (b *Backend) metricsLoop() {
	defer b.metricsWG.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			b.metrics.writeQueueDepth.Set(float64(len(b.writeQueue)))
			b.metrics.readQueueDepth.Set(float64(b.readQueue.Len()))
			b.metrics.resultQueueDepth.Set(float64(len(b.resultQueue)))
		}
	}
}
