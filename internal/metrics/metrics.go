// Package metrics exposes the ambient observability surface carried over
// from the teacher stack even though it is not itself a spec feature:
// a small set of prometheus counters/gauges describing queue depth and
// sync outcomes.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Recorder is the narrow surface SyncEngine touches; kept as
// an interface so engine tests never need a real prometheus registry.
type Recorder interface {
	SetQueueDepth(pending, syncing, completed, failed int)
	IncSyncAttempt(itemType string)
	IncSyncFailure(itemType string)
}

// Prometheus is the production Recorder, registered once per process.
type Prometheus struct {
	queueDepth    *prometheus.GaugeVec
	syncAttempts  *prometheus.CounterVec
	syncFailures  *prometheus.CounterVec
}

// NewPrometheus registers the fieldsync metrics on reg and returns a
// Recorder backed by them.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	p := &Prometheus{
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fieldsync_queue_depth",
			Help: "Number of sync queue items by status.",
		}, []string{"status"}),
		syncAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldsync_sync_attempts_total",
			Help: "Total number of sync attempts by item type.",
		}, []string{"type"}),
		syncFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldsync_sync_failures_total",
			Help: "Total number of failed sync attempts by item type.",
		}, []string{"type"}),
	}
	reg.MustRegister(p.queueDepth, p.syncAttempts, p.syncFailures)
	return p
}

func (p *Prometheus) SetQueueDepth(pending, syncing, completed, failed int) {
	p.queueDepth.WithLabelValues("pending").Set(float64(pending))
	p.queueDepth.WithLabelValues("syncing").Set(float64(syncing))
	p.queueDepth.WithLabelValues("completed").Set(float64(completed))
	p.queueDepth.WithLabelValues("failed").Set(float64(failed))
}

func (p *Prometheus) IncSyncAttempt(itemType string) {
	p.syncAttempts.WithLabelValues(itemType).Inc()
}

func (p *Prometheus) IncSyncFailure(itemType string) {
	p.syncFailures.WithLabelValues(itemType).Inc()
}

// Noop satisfies Recorder without touching any registry; it is the
// engine's recorder until SetMetrics installs another one.
type Noop struct{}

func (Noop) SetQueueDepth(pending, syncing, completed, failed int) {}
func (Noop) IncSyncAttempt(itemType string)                        {}
func (Noop) IncSyncFailure(itemType string)                        {}
