package ensemble

import "github.com/prometheus/client_golang/prometheus"

// Metrics are built eagerly but never registered to prometheus's default
// registry automatically — a caller opts in via MetricsCollectors(), avoiding the
// duplicate-registration panics that a package-level auto-register causes
// in tests that construct more than one System.
var (
	messagesDispatchedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ensemble_messages_dispatched_total",
		Help: "Messages handed to an actor's Receive, by actor type.",
	}, []string{"actor_type"})

	messagesDroppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ensemble_messages_dropped_total",
		Help: "Messages dropped by a backpressure controller, by reason.",
	}, []string{"reason"})

	backpressureActivatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ensemble_backpressure_activated_total",
		Help: "Times a mailbox crossed its high watermark.",
	}, []string{"pid"})

	backpressureDeactivatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ensemble_backpressure_deactivated_total",
		Help: "Times a mailbox fell back below its low watermark.",
	}, []string{"pid"})

	deadLettersTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ensemble_dead_letters_total",
		Help: "Envelopes recorded to the dead-letter sink.",
	})

	dispatcherQueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ensemble_dispatcher_queue_depth",
		Help: "Pending task count per dispatcher class.",
	}, []string{"class"})

	actorRestartsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ensemble_actor_restarts_total",
		Help: "Times the supervisor restarted an actor.",
	}, []string{"pid"})
)

// MetricsCollectors returns every collector this package maintains, for a
// caller to register with its own prometheus.Registerer.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		messagesDispatchedTotal,
		messagesDroppedTotal,
		backpressureActivatedTotal,
		backpressureDeactivatedTotal,
		deadLettersTotal,
		dispatcherQueueDepth,
		actorRestartsTotal,
	}
}
