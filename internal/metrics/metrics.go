// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsPublishedTotal counts events enqueued on the hub by type.
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kegcore_events_published_total",
			Help: "Total number of events published to the event hub",
		},
		[]string{"event"},
	)

	// EventsDispatchedTotal counts events drained from the hub by type.
	EventsDispatchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kegcore_events_dispatched_total",
			Help: "Total number of events dispatched to subscribers",
		},
		[]string{"event"},
	)

	// DispatchErrorsTotal counts subscriber panics recovered by the hub.
	DispatchErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kegcore_dispatch_errors_total",
			Help: "Total number of subscriber failures during dispatch",
		},
		[]string{"event"},
	)

	// FlowsActive tracks the number of flows currently in the active map.
	FlowsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kegcore_flows_active",
			Help: "Number of flows currently active or idle",
		},
	)

	// FlowsCompletedTotal counts flows that reached the completed state.
	FlowsCompletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kegcore_flows_completed_total",
			Help: "Total number of completed flows",
		},
	)

	// DrinksPostedTotal counts drinks successfully recorded on the backend.
	DrinksPostedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kegcore_drinks_posted_total",
			Help: "Total number of drinks posted to the backend",
		},
	)

	// DrinkPostFailuresTotal counts failed drink posts by disposition.
	DrinkPostFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kegcore_drink_post_failures_total",
			Help: "Total number of failed drink posts",
		},
		[]string{"disposition"}, // "requeued" | "dropped"
	)

	// DrinksPending tracks the size of the pending drink queue.
	DrinksPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kegcore_drinks_pending",
			Help: "Number of completed flows awaiting backend acknowledgment",
		},
	)

	// ThermoReadingsTotal counts temperature readings recorded on the backend.
	ThermoReadingsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kegcore_thermo_readings_total",
			Help: "Total number of temperature readings recorded",
		},
	)

	// ThermoDroppedTotal counts temperature readings dropped by reason.
	ThermoDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kegcore_thermo_dropped_total",
			Help: "Total number of temperature readings dropped",
		},
		[]string{"reason"}, // "out_of_range" | "rate_limited" | "backend"
	)

	// BrokerMessagesTotal counts messages crossing the broker bridge.
	BrokerMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kegcore_broker_messages_total",
			Help: "Total number of messages crossing the kegnet bridge",
		},
		[]string{"direction"}, // "inbound" | "outbound"
	)

	// BrokerReconnectsTotal counts reconnect attempts to the broker.
	BrokerReconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kegcore_broker_reconnects_total",
			Help: "Total number of broker reconnect attempts",
		},
	)
)
