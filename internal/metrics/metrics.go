// Package metrics exposes Prometheus collectors for the booking lifecycle.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "courtbooking"

// Metrics groups the service collectors.
type Metrics struct {
	ReservationsCreated   prometheus.Counter
	ReservationsCancelled *prometheus.CounterVec
	Captures              *prometheus.CounterVec
	InventoryRejections   prometheus.Counter
	OrdersSettled         prometheus.Counter
	RevenueSettled        prometheus.Counter
	GatewayDuration       *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg. Pass
// prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ReservationsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_created_total",
			Help:      "Count of pending reservations created.",
		}),
		ReservationsCancelled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_cancelled_total",
			Help:      "Count of reservations cancelled by reason.",
		}, []string{"reason"}),
		Captures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_captures_total",
			Help:      "Count of payment capture outcomes.",
		}, []string{"outcome"}),
		InventoryRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inventory_rejections_total",
			Help:      "Count of service additions rejected for insufficient stock.",
		}),
		OrdersSettled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_settled_total",
			Help:      "Count of orders paid at the counter.",
		}),
		RevenueSettled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "revenue_settled_vnd_total",
			Help:      "Sum of settled order totals in VND.",
		}),
		GatewayDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_request_duration_seconds",
			Help:      "Latency of payment gateway calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "result"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.ReservationsCreated,
			m.ReservationsCancelled,
			m.Captures,
			m.InventoryRejections,
			m.OrdersSettled,
			m.RevenueSettled,
			m.GatewayDuration,
		)
	}
	return m
}

func (m *Metrics) ReservationCreated() {
	if m == nil {
		return
	}
	m.ReservationsCreated.Inc()
}

func (m *Metrics) ReservationCancelled(reason string) {
	if m == nil {
		return
	}
	m.ReservationsCancelled.WithLabelValues(reason).Inc()
}

// CaptureOutcome records one capture result: completed, failed, duplicate or error.
func (m *Metrics) CaptureOutcome(outcome string) {
	if m == nil {
		return
	}
	m.Captures.WithLabelValues(outcome).Inc()
}

func (m *Metrics) InventoryRejected() {
	if m == nil {
		return
	}
	m.InventoryRejections.Inc()
}

func (m *Metrics) OrderSettled(total int64) {
	if m == nil {
		return
	}
	m.OrdersSettled.Inc()
	m.RevenueSettled.Add(float64(total))
}

// ObserveGateway records the latency of a gateway call started at start.
func (m *Metrics) ObserveGateway(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.GatewayDuration.WithLabelValues(operation, result).Observe(time.Since(start).Seconds())
}
