package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ReservationCreated()
	m.ReservationCreated()
	m.ReservationCancelled("customer")
	m.ReservationCancelled("abandoned")
	m.CaptureOutcome("completed")
	m.CaptureOutcome("duplicate")
	m.CaptureOutcome("duplicate")
	m.InventoryRejected()
	m.OrderSettled(150000)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ReservationsCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReservationsCancelled.WithLabelValues("abandoned")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Captures.WithLabelValues("duplicate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InventoryRejections))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OrdersSettled))
	assert.Equal(t, 150000.0, testutil.ToFloat64(m.RevenueSettled))
}

func TestMetrics_ObserveGateway(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveGateway("create_order", time.Now(), nil)
	m.ObserveGateway("capture_order", time.Now(), errors.New("timeout"))

	count, err := testutil.GatherAndCount(reg, "courtbooking_gateway_request_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ReservationCreated()
		m.ReservationCancelled("customer")
		m.CaptureOutcome("failed")
		m.InventoryRejected()
		m.OrderSettled(1)
		m.ObserveGateway("capture_order", time.Now(), nil)
	})
}
