package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/courtbooking/internal/gateway"
	"github.com/example/courtbooking/internal/lifecycle"
	"github.com/example/courtbooking/internal/locks"
	"github.com/example/courtbooking/internal/metrics"
	"github.com/example/courtbooking/internal/persistence"
)

// PaymentGateway is the subset of the gateway client the orchestrator uses.
type PaymentGateway interface {
	CreateOrder(ctx context.Context, req gateway.CreateOrderRequest) (gateway.Order, error)
	CaptureOrder(ctx context.Context, token string) (gateway.Capture, error)
}

// EventPublisher delivers lifecycle events to downstream consumers such as
// the receipt renderer.
type EventPublisher interface {
	Publish(ctx context.Context, key string, at time.Time, payload any) error
}

// Options carries the optional collaborators shared by every service.
type Options struct {
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Events   EventPublisher
	Locker   locks.Locker
	Location *time.Location
}

func (o Options) withDefaults() Options {
	o.Logger = defaultLogger(o.Logger)
	if o.Locker == nil {
		o.Locker = locks.NewLocalLocker(nil)
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	return o
}

// CreateReservationParams describes a booking request.
type CreateReservationParams struct {
	CourtID    string
	CustomerID string
	Date       string
	StartHour  int
	EndHour    int
}

// Availability lists the occupied hours of a court on a date.
type Availability struct {
	CourtID  string
	Date     string
	Occupied []int
}

// PaymentScreen holds everything the payment screen shows before the payer
// is redirected to approve the order.
type PaymentScreen struct {
	ReservationID   string
	CourtID         string
	CourtLabel      string
	Date            string
	StartHour       int
	EndHour         int
	LocalAmount     int64
	LocalCurrency   string
	Amount          string
	Currency        string
	ExternalOrderID string
	ApprovalURL     string
}

// PaymentResult is the outcome of a capture or cancellation.
type PaymentResult struct {
	ExternalOrderID   string
	ReservationID     string
	Status            lifecycle.PaymentStatus
	Stage             lifecycle.PaymentStage
	Amount            string
	Currency          string
	LocalAmount       int64
	PayerEmail        string
	CapturedAt        *time.Time
	ReservationStatus lifecycle.ReservationStatus
	// Duplicate is set when the attempt had already been settled and the
	// stored outcome was returned without calling the gateway.
	Duplicate bool
}

// OpenCourtParams describes a manager's request to start a session.
type OpenCourtParams struct {
	CourtID         string
	Confirmed       bool
	OverrideBooking bool
}

// ServiceRequest is one requested add-on line.
type ServiceRequest struct {
	ServiceID string
	Quantity  int
}

// AddServicesParams adds service lines to an active order.
type AddServicesParams struct {
	OrderID string
	Lines   []ServiceRequest
}

// OrderSession is the manager's view of a court being used.
type OrderSession struct {
	OrderID       string
	CourtID       string
	Phase         lifecycle.SessionPhase
	StartedAt     time.Time
	ReservationID string
}

// BillLine is one itemised service charge.
type BillLine struct {
	ServiceID string
	Name      string
	UnitPrice int64
	Quantity  int
	Subtotal  int64
}

// Bill itemises the amount due for an order.
type Bill struct {
	OrderID       string
	CourtID       string
	StartTime     time.Time
	EndTime       time.Time
	Hours         int
	HourlyRate    int64
	CourtFee      int64
	Lines         []BillLine
	ServicesTotal int64
	Total         int64
	Settled       bool
}

func sessionFromOrder(order persistence.Order, phase lifecycle.SessionPhase) OrderSession {
	return OrderSession{
		OrderID:       order.ID,
		CourtID:       order.CourtID,
		Phase:         phase,
		StartedAt:     order.StartTime,
		ReservationID: order.ReservationID,
	}
}
