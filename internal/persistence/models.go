package persistence

import (
	"time"

	"github.com/example/courtbooking/internal/lifecycle"
)

// Court is a bookable physical court.
type Court struct {
	ID          string
	Label       string
	Status      lifecycle.CourtStatus
	RateTableID string
	UpdatedAt   time.Time
}

// Reservation is a customer's pre-payment claim on an hour range.
type Reservation struct {
	ID         string
	CourtID    string
	CustomerID string
	Date       string
	StartHour  int
	EndHour    int
	Status     lifecycle.ReservationStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// PaymentRecord is the audit trail of one gateway order. ExternalOrderID is
// unique across the ledger.
type PaymentRecord struct {
	ID              string
	ReservationID   string
	ExternalOrderID string
	Amount          int64
	Currency        string
	LocalAmount     int64
	LocalCurrency   string
	PayerEmail      string
	Status          lifecycle.PaymentStatus
	Stage           lifecycle.PaymentStage
	FailureReason   string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CapturedAt      *time.Time
}

// PaymentTransition conditionally advances a payment record's stage.
type PaymentTransition struct {
	ExternalOrderID string
	From            lifecycle.PaymentStage
	To              lifecycle.PaymentStage
	PayerEmail      string
	FailureReason   string
	CapturedAt      *time.Time
	At              time.Time
}

// Order records one physical usage session of a court. EndTime stays nil
// while the session is active.
type Order struct {
	ID            string
	CourtID       string
	ReservationID string
	StartTime     time.Time
	EndTime       *time.Time
	Services      []OrderLine
	TotalPrice    *int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Active reports whether the order has not been closed yet.
func (o Order) Active() bool {
	return o.EndTime == nil
}

// OrderLine is a service sold during an order.
type OrderLine struct {
	ServiceID string
	Name      string
	UnitPrice int64
	Quantity  int
}

// CatalogItem is a sellable add-on with finite inventory.
type CatalogItem struct {
	ID        string
	Name      string
	UnitPrice int64
	Inventory int
	UpdatedAt time.Time
}
