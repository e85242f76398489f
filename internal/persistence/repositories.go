package persistence

import (
	"context"
	"time"

	"github.com/example/courtbooking/internal/lifecycle"
	"github.com/example/courtbooking/internal/pricing"
)

// CourtRepository reads courts and changes their status conditionally.
type CourtRepository interface {
	ListCourts(ctx context.Context) ([]Court, error)
	GetCourt(ctx context.Context, id string) (Court, error)
	// SwapCourtStatus sets the status to `to` only while it equals `from`,
	// returning ErrStaleState otherwise.
	SwapCourtStatus(ctx context.Context, id string, from, to lifecycle.CourtStatus, at time.Time) (Court, error)
}

// Subscription streams snapshots until Unsubscribe is called or the context
// it was opened with ends. The channel is closed afterwards.
type Subscription[T any] interface {
	Updates() <-chan T
	Unsubscribe()
}

// CourtWatcher opens live subscriptions on the court list.
type CourtWatcher interface {
	SubscribeCourts(ctx context.Context) (Subscription[[]Court], error)
}

// ReservationFilter narrows reservation queries. Empty fields match all.
type ReservationFilter struct {
	CourtID       string
	Date          string
	Statuses      []lifecycle.ReservationStatus
	CreatedBefore *time.Time
}

// Matches reports whether the reservation satisfies the filter.
func (f ReservationFilter) Matches(r Reservation) bool {
	if f.CourtID != "" && r.CourtID != f.CourtID {
		return false
	}
	if f.Date != "" && r.Date != f.Date {
		return false
	}
	if f.CreatedBefore != nil && !r.CreatedAt.Before(*f.CreatedBefore) {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, status := range f.Statuses {
		if r.Status == status {
			return true
		}
	}
	return false
}

// ReservationRepository stores reservations.
type ReservationRepository interface {
	CreateReservation(ctx context.Context, reservation Reservation) error
	GetReservation(ctx context.Context, id string) (Reservation, error)
	ListReservations(ctx context.Context, filter ReservationFilter) ([]Reservation, error)
	SwapReservationStatus(ctx context.Context, id string, from, to lifecycle.ReservationStatus, at time.Time) (Reservation, error)
}

// PaymentLedger stores payment records keyed by the gateway order id.
type PaymentLedger interface {
	CreatePayment(ctx context.Context, record PaymentRecord) error
	GetPaymentByExternalID(ctx context.Context, externalOrderID string) (PaymentRecord, error)
	ListPaymentsForReservation(ctx context.Context, reservationID string) ([]PaymentRecord, error)
	// AdvancePayment applies the transition only while the stored stage
	// equals transition.From, returning ErrStaleState otherwise.
	AdvancePayment(ctx context.Context, transition PaymentTransition) (PaymentRecord, error)
}

// OrderRepository stores court usage orders.
type OrderRepository interface {
	CreateOrder(ctx context.Context, order Order) error
	GetOrder(ctx context.Context, id string) (Order, error)
	// FindActiveOrder returns the order of the court whose EndTime is nil.
	FindActiveOrder(ctx context.Context, courtID string) (Order, error)
	// FindUnsettledOrder returns the latest order of the court whose
	// TotalPrice is nil, whether or not it has been closed.
	FindUnsettledOrder(ctx context.Context, courtID string) (Order, error)
	// AppendOrderLines merges lines into an active order by service id.
	AppendOrderLines(ctx context.Context, orderID string, lines []OrderLine, at time.Time) (Order, error)
	// CloseOrder sets EndTime when it is still nil and returns the order.
	CloseOrder(ctx context.Context, orderID string, endTime time.Time) (Order, error)
	// SettleOrder writes the total once; a settled order yields ErrStaleState.
	SettleOrder(ctx context.Context, orderID string, total int64, endTime time.Time) (Order, error)
	// ListClosedOrders returns orders whose EndTime lies in [from, to],
	// ordered by EndTime.
	ListClosedOrders(ctx context.Context, from, to time.Time) ([]Order, error)
}

// CatalogRepository stores service catalog items and their inventory.
type CatalogRepository interface {
	ListCatalog(ctx context.Context) ([]CatalogItem, error)
	GetCatalogItem(ctx context.Context, id string) (CatalogItem, error)
	// DecrementInventory atomically subtracts qty, failing with
	// ErrInsufficientInventory instead of going below zero.
	DecrementInventory(ctx context.Context, id string, qty int, at time.Time) (CatalogItem, error)
	IncrementInventory(ctx context.Context, id string, qty int, at time.Time) (CatalogItem, error)
}

// RateRepository stores pricing rate tables.
type RateRepository interface {
	GetRateTable(ctx context.Context, id string) (pricing.RateTable, error)
}

// Seeder upserts reference data at start-up.
type Seeder interface {
	UpsertCourt(ctx context.Context, court Court) error
	UpsertCatalogItem(ctx context.Context, item CatalogItem) error
	UpsertRateTable(ctx context.Context, table pricing.RateTable) error
}
