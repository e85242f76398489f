package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/example/courtbooking/internal/lifecycle"
	"github.com/example/courtbooking/internal/persistence"
)

var (
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrSlotConflict is returned when a requested hour overlaps an existing reservation.
	ErrSlotConflict = errors.New("application: slot conflict")
	// ErrOutOfStock is returned when a service line exceeds the remaining inventory.
	ErrOutOfStock = errors.New("application: out of stock")
	// ErrPaymentFailed is returned when the gateway does not complete a payment.
	ErrPaymentFailed = errors.New("application: payment failed")
	// ErrConcurrentUpdate is returned when a conditional write lost to another writer.
	ErrConcurrentUpdate = errors.New("application: concurrent update")
	// ErrConfirmationRequired is returned when an operation needs explicit consent.
	ErrConfirmationRequired = errors.New("application: confirmation required")
	// ErrIllegalTransition is returned for status changes the lifecycle forbids.
	ErrIllegalTransition = lifecycle.ErrIllegalTransition
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil || len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for field := range v.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return "validation failed: " + strings.Join(fields, ", ")
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

func newValidationError(field, message string) *ValidationError {
	vErr := &ValidationError{}
	vErr.add(field, message)
	return vErr
}

// SlotConflictError lists the hours of a request that are already taken.
type SlotConflictError struct {
	CourtID        string
	Date           string
	Hours          []int
	ReservationIDs []string
}

func (e *SlotConflictError) Error() string {
	return fmt.Sprintf("application: court %s on %s already booked at hours %v", e.CourtID, e.Date, e.Hours)
}

func (e *SlotConflictError) Unwrap() error { return ErrSlotConflict }

// StockShortage describes one service line that cannot be served.
type StockShortage struct {
	ServiceID string
	Requested int
	Available int
}

// OutOfStockError lists every line of a request exceeding inventory.
type OutOfStockError struct {
	Shortages []StockShortage
}

func (e *OutOfStockError) Error() string {
	parts := make([]string, 0, len(e.Shortages))
	for _, s := range e.Shortages {
		parts = append(parts, fmt.Sprintf("%s (requested %d, available %d)", s.ServiceID, s.Requested, s.Available))
	}
	return "application: out of stock: " + strings.Join(parts, ", ")
}

func (e *OutOfStockError) Unwrap() error { return ErrOutOfStock }

// PaymentFailedError carries the gateway status of a failed payment.
type PaymentFailedError struct {
	ExternalOrderID string
	Status          string
}

func (e *PaymentFailedError) Error() string {
	if e.ExternalOrderID == "" {
		return fmt.Sprintf("application: payment failed with status %s", e.Status)
	}
	return fmt.Sprintf("application: payment %s failed with status %s", e.ExternalOrderID, e.Status)
}

func (e *PaymentFailedError) Unwrap() error { return ErrPaymentFailed }

// NetworkError wraps a transient failure to reach an external system. The
// operation may be retried.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("application: %s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Confirmation reasons.
const (
	ConfirmOpenCourt       = "open_court"
	ConfirmPaidReservation = "paid_reservation"
)

// ConfirmationRequiredError asks the caller to repeat the request with
// explicit consent.
type ConfirmationRequiredError struct {
	CourtID       string
	Reason        string
	ReservationID string
}

func (e *ConfirmationRequiredError) Error() string {
	if e.ReservationID != "" {
		return fmt.Sprintf("application: court %s: confirmation required (%s, reservation %s)", e.CourtID, e.Reason, e.ReservationID)
	}
	return fmt.Sprintf("application: court %s: confirmation required (%s)", e.CourtID, e.Reason)
}

func (e *ConfirmationRequiredError) Unwrap() error { return ErrConfirmationRequired }

// mapStoreError translates persistence sentinels into service errors.
func mapStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, persistence.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, persistence.ErrStaleState), errors.Is(err, persistence.ErrDuplicate):
		return fmt.Errorf("%w: %v", ErrConcurrentUpdate, err)
	case errors.Is(err, persistence.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return &NetworkError{Op: "store", Err: err}
	}
	return err
}
