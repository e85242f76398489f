// Package lifecycle defines the status enums of courts, reservations,
// payments and order sessions together with their allowed transitions.
package lifecycle

import (
	"errors"
	"fmt"
)

// ErrIllegalTransition is returned when a status change is not permitted.
var ErrIllegalTransition = errors.New("lifecycle: illegal transition")

// TransitionError describes a rejected status change.
type TransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("lifecycle: %s cannot move from %q to %q", e.Entity, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrIllegalTransition }

// CourtStatus is the operational status of a physical court.
type CourtStatus string

const (
	CourtAvailable CourtStatus = "available"
	CourtInUse     CourtStatus = "in_use"
)

// Valid reports whether the status is a known value.
func (s CourtStatus) Valid() bool {
	switch s {
	case CourtAvailable, CourtInUse:
		return true
	}
	return false
}

// CanTransitionTo reports whether the court may move to next.
func (s CourtStatus) CanTransitionTo(next CourtStatus) bool {
	switch s {
	case CourtAvailable:
		return next == CourtInUse
	case CourtInUse:
		return next == CourtAvailable
	}
	return false
}

// Transition validates a court status change.
func (s CourtStatus) Transition(next CourtStatus) (CourtStatus, error) {
	if !s.CanTransitionTo(next) {
		return s, &TransitionError{Entity: "court", From: string(s), To: string(next)}
	}
	return next, nil
}

// ReservationStatus tracks a pre-payment booking.
type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "pending"
	ReservationPaid      ReservationStatus = "paid"
	ReservationCancelled ReservationStatus = "cancelled"
)

func (s ReservationStatus) Valid() bool {
	switch s {
	case ReservationPending, ReservationPaid, ReservationCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s ReservationStatus) Terminal() bool {
	return s == ReservationPaid || s == ReservationCancelled
}

// Blocking reports whether a reservation in this status occupies its hours.
func (s ReservationStatus) Blocking() bool {
	return s != ReservationCancelled
}

func (s ReservationStatus) CanTransitionTo(next ReservationStatus) bool {
	return s == ReservationPending && (next == ReservationPaid || next == ReservationCancelled)
}

func (s ReservationStatus) Transition(next ReservationStatus) (ReservationStatus, error) {
	if !s.CanTransitionTo(next) {
		return s, &TransitionError{Entity: "reservation", From: string(s), To: string(next)}
	}
	return next, nil
}

// PaymentStatus is the audit status of a payment record.
type PaymentStatus string

const (
	PaymentInitiated PaymentStatus = "initiated"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentInitiated, PaymentCompleted, PaymentFailed:
		return true
	}
	return false
}

// PaymentStage is the position of a payment attempt in the gateway flow.
type PaymentStage string

const (
	StageInitiated  PaymentStage = "initiated"
	StageRedirected PaymentStage = "redirected"
	StageCaptured   PaymentStage = "captured"
	StageFailed     PaymentStage = "capture_failed"
	StageCancelled  PaymentStage = "cancelled"
)

var paymentStageTransitions = map[PaymentStage][]PaymentStage{
	StageInitiated:  {StageRedirected, StageCancelled},
	StageRedirected: {StageCaptured, StageFailed, StageCancelled},
}

func (s PaymentStage) Valid() bool {
	switch s {
	case StageInitiated, StageRedirected, StageCaptured, StageFailed, StageCancelled:
		return true
	}
	return false
}

// Terminal reports whether the attempt has finished.
func (s PaymentStage) Terminal() bool {
	return s == StageCaptured || s == StageFailed || s == StageCancelled
}

func (s PaymentStage) CanTransitionTo(next PaymentStage) bool {
	for _, allowed := range paymentStageTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s PaymentStage) Transition(next PaymentStage) (PaymentStage, error) {
	if !s.CanTransitionTo(next) {
		return s, &TransitionError{Entity: "payment", From: string(s), To: string(next)}
	}
	return next, nil
}

// Status maps a stage to the audit status stored on the payment record.
func (s PaymentStage) Status() PaymentStatus {
	switch s {
	case StageCaptured:
		return PaymentCompleted
	case StageFailed:
		return PaymentFailed
	}
	return PaymentInitiated
}

// SessionPhase is the manager-side state of a court session.
type SessionPhase string

const (
	PhaseAvailable SessionPhase = "available"
	PhaseOpening   SessionPhase = "opening"
	PhaseInUse     SessionPhase = "in_use"
	PhasePaying    SessionPhase = "paying"
)

var sessionTransitions = map[SessionPhase]SessionPhase{
	PhaseAvailable: PhaseOpening,
	PhaseOpening:   PhaseInUse,
	PhaseInUse:     PhasePaying,
	PhasePaying:    PhaseAvailable,
}

func (p SessionPhase) CanTransitionTo(next SessionPhase) bool {
	if p == PhaseOpening && next == PhaseAvailable {
		// the manager backed out of the confirmation
		return true
	}
	allowed, ok := sessionTransitions[p]
	return ok && allowed == next
}

func (p SessionPhase) Transition(next SessionPhase) (SessionPhase, error) {
	if !p.CanTransitionTo(next) {
		return p, &TransitionError{Entity: "session", From: string(p), To: string(next)}
	}
	return next, nil
}
