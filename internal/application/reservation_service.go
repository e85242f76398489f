package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/courtbooking/internal/events"
	"github.com/example/courtbooking/internal/lifecycle"
	"github.com/example/courtbooking/internal/locks"
	"github.com/example/courtbooking/internal/metrics"
	"github.com/example/courtbooking/internal/persistence"
)

const (
	slotLockTTL  = 10 * time.Second
	slotLockPoll = 20 * time.Millisecond
)

// ReservationStore is the persistence surface of the reservation manager.
type ReservationStore interface {
	persistence.ReservationRepository
	GetCourt(ctx context.Context, id string) (persistence.Court, error)
}

// PendingPolicy decides when an unpaid reservation is abandoned. A zero
// MaxAge keeps pending reservations forever.
type PendingPolicy struct {
	MaxAge time.Duration
}

// ReservationService creates and cancels reservations.
type ReservationService struct {
	store        ReservationStore
	payments     persistence.PaymentLedger
	availability *AvailabilityService
	policy       PendingPolicy
	idGenerator  func() string
	now          func() time.Time
	locker       locks.Locker
	events       EventPublisher
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

// NewReservationService constructs a reservation manager. payments may be nil
// when no ledger is wired; the reaper then treats every stale reservation as
// abandoned.
func NewReservationService(store ReservationStore, payments persistence.PaymentLedger, availability *AvailabilityService, policy PendingPolicy, idGenerator func() string, now func() time.Time, opts Options) *ReservationService {
	opts = opts.withDefaults()
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &ReservationService{
		store:        store,
		payments:     payments,
		availability: availability,
		policy:       policy,
		idGenerator:  idGenerator,
		now:          now,
		locker:       opts.Locker,
		events:       opts.Events,
		metrics:      opts.Metrics,
		logger:       opts.Logger,
	}
}

func (s *ReservationService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "ReservationService", operation, attrs...)
}

// CreateReservation validates the request and stores a pending reservation.
// The availability check and the insert run under a per-court, per-date lock.
func (s *ReservationService) CreateReservation(ctx context.Context, params CreateReservationParams) (reservation persistence.Reservation, err error) {
	if s == nil {
		err = fmt.Errorf("ReservationService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreateReservation",
		"court_id", params.CourtID,
		"customer_id", params.CustomerID,
		"date", params.Date,
		"start_hour", params.StartHour,
		"end_hour", params.EndHour,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create reservation", "error", err, "error_kind", ErrorKind(err), "at", s.now())
			return
		}
		logger.With("reservation_id", reservation.ID).InfoContext(ctx, "reservation created")
	}()

	// Reject malformed requests before contending for the lock.
	if err = s.availability.ValidateRequest(ctx, params); err != nil {
		return
	}

	release, lockErr := locks.AcquireWait(ctx, s.locker, slotLockKey(params.CourtID, params.Date), slotLockTTL, slotLockPoll)
	if lockErr != nil {
		err = lockError("slot lock", lockErr)
		return
	}
	defer func() {
		if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
			logger.WarnContext(ctx, "failed to release slot lock", "error", rerr)
		}
	}()

	if err = s.availability.ValidateRequest(ctx, params); err != nil {
		return
	}

	now := s.now()
	reservation = persistence.Reservation{
		ID:         s.idGenerator(),
		CourtID:    params.CourtID,
		CustomerID: params.CustomerID,
		Date:       params.Date,
		StartHour:  params.StartHour,
		EndHour:    params.EndHour,
		Status:     lifecycle.ReservationPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err = s.store.CreateReservation(ctx, reservation); err != nil {
		err = mapStoreError(err)
		return
	}

	s.metrics.ReservationCreated()
	publish(ctx, s.events, logger, events.KeyReservationCreated, now, reservationEvent(reservation))
	return
}

// GetReservation returns a reservation by id.
func (s *ReservationService) GetReservation(ctx context.Context, id string) (persistence.Reservation, error) {
	reservation, err := s.store.GetReservation(ctx, id)
	if err != nil {
		return persistence.Reservation{}, mapStoreError(err)
	}
	return reservation, nil
}

// ListReservations returns the reservations of a court, optionally limited to a date.
func (s *ReservationService) ListReservations(ctx context.Context, courtID, date string) ([]persistence.Reservation, error) {
	reservations, err := s.store.ListReservations(ctx, persistence.ReservationFilter{CourtID: courtID, Date: date})
	if err != nil {
		return nil, mapStoreError(err)
	}
	return reservations, nil
}

// CancelReservation cancels a pending reservation. Paid and already cancelled
// reservations are returned unchanged.
func (s *ReservationService) CancelReservation(ctx context.Context, id string) (reservation persistence.Reservation, err error) {
	logger := s.loggerWith(ctx, "CancelReservation", "reservation_id", id)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to cancel reservation", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("status", reservation.Status).InfoContext(ctx, "reservation cancel handled")
	}()

	var changed bool
	reservation, changed, err = cancelPending(ctx, s.store, id, s.now())
	if err != nil || !changed {
		return
	}
	s.metrics.ReservationCancelled("customer")
	publish(ctx, s.events, logger, events.KeyReservationCancelled, reservation.UpdatedAt, reservationEvent(reservation))
	return
}

// ReapAbandoned cancels pending reservations older than the policy's MaxAge.
// Reservations with a payment attempt updated inside the window are kept.
func (s *ReservationService) ReapAbandoned(ctx context.Context) (reaped int, err error) {
	if s.policy.MaxAge <= 0 {
		return 0, nil
	}

	now := s.now()
	cutoff := now.Add(-s.policy.MaxAge)
	logger := s.loggerWith(ctx, "ReapAbandoned", "cutoff", cutoff)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to reap abandoned reservations", "error", err, "error_kind", ErrorKind(err))
			return
		}
		if reaped > 0 {
			logger.With("reaped", reaped).InfoContext(ctx, "abandoned reservations cancelled")
		}
	}()

	stale, err := s.store.ListReservations(ctx, persistence.ReservationFilter{
		Statuses:      []lifecycle.ReservationStatus{lifecycle.ReservationPending},
		CreatedBefore: &cutoff,
	})
	if err != nil {
		return 0, mapStoreError(err)
	}

	for _, reservation := range stale {
		if err = ctx.Err(); err != nil {
			return
		}
		inFlight, lerr := s.paymentInFlight(ctx, reservation.ID, cutoff)
		if lerr != nil {
			logger.WarnContext(ctx, "skipping reservation with unreadable payments", "reservation_id", reservation.ID, "error", lerr)
			continue
		}
		if inFlight {
			continue
		}

		updated, serr := s.store.SwapReservationStatus(ctx, reservation.ID, lifecycle.ReservationPending, lifecycle.ReservationCancelled, now)
		if errors.Is(serr, persistence.ErrStaleState) {
			continue
		}
		if serr != nil {
			return reaped, mapStoreError(serr)
		}
		reaped++
		s.metrics.ReservationCancelled("abandoned")
		publish(ctx, s.events, logger, events.KeyReservationCancelled, now, reservationEvent(updated))
	}
	return reaped, nil
}

func (s *ReservationService) paymentInFlight(ctx context.Context, reservationID string, cutoff time.Time) (bool, error) {
	if s.payments == nil {
		return false, nil
	}
	records, err := s.payments.ListPaymentsForReservation(ctx, reservationID)
	if err != nil {
		return false, err
	}
	for _, record := range records {
		if !record.Stage.Terminal() && record.UpdatedAt.After(cutoff) {
			return true, nil
		}
	}
	return false, nil
}

// cancelPending moves a reservation from pending to cancelled and reports
// whether it changed. Terminal reservations are returned as they are.
func cancelPending(ctx context.Context, store persistence.ReservationRepository, id string, at time.Time) (persistence.Reservation, bool, error) {
	current, err := store.GetReservation(ctx, id)
	if err != nil {
		return persistence.Reservation{}, false, mapStoreError(err)
	}
	if current.Status.Terminal() {
		return current, false, nil
	}

	updated, err := store.SwapReservationStatus(ctx, id, lifecycle.ReservationPending, lifecycle.ReservationCancelled, at)
	if errors.Is(err, persistence.ErrStaleState) {
		// Someone settled it first; report what they left.
		current, err = store.GetReservation(ctx, id)
		return current, false, mapStoreError(err)
	}
	if err != nil {
		return persistence.Reservation{}, false, mapStoreError(err)
	}
	return updated, true, nil
}

func slotLockKey(courtID, date string) string {
	return "slot:" + courtID + ":" + date
}

func lockError(op string, err error) error {
	if errors.Is(err, locks.ErrNotAcquired) {
		return fmt.Errorf("%s: %w", op, ErrConcurrentUpdate)
	}
	return &NetworkError{Op: op, Err: err}
}

type reservationPayload struct {
	ReservationID string `json:"reservation_id"`
	CourtID       string `json:"court_id"`
	CustomerID    string `json:"customer_id,omitempty"`
	Date          string `json:"date"`
	StartHour     int    `json:"start_hour"`
	EndHour       int    `json:"end_hour"`
	Status        string `json:"status"`
}

func reservationEvent(r persistence.Reservation) reservationPayload {
	return reservationPayload{
		ReservationID: r.ID,
		CourtID:       r.CourtID,
		CustomerID:    r.CustomerID,
		Date:          r.Date,
		StartHour:     r.StartHour,
		EndHour:       r.EndHour,
		Status:        string(r.Status),
	}
}

// publish sends an event when a publisher is configured. Delivery failures
// are logged and never fail the operation that produced the event.
func publish(ctx context.Context, publisher EventPublisher, logger *slog.Logger, key string, at time.Time, payload any) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(ctx, key, at, payload); err != nil {
		logger.WarnContext(ctx, "failed to publish event", "event", key, "error", err)
	}
}
