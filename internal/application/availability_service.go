package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/courtbooking/internal/lifecycle"
	"github.com/example/courtbooking/internal/persistence"
	"github.com/example/courtbooking/internal/scheduler"
)

// AvailabilityStore is the persistence surface the availability checker reads.
type AvailabilityStore interface {
	GetCourt(ctx context.Context, id string) (persistence.Court, error)
	ListReservations(ctx context.Context, filter persistence.ReservationFilter) ([]persistence.Reservation, error)
}

// AvailabilityService answers which hours of a court are taken and whether a
// requested range can be booked.
type AvailabilityService struct {
	store    AvailabilityStore
	now      func() time.Time
	location *time.Location
	logger   *slog.Logger
}

// NewAvailabilityService constructs an availability checker reading the wall
// clock in loc.
func NewAvailabilityService(store AvailabilityStore, now func() time.Time, loc *time.Location, logger *slog.Logger) *AvailabilityService {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.UTC
	}
	return &AvailabilityService{store: store, now: now, location: loc, logger: defaultLogger(logger)}
}

// OccupiedHours returns every hour of the date covered by a pending or paid
// reservation of the court.
func (s *AvailabilityService) OccupiedHours(ctx context.Context, courtID, date string) (Availability, error) {
	if _, err := scheduler.ParseDate(date, s.location); err != nil {
		return Availability{}, intervalValidationError(err)
	}
	bookings, err := s.bookings(ctx, courtID, date)
	if err != nil {
		return Availability{}, err
	}
	return Availability{CourtID: courtID, Date: date, Occupied: scheduler.Occupied(bookings).Hours()}, nil
}

// ValidateRequest checks the request shape, rejects past hours and reports
// overlaps with existing reservations as a *SlotConflictError.
func (s *AvailabilityService) ValidateRequest(ctx context.Context, params CreateReservationParams) (err error) {
	logger := serviceLogger(ctx, s.logger, "AvailabilityService", "ValidateRequest",
		"court_id", params.CourtID,
		"date", params.Date,
		"start_hour", params.StartHour,
		"end_hour", params.EndHour,
	)
	defer func() {
		if err != nil {
			logger.DebugContext(ctx, "reservation request rejected", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	vErr := &ValidationError{}
	if strings.TrimSpace(params.CourtID) == "" {
		vErr.add("courtId", "court is required")
	}
	date, dateErr := scheduler.ParseDate(params.Date, s.location)
	if dateErr != nil {
		vErr.add("date", "date must use YYYY-MM-DD")
	}
	if vErr.HasErrors() {
		return vErr
	}

	if err := scheduler.ValidateInterval(scheduler.Interval{Date: date, StartHour: params.StartHour, EndHour: params.EndHour}, s.now()); err != nil {
		return intervalValidationError(err)
	}

	if _, err := s.store.GetCourt(ctx, params.CourtID); err != nil {
		return mapStoreError(err)
	}

	bookings, err := s.bookings(ctx, params.CourtID, params.Date)
	if err != nil {
		return err
	}
	conflicts := scheduler.DetectConflicts(bookings, scheduler.Interval{Date: date, StartHour: params.StartHour, EndHour: params.EndHour})
	if len(conflicts) == 0 {
		return nil
	}

	var taken scheduler.HourSet
	conflictErr := &SlotConflictError{CourtID: params.CourtID, Date: params.Date}
	for _, c := range conflicts {
		conflictErr.ReservationIDs = append(conflictErr.ReservationIDs, c.WithBookingID)
		for _, h := range c.Hours {
			taken[h] = true
		}
	}
	conflictErr.Hours = taken.Hours()
	return conflictErr
}

func (s *AvailabilityService) bookings(ctx context.Context, courtID, date string) ([]scheduler.Booking, error) {
	reservations, err := s.store.ListReservations(ctx, persistence.ReservationFilter{
		CourtID:  courtID,
		Date:     date,
		Statuses: []lifecycle.ReservationStatus{lifecycle.ReservationPending, lifecycle.ReservationPaid},
	})
	if err != nil {
		return nil, mapStoreError(err)
	}
	bookings := make([]scheduler.Booking, 0, len(reservations))
	for _, r := range reservations {
		if !r.Status.Blocking() {
			continue
		}
		bookings = append(bookings, scheduler.Booking{ID: r.ID, StartHour: r.StartHour, EndHour: r.EndHour})
	}
	return bookings, nil
}

func intervalValidationError(err error) error {
	var iErr *scheduler.IntervalError
	if errors.As(err, &iErr) {
		return newValidationError(iErr.Field, fmt.Sprintf("%s %s", iErr.Field, iErr.Reason))
	}
	return err
}
