package application_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/courtbooking/internal/application"
	"github.com/example/courtbooking/internal/events"
	"github.com/example/courtbooking/internal/lifecycle"
	"github.com/example/courtbooking/internal/metrics"
	"github.com/example/courtbooking/internal/testfixtures"
)

func evening(courtID string, start, end int) application.CreateReservationParams {
	return application.CreateReservationParams{
		CourtID:    courtID,
		CustomerID: "customer-1",
		Date:       testfixtures.ReferenceDate,
		StartHour:  start,
		EndHour:    end,
	}
}

func TestReservationService_CreateReservation(t *testing.T) {
	ctx := context.Background()
	publisher := &recordingPublisher{}
	m := metrics.New(prometheus.NewRegistry())
	svc := testfixtures.NewServiceFactory().NewServices(t, testfixtures.ServiceDeps{
		Options: application.Options{Events: publisher, Metrics: m},
	})

	reservation, err := svc.Reservations.CreateReservation(ctx, evening("court-1", 17, 19))
	require.NoError(t, err)
	assert.Equal(t, lifecycle.ReservationPending, reservation.Status)
	assert.Equal(t, []string{events.KeyReservationCreated}, publisher.keys())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReservationsCreated))

	availability, err := svc.Availability.OccupiedHours(ctx, "court-1", testfixtures.ReferenceDate)
	require.NoError(t, err)
	assert.Equal(t, []int{17, 18}, availability.Occupied)

	t.Run("overlap is a slot conflict", func(t *testing.T) {
		_, err := svc.Reservations.CreateReservation(ctx, evening("court-1", 18, 20))

		var conflict *application.SlotConflictError
		require.ErrorAs(t, err, &conflict)
		assert.ErrorIs(t, err, application.ErrSlotConflict)
		assert.Equal(t, []int{18}, conflict.Hours)
		assert.Equal(t, []string{reservation.ID}, conflict.ReservationIDs)
	})

	t.Run("adjacent range and other court are free", func(t *testing.T) {
		_, err := svc.Reservations.CreateReservation(ctx, evening("court-1", 19, 20))
		require.NoError(t, err)
		_, err = svc.Reservations.CreateReservation(ctx, evening("court-2", 17, 19))
		require.NoError(t, err)
	})

	listed, err := svc.Reservations.ListReservations(ctx, "court-1", testfixtures.ReferenceDate)
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}

func TestReservationService_CreateReservationValidation(t *testing.T) {
	ctx := context.Background()
	svc := testfixtures.NewServiceFactory().NewServices(t, testfixtures.ServiceDeps{})

	cases := []struct {
		name   string
		params application.CreateReservationParams
		field  string
	}{
		{"missing court", evening("", 17, 18), "courtId"},
		{"bad date", application.CreateReservationParams{CourtID: "court-1", Date: "15/05/2024", StartHour: 17, EndHour: 18}, "date"},
		{"inverted range", evening("court-1", 19, 17), "endHour"},
		{"start out of range", evening("court-1", 24, 25), "startHour"},
		{"hour already begun", evening("court-1", 8, 10), "startHour"},
		{"past date", application.CreateReservationParams{CourtID: "court-1", Date: "2024-05-14", StartHour: 17, EndHour: 18}, "date"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Reservations.CreateReservation(ctx, tc.params)

			var vErr *application.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Contains(t, vErr.FieldErrors, tc.field)
		})
	}

	t.Run("unknown court", func(t *testing.T) {
		_, err := svc.Reservations.CreateReservation(ctx, evening("court-99", 17, 18))
		assert.ErrorIs(t, err, application.ErrNotFound)
	})
}

func TestReservationService_ConcurrentRequestsForOneSlot(t *testing.T) {
	ctx := context.Background()
	svc := testfixtures.NewServiceFactory().NewServices(t, testfixtures.ServiceDeps{})

	const attempts = 12
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		created   int
		conflicts int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Reservations.CreateReservation(ctx, evening("court-3", 20, 22))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, application.ErrSlotConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, attempts-1, conflicts)
}

func TestReservationService_CancelReservation(t *testing.T) {
	ctx := context.Background()
	publisher := &recordingPublisher{}
	svc := testfixtures.NewServiceFactory().NewServices(t, testfixtures.ServiceDeps{
		Options: application.Options{Events: publisher},
	})

	reservation, err := svc.Reservations.CreateReservation(ctx, evening("court-1", 17, 19))
	require.NoError(t, err)

	cancelled, err := svc.Reservations.CancelReservation(ctx, reservation.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.ReservationCancelled, cancelled.Status)

	again, err := svc.Reservations.CancelReservation(ctx, reservation.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.ReservationCancelled, again.Status)
	assert.Equal(t, 1, publisher.count(events.KeyReservationCancelled))

	// the slot is free again
	_, err = svc.Reservations.CreateReservation(ctx, evening("court-1", 17, 19))
	require.NoError(t, err)

	_, err = svc.Reservations.CancelReservation(ctx, "missing")
	assert.ErrorIs(t, err, application.ErrNotFound)
}

func TestReservationService_ReapAbandoned(t *testing.T) {
	ctx := context.Background()
	factory := testfixtures.NewServiceFactory()
	svc := factory.NewServices(t, testfixtures.ServiceDeps{
		Policy: application.PendingPolicy{MaxAge: 15 * time.Minute},
	})

	abandoned, err := svc.Reservations.CreateReservation(ctx, evening("court-1", 17, 18))
	require.NoError(t, err)
	paying, err := svc.Reservations.CreateReservation(ctx, evening("court-2", 17, 18))
	require.NoError(t, err)

	factory.Clock.Advance(10 * time.Minute)
	_, err = svc.Payments.Initiate(ctx, paying.ID)
	require.NoError(t, err)

	factory.Clock.Advance(10 * time.Minute)
	young, err := svc.Reservations.CreateReservation(ctx, evening("court-3", 17, 18))
	require.NoError(t, err)

	reaped, err := svc.Reservations.ReapAbandoned(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, reaped)

	for id, want := range map[string]lifecycle.ReservationStatus{
		abandoned.ID: lifecycle.ReservationCancelled,
		paying.ID:    lifecycle.ReservationPending,
		young.ID:     lifecycle.ReservationPending,
	} {
		got, err := svc.Reservations.GetReservation(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, got.Status, "reservation %s", id)
	}

	t.Run("disabled policy keeps everything", func(t *testing.T) {
		idle := factory.NewServices(t, testfixtures.ServiceDeps{})
		n, err := idle.Reservations.ReapAbandoned(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}
