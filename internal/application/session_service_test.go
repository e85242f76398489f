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

func openCourt(t *testing.T, svc *testfixtures.Services, courtID string) application.OrderSession {
	t.Helper()
	session, err := svc.Sessions.Open(context.Background(), application.OpenCourtParams{CourtID: courtID, Confirmed: true})
	require.NoError(t, err)
	return session
}

func courtStatus(t *testing.T, svc *testfixtures.Services, courtID string) lifecycle.CourtStatus {
	t.Helper()
	court, err := svc.Store.GetCourt(context.Background(), courtID)
	require.NoError(t, err)
	return court.Status
}

func TestSessionService_FullLifecycle(t *testing.T) {
	ctx := context.Background()
	publisher := &recordingPublisher{}
	m := metrics.New(prometheus.NewRegistry())
	factory := testfixtures.NewServiceFactory()
	factory.Clock.At(testfixtures.ReferenceDate, 18, 0)
	svc := factory.NewServices(t, testfixtures.ServiceDeps{
		Options: application.Options{Events: publisher, Metrics: m},
	})

	_, err := svc.Sessions.Open(ctx, application.OpenCourtParams{CourtID: "court-1"})
	var confirm *application.ConfirmationRequiredError
	require.ErrorAs(t, err, &confirm)
	assert.Equal(t, application.ConfirmOpenCourt, confirm.Reason)
	assert.Equal(t, lifecycle.CourtAvailable, courtStatus(t, svc, "court-1"))

	session := openCourt(t, svc, "court-1")
	assert.Equal(t, lifecycle.PhaseInUse, session.Phase)
	assert.Equal(t, lifecycle.CourtInUse, courtStatus(t, svc, "court-1"))

	order, err := svc.Sessions.AddServices(ctx, application.AddServicesParams{
		OrderID: session.OrderID,
		Lines:   []application.ServiceRequest{{ServiceID: "water", Quantity: 2}, {ServiceID: "water", Quantity: 1}},
	})
	require.NoError(t, err)
	require.Len(t, order.Services, 1)
	assert.Equal(t, 3, order.Services[0].Quantity)

	factory.Clock.Advance(2 * time.Hour)
	bill, err := svc.Sessions.Close(ctx, session.OrderID)
	require.NoError(t, err)
	assert.Equal(t, 2, bill.Hours)
	assert.Equal(t, int64(120000), bill.CourtFee)
	assert.Equal(t, int64(30000), bill.ServicesTotal)
	assert.Equal(t, int64(150000), bill.Total)
	assert.False(t, bill.Settled)

	// play has ended, so more time does not change the bill
	factory.Clock.Advance(30 * time.Minute)
	again, err := svc.Sessions.GetBill(ctx, session.OrderID)
	require.NoError(t, err)
	assert.Equal(t, bill.Total, again.Total)

	paid, err := svc.Sessions.ConfirmPayment(ctx, session.OrderID)
	require.NoError(t, err)
	assert.True(t, paid.Settled)
	assert.Equal(t, int64(150000), paid.Total)
	assert.Equal(t, lifecycle.CourtAvailable, courtStatus(t, svc, "court-1"))
	assert.Equal(t, 1, publisher.count(events.KeyOrderPaid))
	assert.Equal(t, 150000.0, testutil.ToFloat64(m.RevenueSettled))

	water, err := svc.Store.GetCatalogItem(ctx, "water")
	require.NoError(t, err)
	assert.Equal(t, 21, water.Inventory)

	_, err = svc.Sessions.ConfirmPayment(ctx, session.OrderID)
	assert.ErrorIs(t, err, application.ErrIllegalTransition)

	_, err = svc.Sessions.RecoverActiveOrder(ctx, "court-1")
	assert.ErrorIs(t, err, application.ErrNotFound)

	// the court can be opened again
	openCourt(t, svc, "court-1")
}

func TestSessionService_OpenIsExclusive(t *testing.T) {
	ctx := context.Background()
	svc := testfixtures.NewServiceFactory().NewServices(t, testfixtures.ServiceDeps{})

	const managers = 6
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		opened int
		lost   int
	)
	for i := 0; i < managers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Sessions.Open(ctx, application.OpenCourtParams{CourtID: "court-2", Confirmed: true})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				opened++
			case errors.Is(err, application.ErrConcurrentUpdate):
				lost++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, opened)
	assert.Equal(t, managers-1, lost)

	_, err := svc.Sessions.Open(ctx, application.OpenCourtParams{CourtID: "court-404", Confirmed: true})
	assert.ErrorIs(t, err, application.ErrNotFound)
}

func TestSessionService_OpenOverPaidReservation(t *testing.T) {
	ctx := context.Background()
	factory := testfixtures.NewServiceFactory()
	svc := factory.NewServices(t, testfixtures.ServiceDeps{})

	reservation, err := svc.Reservations.CreateReservation(ctx, evening("court-1", 18, 20))
	require.NoError(t, err)
	screen, err := svc.Payments.Initiate(ctx, reservation.ID)
	require.NoError(t, err)
	_, err = svc.Payments.Capture(ctx, screen.ExternalOrderID)
	require.NoError(t, err)

	factory.Clock.At(testfixtures.ReferenceDate, 18, 30)

	_, err = svc.Sessions.Open(ctx, application.OpenCourtParams{CourtID: "court-1", Confirmed: true})
	var confirm *application.ConfirmationRequiredError
	require.ErrorAs(t, err, &confirm)
	assert.Equal(t, application.ConfirmPaidReservation, confirm.Reason)
	assert.Equal(t, reservation.ID, confirm.ReservationID)
	assert.Equal(t, lifecycle.CourtAvailable, courtStatus(t, svc, "court-1"))

	session, err := svc.Sessions.Open(ctx, application.OpenCourtParams{CourtID: "court-1", Confirmed: true, OverrideBooking: true})
	require.NoError(t, err)
	assert.Equal(t, reservation.ID, session.ReservationID)

	t.Run("pending reservations do not ask", func(t *testing.T) {
		_, err := svc.Reservations.CreateReservation(ctx, evening("court-2", 19, 21))
		require.NoError(t, err)
		factory.Clock.At(testfixtures.ReferenceDate, 19, 15)
		openCourt(t, svc, "court-2")
	})
}

func TestSessionService_AddServicesValidation(t *testing.T) {
	ctx := context.Background()
	svc := testfixtures.NewServiceFactory().NewServices(t, testfixtures.ServiceDeps{})
	session := openCourt(t, svc, "court-1")

	cases := map[string]struct {
		lines []application.ServiceRequest
		field string
	}{
		"no lines":        {nil, "lines"},
		"zero quantity":   {[]application.ServiceRequest{{ServiceID: "water", Quantity: 0}}, "lines[0].quantity"},
		"missing service": {[]application.ServiceRequest{{Quantity: 1}}, "lines[0].serviceId"},
		"unknown service": {[]application.ServiceRequest{{ServiceID: "water", Quantity: 1}, {ServiceID: "racket", Quantity: 1}}, "lines[1].serviceId"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Sessions.AddServices(ctx, application.AddServicesParams{OrderID: session.OrderID, Lines: tc.lines})
			var vErr *application.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Contains(t, vErr.FieldErrors, tc.field)
		})
	}

	t.Run("every short line is reported and nothing is taken", func(t *testing.T) {
		_, err := svc.Sessions.AddServices(ctx, application.AddServicesParams{
			OrderID: session.OrderID,
			Lines: []application.ServiceRequest{
				{ServiceID: "water", Quantity: 1},
				{ServiceID: "towel", Quantity: 3},
				{ServiceID: "shuttlecock", Quantity: 11},
			},
		})
		var stock *application.OutOfStockError
		require.ErrorAs(t, err, &stock)
		assert.ElementsMatch(t, []application.StockShortage{
			{ServiceID: "towel", Requested: 3, Available: 2},
			{ServiceID: "shuttlecock", Requested: 11, Available: 10},
		}, stock.Shortages)

		water, err := svc.Store.GetCatalogItem(ctx, "water")
		require.NoError(t, err)
		assert.Equal(t, 24, water.Inventory)
	})

	t.Run("closed order", func(t *testing.T) {
		_, err := svc.Sessions.Close(ctx, session.OrderID)
		require.NoError(t, err)

		_, err = svc.Sessions.AddServices(ctx, application.AddServicesParams{
			OrderID: session.OrderID,
			Lines:   []application.ServiceRequest{{ServiceID: "water", Quantity: 1}},
		})
		assert.ErrorIs(t, err, application.ErrIllegalTransition)
	})
}

func TestSessionService_InventoryNeverNegative(t *testing.T) {
	ctx := context.Background()
	svc := testfixtures.NewServiceFactory().NewServices(t, testfixtures.ServiceDeps{})
	first := openCourt(t, svc, "court-1")
	second := openCourt(t, svc, "court-2")

	const buyers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		sold     int
		rejected int
	)
	for i := 0; i < buyers; i++ {
		orderID := first.OrderID
		if i%2 == 1 {
			orderID = second.OrderID
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Sessions.AddServices(ctx, application.AddServicesParams{
				OrderID: orderID,
				Lines:   []application.ServiceRequest{{ServiceID: "towel", Quantity: 1}},
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				sold++
			case errors.Is(err, application.ErrOutOfStock):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, sold)
	assert.Equal(t, buyers-2, rejected)

	towel, err := svc.Store.GetCatalogItem(ctx, "towel")
	require.NoError(t, err)
	assert.Zero(t, towel.Inventory)

	var inOrders int
	for _, id := range []string{first.OrderID, second.OrderID} {
		order, err := svc.Store.GetOrder(ctx, id)
		require.NoError(t, err)
		for _, line := range order.Services {
			inOrders += line.Quantity
		}
	}
	assert.Equal(t, 2, inOrders)
}

func TestSessionService_RecoverActiveOrder(t *testing.T) {
	ctx := context.Background()
	factory := testfixtures.NewServiceFactory()
	svc := factory.NewServices(t, testfixtures.ServiceDeps{})
	session := openCourt(t, svc, "court-3")

	cached, err := svc.Sessions.RecoverActiveOrder(ctx, "court-3")
	require.NoError(t, err)
	assert.Equal(t, session, cached)

	// a restarted process only has the store
	restarted := factory.NewServices(t, testfixtures.ServiceDeps{Store: svc.Store})
	recovered, err := restarted.Sessions.RecoverActiveOrder(ctx, "court-3")
	require.NoError(t, err)
	assert.Equal(t, session.OrderID, recovered.OrderID)
	assert.Equal(t, lifecycle.PhaseInUse, recovered.Phase)

	factory.Clock.Advance(61 * time.Minute)
	bill, err := restarted.Sessions.GetBill(ctx, recovered.OrderID)
	require.NoError(t, err)
	assert.Equal(t, 2, bill.Hours)
	assert.Equal(t, 2*testfixtures.NormalRate, bill.Total)

	_, err = restarted.Sessions.RecoverActiveOrder(ctx, "court-1")
	assert.ErrorIs(t, err, application.ErrNotFound)
}

func TestSessionService_RecoverClosedOrderAfterRestart(t *testing.T) {
	ctx := context.Background()
	factory := testfixtures.NewServiceFactory()
	svc := factory.NewServices(t, testfixtures.ServiceDeps{})
	session := openCourt(t, svc, "court-2")

	factory.Clock.Advance(time.Hour)
	closed, err := svc.Sessions.Close(ctx, session.OrderID)
	require.NoError(t, err)

	restarted := factory.NewServices(t, testfixtures.ServiceDeps{Store: svc.Store})
	recovered, err := restarted.Sessions.RecoverActiveOrder(ctx, "court-2")
	require.NoError(t, err)
	assert.Equal(t, session.OrderID, recovered.OrderID)
	assert.Equal(t, lifecycle.PhasePaying, recovered.Phase)
	assert.Equal(t, lifecycle.CourtInUse, courtStatus(t, restarted, "court-2"))

	paid, err := restarted.Sessions.ConfirmPayment(ctx, recovered.OrderID)
	require.NoError(t, err)
	assert.Equal(t, closed.Total, paid.Total)
	assert.Equal(t, lifecycle.CourtAvailable, courtStatus(t, restarted, "court-2"))

	// a paid order on a released court is history, not a session
	_, err = factory.NewServices(t, testfixtures.ServiceDeps{Store: svc.Store}).Sessions.RecoverActiveOrder(ctx, "court-2")
	assert.ErrorIs(t, err, application.ErrNotFound)
	openCourt(t, restarted, "court-2")
}

func TestSessionService_ConfirmPaymentRetriesCourtRelease(t *testing.T) {
	ctx := context.Background()
	factory := testfixtures.NewServiceFactory()
	factory.Clock.At(testfixtures.ReferenceDate, 18, 0)
	publisher := &recordingPublisher{}
	store := &flakyStore{Storage: testfixtures.NewMemoryStore(t, testfixtures.NewVenue(4)), failReleases: 1}
	sessions := application.NewSessionService(store, factory.IDGenerator.NextFunc(), factory.Clock.NowFunc(), application.Options{Events: publisher})

	session, err := sessions.Open(ctx, application.OpenCourtParams{CourtID: "court-1", Confirmed: true})
	require.NoError(t, err)
	factory.Clock.Advance(2 * time.Hour)
	closed, err := sessions.Close(ctx, session.OrderID)
	require.NoError(t, err)

	_, err = sessions.ConfirmPayment(ctx, session.OrderID)
	var netErr *application.NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, "network", application.ErrorKind(err))
	court, err := store.GetCourt(ctx, "court-1")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.CourtInUse, court.Status, "court must stay in use until the release succeeds")
	assert.Zero(t, publisher.count(events.KeyOrderPaid))

	paid, err := sessions.ConfirmPayment(ctx, session.OrderID)
	require.NoError(t, err)
	assert.True(t, paid.Settled)
	assert.Equal(t, closed.Total, paid.Total)
	court, err = store.GetCourt(ctx, "court-1")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.CourtAvailable, court.Status)
	assert.Equal(t, 1, publisher.count(events.KeyOrderPaid))

	_, err = sessions.ConfirmPayment(ctx, session.OrderID)
	assert.ErrorIs(t, err, application.ErrIllegalTransition)
	assert.Equal(t, 1, publisher.count(events.KeyOrderPaid))
}

func TestSessionService_AddServicesRestoresInventoryOnStoreFailure(t *testing.T) {
	tests := []struct {
		name  string
		store func(*flakyStore)
	}{
		{name: "append fails", store: func(f *flakyStore) { f.failAppend = true }},
		{name: "second decrement fails", store: func(f *flakyStore) { f.failDecrementOf = "shuttlecock" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			factory := testfixtures.NewServiceFactory()
			store := &flakyStore{Storage: testfixtures.NewMemoryStore(t, testfixtures.NewVenue(4))}
			sessions := application.NewSessionService(store, factory.IDGenerator.NextFunc(), factory.Clock.NowFunc(), application.Options{})
			session, err := sessions.Open(ctx, application.OpenCourtParams{CourtID: "court-1", Confirmed: true})
			require.NoError(t, err)
			tt.store(store)

			_, err = sessions.AddServices(ctx, application.AddServicesParams{
				OrderID: session.OrderID,
				Lines:   []application.ServiceRequest{{ServiceID: "water", Quantity: 3}, {ServiceID: "shuttlecock", Quantity: 2}},
			})
			var netErr *application.NetworkError
			require.ErrorAs(t, err, &netErr)

			water, err := store.GetCatalogItem(ctx, "water")
			require.NoError(t, err)
			assert.Equal(t, 24, water.Inventory)
			shuttle, err := store.GetCatalogItem(ctx, "shuttlecock")
			require.NoError(t, err)
			assert.Equal(t, 10, shuttle.Inventory)
			order, err := store.GetOrder(ctx, session.OrderID)
			require.NoError(t, err)
			assert.Empty(t, order.Services)
		})
	}
}

func TestSessionService_SundayRate(t *testing.T) {
	ctx := context.Background()
	factory := testfixtures.NewServiceFactory()
	factory.Clock.At("2024-05-19", 10, 0)
	svc := factory.NewServices(t, testfixtures.ServiceDeps{})

	session := openCourt(t, svc, "court-1")
	factory.Clock.Advance(2 * time.Hour)

	bill, err := svc.Sessions.Close(ctx, session.OrderID)
	require.NoError(t, err)
	assert.Equal(t, testfixtures.SundayRate, bill.HourlyRate)
	assert.Equal(t, int64(130000), bill.Total)
}

func TestSessionService_SubscribeCourts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc := testfixtures.NewServiceFactory().NewServices(t, testfixtures.ServiceDeps{})

	sub, err := svc.Sessions.SubscribeCourts(ctx)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	initial := <-sub.Updates()
	require.Len(t, initial, 4)

	openCourt(t, svc, "court-4")

	select {
	case snapshot := <-sub.Updates():
		statuses := make(map[string]lifecycle.CourtStatus, len(snapshot))
		for _, c := range snapshot {
			statuses[c.ID] = c.Status
		}
		assert.Equal(t, lifecycle.CourtInUse, statuses["court-4"])
	case <-time.After(2 * time.Second):
		t.Fatal("no court snapshot after opening a court")
	}

	cancel()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, open := <-sub.Updates():
			if !open {
				return
			}
		case <-deadline:
			t.Fatal("subscription not closed after context cancellation")
		}
	}
}

func TestSessionService_ListCatalogAndCourts(t *testing.T) {
	ctx := context.Background()
	svc := testfixtures.NewServiceFactory().NewServices(t, testfixtures.ServiceDeps{})

	items, err := svc.Sessions.ListCatalog(ctx)
	require.NoError(t, err)
	names := make([]string, 0, len(items))
	for _, item := range items {
		names = append(names, item.Name)
	}
	assert.Equal(t, []string{"Shuttlecock", "Towel", "Water"}, names)

	courts, err := svc.Sessions.ListCourts(ctx)
	require.NoError(t, err)
	assert.Len(t, courts, 4)
	for _, c := range courts {
		assert.Equal(t, lifecycle.CourtAvailable, c.Status)
	}
}
