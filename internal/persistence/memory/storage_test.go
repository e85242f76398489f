package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/courtbooking/internal/lifecycle"
	"github.com/example/courtbooking/internal/persistence"
	"github.com/example/courtbooking/internal/pricing"
)

var base = time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)

func TestCourtRepository(t *testing.T) {
	t.Parallel()

	t.Run("swaps status only from the expected value", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		store := Open()
		if err := store.UpsertCourt(ctx, persistence.Court{ID: "court-1", Label: "Court 1", Status: lifecycle.CourtAvailable}); err != nil {
			t.Fatalf("UpsertCourt returned error: %v", err)
		}

		court, err := store.SwapCourtStatus(ctx, "court-1", lifecycle.CourtAvailable, lifecycle.CourtInUse, base)
		if err != nil {
			t.Fatalf("SwapCourtStatus returned error: %v", err)
		}
		if court.Status != lifecycle.CourtInUse || !court.UpdatedAt.Equal(base) {
			t.Fatalf("unexpected court after swap: %+v", court)
		}

		if _, err := store.SwapCourtStatus(ctx, "court-1", lifecycle.CourtAvailable, lifecycle.CourtInUse, base); !errors.Is(err, persistence.ErrStaleState) {
			t.Fatalf("expected ErrStaleState, got %v", err)
		}
		if _, err := store.SwapCourtStatus(ctx, "missing", lifecycle.CourtAvailable, lifecycle.CourtInUse, base); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("only one concurrent swap wins", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		store := Open()
		_ = store.UpsertCourt(ctx, persistence.Court{ID: "court-1", Label: "Court 1", Status: lifecycle.CourtAvailable})

		var wg sync.WaitGroup
		var mu sync.Mutex
		wins := 0
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := store.SwapCourtStatus(ctx, "court-1", lifecycle.CourtAvailable, lifecycle.CourtInUse, base); err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		if wins != 1 {
			t.Fatalf("expected exactly one winning swap, got %d", wins)
		}
	})
}

func TestSubscribeCourts(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := Open()
	_ = store.UpsertCourt(ctx, persistence.Court{ID: "court-1", Label: "Court 1", Status: lifecycle.CourtAvailable})

	sub, err := store.SubscribeCourts(ctx)
	if err != nil {
		t.Fatalf("SubscribeCourts returned error: %v", err)
	}

	initial := <-sub.Updates()
	if len(initial) != 1 || initial[0].Status != lifecycle.CourtAvailable {
		t.Fatalf("unexpected initial snapshot: %+v", initial)
	}

	if _, err := store.SwapCourtStatus(ctx, "court-1", lifecycle.CourtAvailable, lifecycle.CourtInUse, base); err != nil {
		t.Fatalf("SwapCourtStatus returned error: %v", err)
	}
	select {
	case snapshot := <-sub.Updates():
		if snapshot[0].Status != lifecycle.CourtInUse {
			t.Fatalf("expected in_use in snapshot, got %+v", snapshot)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for snapshot")
	}

	sub.Unsubscribe()
	sub.Unsubscribe()
	if _, ok := <-sub.Updates(); ok {
		t.Fatalf("expected updates channel to be closed")
	}
}

func TestReservationRepository(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := Open()
	reservations := []persistence.Reservation{
		{ID: "r-1", CourtID: "court-1", Date: "2024-03-04", StartHour: 10, EndHour: 12, Status: lifecycle.ReservationPending, CreatedAt: base},
		{ID: "r-2", CourtID: "court-1", Date: "2024-03-04", StartHour: 8, EndHour: 9, Status: lifecycle.ReservationCancelled, CreatedAt: base},
		{ID: "r-3", CourtID: "court-2", Date: "2024-03-04", StartHour: 8, EndHour: 9, Status: lifecycle.ReservationPaid, CreatedAt: base},
	}
	for _, r := range reservations {
		if err := store.CreateReservation(ctx, r); err != nil {
			t.Fatalf("CreateReservation returned error: %v", err)
		}
	}
	if err := store.CreateReservation(ctx, reservations[0]); !errors.Is(err, persistence.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	list, err := store.ListReservations(ctx, persistence.ReservationFilter{
		CourtID:  "court-1",
		Date:     "2024-03-04",
		Statuses: []lifecycle.ReservationStatus{lifecycle.ReservationPending, lifecycle.ReservationPaid},
	})
	if err != nil {
		t.Fatalf("ListReservations returned error: %v", err)
	}
	if len(list) != 1 || list[0].ID != "r-1" {
		t.Fatalf("unexpected reservations: %+v", list)
	}

	updated, err := store.SwapReservationStatus(ctx, "r-1", lifecycle.ReservationPending, lifecycle.ReservationPaid, base.Add(time.Minute))
	if err != nil || updated.Status != lifecycle.ReservationPaid {
		t.Fatalf("unexpected swap result: %+v, %v", updated, err)
	}
	if _, err := store.SwapReservationStatus(ctx, "r-1", lifecycle.ReservationPending, lifecycle.ReservationCancelled, base); !errors.Is(err, persistence.ErrStaleState) {
		t.Fatalf("expected ErrStaleState, got %v", err)
	}
}

func TestPaymentLedger(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := Open()
	record := persistence.PaymentRecord{
		ID:              "pay-1",
		ReservationID:   "r-1",
		ExternalOrderID: "EXT-1",
		Amount:          500,
		Currency:        "USD",
		Status:          lifecycle.PaymentInitiated,
		Stage:           lifecycle.StageRedirected,
		CreatedAt:       base,
	}
	if err := store.CreatePayment(ctx, record); err != nil {
		t.Fatalf("CreatePayment returned error: %v", err)
	}
	if err := store.CreatePayment(ctx, record); !errors.Is(err, persistence.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	captured := base.Add(time.Minute)
	transition := persistence.PaymentTransition{
		ExternalOrderID: "EXT-1",
		From:            lifecycle.StageRedirected,
		To:              lifecycle.StageCaptured,
		PayerEmail:      "payer@example.com",
		CapturedAt:      &captured,
		At:              captured,
	}
	got, err := store.AdvancePayment(ctx, transition)
	if err != nil {
		t.Fatalf("AdvancePayment returned error: %v", err)
	}
	if got.Status != lifecycle.PaymentCompleted || got.PayerEmail != "payer@example.com" || got.CapturedAt == nil {
		t.Fatalf("unexpected payment after capture: %+v", got)
	}
	if _, err := store.AdvancePayment(ctx, transition); !errors.Is(err, persistence.ErrStaleState) {
		t.Fatalf("expected second capture to be stale, got %v", err)
	}
}

func TestOrderRepository(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := Open()
	order := persistence.Order{ID: "o-1", CourtID: "court-1", StartTime: base}
	if err := store.CreateOrder(ctx, order); err != nil {
		t.Fatalf("CreateOrder returned error: %v", err)
	}
	if err := store.CreateOrder(ctx, persistence.Order{ID: "o-2", CourtID: "court-1", StartTime: base}); !errors.Is(err, persistence.ErrDuplicate) {
		t.Fatalf("expected second active order to be rejected, got %v", err)
	}

	active, err := store.FindActiveOrder(ctx, "court-1")
	if err != nil || active.ID != "o-1" {
		t.Fatalf("unexpected active order: %+v, %v", active, err)
	}

	water := persistence.OrderLine{ServiceID: "svc-water", Name: "Water", UnitPrice: 10000, Quantity: 1}
	shuttle := persistence.OrderLine{ServiceID: "svc-shuttle", Name: "Shuttlecock", UnitPrice: 15000, Quantity: 2}
	if _, err := store.AppendOrderLines(ctx, "o-1", []persistence.OrderLine{water}, base); err != nil {
		t.Fatalf("AppendOrderLines returned error: %v", err)
	}
	merged, err := store.AppendOrderLines(ctx, "o-1", []persistence.OrderLine{shuttle, water}, base)
	if err != nil {
		t.Fatalf("AppendOrderLines returned error: %v", err)
	}
	if len(merged.Services) != 2 || merged.Services[0].Quantity != 2 || merged.Services[1].ServiceID != "svc-shuttle" {
		t.Fatalf("unexpected merged services: %+v", merged.Services)
	}

	end := base.Add(2 * time.Hour)
	closed, err := store.CloseOrder(ctx, "o-1", end)
	if err != nil || closed.EndTime == nil || !closed.EndTime.Equal(end) {
		t.Fatalf("unexpected closed order: %+v, %v", closed, err)
	}
	if _, err := store.FindActiveOrder(ctx, "court-1"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected closed order to leave no active order, got %v", err)
	}
	unsettled, err := store.FindUnsettledOrder(ctx, "court-1")
	if err != nil || unsettled.ID != "o-1" {
		t.Fatalf("expected closed order to stay unsettled: %+v, %v", unsettled, err)
	}
	again, _ := store.CloseOrder(ctx, "o-1", end.Add(time.Hour))
	if !again.EndTime.Equal(end) {
		t.Fatalf("expected end time to be locked, got %v", again.EndTime)
	}
	if _, err := store.AppendOrderLines(ctx, "o-1", []persistence.OrderLine{water}, end); !errors.Is(err, persistence.ErrStaleState) {
		t.Fatalf("expected closed order to reject lines, got %v", err)
	}

	settled, err := store.SettleOrder(ctx, "o-1", 150000, end)
	if err != nil || settled.TotalPrice == nil || *settled.TotalPrice != 150000 {
		t.Fatalf("unexpected settled order: %+v, %v", settled, err)
	}
	if _, err := store.SettleOrder(ctx, "o-1", 1, end); !errors.Is(err, persistence.ErrStaleState) {
		t.Fatalf("expected ErrStaleState on second settle, got %v", err)
	}
	if _, err := store.FindUnsettledOrder(ctx, "court-1"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected no unsettled order after settle, got %v", err)
	}

	closedOrders, err := store.ListClosedOrders(ctx, base, end)
	if err != nil || len(closedOrders) != 1 {
		t.Fatalf("unexpected closed orders: %+v, %v", closedOrders, err)
	}
	if _, err := store.FindActiveOrder(ctx, "court-1"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected no active order, got %v", err)
	}
}

func TestCatalogInventoryNeverNegative(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := Open()
	_ = store.UpsertCatalogItem(ctx, persistence.CatalogItem{ID: "svc-water", Name: "Water", UnitPrice: 10000, Inventory: 5})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = store.DecrementInventory(ctx, "svc-water", 2, base)
		}()
	}
	wg.Wait()

	item, err := store.GetCatalogItem(ctx, "svc-water")
	if err != nil {
		t.Fatalf("GetCatalogItem returned error: %v", err)
	}
	if item.Inventory != 1 {
		t.Fatalf("expected inventory 1 after concurrent decrements, got %d", item.Inventory)
	}
	if _, err := store.DecrementInventory(ctx, "svc-water", 2, base); !errors.Is(err, persistence.ErrInsufficientInventory) {
		t.Fatalf("expected ErrInsufficientInventory, got %v", err)
	}
}

func TestRateRepository(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := Open()
	table := pricing.NewRateTable(pricing.DefaultTableID, 60000, 65000)
	_ = store.UpsertRateTable(ctx, table)
	table.WeekdayRates[time.Sunday] = 1

	got, err := store.GetRateTable(ctx, pricing.DefaultTableID)
	if err != nil {
		t.Fatalf("GetRateTable returned error: %v", err)
	}
	if got.WeekdayRates[time.Sunday] != 65000 {
		t.Fatalf("expected stored table to be isolated from caller mutation, got %d", got.WeekdayRates[time.Sunday])
	}
}
