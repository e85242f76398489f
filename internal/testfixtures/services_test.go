package testfixtures

import (
	"context"
	"testing"

	"github.com/example/courtbooking/internal/application"
	"github.com/example/courtbooking/internal/lifecycle"
)

func TestServiceFactoryWiresReservations(t *testing.T) {
	factory := NewServiceFactory()
	services := factory.NewServices(t, ServiceDeps{})

	reservation, err := services.Reservations.CreateReservation(context.Background(), application.CreateReservationParams{
		CourtID:    "court-1",
		CustomerID: "customer-1",
		Date:       ReferenceDate,
		StartHour:  17,
		EndHour:    19,
	})
	if err != nil {
		t.Fatalf("CreateReservation returned error: %v", err)
	}

	if reservation.ID != "id-1" {
		t.Fatalf("expected generated ID id-1, got %q", reservation.ID)
	}
	if reservation.Status != lifecycle.ReservationPending {
		t.Fatalf("expected pending reservation, got %s", reservation.Status)
	}
	if !reservation.CreatedAt.Equal(factory.Clock.Now()) {
		t.Fatalf("expected timestamp %v, got %v", factory.Clock.Now(), reservation.CreatedAt)
	}
}

func TestVenueSeedsStore(t *testing.T) {
	store := NewMemoryStore(t, NewVenue(2, WithInventory("towel", 7), WithCourtStatus("court-2", lifecycle.CourtInUse)))
	ctx := context.Background()

	courts, err := store.ListCourts(ctx)
	if err != nil {
		t.Fatalf("ListCourts returned error: %v", err)
	}
	if len(courts) != 2 {
		t.Fatalf("expected 2 courts, got %d", len(courts))
	}

	court, err := store.GetCourt(ctx, "court-2")
	if err != nil || court.Status != lifecycle.CourtInUse {
		t.Fatalf("expected court-2 in use, got %+v (%v)", court, err)
	}

	towel, err := store.GetCatalogItem(ctx, "towel")
	if err != nil || towel.Inventory != 7 {
		t.Fatalf("expected 7 towels, got %+v (%v)", towel, err)
	}
}
