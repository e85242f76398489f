package application

import (
	"errors"
	"testing"
	"time"

	"github.com/example/courtbooking/internal/lifecycle"
)

func TestSessionRegistryStoresAndExpires(t *testing.T) {
	current := time.Date(2024, 3, 4, 17, 0, 0, 0, time.UTC)
	registry := newSessionRegistry(time.Minute, 4, func() time.Time { return current })

	registry.Store(OrderSession{OrderID: "order-1", CourtID: "court-1", Phase: lifecycle.PhaseInUse})

	got, ok := registry.Get("court-1")
	if !ok {
		t.Fatalf("expected registry hit")
	}
	if got.OrderID != "order-1" {
		t.Fatalf("expected order-1, got %s", got.OrderID)
	}

	current = current.Add(2 * time.Minute)
	if _, ok := registry.Get("court-1"); ok {
		t.Fatalf("expected registry entry to expire")
	}
}

func TestSessionRegistryAdvance(t *testing.T) {
	registry := newSessionRegistry(time.Minute, 4, time.Now)

	if _, err := registry.Advance("court-1", lifecycle.PhasePaying); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for unknown court, got %v", err)
	}

	registry.Store(OrderSession{OrderID: "order-1", CourtID: "court-1", Phase: lifecycle.PhaseInUse})

	session, err := registry.Advance("court-1", lifecycle.PhasePaying)
	if err != nil {
		t.Fatalf("advance returned error: %v", err)
	}
	if session.Phase != lifecycle.PhasePaying {
		t.Fatalf("expected paying phase, got %s", session.Phase)
	}

	if _, err := registry.Advance("court-1", lifecycle.PhaseOpening); !errors.Is(err, lifecycle.ErrIllegalTransition) {
		t.Fatalf("expected illegal transition, got %v", err)
	}

	// Re-applying the current phase is accepted.
	if _, err := registry.Advance("court-1", lifecycle.PhasePaying); err != nil {
		t.Fatalf("expected idempotent advance, got %v", err)
	}

	registry.Remove("court-1")
	if _, ok := registry.Get("court-1"); ok {
		t.Fatalf("expected entry to be removed")
	}
}

func TestSessionRegistryEvictsOldest(t *testing.T) {
	current := time.Date(2024, 3, 4, 17, 0, 0, 0, time.UTC)
	registry := newSessionRegistry(time.Hour, 2, func() time.Time { return current })

	registry.Store(OrderSession{CourtID: "court-1"})
	current = current.Add(time.Minute)
	registry.Store(OrderSession{CourtID: "court-2"})
	current = current.Add(time.Minute)
	registry.Store(OrderSession{CourtID: "court-3"})

	if _, ok := registry.Get("court-1"); ok {
		t.Fatalf("expected oldest entry to be evicted")
	}
	for _, id := range []string{"court-2", "court-3"} {
		if _, ok := registry.Get(id); !ok {
			t.Fatalf("expected %s to remain", id)
		}
	}
}
