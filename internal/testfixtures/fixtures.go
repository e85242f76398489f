// Package testfixtures builds deterministic clocks, identifiers, venues and
// service graphs for tests.
package testfixtures

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/example/courtbooking/internal/lifecycle"
	"github.com/example/courtbooking/internal/persistence"
	"github.com/example/courtbooking/internal/persistence/memory"
	"github.com/example/courtbooking/internal/pricing"
)

// ReferenceDate is a Wednesday; the venue's normal rate applies.
const ReferenceDate = "2024-05-15"

// Rates of the default venue, in VND per hour.
const (
	NormalRate int64 = 60000
	SundayRate int64 = 65000
)

var referenceTime = time.Date(2024, time.May, 15, 9, 0, 0, 0, time.UTC)

// ReferenceTime returns 09:00 UTC on ReferenceDate.
func ReferenceTime() time.Time {
	return referenceTime
}

// Venue is the reference data a store is seeded with.
type Venue struct {
	Courts  []persistence.Court
	Catalog []persistence.CatalogItem
	Rates   []pricing.RateTable
}

// VenueOption adjusts a generated venue.
type VenueOption func(*Venue)

// NewVenue returns a venue with the given number of available courts, a
// standard rate table and a small catalog:
//
//	water       10 000 VND, 24 in stock
//	shuttlecock 30 000 VND, 10 in stock
//	towel       15 000 VND,  2 in stock
func NewVenue(courts int, opts ...VenueOption) Venue {
	venue := Venue{
		Rates: []pricing.RateTable{pricing.NewRateTable(pricing.DefaultTableID, NormalRate, SundayRate)},
		Catalog: []persistence.CatalogItem{
			{ID: "water", Name: "Water", UnitPrice: 10000, Inventory: 24, UpdatedAt: referenceTime},
			{ID: "shuttlecock", Name: "Shuttlecock", UnitPrice: 30000, Inventory: 10, UpdatedAt: referenceTime},
			{ID: "towel", Name: "Towel", UnitPrice: 15000, Inventory: 2, UpdatedAt: referenceTime},
		},
	}
	for i := 1; i <= courts; i++ {
		venue.Courts = append(venue.Courts, persistence.Court{
			ID:          fmt.Sprintf("court-%d", i),
			Label:       fmt.Sprintf("Court %d", i),
			Status:      lifecycle.CourtAvailable,
			RateTableID: pricing.DefaultTableID,
			UpdatedAt:   referenceTime,
		})
	}
	for _, opt := range opts {
		opt(&venue)
	}
	return venue
}

// WithInventory overrides the stock of a catalog item.
func WithInventory(serviceID string, qty int) VenueOption {
	return func(v *Venue) {
		for i := range v.Catalog {
			if v.Catalog[i].ID == serviceID {
				v.Catalog[i].Inventory = qty
			}
		}
	}
}

// WithCourtStatus overrides the status of a court.
func WithCourtStatus(courtID string, status lifecycle.CourtStatus) VenueOption {
	return func(v *Venue) {
		for i := range v.Courts {
			if v.Courts[i].ID == courtID {
				v.Courts[i].Status = status
			}
		}
	}
}

// Seed upserts the venue into seeder.
func (v Venue) Seed(ctx context.Context, seeder persistence.Seeder) error {
	for _, table := range v.Rates {
		if err := seeder.UpsertRateTable(ctx, table); err != nil {
			return fmt.Errorf("seed rate table %s: %w", table.ID, err)
		}
	}
	for _, court := range v.Courts {
		if err := seeder.UpsertCourt(ctx, court); err != nil {
			return fmt.Errorf("seed court %s: %w", court.ID, err)
		}
	}
	for _, item := range v.Catalog {
		if err := seeder.UpsertCatalogItem(ctx, item); err != nil {
			return fmt.Errorf("seed catalog item %s: %w", item.ID, err)
		}
	}
	return nil
}

// NewMemoryStore returns an in-memory store seeded with venue. The store is
// closed when the test ends.
func NewMemoryStore(tb testing.TB, venue Venue) *memory.Storage {
	tb.Helper()

	store := memory.Open()
	tb.Cleanup(func() {
		_ = store.Close()
	})
	if err := venue.Seed(context.Background(), store); err != nil {
		tb.Fatalf("failed to seed store: %v", err)
	}
	return store
}
