package persistence_test

import (
	"testing"
	"time"

	"github.com/example/courtbooking/internal/lifecycle"
	"github.com/example/courtbooking/internal/persistence"
)

func TestReservationFilter_Matches(t *testing.T) {
	t.Parallel()

	created := time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)
	reservation := persistence.Reservation{
		ID:        "r-1",
		CourtID:   "court-1",
		Date:      "2024-03-05",
		Status:    lifecycle.ReservationPending,
		CreatedAt: created,
	}
	before := created.Add(time.Minute)
	atCreation := created

	cases := []struct {
		name   string
		filter persistence.ReservationFilter
		want   bool
	}{
		{"empty filter matches", persistence.ReservationFilter{}, true},
		{"court and date match", persistence.ReservationFilter{CourtID: "court-1", Date: "2024-03-05"}, true},
		{"other court", persistence.ReservationFilter{CourtID: "court-2"}, false},
		{"status listed", persistence.ReservationFilter{Statuses: []lifecycle.ReservationStatus{lifecycle.ReservationPaid, lifecycle.ReservationPending}}, true},
		{"status not listed", persistence.ReservationFilter{Statuses: []lifecycle.ReservationStatus{lifecycle.ReservationCancelled}}, false},
		{"created before cutoff", persistence.ReservationFilter{CreatedBefore: &before}, true},
		{"cutoff is exclusive", persistence.ReservationFilter{CreatedBefore: &atCreation}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.filter.Matches(reservation); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestOrder_Active(t *testing.T) {
	t.Parallel()

	order := persistence.Order{ID: "o-1"}
	if !order.Active() {
		t.Fatalf("expected order without end time to be active")
	}
	end := time.Now()
	order.EndTime = &end
	if order.Active() {
		t.Fatalf("expected closed order to be inactive")
	}
}
