// Package memory provides an in-process document store used by default and in
// tests. It honours the same conditional-write contracts as the MongoDB store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/example/courtbooking/internal/lifecycle"
	"github.com/example/courtbooking/internal/persistence"
	"github.com/example/courtbooking/internal/pricing"
)

// Storage keeps every collection in maps guarded by a single lock.
type Storage struct {
	mu           sync.RWMutex
	courts       map[string]persistence.Court
	reservations map[string]persistence.Reservation
	payments     map[string]persistence.PaymentRecord
	orders       map[string]persistence.Order
	catalog      map[string]persistence.CatalogItem
	rates        map[string]pricing.RateTable

	watchers *courtHub
}

// Open returns an empty Storage.
func Open() *Storage {
	return &Storage{
		courts:       make(map[string]persistence.Court),
		reservations: make(map[string]persistence.Reservation),
		payments:     make(map[string]persistence.PaymentRecord),
		orders:       make(map[string]persistence.Order),
		catalog:      make(map[string]persistence.CatalogItem),
		rates:        make(map[string]pricing.RateTable),
		watchers:     newCourtHub(),
	}
}

// Close ends every open subscription.
func (s *Storage) Close() error {
	s.watchers.closeAll()
	return nil
}

// --- Seeder implementation ---

func (s *Storage) UpsertCourt(ctx context.Context, court persistence.Court) error {
	if !court.Status.Valid() {
		return fmt.Errorf("memory: court %s has invalid status %q", court.ID, court.Status)
	}
	s.mu.Lock()
	s.courts[court.ID] = court
	snapshot := s.courtSnapshotLocked()
	s.mu.Unlock()

	s.watchers.publish(snapshot)
	return nil
}

func (s *Storage) UpsertCatalogItem(ctx context.Context, item persistence.CatalogItem) error {
	if item.Inventory < 0 {
		return fmt.Errorf("memory: catalog item %s has negative inventory", item.ID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalog[item.ID] = item
	return nil
}

func (s *Storage) UpsertRateTable(ctx context.Context, table pricing.RateTable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates[table.ID] = cloneRateTable(table)
	return nil
}

// --- CourtRepository implementation ---

// ListCourts returns courts ordered by label.
func (s *Storage) ListCourts(ctx context.Context) ([]persistence.Court, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.courtSnapshotLocked(), nil
}

func (s *Storage) GetCourt(ctx context.Context, id string) (persistence.Court, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	court, ok := s.courts[id]
	if !ok {
		return persistence.Court{}, persistence.ErrNotFound
	}
	return court, nil
}

func (s *Storage) SwapCourtStatus(ctx context.Context, id string, from, to lifecycle.CourtStatus, at time.Time) (persistence.Court, error) {
	s.mu.Lock()
	court, ok := s.courts[id]
	if !ok {
		s.mu.Unlock()
		return persistence.Court{}, persistence.ErrNotFound
	}
	if court.Status != from {
		s.mu.Unlock()
		return court, persistence.ErrStaleState
	}
	court.Status = to
	court.UpdatedAt = at
	s.courts[id] = court
	snapshot := s.courtSnapshotLocked()
	s.mu.Unlock()

	s.watchers.publish(snapshot)
	return court, nil
}

// SubscribeCourts emits the current court list immediately and again after
// every court change.
func (s *Storage) SubscribeCourts(ctx context.Context) (persistence.Subscription[[]persistence.Court], error) {
	s.mu.RLock()
	initial := s.courtSnapshotLocked()
	s.mu.RUnlock()

	return s.watchers.subscribe(ctx, initial), nil
}

func (s *Storage) courtSnapshotLocked() []persistence.Court {
	courts := make([]persistence.Court, 0, len(s.courts))
	for _, court := range s.courts {
		courts = append(courts, court)
	}
	sort.Slice(courts, func(i, j int) bool {
		if courts[i].Label == courts[j].Label {
			return courts[i].ID < courts[j].ID
		}
		return courts[i].Label < courts[j].Label
	})
	return courts
}

// --- ReservationRepository implementation ---

func (s *Storage) CreateReservation(ctx context.Context, reservation persistence.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.reservations[reservation.ID]; ok {
		return persistence.ErrDuplicate
	}
	s.reservations[reservation.ID] = reservation
	return nil
}

func (s *Storage) GetReservation(ctx context.Context, id string) (persistence.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reservation, ok := s.reservations[id]
	if !ok {
		return persistence.Reservation{}, persistence.ErrNotFound
	}
	return reservation, nil
}

// ListReservations returns matching reservations ordered by start hour and
// creation time.
func (s *Storage) ListReservations(ctx context.Context, filter persistence.ReservationFilter) ([]persistence.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]persistence.Reservation, 0)
	for _, reservation := range s.reservations {
		if filter.Matches(reservation) {
			result = append(result, reservation)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Date != result[j].Date {
			return result[i].Date < result[j].Date
		}
		if result[i].StartHour != result[j].StartHour {
			return result[i].StartHour < result[j].StartHour
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (s *Storage) SwapReservationStatus(ctx context.Context, id string, from, to lifecycle.ReservationStatus, at time.Time) (persistence.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reservation, ok := s.reservations[id]
	if !ok {
		return persistence.Reservation{}, persistence.ErrNotFound
	}
	if reservation.Status != from {
		return reservation, persistence.ErrStaleState
	}
	reservation.Status = to
	reservation.UpdatedAt = at
	s.reservations[id] = reservation
	return reservation, nil
}

// --- PaymentLedger implementation ---

func (s *Storage) CreatePayment(ctx context.Context, record persistence.PaymentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.payments[record.ExternalOrderID]; ok {
		return persistence.ErrDuplicate
	}
	s.payments[record.ExternalOrderID] = clonePayment(record)
	return nil
}

func (s *Storage) GetPaymentByExternalID(ctx context.Context, externalOrderID string) (persistence.PaymentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.payments[externalOrderID]
	if !ok {
		return persistence.PaymentRecord{}, persistence.ErrNotFound
	}
	return clonePayment(record), nil
}

func (s *Storage) ListPaymentsForReservation(ctx context.Context, reservationID string) ([]persistence.PaymentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]persistence.PaymentRecord, 0)
	for _, record := range s.payments {
		if record.ReservationID == reservationID {
			records = append(records, clonePayment(record))
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}

func (s *Storage) AdvancePayment(ctx context.Context, transition persistence.PaymentTransition) (persistence.PaymentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.payments[transition.ExternalOrderID]
	if !ok {
		return persistence.PaymentRecord{}, persistence.ErrNotFound
	}
	if record.Stage != transition.From {
		return clonePayment(record), persistence.ErrStaleState
	}
	record.Stage = transition.To
	record.Status = transition.To.Status()
	if transition.PayerEmail != "" {
		record.PayerEmail = transition.PayerEmail
	}
	if transition.FailureReason != "" {
		record.FailureReason = transition.FailureReason
	}
	if transition.CapturedAt != nil {
		captured := *transition.CapturedAt
		record.CapturedAt = &captured
	}
	record.UpdatedAt = transition.At
	s.payments[record.ExternalOrderID] = record
	return clonePayment(record), nil
}

// --- OrderRepository implementation ---

func (s *Storage) CreateOrder(ctx context.Context, order persistence.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[order.ID]; ok {
		return persistence.ErrDuplicate
	}
	if order.EndTime == nil {
		for _, existing := range s.orders {
			if existing.CourtID == order.CourtID && existing.EndTime == nil {
				return fmt.Errorf("memory: court %s already has active order %s: %w", order.CourtID, existing.ID, persistence.ErrDuplicate)
			}
		}
	}
	s.orders[order.ID] = cloneOrder(order)
	return nil
}

func (s *Storage) GetOrder(ctx context.Context, id string) (persistence.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[id]
	if !ok {
		return persistence.Order{}, persistence.ErrNotFound
	}
	return cloneOrder(order), nil
}

func (s *Storage) FindActiveOrder(ctx context.Context, courtID string) (persistence.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, order := range s.orders {
		if order.CourtID == courtID && order.EndTime == nil {
			return cloneOrder(order), nil
		}
	}
	return persistence.Order{}, persistence.ErrNotFound
}

func (s *Storage) FindUnsettledOrder(ctx context.Context, courtID string) (persistence.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		latest persistence.Order
		found  bool
	)
	for _, order := range s.orders {
		if order.CourtID != courtID || order.TotalPrice != nil {
			continue
		}
		if !found || order.StartTime.After(latest.StartTime) {
			latest, found = order, true
		}
	}
	if !found {
		return persistence.Order{}, persistence.ErrNotFound
	}
	return cloneOrder(latest), nil
}

func (s *Storage) AppendOrderLines(ctx context.Context, orderID string, lines []persistence.OrderLine, at time.Time) (persistence.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return persistence.Order{}, persistence.ErrNotFound
	}
	if order.EndTime != nil {
		return cloneOrder(order), persistence.ErrStaleState
	}
	order = cloneOrder(order)
	order.Services = MergeLines(order.Services, lines)
	order.UpdatedAt = at
	s.orders[orderID] = order
	return cloneOrder(order), nil
}

func (s *Storage) CloseOrder(ctx context.Context, orderID string, endTime time.Time) (persistence.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return persistence.Order{}, persistence.ErrNotFound
	}
	if order.EndTime == nil {
		end := endTime
		order.EndTime = &end
		order.UpdatedAt = endTime
		s.orders[orderID] = order
	}
	return cloneOrder(order), nil
}

func (s *Storage) SettleOrder(ctx context.Context, orderID string, total int64, endTime time.Time) (persistence.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return persistence.Order{}, persistence.ErrNotFound
	}
	if order.TotalPrice != nil {
		return cloneOrder(order), persistence.ErrStaleState
	}
	if order.EndTime == nil {
		end := endTime
		order.EndTime = &end
	}
	order.TotalPrice = &total
	order.UpdatedAt = endTime
	s.orders[orderID] = order
	return cloneOrder(order), nil
}

func (s *Storage) ListClosedOrders(ctx context.Context, from, to time.Time) ([]persistence.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]persistence.Order, 0)
	for _, order := range s.orders {
		if order.EndTime == nil || order.EndTime.Before(from) || order.EndTime.After(to) {
			continue
		}
		result = append(result, cloneOrder(order))
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].EndTime.Equal(*result[j].EndTime) {
			return result[i].ID < result[j].ID
		}
		return result[i].EndTime.Before(*result[j].EndTime)
	})
	return result, nil
}

// --- CatalogRepository implementation ---

// ListCatalog returns catalog items ordered by name.
func (s *Storage) ListCatalog(ctx context.Context) ([]persistence.CatalogItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]persistence.CatalogItem, 0, len(s.catalog))
	for _, item := range s.catalog {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Name == items[j].Name {
			return items[i].ID < items[j].ID
		}
		return items[i].Name < items[j].Name
	})
	return items, nil
}

func (s *Storage) GetCatalogItem(ctx context.Context, id string) (persistence.CatalogItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.catalog[id]
	if !ok {
		return persistence.CatalogItem{}, persistence.ErrNotFound
	}
	return item, nil
}

func (s *Storage) DecrementInventory(ctx context.Context, id string, qty int, at time.Time) (persistence.CatalogItem, error) {
	return s.adjustInventory(id, -qty, at)
}

func (s *Storage) IncrementInventory(ctx context.Context, id string, qty int, at time.Time) (persistence.CatalogItem, error) {
	return s.adjustInventory(id, qty, at)
}

func (s *Storage) adjustInventory(id string, delta int, at time.Time) (persistence.CatalogItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.catalog[id]
	if !ok {
		return persistence.CatalogItem{}, persistence.ErrNotFound
	}
	if item.Inventory+delta < 0 {
		return item, persistence.ErrInsufficientInventory
	}
	item.Inventory += delta
	item.UpdatedAt = at
	s.catalog[id] = item
	return item, nil
}

// --- RateRepository implementation ---

func (s *Storage) GetRateTable(ctx context.Context, id string) (pricing.RateTable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	table, ok := s.rates[id]
	if !ok {
		return pricing.RateTable{}, persistence.ErrNotFound
	}
	return cloneRateTable(table), nil
}

// MergeLines adds quantities of lines whose service is already present and
// appends the rest in request order.
func MergeLines(existing, added []persistence.OrderLine) []persistence.OrderLine {
	merged := make([]persistence.OrderLine, len(existing), len(existing)+len(added))
	copy(merged, existing)
	for _, line := range added {
		found := false
		for i := range merged {
			if merged[i].ServiceID == line.ServiceID {
				merged[i].Quantity += line.Quantity
				found = true
				break
			}
		}
		if !found {
			merged = append(merged, line)
		}
	}
	return merged
}

func cloneOrder(order persistence.Order) persistence.Order {
	clone := order
	if order.Services != nil {
		clone.Services = append([]persistence.OrderLine(nil), order.Services...)
	}
	if order.EndTime != nil {
		end := *order.EndTime
		clone.EndTime = &end
	}
	if order.TotalPrice != nil {
		total := *order.TotalPrice
		clone.TotalPrice = &total
	}
	return clone
}

func clonePayment(record persistence.PaymentRecord) persistence.PaymentRecord {
	clone := record
	if record.CapturedAt != nil {
		captured := *record.CapturedAt
		clone.CapturedAt = &captured
	}
	return clone
}

func cloneRateTable(table pricing.RateTable) pricing.RateTable {
	clone := table
	clone.WeekdayRates = make(map[time.Weekday]int64, len(table.WeekdayRates))
	for day, rate := range table.WeekdayRates {
		clone.WeekdayRates[day] = rate
	}
	return clone
}
