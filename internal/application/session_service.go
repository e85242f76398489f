package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/courtbooking/internal/events"
	"github.com/example/courtbooking/internal/lifecycle"
	"github.com/example/courtbooking/internal/metrics"
	"github.com/example/courtbooking/internal/persistence"
	"github.com/example/courtbooking/internal/pricing"
	"github.com/example/courtbooking/internal/scheduler"
)

// SessionStore is the persistence surface of the manager-side lifecycle.
type SessionStore interface {
	persistence.CourtRepository
	persistence.CourtWatcher
	persistence.OrderRepository
	persistence.CatalogRepository
	persistence.RateRepository
	ListReservations(ctx context.Context, filter persistence.ReservationFilter) ([]persistence.Reservation, error)
}

// SessionService runs a court through Available, Opening, InUse, Paying and
// back to Available, keeping the order that records the usage.
type SessionService struct {
	store       SessionStore
	registry    *sessionRegistry
	idGenerator func() string
	now         func() time.Time
	location    *time.Location
	events      EventPublisher
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// NewSessionService constructs the session lifecycle service.
func NewSessionService(store SessionStore, idGenerator func() string, now func() time.Time, opts Options) *SessionService {
	opts = opts.withDefaults()
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &SessionService{
		store:       store,
		registry:    newSessionRegistry(0, 0, now),
		idGenerator: idGenerator,
		now:         now,
		location:    opts.Location,
		events:      opts.Events,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
	}
}

func (s *SessionService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "SessionService", operation, attrs...)
}

// ListCourts returns every court with its current status.
func (s *SessionService) ListCourts(ctx context.Context) ([]persistence.Court, error) {
	courts, err := s.store.ListCourts(ctx)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return courts, nil
}

// ListCatalog returns the sellable services with their inventory.
func (s *SessionService) ListCatalog(ctx context.Context) ([]persistence.CatalogItem, error) {
	items, err := s.store.ListCatalog(ctx)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return items, nil
}

// SubscribeCourts streams court list snapshots until the subscription is
// released or ctx ends.
func (s *SessionService) SubscribeCourts(ctx context.Context) (persistence.Subscription[[]persistence.Court], error) {
	sub, err := s.store.SubscribeCourts(ctx)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return sub, nil
}

// Open starts a usage session. The first call without Confirmed asks for
// confirmation; a paid reservation covering the current hour needs
// OverrideBooking as well. The court flips to in use only if it was
// available, so two managers cannot open it twice.
func (s *SessionService) Open(ctx context.Context, params OpenCourtParams) (session OrderSession, err error) {
	logger := s.loggerWith(ctx, "Open",
		"court_id", params.CourtID,
		"confirmed", params.Confirmed,
		"override_booking", params.OverrideBooking,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to open court", "error", err, "error_kind", ErrorKind(err), "at", s.now())
			return
		}
		logger.With("order_id", session.OrderID, "reservation_id", session.ReservationID).InfoContext(ctx, "court opened")
	}()

	if strings.TrimSpace(params.CourtID) == "" {
		err = newValidationError("courtId", "court is required")
		return
	}
	court, err := s.store.GetCourt(ctx, params.CourtID)
	if err != nil {
		err = mapStoreError(err)
		return
	}
	if court.Status != lifecycle.CourtAvailable {
		err = fmt.Errorf("court %s is %s: %w", court.ID, court.Status, ErrConcurrentUpdate)
		return
	}

	if !params.Confirmed {
		err = &ConfirmationRequiredError{CourtID: court.ID, Reason: ConfirmOpenCourt}
		return
	}

	now := s.now()
	covering, err := s.coveringReservation(ctx, court.ID, now)
	if err != nil {
		return
	}
	if covering != nil && !params.OverrideBooking {
		err = &ConfirmationRequiredError{CourtID: court.ID, Reason: ConfirmPaidReservation, ReservationID: covering.ID}
		return
	}

	if _, err = s.store.SwapCourtStatus(ctx, court.ID, lifecycle.CourtAvailable, lifecycle.CourtInUse, now); err != nil {
		err = mapStoreError(err)
		return
	}

	order := persistence.Order{
		ID:        s.idGenerator(),
		CourtID:   court.ID,
		StartTime: now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if covering != nil {
		order.ReservationID = covering.ID
	}
	if err = s.store.CreateOrder(ctx, order); err != nil {
		err = mapStoreError(err)
		if _, rerr := s.store.SwapCourtStatus(context.WithoutCancel(ctx), court.ID, lifecycle.CourtInUse, lifecycle.CourtAvailable, s.now()); rerr != nil {
			logger.ErrorContext(ctx, "failed to release court after order creation failed", "error", rerr)
		}
		return
	}

	session = sessionFromOrder(order, lifecycle.PhaseInUse)
	s.registry.Store(session)
	return
}

func (s *SessionService) coveringReservation(ctx context.Context, courtID string, now time.Time) (*persistence.Reservation, error) {
	local := now.In(s.location)
	reservations, err := s.store.ListReservations(ctx, persistence.ReservationFilter{
		CourtID:  courtID,
		Date:     local.Format(scheduler.DateLayout),
		Statuses: []lifecycle.ReservationStatus{lifecycle.ReservationPaid},
	})
	if err != nil {
		return nil, mapStoreError(err)
	}
	hour := local.Hour()
	for i := range reservations {
		if reservations[i].StartHour <= hour && hour < reservations[i].EndHour {
			return &reservations[i], nil
		}
	}
	return nil, nil
}

// RecoverActiveOrder returns the session of a court, from the registry when
// cached and otherwise from the store. An order that has not ended comes back
// in use; a closed order still awaiting payment on an in-use court comes back
// paying.
func (s *SessionService) RecoverActiveOrder(ctx context.Context, courtID string) (OrderSession, error) {
	if session, ok := s.registry.Get(courtID); ok {
		return session, nil
	}
	phase := lifecycle.PhaseInUse
	order, err := s.store.FindActiveOrder(ctx, courtID)
	if errors.Is(err, persistence.ErrNotFound) {
		phase = lifecycle.PhasePaying
		order, err = s.closedUnpaidOrder(ctx, courtID)
	}
	if err != nil {
		return OrderSession{}, mapStoreError(err)
	}
	session := sessionFromOrder(order, phase)
	s.registry.Store(session)
	s.loggerWith(ctx, "RecoverActiveOrder", "court_id", courtID, "order_id", order.ID, "phase", phase).InfoContext(ctx, "active order recovered from store")
	return session, nil
}

// closedUnpaidOrder returns the court's closed order awaiting payment. Old
// unpaid orders of a court that has since been released do not count.
func (s *SessionService) closedUnpaidOrder(ctx context.Context, courtID string) (persistence.Order, error) {
	court, err := s.store.GetCourt(ctx, courtID)
	if err != nil {
		return persistence.Order{}, err
	}
	if court.Status != lifecycle.CourtInUse {
		return persistence.Order{}, persistence.ErrNotFound
	}
	return s.store.FindUnsettledOrder(ctx, courtID)
}

// AddServices adds catalog lines to an active order. Every line is checked
// against inventory before any is written; a line lost to a concurrent sale
// rolls back the decrements already made and fails the whole request.
func (s *SessionService) AddServices(ctx context.Context, params AddServicesParams) (order persistence.Order, err error) {
	logger := s.loggerWith(ctx, "AddServices", "order_id", params.OrderID, "line_count", len(params.Lines))
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to add services", "error", err, "error_kind", ErrorKind(err), "at", s.now())
			return
		}
		logger.InfoContext(ctx, "services added")
	}()

	requested, vErr := normalizeServiceRequests(params.Lines)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	order, err = s.store.GetOrder(ctx, params.OrderID)
	if err != nil {
		err = mapStoreError(err)
		return
	}
	if !order.Active() {
		err = fmt.Errorf("order %s is closed: %w", order.ID, ErrIllegalTransition)
		return
	}

	lines := make([]persistence.OrderLine, 0, len(requested))
	shortage := &OutOfStockError{}
	for i, req := range requested {
		item, gerr := s.store.GetCatalogItem(ctx, req.ServiceID)
		if errors.Is(gerr, persistence.ErrNotFound) {
			vErr.add(fmt.Sprintf("lines[%d].serviceId", i), "unknown service")
			continue
		}
		if gerr != nil {
			err = mapStoreError(gerr)
			return
		}
		if item.Inventory < req.Quantity {
			shortage.Shortages = append(shortage.Shortages, StockShortage{ServiceID: item.ID, Requested: req.Quantity, Available: item.Inventory})
			continue
		}
		lines = append(lines, persistence.OrderLine{ServiceID: item.ID, Name: item.Name, UnitPrice: item.UnitPrice, Quantity: req.Quantity})
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}
	if len(shortage.Shortages) > 0 {
		s.metrics.InventoryRejected()
		err = shortage
		return
	}

	now := s.now()
	applied := make([]persistence.OrderLine, 0, len(lines))
	rollback := func() {
		for _, line := range applied {
			if _, rerr := s.store.IncrementInventory(context.WithoutCancel(ctx), line.ServiceID, line.Quantity, s.now()); rerr != nil {
				logger.ErrorContext(ctx, "failed to restore inventory", "service_id", line.ServiceID, "quantity", line.Quantity, "error", rerr)
			}
		}
	}
	for _, line := range lines {
		item, derr := s.store.DecrementInventory(ctx, line.ServiceID, line.Quantity, now)
		if derr != nil {
			rollback()
			if errors.Is(derr, persistence.ErrInsufficientInventory) {
				s.metrics.InventoryRejected()
				err = &OutOfStockError{Shortages: []StockShortage{{ServiceID: line.ServiceID, Requested: line.Quantity, Available: item.Inventory}}}
				return
			}
			err = mapStoreError(derr)
			return
		}
		applied = append(applied, line)
	}

	order, err = s.store.AppendOrderLines(ctx, params.OrderID, lines, now)
	if err != nil {
		rollback()
		if errors.Is(err, persistence.ErrStaleState) {
			err = fmt.Errorf("order %s closed while adding services: %w", params.OrderID, ErrIllegalTransition)
			return
		}
		err = mapStoreError(err)
		return
	}
	return
}

func normalizeServiceRequests(lines []ServiceRequest) ([]ServiceRequest, *ValidationError) {
	vErr := &ValidationError{}
	if len(lines) == 0 {
		vErr.add("lines", "at least one service is required")
		return nil, vErr
	}

	index := make(map[string]int, len(lines))
	merged := make([]ServiceRequest, 0, len(lines))
	for i, line := range lines {
		id := strings.TrimSpace(line.ServiceID)
		if id == "" {
			vErr.add(fmt.Sprintf("lines[%d].serviceId", i), "service is required")
			continue
		}
		if line.Quantity <= 0 {
			vErr.add(fmt.Sprintf("lines[%d].quantity", i), "quantity must be positive")
			continue
		}
		if pos, ok := index[id]; ok {
			merged[pos].Quantity += line.Quantity
			continue
		}
		index[id] = len(merged)
		merged = append(merged, ServiceRequest{ServiceID: id, Quantity: line.Quantity})
	}
	return merged, vErr
}

// Close ends play on an order and returns its bill. Closing twice keeps the
// first end time.
func (s *SessionService) Close(ctx context.Context, orderID string) (bill Bill, err error) {
	logger := s.loggerWith(ctx, "Close", "order_id", orderID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to close order", "error", err, "error_kind", ErrorKind(err), "at", s.now())
			return
		}
		logger.With("total", bill.Total, "hours", bill.Hours).InfoContext(ctx, "order closed")
	}()

	order, err := s.store.CloseOrder(ctx, orderID, s.now())
	if err != nil {
		err = mapStoreError(err)
		return
	}
	if _, aerr := s.registry.Advance(order.CourtID, lifecycle.PhasePaying); aerr != nil && !errors.Is(aerr, ErrNotFound) {
		logger.WarnContext(ctx, "session registry out of step", "court_id", order.CourtID, "error", aerr)
	}
	return s.ComputeBill(ctx, order)
}

// GetBill returns the current bill of an order, priced up to now while it is
// still open.
func (s *SessionService) GetBill(ctx context.Context, orderID string) (Bill, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return Bill{}, mapStoreError(err)
	}
	return s.ComputeBill(ctx, order)
}

// ComputeBill prices an order with its court's rate table.
func (s *SessionService) ComputeBill(ctx context.Context, order persistence.Order) (Bill, error) {
	table, err := s.rateTableFor(ctx, order.CourtID)
	if err != nil {
		return Bill{}, err
	}
	// Rates follow the venue's weekday, not the server's.
	order.StartTime = order.StartTime.In(s.location)
	bill := BuildBill(order, table, s.now().In(s.location))
	if order.TotalPrice != nil {
		bill.Total = *order.TotalPrice
	}
	return bill, nil
}

func (s *SessionService) rateTableFor(ctx context.Context, courtID string) (pricing.RateTable, error) {
	court, err := s.store.GetCourt(ctx, courtID)
	if err != nil {
		return pricing.RateTable{}, mapStoreError(err)
	}
	id := court.RateTableID
	if id == "" {
		id = pricing.DefaultTableID
	}
	table, err := s.store.GetRateTable(ctx, id)
	if err != nil {
		return pricing.RateTable{}, mapStoreError(err)
	}
	return table, nil
}

// ConfirmPayment settles an order at the counter. The total is written once,
// then the court returns to available and a receipt event is published. When
// the release fails the call errors and may be repeated; a repeat on a
// settled order only retries the release.
func (s *SessionService) ConfirmPayment(ctx context.Context, orderID string) (bill Bill, err error) {
	logger := s.loggerWith(ctx, "ConfirmPayment", "order_id", orderID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to confirm payment", "error", err, "error_kind", ErrorKind(err), "at", s.now())
			return
		}
		logger.With("court_id", bill.CourtID, "total", bill.Total).InfoContext(ctx, "order paid")
	}()

	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		err = mapStoreError(err)
		return
	}
	if order.TotalPrice != nil {
		bill, err = s.resumeRelease(ctx, logger, order)
		return
	}

	now := s.now()
	if bill, err = s.ComputeBill(ctx, order); err != nil {
		return
	}
	settled, err := s.store.SettleOrder(ctx, orderID, bill.Total, now)
	if errors.Is(err, persistence.ErrStaleState) {
		err = fmt.Errorf("order %s already settled: %w", orderID, ErrIllegalTransition)
		return
	}
	if err != nil {
		err = mapStoreError(err)
		return
	}
	bill.Settled = true
	if settled.EndTime != nil {
		bill.EndTime = *settled.EndTime
	}

	if err = s.releaseCourt(ctx, logger, settled, bill, now); err != nil {
		return
	}
	return bill, nil
}

// resumeRelease finishes a settled order whose court release failed. The
// court must still be in use and must not belong to a newer order.
func (s *SessionService) resumeRelease(ctx context.Context, logger *slog.Logger, order persistence.Order) (Bill, error) {
	settledErr := fmt.Errorf("order %s already settled: %w", order.ID, ErrIllegalTransition)
	court, err := s.store.GetCourt(ctx, order.CourtID)
	if err != nil {
		return Bill{}, mapStoreError(err)
	}
	if court.Status != lifecycle.CourtInUse {
		return Bill{}, settledErr
	}
	if _, err := s.store.FindUnsettledOrder(ctx, order.CourtID); err == nil {
		return Bill{}, settledErr
	} else if !errors.Is(err, persistence.ErrNotFound) {
		return Bill{}, mapStoreError(err)
	}

	bill, err := s.ComputeBill(ctx, order)
	if err != nil {
		return Bill{}, err
	}
	logger.WarnContext(ctx, "retrying court release of settled order", "court_id", order.CourtID)
	if err := s.releaseCourt(ctx, logger, order, bill, s.now()); err != nil {
		return Bill{}, err
	}
	return bill, nil
}

// releaseCourt returns a paid order's court to available, then records and
// announces the payment.
func (s *SessionService) releaseCourt(ctx context.Context, logger *slog.Logger, order persistence.Order, bill Bill, now time.Time) error {
	if _, err := s.store.SwapCourtStatus(ctx, order.CourtID, lifecycle.CourtInUse, lifecycle.CourtAvailable, now); err != nil {
		if !errors.Is(err, persistence.ErrStaleState) {
			return mapStoreError(err)
		}
		logger.WarnContext(ctx, "court was not in use when its order was paid", "court_id", order.CourtID, "error", err)
	}
	s.registry.Remove(order.CourtID)
	s.metrics.OrderSettled(bill.Total)
	publish(ctx, s.events, logger, events.KeyOrderPaid, now, receiptEvent(order, bill))
	return nil
}

type receiptLine struct {
	ServiceID string `json:"service_id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
	Subtotal  int64  `json:"subtotal"`
}

type receiptPayload struct {
	OrderID       string        `json:"order_id"`
	CourtID       string        `json:"court_id"`
	ReservationID string        `json:"reservation_id,omitempty"`
	StartTime     time.Time     `json:"start_time"`
	EndTime       time.Time     `json:"end_time"`
	Hours         int           `json:"hours"`
	HourlyRate    int64         `json:"hourly_rate"`
	CourtFee      int64         `json:"court_fee"`
	Lines         []receiptLine `json:"lines"`
	Total         int64         `json:"total"`
}

func receiptEvent(order persistence.Order, bill Bill) receiptPayload {
	lines := make([]receiptLine, 0, len(bill.Lines))
	for _, l := range bill.Lines {
		lines = append(lines, receiptLine{ServiceID: l.ServiceID, Name: l.Name, UnitPrice: l.UnitPrice, Quantity: l.Quantity, Subtotal: l.Subtotal})
	}
	return receiptPayload{
		OrderID:       order.ID,
		CourtID:       order.CourtID,
		ReservationID: order.ReservationID,
		StartTime:     bill.StartTime,
		EndTime:       bill.EndTime,
		Hours:         bill.Hours,
		HourlyRate:    bill.HourlyRate,
		CourtFee:      bill.CourtFee,
		Lines:         lines,
		Total:         bill.Total,
	}
}
