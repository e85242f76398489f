package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/example/courtbooking/internal/events"
	"github.com/example/courtbooking/internal/gateway"
	"github.com/example/courtbooking/internal/lifecycle"
	"github.com/example/courtbooking/internal/locks"
	"github.com/example/courtbooking/internal/metrics"
	"github.com/example/courtbooking/internal/persistence"
	"github.com/example/courtbooking/internal/pricing"
	"github.com/example/courtbooking/internal/scheduler"
)

const (
	captureLockTTL  = 60 * time.Second
	captureLockPoll = 50 * time.Millisecond
)

// PaymentStore is the operational store surface the orchestrator needs.
type PaymentStore interface {
	persistence.ReservationRepository
	GetCourt(ctx context.Context, id string) (persistence.Court, error)
	GetRateTable(ctx context.Context, id string) (pricing.RateTable, error)
}

// PaymentURLs are the callback targets the gateway redirects the payer to.
type PaymentURLs struct {
	ReturnURL string
	CancelURL string
}

// PaymentService drives a reservation through the gateway's create, approve
// and capture flow, recording every attempt in the payment ledger.
type PaymentService struct {
	store       PaymentStore
	ledger      persistence.PaymentLedger
	gateway     PaymentGateway
	exchange    pricing.Exchange
	urls        PaymentURLs
	idGenerator func() string
	now         func() time.Time
	location    *time.Location
	locker      locks.Locker
	events      EventPublisher
	metrics     *metrics.Metrics
	logger      *slog.Logger

	captures singleflight.Group
}

// NewPaymentService constructs the payment orchestrator.
func NewPaymentService(store PaymentStore, ledger persistence.PaymentLedger, gw PaymentGateway, exchange pricing.Exchange, urls PaymentURLs, idGenerator func() string, now func() time.Time, opts Options) *PaymentService {
	opts = opts.withDefaults()
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &PaymentService{
		store:       store,
		ledger:      ledger,
		gateway:     gw,
		exchange:    exchange,
		urls:        urls,
		idGenerator: idGenerator,
		now:         now,
		location:    opts.Location,
		locker:      opts.Locker,
		events:      opts.Events,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
	}
}

func (s *PaymentService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "PaymentService", operation, attrs...)
}

// Initiate prices a pending reservation, creates the gateway order and
// records the attempt. The returned screen carries the approval URL.
func (s *PaymentService) Initiate(ctx context.Context, reservationID string) (screen PaymentScreen, err error) {
	logger := s.loggerWith(ctx, "Initiate", "reservation_id", reservationID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to initiate payment", "error", err, "error_kind", ErrorKind(err), "at", s.now())
			return
		}
		logger.With("external_order_id", screen.ExternalOrderID, "amount", screen.Amount).InfoContext(ctx, "payment initiated")
	}()

	reservation, err := s.store.GetReservation(ctx, reservationID)
	if err != nil {
		err = mapStoreError(err)
		return
	}
	if _, err = reservation.Status.Transition(lifecycle.ReservationPaid); err != nil {
		return
	}

	court, err := s.store.GetCourt(ctx, reservation.CourtID)
	if err != nil {
		err = mapStoreError(err)
		return
	}
	table, err := s.rateTable(ctx, court)
	if err != nil {
		return
	}
	date, err := scheduler.ParseDate(reservation.Date, s.location)
	if err != nil {
		err = intervalValidationError(err)
		return
	}

	local := table.Price(date, reservation.StartHour, reservation.EndHour)
	minor := s.exchange.ToMinor(local)
	screen = PaymentScreen{
		ReservationID: reservation.ID,
		CourtID:       court.ID,
		CourtLabel:    court.Label,
		Date:          reservation.Date,
		StartHour:     reservation.StartHour,
		EndHour:       reservation.EndHour,
		LocalAmount:   local,
		LocalCurrency: s.exchange.LocalCurrency,
		Amount:        pricing.FormatMinor(minor),
		Currency:      s.exchange.SettlementCurrency,
	}

	started := time.Now()
	order, err := s.gateway.CreateOrder(ctx, gateway.CreateOrderRequest{
		ReferenceID: reservation.ID,
		Amount:      gateway.Money{CurrencyCode: screen.Currency, Value: screen.Amount},
		Description: fmt.Sprintf("Court %s on %s from %02d:00 to %02d:00", court.Label, reservation.Date, reservation.StartHour, reservation.EndHour),
		ReturnURL:   s.urls.ReturnURL,
		CancelURL:   s.urls.CancelURL,
	})
	s.metrics.ObserveGateway("create_order", started, err)
	if err != nil {
		err = gatewayError("create order", order.ID, err)
		return
	}

	now := s.now()
	record := persistence.PaymentRecord{
		ID:              s.idGenerator(),
		ReservationID:   reservation.ID,
		ExternalOrderID: order.ID,
		Amount:          minor,
		Currency:        screen.Currency,
		LocalAmount:     local,
		LocalCurrency:   screen.LocalCurrency,
		Status:          lifecycle.PaymentInitiated,
		Stage:           lifecycle.StageInitiated,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err = s.ledger.CreatePayment(ctx, record); err != nil {
		err = mapStoreError(err)
		return
	}
	if _, err = s.ledger.AdvancePayment(ctx, persistence.PaymentTransition{
		ExternalOrderID: order.ID,
		From:            lifecycle.StageInitiated,
		To:              lifecycle.StageRedirected,
		At:              now,
	}); err != nil {
		err = mapStoreError(err)
		return
	}

	screen.ExternalOrderID = order.ID
	screen.ApprovalURL = order.ApprovalURL
	return
}

// RedirectOutcome reports what a gateway callback resolved to.
type RedirectOutcome struct {
	Kind   gateway.RedirectKind
	Result PaymentResult
}

// OnRedirectReturn handles the URL the gateway sent the payer back to: the
// return path captures the payment, the cancel path abandons it.
func (s *PaymentService) OnRedirectReturn(ctx context.Context, callbackURL string) (RedirectOutcome, error) {
	redirect, err := gateway.ParseRedirect(callbackURL)
	if err != nil {
		switch {
		case errors.Is(err, gateway.ErrMissingToken):
			return RedirectOutcome{}, newValidationError("token", "callback url has no token")
		default:
			return RedirectOutcome{}, newValidationError("url", "callback url is neither the return nor the cancel url")
		}
	}

	outcome := RedirectOutcome{Kind: redirect.Kind}
	switch redirect.Kind {
	case gateway.RedirectCancel:
		outcome.Result, err = s.CancelPayment(ctx, redirect.Token)
	default:
		outcome.Result, err = s.Capture(ctx, redirect.Token)
	}
	return outcome, err
}

// CancelPayment marks an unfinished attempt cancelled and releases the
// pending reservation it was paying for. It holds the same token lock as
// capture, so a cancel arriving mid-capture waits for the capture outcome.
func (s *PaymentService) CancelPayment(ctx context.Context, token string) (result PaymentResult, err error) {
	logger := s.loggerWith(ctx, "CancelPayment", "external_order_id", token)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to cancel payment", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("reservation_id", result.ReservationID).InfoContext(ctx, "payment cancelled")
	}()

	release, lockErr := locks.AcquireWait(ctx, s.locker, "capture:"+token, captureLockTTL, captureLockPoll)
	if lockErr != nil {
		err = lockError("capture lock", lockErr)
		return
	}
	defer func() {
		if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
			logger.WarnContext(ctx, "failed to release capture lock", "error", rerr)
		}
	}()

	record, err := s.ledger.GetPaymentByExternalID(ctx, token)
	if err != nil {
		err = mapStoreError(err)
		return
	}
	if record.Stage != lifecycle.StageCancelled {
		if _, err = record.Stage.Transition(lifecycle.StageCancelled); err != nil {
			return
		}
		record, err = s.ledger.AdvancePayment(ctx, persistence.PaymentTransition{
			ExternalOrderID: token,
			From:            record.Stage,
			To:              lifecycle.StageCancelled,
			At:              s.now(),
		})
		if err != nil {
			err = mapStoreError(err)
			return
		}
	}

	reservation, changed, err := cancelPending(ctx, s.store, record.ReservationID, s.now())
	if err != nil {
		return
	}
	if changed {
		s.metrics.ReservationCancelled("payment_cancelled")
		publish(ctx, s.events, logger, events.KeyReservationCancelled, reservation.UpdatedAt, reservationEvent(reservation))
	}

	result = s.resultFrom(record)
	result.ReservationStatus = reservation.Status
	return
}

// Capture completes an approved gateway order exactly once. Concurrent calls
// for the same token in this process share one execution; across processes
// a lock on the token serialises them, and the ledger's conditional stage
// update decides the single winner. A settled attempt returns its stored
// outcome with Duplicate set.
func (s *PaymentService) Capture(ctx context.Context, token string) (PaymentResult, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return PaymentResult{}, newValidationError("token", "token is required")
	}

	ch := s.captures.DoChan(token, func() (any, error) {
		return s.capture(context.WithoutCancel(ctx), token)
	})
	select {
	case <-ctx.Done():
		return PaymentResult{}, ctx.Err()
	case res := <-ch:
		result, _ := res.Val.(PaymentResult)
		return result, res.Err
	}
}

func (s *PaymentService) capture(ctx context.Context, token string) (result PaymentResult, err error) {
	logger := s.loggerWith(ctx, "Capture", "external_order_id", token)
	defer func() {
		switch {
		case err != nil:
			logger.ErrorContext(ctx, "payment capture failed", "error", err, "error_kind", ErrorKind(err), "at", s.now())
		case result.Duplicate:
			logger.InfoContext(ctx, "payment already captured")
		default:
			logger.With("reservation_id", result.ReservationID, "payer_email", result.PayerEmail).InfoContext(ctx, "payment captured")
		}
	}()

	record, err := s.ledger.GetPaymentByExternalID(ctx, token)
	if err != nil {
		err = mapStoreError(err)
		return
	}
	if done, settledResult, settledErr := s.settled(record); done {
		return settledResult, settledErr
	}

	release, lockErr := locks.AcquireWait(ctx, s.locker, "capture:"+token, captureLockTTL, captureLockPoll)
	if lockErr != nil {
		err = lockError("capture lock", lockErr)
		return
	}
	defer func() {
		if rerr := release(ctx); rerr != nil {
			logger.WarnContext(ctx, "failed to release capture lock", "error", rerr)
		}
	}()

	// Another process may have finished while we waited for the lock.
	if record, err = s.ledger.GetPaymentByExternalID(ctx, token); err != nil {
		err = mapStoreError(err)
		return
	}
	if done, settledResult, settledErr := s.settled(record); done {
		return settledResult, settledErr
	}
	if record.Stage == lifecycle.StageInitiated {
		if record, err = s.ledger.AdvancePayment(ctx, persistence.PaymentTransition{
			ExternalOrderID: token,
			From:            lifecycle.StageInitiated,
			To:              lifecycle.StageRedirected,
			At:              s.now(),
		}); err != nil {
			err = mapStoreError(err)
			return
		}
	}

	started := time.Now()
	capture, err := s.gateway.CaptureOrder(ctx, token)
	s.metrics.ObserveGateway("capture_order", started, err)
	if err != nil {
		if gateway.IsTransient(err) {
			s.metrics.CaptureOutcome("error")
			err = gatewayError("capture order", token, err)
			return
		}
		status := "REJECTED"
		var apiErr *gateway.APIError
		if errors.As(err, &apiErr) && apiErr.Name != "" {
			status = apiErr.Name
		}
		return s.fail(ctx, logger, record, status)
	}
	if !capture.Completed() {
		return s.fail(ctx, logger, record, capture.Status)
	}

	capturedAt := s.now()
	record, err = s.ledger.AdvancePayment(ctx, persistence.PaymentTransition{
		ExternalOrderID: token,
		From:            lifecycle.StageRedirected,
		To:              lifecycle.StageCaptured,
		PayerEmail:      capture.PayerEmail,
		CapturedAt:      &capturedAt,
		At:              capturedAt,
	})
	if errors.Is(err, persistence.ErrStaleState) {
		current, gerr := s.ledger.GetPaymentByExternalID(ctx, token)
		if gerr != nil {
			err = mapStoreError(gerr)
			return
		}
		_, result, err = s.settled(current)
		return
	}
	if err != nil {
		err = mapStoreError(err)
		return
	}
	s.metrics.CaptureOutcome("completed")

	result = s.resultFrom(record)
	reservation, rerr := s.markPaid(ctx, record.ReservationID, capturedAt)
	if rerr != nil {
		// The money is taken; the ledger is the source of truth from here.
		logger.ErrorContext(ctx, "captured payment could not mark reservation paid", "reservation_id", record.ReservationID, "error", rerr)
	}
	result.ReservationStatus = reservation.Status
	if reservation.Status != lifecycle.ReservationPaid {
		s.metrics.CaptureOutcome("orphaned")
		logger.ErrorContext(ctx, "payment captured for a reservation that is no longer pending", "reservation_id", record.ReservationID, "status", reservation.Status)
	}

	publish(ctx, s.events, logger, events.KeyReservationPaid, capturedAt, paymentEvent(result))
	return result, nil
}

// settled reports whether the record no longer needs a gateway capture and
// what the caller should receive in that case.
func (s *PaymentService) settled(record persistence.PaymentRecord) (bool, PaymentResult, error) {
	result := s.resultFrom(record)
	switch record.Stage {
	case lifecycle.StageCaptured:
		s.metrics.CaptureOutcome("duplicate")
		result.Duplicate = true
		result.ReservationStatus = lifecycle.ReservationPaid
		return true, result, nil
	case lifecycle.StageFailed:
		return true, result, &PaymentFailedError{ExternalOrderID: record.ExternalOrderID, Status: record.FailureReason}
	case lifecycle.StageCancelled:
		return true, result, &lifecycle.TransitionError{Entity: "payment", From: string(record.Stage), To: string(lifecycle.StageCaptured)}
	}
	return false, result, nil
}

func (s *PaymentService) fail(ctx context.Context, logger *slog.Logger, record persistence.PaymentRecord, status string) (PaymentResult, error) {
	s.metrics.CaptureOutcome("failed")
	updated, err := s.ledger.AdvancePayment(ctx, persistence.PaymentTransition{
		ExternalOrderID: record.ExternalOrderID,
		From:            lifecycle.StageRedirected,
		To:              lifecycle.StageFailed,
		FailureReason:   status,
		At:              s.now(),
	})
	if err != nil && !errors.Is(err, persistence.ErrStaleState) {
		return s.resultFrom(record), mapStoreError(err)
	}
	if err == nil {
		record = updated
	}
	result := s.resultFrom(record)
	publish(ctx, s.events, logger, events.KeyPaymentFailed, s.now(), paymentEvent(result))
	return result, &PaymentFailedError{ExternalOrderID: record.ExternalOrderID, Status: status}
}

func (s *PaymentService) markPaid(ctx context.Context, reservationID string, at time.Time) (persistence.Reservation, error) {
	reservation, err := s.store.SwapReservationStatus(ctx, reservationID, lifecycle.ReservationPending, lifecycle.ReservationPaid, at)
	if err == nil {
		return reservation, nil
	}
	if !errors.Is(err, persistence.ErrStaleState) {
		return persistence.Reservation{}, mapStoreError(err)
	}
	current, gerr := s.store.GetReservation(ctx, reservationID)
	if gerr != nil {
		return persistence.Reservation{}, mapStoreError(gerr)
	}
	return current, nil
}

// ListPayments returns the attempts recorded for a reservation.
func (s *PaymentService) ListPayments(ctx context.Context, reservationID string) ([]persistence.PaymentRecord, error) {
	records, err := s.ledger.ListPaymentsForReservation(ctx, reservationID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return records, nil
}

func (s *PaymentService) rateTable(ctx context.Context, court persistence.Court) (pricing.RateTable, error) {
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

func (s *PaymentService) resultFrom(record persistence.PaymentRecord) PaymentResult {
	return PaymentResult{
		ExternalOrderID: record.ExternalOrderID,
		ReservationID:   record.ReservationID,
		Status:          record.Status,
		Stage:           record.Stage,
		Amount:          pricing.FormatMinor(record.Amount),
		Currency:        record.Currency,
		LocalAmount:     record.LocalAmount,
		PayerEmail:      record.PayerEmail,
		CapturedAt:      record.CapturedAt,
	}
}

func gatewayError(op, orderID string, err error) error {
	switch {
	case errors.Is(err, gateway.ErrMissingApprovalURL):
		return &PaymentFailedError{ExternalOrderID: orderID, Status: "MISSING_APPROVAL_URL"}
	case gateway.IsTransient(err):
		return &NetworkError{Op: op, Err: err}
	}
	var apiErr *gateway.APIError
	if errors.As(err, &apiErr) {
		return &PaymentFailedError{ExternalOrderID: orderID, Status: apiErr.Name}
	}
	return &NetworkError{Op: op, Err: err}
}

type paymentPayload struct {
	ExternalOrderID string     `json:"external_order_id"`
	ReservationID   string     `json:"reservation_id"`
	Status          string     `json:"status"`
	Amount          string     `json:"amount"`
	Currency        string     `json:"currency"`
	LocalAmount     int64      `json:"local_amount"`
	PayerEmail      string     `json:"payer_email,omitempty"`
	CapturedAt      *time.Time `json:"captured_at,omitempty"`
}

func paymentEvent(r PaymentResult) paymentPayload {
	return paymentPayload{
		ExternalOrderID: r.ExternalOrderID,
		ReservationID:   r.ReservationID,
		Status:          string(r.Status),
		Amount:          r.Amount,
		Currency:        r.Currency,
		LocalAmount:     r.LocalAmount,
		PayerEmail:      r.PayerEmail,
		CapturedAt:      r.CapturedAt,
	}
}
