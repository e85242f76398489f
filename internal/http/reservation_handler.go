package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/example/courtbooking/internal/application"
	"github.com/example/courtbooking/internal/persistence"
)

// ReservationService is the booking surface used by ReservationHandler.
type ReservationService interface {
	CreateReservation(ctx context.Context, params application.CreateReservationParams) (persistence.Reservation, error)
	GetReservation(ctx context.Context, id string) (persistence.Reservation, error)
	CancelReservation(ctx context.Context, id string) (persistence.Reservation, error)
}

// PaymentInitiator starts a gateway payment for a reservation.
type PaymentInitiator interface {
	Initiate(ctx context.Context, reservationID string) (application.PaymentScreen, error)
}

// ReservationHandler serves customer booking endpoints.
type ReservationHandler struct {
	reservations ReservationService
	payments     PaymentInitiator
	responder    responder
	logger       *slog.Logger
}

// NewReservationHandler constructs a ReservationHandler.
func NewReservationHandler(reservations ReservationService, payments PaymentInitiator, logger *slog.Logger) *ReservationHandler {
	logger = defaultLogger(logger)
	return &ReservationHandler{
		reservations: reservations,
		payments:     payments,
		responder:    newResponder(logger),
		logger:       logger,
	}
}

type createReservationRequest struct {
	CourtID    string `json:"court_id" validate:"required"`
	CustomerID string `json:"customer_id"`
	Date       string `json:"date" validate:"required,datetime=2006-01-02"`
	StartHour  *int   `json:"start_hour" validate:"required,min=0,max=23"`
	EndHour    *int   `json:"end_hour" validate:"required,min=1,max=24"`
}

// Create handles POST /reservations. The customer comes from the identity
// header; the body value is only used when no header was sent.
func (h *ReservationHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := handlerLogger(ctx, h.logger, "ReservationHandler", "Create")

	var req createReservationRequest
	if err := decodeJSON(r, &req); err != nil {
		logger.WarnContext(ctx, "invalid reservation request", "error", err)
		h.responder.writeDecodeError(ctx, w, err)
		return
	}

	customerID, ok := CustomerFromContext(ctx)
	if !ok {
		customerID = strings.TrimSpace(req.CustomerID)
	}

	reservation, err := h.reservations.CreateReservation(ctx, application.CreateReservationParams{
		CourtID:    req.CourtID,
		CustomerID: customerID,
		Date:       req.Date,
		StartHour:  *req.StartHour,
		EndHour:    *req.EndHour,
	})
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusCreated, toReservationDTO(reservation))
}

// Get handles GET /reservations/{reservationID}.
func (h *ReservationHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reservation, err := h.reservations.GetReservation(ctx, chi.URLParam(r, "reservationID"))
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, toReservationDTO(reservation))
}

// Cancel handles POST /reservations/{reservationID}/cancel.
func (h *ReservationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reservation, err := h.reservations.CancelReservation(ctx, chi.URLParam(r, "reservationID"))
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, toReservationDTO(reservation))
}

// InitiatePayment handles POST /reservations/{reservationID}/payments and
// returns the payment screen with the approval URL.
func (h *ReservationHandler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	screen, err := h.payments.Initiate(ctx, chi.URLParam(r, "reservationID"))
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusCreated, toPaymentScreenDTO(screen))
}
