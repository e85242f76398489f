package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/example/courtbooking/internal/application"
	"github.com/example/courtbooking/internal/persistence"
)

// OrderSessions is the session service surface used for order endpoints.
type OrderSessions interface {
	ListCatalog(ctx context.Context) ([]persistence.CatalogItem, error)
	AddServices(ctx context.Context, params application.AddServicesParams) (persistence.Order, error)
	Close(ctx context.Context, orderID string) (application.Bill, error)
	GetBill(ctx context.Context, orderID string) (application.Bill, error)
	ConfirmPayment(ctx context.Context, orderID string) (application.Bill, error)
}

// OrderHandler serves the manager's usage order endpoints.
type OrderHandler struct {
	sessions  OrderSessions
	responder responder
	logger    *slog.Logger
}

// NewOrderHandler constructs an OrderHandler.
func NewOrderHandler(sessions OrderSessions, logger *slog.Logger) *OrderHandler {
	logger = defaultLogger(logger)
	return &OrderHandler{sessions: sessions, responder: newResponder(logger), logger: logger}
}

// Catalog handles GET /catalog.
func (h *OrderHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	items, err := h.sessions.ListCatalog(ctx)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, toCatalogDTOs(items))
}

type serviceLineRequest struct {
	ServiceID string `json:"service_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
}

type addServicesRequest struct {
	Lines []serviceLineRequest `json:"lines" validate:"required,min=1,dive"`
}

// AddServices handles POST /orders/{orderID}/services.
func (h *OrderHandler) AddServices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID := chi.URLParam(r, "orderID")
	logger := handlerLogger(ctx, h.logger, "OrderHandler", "AddServices", "order_id", orderID)

	var req addServicesRequest
	if err := decodeJSON(r, &req); err != nil {
		logger.WarnContext(ctx, "invalid add services request", "error", err)
		h.responder.writeDecodeError(ctx, w, err)
		return
	}

	params := application.AddServicesParams{OrderID: orderID, Lines: make([]application.ServiceRequest, 0, len(req.Lines))}
	for _, line := range req.Lines {
		params.Lines = append(params.Lines, application.ServiceRequest{ServiceID: line.ServiceID, Quantity: line.Quantity})
	}

	order, err := h.sessions.AddServices(ctx, params)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, toOrderDTO(order))
}

// Close handles POST /orders/{orderID}/close and returns the bill.
func (h *OrderHandler) Close(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bill, err := h.sessions.Close(ctx, chi.URLParam(r, "orderID"))
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, toBillDTO(bill))
}

// Bill handles GET /orders/{orderID}/bill.
func (h *OrderHandler) Bill(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bill, err := h.sessions.GetBill(ctx, chi.URLParam(r, "orderID"))
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, toBillDTO(bill))
}

// ConfirmPayment handles POST /orders/{orderID}/confirm once the manager has
// collected the amount due. The court becomes available again.
func (h *OrderHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bill, err := h.sessions.ConfirmPayment(ctx, chi.URLParam(r, "orderID"))
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, toBillDTO(bill))
}
