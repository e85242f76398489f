package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/example/courtbooking/internal/application"
)

// PaymentService is the payment surface used by PaymentHandler.
type PaymentService interface {
	OnRedirectReturn(ctx context.Context, callbackURL string) (application.RedirectOutcome, error)
	Capture(ctx context.Context, token string) (application.PaymentResult, error)
}

// PaymentHandler receives gateway redirects and explicit capture requests.
type PaymentHandler struct {
	payments  PaymentService
	responder responder
	logger    *slog.Logger
}

// NewPaymentHandler constructs a PaymentHandler.
func NewPaymentHandler(payments PaymentService, logger *slog.Logger) *PaymentHandler {
	logger = defaultLogger(logger)
	return &PaymentHandler{payments: payments, responder: newResponder(logger), logger: logger}
}

type callbackRequest struct {
	URL string `json:"url" validate:"required"`
}

// Callback handles POST /payments/callback. Native clients forward the
// deep link the gateway redirected them to.
func (h *PaymentHandler) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := handlerLogger(ctx, h.logger, "PaymentHandler", "Callback")

	var req callbackRequest
	if err := decodeJSON(r, &req); err != nil {
		logger.WarnContext(ctx, "invalid callback request", "error", err)
		h.responder.writeDecodeError(ctx, w, err)
		return
	}
	h.resolve(ctx, w, req.URL)
}

// Redirect handles GET /payment/return and GET /payment/cancel for web
// clients the gateway sends back to this service directly.
func (h *PaymentHandler) Redirect(w http.ResponseWriter, r *http.Request) {
	h.resolve(r.Context(), w, r.URL.RequestURI())
}

func (h *PaymentHandler) resolve(ctx context.Context, w http.ResponseWriter, callbackURL string) {
	outcome, err := h.payments.OnRedirectReturn(ctx, callbackURL)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, toPaymentResultDTO(string(outcome.Kind), outcome.Result))
}

// Capture handles POST /payments/{token}/capture. Repeated calls return the
// stored outcome.
func (h *PaymentHandler) Capture(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	result, err := h.payments.Capture(ctx, chi.URLParam(r, "token"))
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, toPaymentResultDTO("", result))
}
