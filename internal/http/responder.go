package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/courtbooking/internal/application"
	"github.com/example/courtbooking/internal/logging"
)

var (
	errBadRequestBody = errors.New("request body is not valid JSON")
	errNoStreaming    = errors.New("streaming is not supported by this connection")
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	return responder{logger: defaultLogger(logger)}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	message := http.StatusText(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).WarnContext(ctx, "request rejected", "status", status, "error", err)
	}

	r.writeJSON(ctx, w, status, errorResponse{ErrorCode: codeForStatus(status), Message: message})
}

// handleServiceError maps service errors to status codes. Typed errors
// carry their details into the body so clients can render them.
func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeError(ctx, w, http.StatusInternalServerError, errors.New("unknown error"))
		return
	}

	var (
		vErr     *application.ValidationError
		netErr   *application.NetworkError
		conflict *application.SlotConflictError
		stock    *application.OutOfStockError
		payment  *application.PaymentFailedError
		confirm  *application.ConfirmationRequiredError
	)
	switch {
	case errors.As(err, &vErr):
		r.writeJSON(ctx, w, http.StatusBadRequest, errorResponse{
			ErrorCode: "VALIDATION_FAILED",
			Message:   "request has invalid fields",
			Errors:    vErr.FieldErrors,
		})
	case errors.As(err, &netErr):
		w.Header().Set("Retry-After", "5")
		r.writeJSON(ctx, w, http.StatusServiceUnavailable, errorResponse{
			ErrorCode: "NETWORK_ERROR",
			Message:   "an upstream system could not be reached, try again",
		})
	case errors.As(err, &conflict):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{
			ErrorCode: "SLOT_CONFLICT",
			Message:   "some of the requested hours are already booked",
			Details:   slotConflictDetails{Hours: conflict.Hours},
		})
	case errors.As(err, &stock):
		details := make([]shortageDTO, 0, len(stock.Shortages))
		for _, s := range stock.Shortages {
			details = append(details, shortageDTO{ServiceID: s.ServiceID, Requested: s.Requested, Available: s.Available})
		}
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{
			ErrorCode: "OUT_OF_STOCK",
			Message:   "not enough stock for the requested services",
			Details:   details,
		})
	case errors.As(err, &payment):
		r.writeJSON(ctx, w, http.StatusPaymentRequired, errorResponse{
			ErrorCode: "PAYMENT_FAILED",
			Message:   "the payment was not completed",
			Details:   paymentFailureDetails{ExternalOrderID: payment.ExternalOrderID, Status: payment.Status},
		})
	case errors.As(err, &confirm):
		r.writeJSON(ctx, w, http.StatusPreconditionRequired, errorResponse{
			ErrorCode: "CONFIRMATION_REQUIRED",
			Message:   "repeat the request with confirmation",
			Details:   confirmationDetails{Reason: confirm.Reason, ReservationID: confirm.ReservationID},
		})
	case errors.Is(err, application.ErrNotFound):
		r.writeJSON(ctx, w, http.StatusNotFound, errorResponse{ErrorCode: "NOT_FOUND", Message: "the requested resource does not exist"})
	case errors.Is(err, application.ErrIllegalTransition):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{ErrorCode: "ILLEGAL_TRANSITION", Message: "the resource is not in a state that allows this"})
	case errors.Is(err, application.ErrConcurrentUpdate):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{ErrorCode: "CONCURRENT_UPDATE", Message: "the resource was changed by someone else, reload and retry"})
	default:
		r.loggerFor(ctx).ErrorContext(ctx, "unhandled service error", "error", err)
		r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{ErrorCode: "INTERNAL", Message: "internal server error"})
	}
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	return logging.OrDefault(ctx, r.logger)
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "BAD_REQUEST"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusConflict:
		return "CONFLICT"
	case http.StatusNotImplemented:
		return "NOT_IMPLEMENTED"
	default:
		return "INTERNAL"
	}
}

type errorResponse struct {
	ErrorCode string            `json:"error_code"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
	Details   any               `json:"details,omitempty"`
}

type slotConflictDetails struct {
	Hours []int `json:"hours"`
}

type shortageDTO struct {
	ServiceID string `json:"service_id"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

type paymentFailureDetails struct {
	ExternalOrderID string `json:"external_order_id,omitempty"`
	Status          string `json:"status"`
}

type confirmationDetails struct {
	Reason        string `json:"reason"`
	ReservationID string `json:"reservation_id,omitempty"`
}
