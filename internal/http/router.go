package http

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// RouterConfig wires handlers into the router. Nil handlers leave their
// routes unregistered.
type RouterConfig struct {
	Courts       *CourtHandler
	Reservations *ReservationHandler
	Payments     *PaymentHandler
	Orders       *OrderHandler
	Revenue      *RevenueHandler
	// Metrics is mounted at GET /metrics when set.
	Metrics http.Handler
	Logger  *slog.Logger
	// RequestTimeout bounds every route except the court stream. Zero
	// disables the limit.
	RequestTimeout time.Duration
	Middleware     []func(http.Handler) http.Handler
}

// NewRouter builds the HTTP API.
func NewRouter(cfg RouterConfig) http.Handler {
	resp := newResponder(cfg.Logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, CustomerIdentity, RequestLogger(cfg.Logger), middleware.Recoverer)
	r.Use(cfg.Middleware...)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		resp.writeError(req.Context(), w, http.StatusNotFound, errors.New("route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		resp.writeJSON(req.Context(), w, http.StatusMethodNotAllowed, errorResponse{
			ErrorCode: "METHOD_NOT_ALLOWED",
			Message:   "method not allowed",
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		resp.writeJSON(req.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	// The stream stays open for the life of the client, outside the timeout.
	if cfg.Courts != nil {
		r.Get("/courts/stream", cfg.Courts.Stream)
	}

	r.Group(func(r chi.Router) {
		if cfg.RequestTimeout > 0 {
			r.Use(middleware.Timeout(cfg.RequestTimeout))
		}

		if cfg.Courts != nil {
			r.Get("/courts", cfg.Courts.List)
			r.Route("/courts/{courtID}", func(r chi.Router) {
				r.Get("/availability", cfg.Courts.Availability)
				r.Post("/open", cfg.Courts.Open)
				r.Get("/session", cfg.Courts.Session)
			})
		}

		if cfg.Reservations != nil {
			r.Post("/reservations", cfg.Reservations.Create)
			r.Route("/reservations/{reservationID}", func(r chi.Router) {
				r.Get("/", cfg.Reservations.Get)
				r.Post("/cancel", cfg.Reservations.Cancel)
				r.Post("/payments", cfg.Reservations.InitiatePayment)
			})
		}

		if cfg.Payments != nil {
			r.Post("/payments/callback", cfg.Payments.Callback)
			r.Post("/payments/{token}/capture", cfg.Payments.Capture)
			r.Get("/payment/return", cfg.Payments.Redirect)
			r.Get("/payment/cancel", cfg.Payments.Redirect)
		}

		if cfg.Orders != nil {
			r.Get("/catalog", cfg.Orders.Catalog)
			r.Route("/orders/{orderID}", func(r chi.Router) {
				r.Post("/services", cfg.Orders.AddServices)
				r.Post("/close", cfg.Orders.Close)
				r.Get("/bill", cfg.Orders.Bill)
				r.Post("/confirm", cfg.Orders.ConfirmPayment)
			})
		}

		if cfg.Revenue != nil {
			r.Get("/revenue", cfg.Revenue.Summary)
			r.Get("/revenue/export", cfg.Revenue.Export)
		}
	})

	return r
}
