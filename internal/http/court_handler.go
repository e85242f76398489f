package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/example/courtbooking/internal/application"
	"github.com/example/courtbooking/internal/persistence"
)

const defaultHeartbeat = 15 * time.Second

// CourtSessions is the session service surface used for court endpoints.
type CourtSessions interface {
	ListCourts(ctx context.Context) ([]persistence.Court, error)
	SubscribeCourts(ctx context.Context) (persistence.Subscription[[]persistence.Court], error)
	Open(ctx context.Context, params application.OpenCourtParams) (application.OrderSession, error)
	RecoverActiveOrder(ctx context.Context, courtID string) (application.OrderSession, error)
}

// AvailabilityReader reports occupied hours.
type AvailabilityReader interface {
	OccupiedHours(ctx context.Context, courtID, date string) (application.Availability, error)
}

// CourtHandler serves the court list, its live stream, availability and
// session opening.
type CourtHandler struct {
	sessions     CourtSessions
	availability AvailabilityReader
	responder    responder
	logger       *slog.Logger
	heartbeat    time.Duration
}

// NewCourtHandler constructs a CourtHandler. heartbeat is the interval of
// keep-alive comments on the court stream; zero selects the default.
func NewCourtHandler(sessions CourtSessions, availability AvailabilityReader, logger *slog.Logger, heartbeat time.Duration) *CourtHandler {
	logger = defaultLogger(logger)
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	return &CourtHandler{
		sessions:     sessions,
		availability: availability,
		responder:    newResponder(logger),
		logger:       logger,
		heartbeat:    heartbeat,
	}
}

// List handles GET /courts.
func (h *CourtHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	courts, err := h.sessions.ListCourts(ctx)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, toCourtDTOs(courts))
}

// Stream handles GET /courts/stream as server-sent events. The full court
// list is sent on connect and after every change.
func (h *CourtHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := handlerLogger(ctx, h.logger, "CourtHandler", "Stream")

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.responder.writeError(ctx, w, http.StatusNotImplemented, errNoStreaming)
		return
	}

	sub, err := h.sessions.SubscribeCourts(ctx)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	defer sub.Unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.DebugContext(ctx, "court stream closed by client")
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case courts, open := <-sub.Updates():
			if !open {
				logger.InfoContext(ctx, "court stream closed by store")
				return
			}
			payload, err := json.Marshal(toCourtDTOs(courts))
			if err != nil {
				logger.ErrorContext(ctx, "failed to encode court list", "error", err)
				return
			}
			if _, err := fmt.Fprintf(w, "event: courts\ndata: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// Availability handles GET /courts/{courtID}/availability?date=YYYY-MM-DD.
func (h *CourtHandler) Availability(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	courtID := chi.URLParam(r, "courtID")
	availability, err := h.availability.OccupiedHours(ctx, courtID, strings.TrimSpace(r.URL.Query().Get("date")))
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}

	occupied := availability.Occupied
	if occupied == nil {
		occupied = []int{}
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, availabilityDTO{
		CourtID:  availability.CourtID,
		Date:     availability.Date,
		Occupied: occupied,
	})
}

type openCourtRequest struct {
	Confirmed       bool `json:"confirmed"`
	OverrideBooking bool `json:"override_booking"`
}

// Open handles POST /courts/{courtID}/open. An empty body is treated as an
// unconfirmed request so the client receives the confirmation prompt.
func (h *CourtHandler) Open(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	courtID := chi.URLParam(r, "courtID")
	logger := handlerLogger(ctx, h.logger, "CourtHandler", "Open", "court_id", courtID)

	var req openCourtRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		logger.WarnContext(ctx, "invalid open court request", "error", err)
		h.responder.writeDecodeError(ctx, w, err)
		return
	}

	session, err := h.sessions.Open(ctx, application.OpenCourtParams{
		CourtID:         courtID,
		Confirmed:       req.Confirmed,
		OverrideBooking: req.OverrideBooking,
	})
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusCreated, toSessionDTO(session))
}

// Session handles GET /courts/{courtID}/session, returning the active order
// of a court in use.
func (h *CourtHandler) Session(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, err := h.sessions.RecoverActiveOrder(ctx, chi.URLParam(r, "courtID"))
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, toSessionDTO(session))
}
