package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/example/courtbooking/internal/logging"
)

func TestCustomerIdentity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		header string
		wantID string
		wantOK bool
	}{
		{name: "header present", header: "customer-7", wantID: "customer-7", wantOK: true},
		{name: "header trimmed", header: "  customer-8 ", wantID: "customer-8", wantOK: true},
		{name: "header missing"},
		{name: "header blank", header: "   "},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var gotID string
			var gotOK bool
			handler := CustomerIdentity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotID, gotOK = CustomerFromContext(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/courts", nil)
			if tt.header != "" {
				req.Header.Set(CustomerHeader, tt.header)
			}
			handler.ServeHTTP(httptest.NewRecorder(), req)

			if gotOK != tt.wantOK || gotID != tt.wantID {
				t.Fatalf("CustomerFromContext = (%q, %v), want (%q, %v)", gotID, gotOK, tt.wantID, tt.wantOK)
			}
		})
	}
}

func TestRequestLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	var sawLogger bool
	handler := middleware.RequestID(CustomerIdentity(RequestLogger(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawLogger = logging.FromContext(r.Context()) != nil
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))))

	req := httptest.NewRequest(http.MethodPost, "/reservations", nil)
	req.Header.Set(CustomerHeader, "customer-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !sawLogger {
		t.Fatal("expected request logger in context")
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &entry); err != nil {
		t.Fatalf("decode log entry: %v", err)
	}

	checks := map[string]any{
		"msg":         "request completed",
		"method":      http.MethodPost,
		"path":        "/reservations",
		"customer_id": "customer-1",
		"status":      float64(http.StatusTeapot),
		"bytes":       float64(len("short and stout")),
	}
	for key, want := range checks {
		if entry[key] != want {
			t.Errorf("log %s = %v, want %v", key, entry[key], want)
		}
	}
	if id, _ := entry["request_id"].(string); id == "" {
		t.Error("expected request_id in log entry")
	}
}

func TestResponderMapsServiceErrors(t *testing.T) {
	t.Parallel()

	resp := newResponder(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	rec := httptest.NewRecorder()
	resp.handleServiceError(t.Context(), rec, errors.New("disk on fire"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var body errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.ErrorCode != "INTERNAL" || body.Message != "internal server error" {
		t.Fatalf("unexpected body %+v", body)
	}
}
