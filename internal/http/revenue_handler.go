package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/example/courtbooking/internal/application"
	"github.com/example/courtbooking/internal/report"
)

const (
	dateLayout   = "2006-01-02"
	xlsxMIMEType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// RevenueReporter sums and exports settled revenue.
type RevenueReporter interface {
	SumRevenue(ctx context.Context, start, end time.Time) (report.Revenue, error)
	ExportRevenue(ctx context.Context, w io.Writer, start, end time.Time) (report.Revenue, error)
	Location() *time.Location
}

// RevenueHandler serves the manager's revenue report.
type RevenueHandler struct {
	revenue   RevenueReporter
	responder responder
	logger    *slog.Logger
}

// NewRevenueHandler constructs a RevenueHandler.
func NewRevenueHandler(revenue RevenueReporter, logger *slog.Logger) *RevenueHandler {
	logger = defaultLogger(logger)
	return &RevenueHandler{revenue: revenue, responder: newResponder(logger), logger: logger}
}

// Summary handles GET /revenue?start=YYYY-MM-DD&end=YYYY-MM-DD.
func (h *RevenueHandler) Summary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start, end, err := h.parseRange(r)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}

	rev, err := h.revenue.SumRevenue(ctx, start, end)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, toRevenueDTO(rev, h.revenue.Location()))
}

// Export handles GET /revenue/export with the same query as Summary and
// returns a spreadsheet attachment.
func (h *RevenueHandler) Export(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := handlerLogger(ctx, h.logger, "RevenueHandler", "Export")

	start, end, err := h.parseRange(r)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}

	var buf bytes.Buffer
	rev, err := h.revenue.ExportRevenue(ctx, &buf, start, end)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}

	loc := h.revenue.Location()
	filename := fmt.Sprintf("revenue-%s-%s.xlsx", rev.Start.In(loc).Format(dateLayout), rev.End.In(loc).Format(dateLayout))
	w.Header().Set("Content-Type", xlsxMIMEType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		logger.ErrorContext(ctx, "failed to write workbook", "error", err)
	}
}

func (h *RevenueHandler) parseRange(r *http.Request) (time.Time, time.Time, error) {
	loc := h.revenue.Location()
	query := r.URL.Query()
	vErr := &application.ValidationError{FieldErrors: map[string]string{}}

	parse := func(field string) time.Time {
		raw := strings.TrimSpace(query.Get(field))
		if raw == "" {
			vErr.FieldErrors[field] = "is required"
			return time.Time{}
		}
		t, err := time.ParseInLocation(dateLayout, raw, loc)
		if err != nil {
			vErr.FieldErrors[field] = "must use the layout " + dateLayout
			return time.Time{}
		}
		return t
	}

	start, end := parse("start"), parse("end")
	if len(vErr.FieldErrors) > 0 {
		return time.Time{}, time.Time{}, vErr
	}
	return start, end, nil
}
