package application

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/example/courtbooking/internal/persistence"
	"github.com/example/courtbooking/internal/report"
)

// RevenueService sums settled usage orders for the manager.
type RevenueService struct {
	orders   persistence.OrderRepository
	now      func() time.Time
	location *time.Location
	logger   *slog.Logger
}

// NewRevenueService constructs a revenue aggregator. Day boundaries follow
// opts.Location.
func NewRevenueService(orders persistence.OrderRepository, now func() time.Time, opts Options) *RevenueService {
	opts = opts.withDefaults()
	if now == nil {
		now = time.Now
	}
	return &RevenueService{orders: orders, now: now, location: opts.Location, logger: opts.Logger}
}

// SumRevenue totals every order whose end time falls between the start of
// start's day and the end of end's day. Orders without a total count as zero.
func (s *RevenueService) SumRevenue(ctx context.Context, start, end time.Time) (rev report.Revenue, err error) {
	logger := serviceLogger(ctx, s.logger, "RevenueService", "SumRevenue", "start", start, "end", end)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to sum revenue", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("orders", len(rev.Entries), "total", rev.Total).InfoContext(ctx, "revenue summed")
	}()

	if start.IsZero() || end.IsZero() {
		vErr := &ValidationError{}
		if start.IsZero() {
			vErr.add("start", "start date is required")
		}
		if end.IsZero() {
			vErr.add("end", "end date is required")
		}
		err = vErr
		return
	}

	from := startOfDay(start, s.location)
	to := startOfDay(end, s.location).AddDate(0, 0, 1).Add(-time.Nanosecond)
	if to.Before(from) {
		err = newValidationError("end", "end date must not be before start date")
		return
	}

	orders, err := s.orders.ListClosedOrders(ctx, from, to)
	if err != nil {
		err = mapStoreError(err)
		return
	}

	rev = report.Revenue{Start: from, End: to, Entries: make([]report.Entry, 0, len(orders))}
	for _, order := range orders {
		var total int64
		if order.TotalPrice != nil {
			total = *order.TotalPrice
		}
		rev.Entries = append(rev.Entries, report.Entry{
			OrderID:  order.ID,
			CourtID:  order.CourtID,
			ClosedAt: *order.EndTime,
			Total:    total,
		})
		rev.Total += total
	}
	return rev, nil
}

// ExportRevenue writes the revenue of the range as a spreadsheet workbook.
func (s *RevenueService) ExportRevenue(ctx context.Context, w io.Writer, start, end time.Time) (report.Revenue, error) {
	rev, err := s.SumRevenue(ctx, start, end)
	if err != nil {
		return report.Revenue{}, err
	}
	if err := report.WriteWorkbook(w, rev, s.location); err != nil {
		return report.Revenue{}, err
	}
	return rev, nil
}

// Location returns the zone day boundaries are computed in.
func (s *RevenueService) Location() *time.Location {
	return s.location
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
