package http

import (
	"time"

	"github.com/example/courtbooking/internal/application"
	"github.com/example/courtbooking/internal/persistence"
	"github.com/example/courtbooking/internal/report"
)

type courtDTO struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Status    string `json:"status"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

type availabilityDTO struct {
	CourtID  string `json:"court_id"`
	Date     string `json:"date"`
	Occupied []int  `json:"occupied_hours"`
}

type reservationDTO struct {
	ID         string `json:"id"`
	CourtID    string `json:"court_id"`
	CustomerID string `json:"customer_id"`
	Date       string `json:"date"`
	StartHour  int    `json:"start_hour"`
	EndHour    int    `json:"end_hour"`
	Status     string `json:"status"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

type paymentScreenDTO struct {
	ReservationID   string `json:"reservation_id"`
	CourtID         string `json:"court_id"`
	CourtLabel      string `json:"court_label"`
	Date            string `json:"date"`
	StartHour       int    `json:"start_hour"`
	EndHour         int    `json:"end_hour"`
	LocalAmount     int64  `json:"local_amount"`
	LocalCurrency   string `json:"local_currency"`
	LocalDisplay    string `json:"local_display"`
	Amount          string `json:"amount"`
	Currency        string `json:"currency"`
	ExternalOrderID string `json:"external_order_id"`
	ApprovalURL     string `json:"approval_url"`
}

type paymentResultDTO struct {
	Outcome           string `json:"outcome,omitempty"`
	ExternalOrderID   string `json:"external_order_id"`
	ReservationID     string `json:"reservation_id"`
	Status            string `json:"status"`
	Stage             string `json:"stage"`
	Amount            string `json:"amount"`
	Currency          string `json:"currency"`
	LocalAmount       int64  `json:"local_amount"`
	PayerEmail        string `json:"payer_email,omitempty"`
	CapturedAt        string `json:"captured_at,omitempty"`
	ReservationStatus string `json:"reservation_status,omitempty"`
	Duplicate         bool   `json:"duplicate"`
}

type sessionDTO struct {
	OrderID       string `json:"order_id"`
	CourtID       string `json:"court_id"`
	Phase         string `json:"phase"`
	StartedAt     string `json:"started_at"`
	ReservationID string `json:"reservation_id,omitempty"`
}

type catalogItemDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Inventory int    `json:"inventory"`
}

type orderLineDTO struct {
	ServiceID string `json:"service_id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

type orderDTO struct {
	ID            string         `json:"id"`
	CourtID       string         `json:"court_id"`
	ReservationID string         `json:"reservation_id,omitempty"`
	StartTime     string         `json:"start_time"`
	EndTime       string         `json:"end_time,omitempty"`
	Services      []orderLineDTO `json:"services"`
	TotalPrice    *int64         `json:"total_price,omitempty"`
}

type billLineDTO struct {
	ServiceID string `json:"service_id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
	Subtotal  int64  `json:"subtotal"`
}

type billDTO struct {
	OrderID       string        `json:"order_id"`
	CourtID       string        `json:"court_id"`
	StartTime     string        `json:"start_time"`
	EndTime       string        `json:"end_time"`
	Hours         int           `json:"hours"`
	HourlyRate    int64         `json:"hourly_rate"`
	CourtFee      int64         `json:"court_fee"`
	Lines         []billLineDTO `json:"lines"`
	ServicesTotal int64         `json:"services_total"`
	Total         int64         `json:"total"`
	TotalDisplay  string        `json:"total_display"`
	Settled       bool          `json:"settled"`
}

type revenueEntryDTO struct {
	OrderID  string `json:"order_id"`
	CourtID  string `json:"court_id"`
	ClosedAt string `json:"closed_at"`
	Total    int64  `json:"total"`
}

type revenueDTO struct {
	Start        string            `json:"start"`
	End          string            `json:"end"`
	Total        int64             `json:"total"`
	TotalDisplay string            `json:"total_display"`
	Entries      []revenueEntryDTO `json:"entries"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func toCourtDTO(court persistence.Court) courtDTO {
	return courtDTO{
		ID:        court.ID,
		Label:     court.Label,
		Status:    string(court.Status),
		UpdatedAt: formatTime(court.UpdatedAt),
	}
}

func toCourtDTOs(courts []persistence.Court) []courtDTO {
	out := make([]courtDTO, 0, len(courts))
	for _, court := range courts {
		out = append(out, toCourtDTO(court))
	}
	return out
}

func toReservationDTO(r persistence.Reservation) reservationDTO {
	return reservationDTO{
		ID:         r.ID,
		CourtID:    r.CourtID,
		CustomerID: r.CustomerID,
		Date:       r.Date,
		StartHour:  r.StartHour,
		EndHour:    r.EndHour,
		Status:     string(r.Status),
		CreatedAt:  formatTime(r.CreatedAt),
		UpdatedAt:  formatTime(r.UpdatedAt),
	}
}

func toPaymentScreenDTO(s application.PaymentScreen) paymentScreenDTO {
	return paymentScreenDTO{
		ReservationID:   s.ReservationID,
		CourtID:         s.CourtID,
		CourtLabel:      s.CourtLabel,
		Date:            s.Date,
		StartHour:       s.StartHour,
		EndHour:         s.EndHour,
		LocalAmount:     s.LocalAmount,
		LocalCurrency:   s.LocalCurrency,
		LocalDisplay:    report.FormatVND(s.LocalAmount),
		Amount:          s.Amount,
		Currency:        s.Currency,
		ExternalOrderID: s.ExternalOrderID,
		ApprovalURL:     s.ApprovalURL,
	}
}

func toPaymentResultDTO(outcome string, r application.PaymentResult) paymentResultDTO {
	dto := paymentResultDTO{
		Outcome:           outcome,
		ExternalOrderID:   r.ExternalOrderID,
		ReservationID:     r.ReservationID,
		Status:            string(r.Status),
		Stage:             string(r.Stage),
		Amount:            r.Amount,
		Currency:          r.Currency,
		LocalAmount:       r.LocalAmount,
		PayerEmail:        r.PayerEmail,
		ReservationStatus: string(r.ReservationStatus),
		Duplicate:         r.Duplicate,
	}
	if r.CapturedAt != nil {
		dto.CapturedAt = formatTime(*r.CapturedAt)
	}
	return dto
}

func toSessionDTO(s application.OrderSession) sessionDTO {
	return sessionDTO{
		OrderID:       s.OrderID,
		CourtID:       s.CourtID,
		Phase:         string(s.Phase),
		StartedAt:     formatTime(s.StartedAt),
		ReservationID: s.ReservationID,
	}
}

func toCatalogDTOs(items []persistence.CatalogItem) []catalogItemDTO {
	out := make([]catalogItemDTO, 0, len(items))
	for _, item := range items {
		out = append(out, catalogItemDTO{ID: item.ID, Name: item.Name, UnitPrice: item.UnitPrice, Inventory: item.Inventory})
	}
	return out
}

func toOrderDTO(o persistence.Order) orderDTO {
	dto := orderDTO{
		ID:            o.ID,
		CourtID:       o.CourtID,
		ReservationID: o.ReservationID,
		StartTime:     formatTime(o.StartTime),
		Services:      make([]orderLineDTO, 0, len(o.Services)),
		TotalPrice:    o.TotalPrice,
	}
	if o.EndTime != nil {
		dto.EndTime = formatTime(*o.EndTime)
	}
	for _, line := range o.Services {
		dto.Services = append(dto.Services, orderLineDTO(line))
	}
	return dto
}

func toBillDTO(b application.Bill) billDTO {
	dto := billDTO{
		OrderID:       b.OrderID,
		CourtID:       b.CourtID,
		StartTime:     formatTime(b.StartTime),
		EndTime:       formatTime(b.EndTime),
		Hours:         b.Hours,
		HourlyRate:    b.HourlyRate,
		CourtFee:      b.CourtFee,
		Lines:         make([]billLineDTO, 0, len(b.Lines)),
		ServicesTotal: b.ServicesTotal,
		Total:         b.Total,
		TotalDisplay:  report.FormatVND(b.Total),
		Settled:       b.Settled,
	}
	for _, line := range b.Lines {
		dto.Lines = append(dto.Lines, billLineDTO(line))
	}
	return dto
}

func toRevenueDTO(rev report.Revenue, loc *time.Location) revenueDTO {
	dto := revenueDTO{
		Start:        rev.Start.In(loc).Format(dateLayout),
		End:          rev.End.In(loc).Format(dateLayout),
		Total:        rev.Total,
		TotalDisplay: report.FormatVND(rev.Total),
		Entries:      make([]revenueEntryDTO, 0, len(rev.Entries)),
	}
	for _, e := range rev.Entries {
		dto.Entries = append(dto.Entries, revenueEntryDTO{
			OrderID:  e.OrderID,
			CourtID:  e.CourtID,
			ClosedAt: formatTime(e.ClosedAt),
			Total:    e.Total,
		})
	}
	return dto
}
