package mongostore

import (
	"time"

	"github.com/example/courtbooking/internal/lifecycle"
	"github.com/example/courtbooking/internal/persistence"
	"github.com/example/courtbooking/internal/pricing"
)

type courtDocument struct {
	ID          string    `bson:"_id"`
	Label       string    `bson:"label"`
	Status      string    `bson:"status"`
	RateTableID string    `bson:"rate_table_id"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

func courtToDocument(c persistence.Court) courtDocument {
	return courtDocument{ID: c.ID, Label: c.Label, Status: string(c.Status), RateTableID: c.RateTableID, UpdatedAt: c.UpdatedAt}
}

func (d courtDocument) model() persistence.Court {
	return persistence.Court{
		ID:          d.ID,
		Label:       d.Label,
		Status:      lifecycle.CourtStatus(d.Status),
		RateTableID: d.RateTableID,
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
}

type reservationDocument struct {
	ID         string    `bson:"_id"`
	CourtID    string    `bson:"court_id"`
	CustomerID string    `bson:"customer_id,omitempty"`
	Date       string    `bson:"date"`
	StartHour  int       `bson:"start_hour"`
	EndHour    int       `bson:"end_hour"`
	Status     string    `bson:"status"`
	CreatedAt  time.Time `bson:"created_at"`
	UpdatedAt  time.Time `bson:"updated_at"`
}

func reservationToDocument(r persistence.Reservation) reservationDocument {
	return reservationDocument{
		ID:         r.ID,
		CourtID:    r.CourtID,
		CustomerID: r.CustomerID,
		Date:       r.Date,
		StartHour:  r.StartHour,
		EndHour:    r.EndHour,
		Status:     string(r.Status),
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

func (d reservationDocument) model() persistence.Reservation {
	return persistence.Reservation{
		ID:         d.ID,
		CourtID:    d.CourtID,
		CustomerID: d.CustomerID,
		Date:       d.Date,
		StartHour:  d.StartHour,
		EndHour:    d.EndHour,
		Status:     lifecycle.ReservationStatus(d.Status),
		CreatedAt:  d.CreatedAt.UTC(),
		UpdatedAt:  d.UpdatedAt.UTC(),
	}
}

type orderLineDocument struct {
	ServiceID string `bson:"service_id"`
	Name      string `bson:"name"`
	UnitPrice int64  `bson:"unit_price"`
	Quantity  int    `bson:"quantity"`
}

type orderDocument struct {
	ID            string              `bson:"_id"`
	CourtID       string              `bson:"court_id"`
	ReservationID string              `bson:"reservation_id,omitempty"`
	StartTime     time.Time           `bson:"start_time"`
	EndTime       *time.Time          `bson:"end_time"`
	Active        bool                `bson:"active"`
	Services      []orderLineDocument `bson:"services"`
	TotalPrice    *int64              `bson:"total_price"`
	CreatedAt     time.Time           `bson:"created_at"`
	UpdatedAt     time.Time           `bson:"updated_at"`
}

func orderToDocument(o persistence.Order) orderDocument {
	lines := make([]orderLineDocument, 0, len(o.Services))
	for _, line := range o.Services {
		lines = append(lines, lineToDocument(line))
	}
	return orderDocument{
		ID:            o.ID,
		CourtID:       o.CourtID,
		ReservationID: o.ReservationID,
		StartTime:     o.StartTime,
		EndTime:       o.EndTime,
		Active:        o.EndTime == nil,
		Services:      lines,
		TotalPrice:    o.TotalPrice,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

func lineToDocument(line persistence.OrderLine) orderLineDocument {
	return orderLineDocument{ServiceID: line.ServiceID, Name: line.Name, UnitPrice: line.UnitPrice, Quantity: line.Quantity}
}

func (d orderDocument) model() persistence.Order {
	order := persistence.Order{
		ID:            d.ID,
		CourtID:       d.CourtID,
		ReservationID: d.ReservationID,
		StartTime:     d.StartTime.UTC(),
		TotalPrice:    d.TotalPrice,
		CreatedAt:     d.CreatedAt.UTC(),
		UpdatedAt:     d.UpdatedAt.UTC(),
	}
	if d.EndTime != nil {
		end := d.EndTime.UTC()
		order.EndTime = &end
	}
	for _, line := range d.Services {
		order.Services = append(order.Services, persistence.OrderLine{
			ServiceID: line.ServiceID,
			Name:      line.Name,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
		})
	}
	return order
}

type catalogDocument struct {
	ID        string    `bson:"_id"`
	Name      string    `bson:"name"`
	UnitPrice int64     `bson:"unit_price"`
	Inventory int       `bson:"inventory"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func catalogToDocument(item persistence.CatalogItem) catalogDocument {
	return catalogDocument{ID: item.ID, Name: item.Name, UnitPrice: item.UnitPrice, Inventory: item.Inventory, UpdatedAt: item.UpdatedAt}
}

func (d catalogDocument) model() persistence.CatalogItem {
	return persistence.CatalogItem{ID: d.ID, Name: d.Name, UnitPrice: d.UnitPrice, Inventory: d.Inventory, UpdatedAt: d.UpdatedAt.UTC()}
}

type rateDocument struct {
	ID           string           `bson:"_id"`
	DefaultRate  int64            `bson:"default_rate"`
	WeekdayRates map[string]int64 `bson:"weekday_rates"`
}

func rateToDocument(t pricing.RateTable) rateDocument {
	rates := make(map[string]int64, len(t.WeekdayRates))
	for day, rate := range t.WeekdayRates {
		rates[pricing.WeekdayKey(day)] = rate
	}
	return rateDocument{ID: t.ID, DefaultRate: t.DefaultRate, WeekdayRates: rates}
}

func (d rateDocument) model() pricing.RateTable {
	table := pricing.RateTable{ID: d.ID, DefaultRate: d.DefaultRate, WeekdayRates: make(map[time.Weekday]int64)}
	for key, rate := range d.WeekdayRates {
		if day, ok := pricing.ParseWeekdayKey(key); ok {
			table.WeekdayRates[day] = rate
		}
	}
	return table
}
