package application

import (
	"time"

	"github.com/example/courtbooking/internal/persistence"
	"github.com/example/courtbooking/internal/pricing"
)

// BuildBill itemises an order: court time priced in started hours on the
// rate of the day play began, plus quantity times unit price per service.
// end is used when the order has not been closed yet.
func BuildBill(order persistence.Order, table pricing.RateTable, end time.Time) Bill {
	if order.EndTime != nil {
		end = *order.EndTime
	}
	hours := pricing.HoursBetween(order.StartTime, end)
	bill := Bill{
		OrderID:    order.ID,
		CourtID:    order.CourtID,
		StartTime:  order.StartTime,
		EndTime:    end,
		Hours:      hours,
		HourlyRate: table.RateFor(order.StartTime),
		CourtFee:   table.PriceSpan(order.StartTime, end),
		Settled:    order.TotalPrice != nil,
	}

	bill.Lines = make([]BillLine, 0, len(order.Services))
	for _, line := range order.Services {
		subtotal := line.UnitPrice * int64(line.Quantity)
		bill.Lines = append(bill.Lines, BillLine{
			ServiceID: line.ServiceID,
			Name:      line.Name,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
			Subtotal:  subtotal,
		})
		bill.ServicesTotal += subtotal
	}
	bill.Total = bill.CourtFee + bill.ServicesTotal
	return bill
}
