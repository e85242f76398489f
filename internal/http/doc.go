// Package http exposes the booking lifecycle over a chi router.
//
// Customer endpoints:
//   - GET /courts, GET /courts/stream (server-sent events of the court list),
//     GET /courts/{courtID}/availability?date=YYYY-MM-DD
//   - POST /reservations, GET /reservations/{reservationID},
//     POST /reservations/{reservationID}/cancel
//   - POST /reservations/{reservationID}/payments: creates the gateway order
//     and returns the payment screen with its approval URL.
//   - POST /payments/callback {"url"}: hands over the URL the in-app browser
//     was redirected to. GET /payment/return and GET /payment/cancel accept
//     the same callbacks when the gateway redirects to this service directly.
//   - POST /payments/{token}/capture
//
// Manager endpoints:
//   - POST /courts/{courtID}/open {"confirmed","override_booking"}: answers 428
//     until the manager has confirmed.
//   - GET /courts/{courtID}/session, GET /catalog
//   - POST /orders/{orderID}/services, POST /orders/{orderID}/close,
//     GET /orders/{orderID}/bill, POST /orders/{orderID}/confirm
//   - GET /revenue?start=&end=, GET /revenue/export?start=&end= (xlsx)
//
// Operational: GET /healthz and GET /metrics.
//
// Response DTOs live in dto.go, request bodies next to their handlers.
// Customer requests identify the caller through the X-Customer-ID header.
package http
