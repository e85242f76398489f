package testfixtures

import (
	"context"
	"sync"
	"time"

	"github.com/example/courtbooking/internal/gateway"
)

// FakeGateway stands in for the checkout API. Orders get sequential ids and
// captures complete unless a different outcome is configured.
type FakeGateway struct {
	mu            sync.Mutex
	ids           *IDGenerator
	createErr     error
	captureErr    error
	captureStatus string
	captureDelay  time.Duration
	payerEmail    string
	created       []gateway.CreateOrderRequest
	captures      map[string]int
}

// NewFakeGateway returns a gateway issuing ORDER-<n> ids.
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		ids:           NewIDGenerator("ORDER"),
		captureStatus: gateway.StatusCompleted,
		payerEmail:    "payer@example.com",
		captures:      make(map[string]int),
	}
}

// FailCreate makes every CreateOrder return err.
func (g *FakeGateway) FailCreate(err error) {
	g.mu.Lock()
	g.createErr = err
	g.mu.Unlock()
}

// SetCaptureOutcome configures what CaptureOrder answers.
func (g *FakeGateway) SetCaptureOutcome(status string, err error) {
	g.mu.Lock()
	g.captureStatus = status
	g.captureErr = err
	g.mu.Unlock()
}

// SetCaptureDelay makes CaptureOrder block for d, widening race windows.
func (g *FakeGateway) SetCaptureDelay(d time.Duration) {
	g.mu.Lock()
	g.captureDelay = d
	g.mu.Unlock()
}

func (g *FakeGateway) CreateOrder(ctx context.Context, req gateway.CreateOrderRequest) (gateway.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return gateway.Order{}, g.createErr
	}
	g.created = append(g.created, req)
	id := g.ids.Next()
	return gateway.Order{
		ID:          id,
		Status:      "CREATED",
		ApprovalURL: "https://sandbox.example.com/checkoutnow?token=" + id,
	}, nil
}

func (g *FakeGateway) CaptureOrder(ctx context.Context, token string) (gateway.Capture, error) {
	g.mu.Lock()
	delay := g.captureDelay
	g.captures[token]++
	status, err, email := g.captureStatus, g.captureErr, g.payerEmail
	g.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return gateway.Capture{}, ctx.Err()
		}
	}
	if err != nil {
		return gateway.Capture{}, err
	}
	return gateway.Capture{OrderID: token, Status: status, PayerEmail: email, CaptureID: "CAP-" + token}, nil
}

// Created returns the order requests received so far.
func (g *FakeGateway) Created() []gateway.CreateOrderRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]gateway.CreateOrderRequest(nil), g.created...)
}

// CaptureCalls reports how often token was captured.
func (g *FakeGateway) CaptureCalls(token string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.captures[token]
}
