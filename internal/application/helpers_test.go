package application_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/example/courtbooking/internal/lifecycle"
	"github.com/example/courtbooking/internal/persistence"
	"github.com/example/courtbooking/internal/persistence/memory"
)

type publishedEvent struct {
	Key     string
	At      time.Time
	Payload any
}

// recordingPublisher collects published events in order.
type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, key string, at time.Time, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{Key: key, At: at, Payload: payload})
	return p.err
}

func (p *recordingPublisher) keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]string, 0, len(p.events))
	for _, e := range p.events {
		keys = append(keys, e.Key)
	}
	return keys
}

func (p *recordingPublisher) count(key string) int {
	n := 0
	for _, k := range p.keys() {
		if k == key {
			n++
		}
	}
	return n
}

var errConnReset = fmt.Errorf("%w: %w", persistence.ErrUnavailable, errors.New("connection reset by peer"))

// flakyStore fails selected writes of the wrapped storage with a network
// error.
type flakyStore struct {
	*memory.Storage

	mu              sync.Mutex
	failReleases    int
	failAppend      bool
	failDecrementOf string
}

func (f *flakyStore) SwapCourtStatus(ctx context.Context, id string, from, to lifecycle.CourtStatus, at time.Time) (persistence.Court, error) {
	f.mu.Lock()
	fail := to == lifecycle.CourtAvailable && f.failReleases > 0
	if fail {
		f.failReleases--
	}
	f.mu.Unlock()
	if fail {
		return persistence.Court{}, errConnReset
	}
	return f.Storage.SwapCourtStatus(ctx, id, from, to, at)
}

func (f *flakyStore) AppendOrderLines(ctx context.Context, orderID string, lines []persistence.OrderLine, at time.Time) (persistence.Order, error) {
	if f.failAppend {
		return persistence.Order{}, errConnReset
	}
	return f.Storage.AppendOrderLines(ctx, orderID, lines, at)
}

func (f *flakyStore) DecrementInventory(ctx context.Context, id string, qty int, at time.Time) (persistence.CatalogItem, error) {
	if id == f.failDecrementOf {
		return persistence.CatalogItem{}, errConnReset
	}
	return f.Storage.DecrementInventory(ctx, id, qty, at)
}
