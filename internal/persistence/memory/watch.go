package memory

import (
	"context"
	"sync"

	"github.com/example/courtbooking/internal/persistence"
)

type courtHub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*courtSubscription
}

func newCourtHub() *courtHub {
	return &courtHub{subs: make(map[int]*courtSubscription)}
}

func (h *courtHub) subscribe(ctx context.Context, initial []persistence.Court) *courtSubscription {
	h.mu.Lock()
	h.nextID++
	sub := &courtSubscription{
		id:      h.nextID,
		hub:     h,
		updates: make(chan []persistence.Court, 1),
		closed:  make(chan struct{}),
	}
	sub.updates <- initial
	h.subs[sub.id] = sub
	h.mu.Unlock()

	if ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				sub.Unsubscribe()
			case <-sub.closed:
			}
		}()
	}
	return sub
}

// publish hands the snapshot to every subscriber. A subscriber that has not
// consumed the previous snapshot only sees the latest one.
func (h *courtHub) publish(snapshot []persistence.Court) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.subs {
		copied := append([]persistence.Court(nil), snapshot...)
		select {
		case sub.updates <- copied:
		default:
			select {
			case <-sub.updates:
			default:
			}
			sub.updates <- copied
		}
	}
}

func (h *courtHub) remove(sub *courtSubscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subs[sub.id]; !ok {
		return
	}
	delete(h.subs, sub.id)
	close(sub.updates)
}

func (h *courtHub) closeAll() {
	h.mu.Lock()
	subs := make([]*courtSubscription, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
}

type courtSubscription struct {
	id      int
	hub     *courtHub
	updates chan []persistence.Court
	closed  chan struct{}
	once    sync.Once
}

func (s *courtSubscription) Updates() <-chan []persistence.Court {
	return s.updates
}

func (s *courtSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.hub.remove(s)
		close(s.closed)
	})
}
