package mongostore

import (
	"context"
	"log/slog"
	"sync"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/example/courtbooking/internal/persistence"
)

// SubscribeCourts opens a change stream on the courts collection and emits a
// fresh court list after every change. Change streams need a replica set.
func (s *Store) SubscribeCourts(ctx context.Context) (persistence.Subscription[[]persistence.Court], error) {
	watchCtx, cancel := context.WithCancel(ctx)
	stream, err := s.courts.Watch(watchCtx, mongo.Pipeline{})
	if err != nil {
		cancel()
		return nil, wrapError(err, "watch courts")
	}

	sub := &courtSubscription{
		updates: make(chan []persistence.Court, 1),
		cancel:  cancel,
	}
	go sub.run(watchCtx, s, stream)
	return sub, nil
}

type courtSubscription struct {
	updates chan []persistence.Court
	cancel  context.CancelFunc
	once    sync.Once
}

func (c *courtSubscription) Updates() <-chan []persistence.Court {
	return c.updates
}

func (c *courtSubscription) Unsubscribe() {
	c.once.Do(c.cancel)
}

func (c *courtSubscription) run(ctx context.Context, store *Store, stream *mongo.ChangeStream) {
	defer close(c.updates)
	defer func() {
		_ = stream.Close(context.Background())
	}()

	if !c.emit(ctx, store) {
		return
	}
	for stream.Next(ctx) {
		if !c.emit(ctx, store) {
			return
		}
	}
	if err := stream.Err(); err != nil && ctx.Err() == nil {
		slog.Default().Error("court change stream ended", "error", err)
	}
}

// emit publishes the latest list, replacing an unconsumed older snapshot.
func (c *courtSubscription) emit(ctx context.Context, store *Store) bool {
	courts, err := store.ListCourts(ctx)
	if err != nil {
		return ctx.Err() == nil
	}
	select {
	case c.updates <- courts:
		return true
	default:
	}
	select {
	case <-c.updates:
	default:
	}
	select {
	case c.updates <- courts:
		return true
	case <-ctx.Done():
		return false
	}
}
