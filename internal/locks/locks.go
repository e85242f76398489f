// Package locks provides short-lived named locks used to serialise slot
// creation per court and date and to guard payment captures across processes.
package locks

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotAcquired is returned when the lock is held by someone else.
var ErrNotAcquired = errors.New("locks: lock is held")

// ReleaseFunc releases a lock obtained by Acquire. Releasing an expired or
// already released lock is a no-op.
type ReleaseFunc func(ctx context.Context) error

// Locker hands out exclusive leases on keys.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (ReleaseFunc, error)
}

// AcquireWait retries Acquire every interval until it succeeds or ctx ends.
func AcquireWait(ctx context.Context, locker Locker, key string, ttl, interval time.Duration) (ReleaseFunc, error) {
	if interval <= 0 {
		interval = 25 * time.Millisecond
	}
	for {
		release, err := locker.Acquire(ctx, key, ttl)
		if err == nil {
			return release, nil
		}
		if !errors.Is(err, ErrNotAcquired) {
			return nil, err
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, errors.Join(ErrNotAcquired, ctx.Err())
		case <-timer.C:
		}
	}
}

// LocalLocker is an in-process Locker for single-instance deployments and
// tests.
type LocalLocker struct {
	mu     sync.Mutex
	held   map[string]localLease
	now    func() time.Time
	serial uint64
}

type localLease struct {
	serial  uint64
	expires time.Time
}

func NewLocalLocker(now func() time.Time) *LocalLocker {
	if now == nil {
		now = time.Now
	}
	return &LocalLocker{held: make(map[string]localLease), now: now}
}

func (l *LocalLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (ReleaseFunc, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if lease, ok := l.held[key]; ok && now.Before(lease.expires) {
		return nil, ErrNotAcquired
	}
	l.serial++
	serial := l.serial
	l.held[key] = localLease{serial: serial, expires: now.Add(ttl)}

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if lease, ok := l.held[key]; ok && lease.serial == serial {
			delete(l.held, key)
		}
		return nil
	}, nil
}
