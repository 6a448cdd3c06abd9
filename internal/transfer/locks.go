package transfer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"slotledger/internal/core"
)

// accountLocks hands out one exclusive lock per account. Entries are
// reference counted so idle accounts do not accumulate.
type accountLocks struct {
	mu      sync.Mutex
	entries map[core.AccountID]*lockEntry
	timeout time.Duration
}

type lockEntry struct {
	sem  chan struct{}
	refs int
}

func newAccountLocks(timeout time.Duration) *accountLocks {
	return &accountLocks{
		entries: make(map[core.AccountID]*lockEntry),
		timeout: timeout,
	}
}

// acquire blocks until the account is free, ctx is done, or the timeout
// elapses. A timeout is reported as core.ErrConcurrentModification.
func (l *accountLocks) acquire(ctx context.Context, id core.AccountID) (release func(), err error) {
	l.mu.Lock()
	e, ok := l.entries[id]
	if !ok {
		e = &lockEntry{sem: make(chan struct{}, 1)}
		l.entries[id] = e
	}
	e.refs++
	l.mu.Unlock()

	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	select {
	case e.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-e.sem
				l.drop(id, e)
			})
		}, nil
	case <-ctx.Done():
		l.drop(id, e)
		return nil, ctx.Err()
	case <-timer.C:
		l.drop(id, e)
		return nil, fmt.Errorf("account %d busy for %s: %w", id, l.timeout, core.ErrConcurrentModification)
	}
}

func (l *accountLocks) drop(id core.AccountID, e *lockEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, id)
	}
}

// size reports how many accounts currently hold or wait for a lock.
func (l *accountLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
