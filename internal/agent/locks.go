package agent

import (
	"context"
	"sync"
)

// channelLocks serialises work per channel while letting different channels
// proceed in parallel. Entries are reference counted and removed when idle.
type channelLocks struct {
	mu    sync.Mutex
	locks map[string]*channelLock
}

type channelLock struct {
	sem  chan struct{}
	refs int
}

func newChannelLocks() *channelLocks {
	return &channelLocks{locks: make(map[string]*channelLock)}
}

// acquire blocks until the channel's lock is held or ctx is done. The
// returned release must be called exactly once.
func (l *channelLocks) acquire(ctx context.Context, channelID string) (release func(), err error) {
	l.mu.Lock()
	lk, ok := l.locks[channelID]
	if !ok {
		lk = &channelLock{sem: make(chan struct{}, 1)}
		l.locks[channelID] = lk
	}
	lk.refs++
	l.mu.Unlock()

	select {
	case lk.sem <- struct{}{}:
		return func() {
			<-lk.sem
			l.unref(channelID, lk)
		}, nil
	case <-ctx.Done():
		l.unref(channelID, lk)
		return nil, ctx.Err()
	}
}

func (l *channelLocks) unref(channelID string, lk *channelLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, channelID)
	}
}

// size returns the number of channels with pending or held locks.
func (l *channelLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
