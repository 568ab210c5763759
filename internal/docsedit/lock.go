package docsedit

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// docLocks serializes batches per document so that the snapshot a batch
// resolves against is not edited underneath it by this process.
type docLocks struct {
	mu    sync.Mutex
	locks map[string]*docLock
}

type docLock struct {
	sem  *semaphore.Weighted
	refs int
}

func newDocLocks() *docLocks {
	return &docLocks{locks: make(map[string]*docLock)}
}

// acquire blocks until the document is free or ctx is done.
func (l *docLocks) acquire(ctx context.Context, documentID string) (func(), error) {
	l.mu.Lock()
	lk, ok := l.locks[documentID]
	if !ok {
		lk = &docLock{sem: semaphore.NewWeighted(1)}
		l.locks[documentID] = lk
	}
	lk.refs++
	l.mu.Unlock()

	if err := lk.sem.Acquire(ctx, 1); err != nil {
		l.drop(documentID, lk)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			lk.sem.Release(1)
			l.drop(documentID, lk)
		})
	}, nil
}

func (l *docLocks) drop(documentID string, lk *docLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, documentID)
	}
}

func (l *docLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
