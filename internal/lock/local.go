package lock

import (
	"context"
	"sync"

	"github.com/sorintlab/errors"
	"golang.org/x/sync/semaphore"
)

// LocalLocks hands out process local per-key locks. A weighted semaphore
// instead of a mutex so acquisition honors context cancellation. Semaphores
// are created on first use and kept for the process lifetime, fine for the
// bounded key set a lock service handles.
type LocalLocks struct {
	mu        sync.Mutex
	perKeySem map[string]*semaphore.Weighted
}

func NewLocalLocks() *LocalLocks {
	return &LocalLocks{perKeySem: map[string]*semaphore.Weighted{}}
}

func (ll *LocalLocks) NewLock(key string) Lock {
	return &localLock{ll: ll, key: key}
}

func (ll *LocalLocks) sem(key string) *semaphore.Weighted {
	ll.mu.Lock()
	defer ll.mu.Unlock()

	sem, ok := ll.perKeySem[key]
	if !ok {
		sem = semaphore.NewWeighted(1)
		ll.perKeySem[key] = sem
	}

	return sem
}

type localLock struct {
	ll  *LocalLocks
	key string
}

func (l *localLock) Lock(ctx context.Context) error {
	return errors.WithStack(l.ll.sem(l.key).Acquire(ctx, 1))
}

func (l *localLock) Unlock() error {
	l.ll.mu.Lock()
	sem, ok := l.ll.perKeySem[l.key]
	l.ll.mu.Unlock()
	if !ok {
		panic(errors.Errorf("unlock of never locked key %q", l.key))
	}
	sem.Release(1)

	return nil
}
