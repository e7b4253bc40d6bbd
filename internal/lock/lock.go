// Package lock provides the per-key locks the lock service takes around
// store mutations, so concurrent mutations of the same lock key serialize
// while different keys proceed independently.
package lock

import (
	"context"
)

type LockFactory interface {
	NewLock(key string) Lock
}

// Lock is held for the duration of a single mutation. Lock blocks until the
// key is free or the context is done.
type Lock interface {
	Lock(ctx context.Context) error
	Unlock() error
}
