package ports

import "context"

// Locker serialises compound read-modify-write operations on the Directory.
// Lock blocks until the lock is held or ctx is done; the returned func releases it.
type Locker interface {
	Lock(ctx context.Context) (unlock func(), err error)
}
