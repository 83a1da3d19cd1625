package lock

import "context"

// DistributedLockManager serialises work across service instances.
type DistributedLockManager interface {
	// Acquire blocks until the lock is held or ctx ends.
	Acquire(ctx context.Context, lockID int) error
	// TryAcquire takes the lock only if nobody else holds it.
	TryAcquire(ctx context.Context, lockID int) (bool, error)
	Release(ctx context.Context, lockID int) error
}
