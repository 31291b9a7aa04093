package repositories

import "context"

// UnitOfWork scopes a set of repository calls to a single database transaction.
type UnitOfWork interface {
	// Do executes fn inside a transaction, committing on nil error and
	// rolling back otherwise.
	Do(ctx context.Context, fn func(ctx context.Context) error) error
	// WithLock marks the context so that subsequent repository reads within
	// the same transaction take a row-level SELECT ... FOR UPDATE lock.
	WithLock(ctx context.Context) context.Context
}
