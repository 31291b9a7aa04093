package repositories

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domainRepos "paygate.backend/internal/domain/repositories"
)

type contextKey string

const (
	txKey   contextKey = "tx_db"
	lockKey contextKey = "lock"
)

// UnitOfWorkImpl implements UnitOfWork using GORM.
type UnitOfWorkImpl struct {
	db *gorm.DB
}

// NewUnitOfWork creates a new UnitOfWork.
func NewUnitOfWork(db *gorm.DB) domainRepos.UnitOfWork {
	return &UnitOfWorkImpl{db: db}
}

// Do executes fn inside a transaction, committing on nil error and rolling
// back otherwise.
func (u *UnitOfWorkImpl) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	tx := u.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("begin transaction: %w", tx.Error)
	}

	txCtx := context.WithValue(ctx, txKey, tx)

	if err := fn(txCtx); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// WithLock marks the context so that subsequent repository reads within the
// same transaction take a row-level SELECT ... FOR UPDATE lock.
func (u *UnitOfWorkImpl) WithLock(ctx context.Context) context.Context {
	return context.WithValue(ctx, lockKey, true)
}

// GetDB extracts the active transaction DB from ctx if present, applies a
// FOR UPDATE clause if WithLock was used, and otherwise falls back to db.
func GetDB(ctx context.Context, db *gorm.DB) *gorm.DB {
	conn := db.WithContext(ctx)
	if tx, ok := ctx.Value(txKey).(*gorm.DB); ok {
		conn = tx
	}
	if lock, ok := ctx.Value(lockKey).(bool); ok && lock {
		conn = conn.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return conn
}
