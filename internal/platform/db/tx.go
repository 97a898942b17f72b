package db

import (
	"context"

	"gorm.io/gorm"
)

type txKey struct{}

// TxFromContext returns the transaction carried by ctx, or nil.
func TxFromContext(ctx context.Context) *gorm.DB {
	tx, _ := ctx.Value(txKey{}).(*gorm.DB)
	return tx
}

// ContextWithTx returns a copy of ctx carrying tx.
func ContextWithTx(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// Conn returns the transaction from ctx when present, otherwise gdb, bound to ctx.
func Conn(ctx context.Context, gdb *gorm.DB) *gorm.DB {
	if tx := TxFromContext(ctx); tx != nil {
		return tx.WithContext(ctx)
	}
	return gdb.WithContext(ctx)
}

// InTx runs fn inside a transaction. When ctx already carries one, fn joins it
// and the outer caller decides commit or rollback.
func InTx(ctx context.Context, gdb *gorm.DB, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}
	return gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ContextWithTx(ctx, tx))
	})
}

// Transactor runs a function inside a unit of work.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// GormTransactor is the Transactor backed by the local store.
type GormTransactor struct {
	DB *gorm.DB
}

// NewTransactor returns a Transactor for gdb.
func NewTransactor(gdb *gorm.DB) GormTransactor {
	return GormTransactor{DB: gdb}
}

// InTx implements Transactor.
func (t GormTransactor) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return InTx(ctx, t.DB, fn)
}

// NoTx runs fn directly. It serves stores without transactions, such as test doubles.
type NoTx struct{}

// InTx implements Transactor.
func (NoTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
