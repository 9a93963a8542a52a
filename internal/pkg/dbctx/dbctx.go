package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context bundles a request context with an optional GORM transaction.
// Repos fall back to their own *gorm.DB handle when Tx is nil, so read
// paths can skip the transaction entirely.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}

// New returns a non-transactional Context for plain reads.
func New(ctx context.Context) Context {
	return Context{Ctx: ctx}
}

// WithTx binds a transaction handle to the Context.
func WithTx(ctx context.Context, tx *gorm.DB) Context {
	return Context{Ctx: ctx, Tx: tx}
}
