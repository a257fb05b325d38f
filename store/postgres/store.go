// Package postgres implements every domain store on PostgreSQL via pgx.
//
// Methods use the transaction carried by the context when there is one, so
// services compose them freely inside WithinTx. Per-user and per-session
// serialisation uses transaction-scoped advisory locks.
package postgres

import (
	"context"
	"embed"
	"errors"
	"io/fs"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spongetheory/marketplace/billing"
	"github.com/spongetheory/marketplace/catalog"
	"github.com/spongetheory/marketplace/pkg/audit"
	"github.com/spongetheory/marketplace/pkg/pg"
	"github.com/spongetheory/marketplace/subscription"
	"github.com/spongetheory/marketplace/tier"
	"github.com/spongetheory/marketplace/usage"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrations returns the goose migrations, rooted at the migration files.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

var (
	_ catalog.Store           = (*Store)(nil)
	_ tier.Store              = (*Store)(nil)
	_ subscription.Store      = (*Store)(nil)
	_ subscription.TierLookup = (*Store)(nil)
	_ usage.Store             = (*Store)(nil)
	_ billing.PaymentStore    = (*Store)(nil)
	_ audit.Storage           = (*Store)(nil)
)

var errLockOutsideTx = errors.New("postgres: advisory lock requires a transaction")

// Store implements every domain store on PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New returns a store on pool. Migrations are applied separately by pg.Migrate.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) db(ctx context.Context) pg.DBTX {
	return pg.Conn(ctx, s.pool)
}

// WithinTx runs fn in a transaction. Calls on ctx inside fn, including nested
// WithinTx, share it.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return pg.WithTx(ctx, s.pool, fn)
}

func (s *Store) advisoryLock(ctx context.Context, key string) error {
	if !pg.InTx(ctx) {
		return errLockOutsideTx
	}
	return pg.AdvisoryXactLock(ctx, s.db(ctx), key)
}
