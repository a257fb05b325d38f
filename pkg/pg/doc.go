// Package pg bootstraps the PostgreSQL layer on top of pgx/v5.
//
// It covers four concerns:
//
//   - Config: pool limits, retry policy and migration table, populated from
//     environment variables via github.com/caarlos0/env.
//   - Connect: opens a *pgxpool.Pool, retrying while the database comes up.
//   - Migrate: applies goose migrations from an fs.FS (usually embedded by the
//     store package that owns the schema).
//   - WithTx / Conn: carry a pgx.Tx through context.Context so that repository
//     methods called inside a transaction join it transparently.
//
// Usage:
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, cfg, migrations.FS, log); err != nil {
//		return err
//	}
//
//	err = pg.WithTx(ctx, pool, func(ctx context.Context) error {
//		_, err := pg.Conn(ctx, pool).Exec(ctx, "UPDATE ...")
//		return err
//	})
//
// Error helpers such as IsDuplicateKeyError and IsForeignKeyViolationError
// classify *pgconn.PgError values so callers can map them onto domain errors.
package pg
