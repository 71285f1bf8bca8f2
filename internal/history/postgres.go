package history

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresBackend keeps the history in a price_history table.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

type PostgresOptions struct {
	DSN string
	// Password overrides the one in DSN when set.
	Password string
	MinConns int
	MaxConns int
}

// ConnectPostgres opens a pool, pings it and creates the table.
func ConnectPostgres(ctx context.Context, opts PostgresOptions) (*PostgresBackend, error) {
	poolCfg, err := pgxpool.ParseConfig(opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	if opts.Password != "" {
		poolCfg.ConnConfig.Password = opts.Password
	}
	if opts.MinConns > 0 {
		poolCfg.MinConns = int32(opts.MinConns)
	}
	if opts.MaxConns > 0 {
		poolCfg.MaxConns = int32(opts.MaxConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	b := &PostgresBackend{pool: pool}
	if err := b.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return b, nil
}

func (b *PostgresBackend) migrate(ctx context.Context) error {
	_, err := b.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS price_history (
		key TEXT PRIMARY KEY,
		value DOUBLE PRECISION NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`)
	if err != nil {
		return fmt.Errorf("migrate price_history: %w", err)
	}
	return nil
}

func (b *PostgresBackend) Name() string { return "postgres" }

func (b *PostgresBackend) Load(ctx context.Context) (map[string]float64, error) {
	rows, err := b.pool.Query(ctx, `SELECT key, value FROM price_history`)
	if err != nil {
		return nil, fmt.Errorf("query price_history: %w", err)
	}
	defer rows.Close()
	out := make(map[string]float64)
	for rows.Next() {
		var k string
		var v float64
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan price_history: %w", err)
		}
		out[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows price_history: %w", err)
	}
	return out, nil
}

func (b *PostgresBackend) Persist(ctx context.Context, key string, snapshot map[string]float64) error {
	v, ok := snapshot[key]
	if !ok {
		return nil
	}
	_, err := b.pool.Exec(ctx,
		`INSERT INTO price_history (key, value, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, v,
	)
	if err != nil {
		return fmt.Errorf("upsert price_history: %w", err)
	}
	return nil
}

func (b *PostgresBackend) Close() {
	b.pool.Close()
}
