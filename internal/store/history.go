package store

import (
	"context"
	"fmt"
	"time"
)

// HistoryBackend persists price history in the price_history table.
// It satisfies history.Backend.
type HistoryBackend struct {
	s *Store
}

// History returns the price_history backend of this store.
func (s *Store) History() *HistoryBackend {
	return &HistoryBackend{s: s}
}

func (b *HistoryBackend) Name() string { return "sqlite" }

func (b *HistoryBackend) Load(ctx context.Context) (map[string]float64, error) {
	if b.s == nil || b.s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}
	rows, err := b.s.db.QueryContext(ctx, `SELECT key, value FROM price_history`)
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

func (b *HistoryBackend) Persist(ctx context.Context, key string, snapshot map[string]float64) error {
	if b.s == nil || b.s.db == nil {
		return nil
	}
	v, ok := snapshot[key]
	if !ok {
		return nil
	}
	_, err := b.s.db.ExecContext(ctx,
		`INSERT INTO price_history (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		key, v, time.Now().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upsert price_history: %w", err)
	}
	return nil
}
