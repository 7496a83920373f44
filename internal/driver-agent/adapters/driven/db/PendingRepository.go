package db

import (
	"context"
	"fmt"

	"driver-agent/internal/driver-agent/core/domain/model"
	"driver-agent/internal/driver-agent/core/ports/driven"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS pending_updates (
	seq            BIGSERIAL PRIMARY KEY,
	id             TEXT NOT NULL UNIQUE,
	kind           TEXT NOT NULL,
	payload        JSONB NOT NULL,
	enqueued_at_ms BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS pending_updates_kind_seq_idx ON pending_updates (kind, seq);
`

type PendingRepository struct {
	pool *pgxpool.Pool
}

var _ driven.IPendingRepository = (*PendingRepository)(nil)

// NewPendingRepository creates the pending_updates table if it is missing.
func NewPendingRepository(ctx context.Context, pool *pgxpool.Pool) (*PendingRepository, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("migrate pending_updates: %w", err)
	}
	return &PendingRepository{pool: pool}, nil
}

func (r *PendingRepository) Append(ctx context.Context, update model.PendingUpdate) error {
	q := `INSERT INTO pending_updates (id, kind, payload, enqueued_at_ms)
	      VALUES ($1, $2, $3, $4)
	      ON CONFLICT (id) DO NOTHING`
	if _, err := r.pool.Exec(ctx, q, update.ID, string(update.Kind), []byte(update.Payload), update.EnqueuedAtEpochMs); err != nil {
		return fmt.Errorf("insert pending update: %w", err)
	}
	return nil
}

func (r *PendingRepository) List(ctx context.Context, kind model.UpdateKind) ([]model.PendingUpdate, error) {
	q := `SELECT id, kind, payload, enqueued_at_ms
	      FROM pending_updates
	      WHERE kind = $1
	      ORDER BY seq`
	rows, err := r.pool.Query(ctx, q, string(kind))
	if err != nil {
		return nil, fmt.Errorf("select pending updates: %w", err)
	}
	defer rows.Close()

	var updates []model.PendingUpdate
	for rows.Next() {
		var (
			u       model.PendingUpdate
			k       string
			payload []byte
		)
		if err := rows.Scan(&u.ID, &k, &payload, &u.EnqueuedAtEpochMs); err != nil {
			return nil, fmt.Errorf("scan pending update: %w", err)
		}
		u.Kind = model.UpdateKind(k)
		u.Payload = payload
		updates = append(updates, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending updates: %w", err)
	}
	return updates, nil
}

func (r *PendingRepository) Delete(ctx context.Context, kind model.UpdateKind, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	q := `DELETE FROM pending_updates WHERE kind = $1 AND id = ANY($2)`
	if _, err := r.pool.Exec(ctx, q, string(kind), ids); err != nil {
		return fmt.Errorf("delete pending updates: %w", err)
	}
	return nil
}
