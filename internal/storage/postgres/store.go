package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ammPool/internal/model"
)

// Schema creates the tables used by Store.
const Schema = `
CREATE TABLE IF NOT EXISTS pool_events (
	asset_a      TEXT        NOT NULL,
	asset_b      TEXT        NOT NULL,
	seq          BIGINT      NOT NULL,
	event_name   TEXT        NOT NULL,
	event_ts     BIGINT      NOT NULL,
	sender       TEXT        NOT NULL,
	recipient    TEXT        NOT NULL,
	decoded      JSONB       NOT NULL,
	reserve_a    NUMERIC     NOT NULL,
	reserve_b    NUMERIC     NOT NULL,
	total_shares NUMERIC     NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (asset_a, asset_b, seq)
);
CREATE TABLE IF NOT EXISTS replay_state (
	name       TEXT        PRIMARY KEY,
	state      JSONB       NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Store provides Postgres persistence for pool events and replay state.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate creates missing tables.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// PutEventBatch inserts pool events, ignoring ones already stored.
func (s *Store) PutEventBatch(ctx context.Context, events []model.PoolEvent) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, ev := range events {
		decoded, err := json.Marshal(ev.Decoded)
		if err != nil {
			return fmt.Errorf("marshal decoded %s: %w", ev.EventName, err)
		}
		batch.Queue(`
			INSERT INTO pool_events (
				asset_a, asset_b, seq, event_name, event_ts, sender, recipient,
				decoded, reserve_a, reserve_b, total_shares, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now())
			ON CONFLICT (asset_a, asset_b, seq) DO NOTHING
		`,
			ev.AssetA,
			ev.AssetB,
			int64(ev.Seq),
			ev.EventName,
			int64(ev.Timestamp),
			ev.Sender,
			ev.Recipient,
			decoded,
			ev.ReserveA,
			ev.ReserveB,
			ev.TotalShares,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range events {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadState returns the replay state saved under name.
func (s *Store) LoadState(ctx context.Context, name string) (model.ReplayState, bool, error) {
	if name == "" {
		return model.ReplayState{}, false, fmt.Errorf("state name required")
	}
	var raw []byte
	row := s.pool.QueryRow(ctx, `SELECT state FROM replay_state WHERE name=$1`, name)
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ReplayState{}, false, nil
		}
		return model.ReplayState{}, false, err
	}
	var state model.ReplayState
	if err := json.Unmarshal(raw, &state); err != nil {
		return model.ReplayState{}, false, fmt.Errorf("parse state %s: %w", name, err)
	}
	return state, true, nil
}

// SaveState upserts the replay state for name.
func (s *Store) SaveState(ctx context.Context, name string, state model.ReplayState) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO replay_state (name, state, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET state = EXCLUDED.state, updated_at = now()
	`, name, data)
	return err
}
