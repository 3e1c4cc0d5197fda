// Package snapshot persists full engine snapshots to Postgres as JSONB
// rows, newest-wins. Persistence is optional; the engine runs entirely in
// memory and only round-trips through here on startup and the periodic
// save.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eth-jashan/trading-book-sub000/internal/model"
)

// ErrNoSnapshot means the table holds no rows yet; the caller starts
// fresh instead of failing.
var ErrNoSnapshot = errors.New("no snapshot stored")

type Store struct {
	pool *pgxpool.Pool
}

func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 4
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Init creates the snapshot table when it does not exist yet.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		create table if not exists engine_snapshots (
			id bigserial primary key,
			taken_at timestamptz not null,
			state jsonb not null
		)`)
	return err
}

func (s *Store) Save(ctx context.Context, snap model.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		"insert into engine_snapshots (taken_at, state) values ($1, $2)",
		snap.TakenAt, payload)
	return err
}

// LoadLatest returns the most recent snapshot.
func (s *Store) LoadLatest(ctx context.Context) (model.Snapshot, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		"select state from engine_snapshots order by id desc limit 1").Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Snapshot{}, ErrNoSnapshot
		}
		return model.Snapshot{}, err
	}
	var snap model.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return model.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

// Prune deletes rows older than keep, leaving at least the newest row.
func (s *Store) Prune(ctx context.Context, keep time.Duration) error {
	_, err := s.pool.Exec(ctx, `
		delete from engine_snapshots
		where taken_at < $1
		  and id <> (select max(id) from engine_snapshots)`,
		time.Now().UTC().Add(-keep))
	return err
}
