// Package postgres provides a PostgreSQL-backed Store for imagegate.
//
// State lives in a single key/value table. Adds are one upsert statement,
// so the concurrency cap holds across processes. Writes fire NOTIFY so
// other processes can wake their waiters without polling.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ineyio/imagegate"
)

// Store is a PostgreSQL-backed Store.
type Store struct {
	pool        *pgxpool.Pool
	tablePrefix string
	logger      *slog.Logger
}

var (
	_ imagegate.Store   = (*Store)(nil)
	_ imagegate.Adder   = (*Store)(nil)
	_ imagegate.Watcher = (*Store)(nil)
)

// Option configures Store.
type Option func(*Store)

// WithTablePrefix sets the table name prefix (default "imagegate_").
func WithTablePrefix(prefix string) Option {
	return func(s *Store) { s.tablePrefix = prefix }
}

// WithLogger sets the logger used for dropped notifications.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New creates a new PostgreSQL-backed Store.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{
		pool:        pool,
		tablePrefix: "imagegate_",
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) table() string   { return s.tablePrefix + "kv" }
func (s *Store) channel() string { return s.tablePrefix + "changes" }

// EnsureSchema creates the required table if it doesn't exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	q := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`, s.table())
	if _, err := s.pool.Exec(ctx, q); err != nil {
		return fmt.Errorf("imagegate/postgres: ensure schema: %w", err)
	}
	return nil
}

type change struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT value FROM %s WHERE key = $1`, s.table()),
		key,
	).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("imagegate/postgres: get %s: %w", key, err)
	}
	return v, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("imagegate/postgres: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (key, value) VALUES ($1, $2)
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`, s.table()),
		key, value,
	)
	if err != nil {
		return fmt.Errorf("imagegate/postgres: set %s: %w", key, err)
	}
	if err := s.notify(ctx, tx, key, value); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("imagegate/postgres: commit: %w", err)
	}
	return nil
}

// Add atomically applies delta, flooring the result at zero.
func (s *Store) Add(ctx context.Context, key string, delta int64) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("imagegate/postgres: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var n int64
	err = tx.QueryRow(ctx,
		fmt.Sprintf(`INSERT INTO %[1]s AS t (key, value) VALUES ($1, GREATEST($2::bigint, 0)::text)
			ON CONFLICT (key) DO UPDATE
			SET value = GREATEST(
				COALESCE(NULLIF(t.value, '')::bigint, 0) + $2::bigint, 0)::text,
				updated_at = now()
			RETURNING value::bigint`, s.table()),
		key, delta,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("imagegate/postgres: add %s: %w", key, err)
	}
	if err := s.notify(ctx, tx, key, fmt.Sprint(n)); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("imagegate/postgres: commit: %w", err)
	}
	return n, nil
}

// notify queues a change notification, delivered when tx commits.
func (s *Store) notify(ctx context.Context, tx pgx.Tx, key, value string) error {
	payload, err := json.Marshal(change{Key: key, Value: value})
	if err != nil {
		return fmt.Errorf("imagegate/postgres: encode change: %w", err)
	}
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, s.channel(), string(payload)); err != nil {
		return fmt.Errorf("imagegate/postgres: notify: %w", err)
	}
	return nil
}

// Watch listens for change notifications until ctx is done. It holds one
// pooled connection for the lifetime of the watch.
func (s *Store) Watch(ctx context.Context, fn func(imagegate.ChangeEvent)) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("imagegate/postgres: acquire listener: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{s.channel()}.Sanitize()); err != nil {
		conn.Release()
		return fmt.Errorf("imagegate/postgres: listen: %w", err)
	}

	// The connection stays in LISTEN state; take it out of the pool so it
	// is closed rather than reused.
	listener := conn.Hijack()

	go func() {
		defer listener.Close(context.Background())
		for {
			n, err := listener.WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() == nil {
					s.logger.Warn("listen for changes stopped", "error", err)
				}
				return
			}
			var c change
			if err := json.Unmarshal([]byte(n.Payload), &c); err != nil {
				s.logger.Warn("drop malformed notification", "channel", n.Channel, "error", err)
				continue
			}
			fn(imagegate.ChangeEvent{Key: c.Key, Value: c.Value})
		}
	}()
	return nil
}
