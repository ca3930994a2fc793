//go:build integration

package postgres_test

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ineyio/imagegate"
	pgstore "github.com/ineyio/imagegate/store/postgres"
)

func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = "postgres://localhost:5432/imagegate_test?sslmode=disable"
	}
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("pgxpool: %v", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		t.Fatalf("postgres not available: %v", err)
	}
	t.Cleanup(func() { pool.Close() })
	return pool
}

func newTestStore(t *testing.T, pool *pgxpool.Pool) *pgstore.Store {
	t.Helper()
	// Use a unique prefix per test to avoid collisions.
	prefix := strings.ToLower(fmt.Sprintf("test_%s_", t.Name()))
	s := pgstore.New(pool, pgstore.WithTablePrefix(prefix))
	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	t.Cleanup(func() {
		pool.Exec(context.Background(), fmt.Sprintf("DROP TABLE IF EXISTS %skv", prefix))
	})
	return s
}

func TestGetSet(t *testing.T) {
	pool := newTestPool(t)
	store := newTestStore(t, pool)
	ctx := context.Background()

	if _, ok, err := store.Get(ctx, "k"); err != nil || ok {
		t.Fatalf("get unset: ok=%v err=%v", ok, err)
	}
	if err := store.Set(ctx, "k", "a"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Set(ctx, "k", "b"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	v, ok, err := store.Get(ctx, "k")
	if err != nil || !ok || v != "b" {
		t.Fatalf("get: v=%q ok=%v err=%v", v, ok, err)
	}
}

func TestAddFloorsAtZero(t *testing.T) {
	pool := newTestPool(t)
	store := newTestStore(t, pool)
	ctx := context.Background()

	if n, err := store.Add(ctx, "n", -1); err != nil || n != 0 {
		t.Fatalf("add -1 on unset: n=%d err=%v", n, err)
	}
	if n, err := store.Add(ctx, "n", 4); err != nil || n != 4 {
		t.Fatalf("add +4: n=%d err=%v", n, err)
	}
	if n, err := store.Add(ctx, "n", -10); err != nil || n != 0 {
		t.Fatalf("add -10: n=%d err=%v", n, err)
	}
}

func TestConcurrentAdds(t *testing.T) {
	pool := newTestPool(t)
	store := newTestStore(t, pool)
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 30 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Add(ctx, "n", 1); err != nil {
				t.Errorf("add: %v", err)
			}
		}()
	}
	wg.Wait()

	v, _, err := store.Get(ctx, "n")
	if err != nil || v != "30" {
		t.Fatalf("expected 30, got %q (err=%v)", v, err)
	}
}

func TestWatchReceivesNotifications(t *testing.T) {
	pool := newTestPool(t)
	store := newTestStore(t, pool)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan imagegate.ChangeEvent, 4)
	if err := store.Watch(ctx, func(ev imagegate.ChangeEvent) { events <- ev }); err != nil {
		t.Fatalf("watch: %v", err)
	}

	if err := store.Set(ctx, "imageapp_last_date", "2025-06-01"); err != nil {
		t.Fatalf("set: %v", err)
	}

	select {
	case ev := <-events:
		if ev.Key != "imageapp_last_date" || ev.Value != "2025-06-01" {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no notification")
	}
}

func TestQueueOverPostgres(t *testing.T) {
	pool := newTestPool(t)
	store := newTestStore(t, pool)
	ctx := context.Background()

	q, err := imagegate.NewQueue(imagegate.DefaultQueueConfig(), store)
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	defer q.Close()

	boom := fmt.Errorf("boom")
	if err := q.EnterAndGenerate(ctx, func(context.Context) error { return boom }); err != boom {
		t.Fatalf("expected fn error, got %v", err)
	}
	if err := q.EnterAndGenerate(ctx, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("enter: %v", err)
	}

	st := q.Status(ctx)
	if st.Active != 0 || st.DailyUsed != 1 {
		t.Fatalf("unexpected status %+v", st)
	}
}
