package badger_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ineyio/imagegate"
	badgerstore "github.com/ineyio/imagegate/store/badger"
)

func newTestStore(t *testing.T) *badgerstore.Store {
	t.Helper()
	s, err := badgerstore.Open(badgerstore.Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_RequiresDir(t *testing.T) {
	_, err := badgerstore.Open(badgerstore.Options{})
	assert.Error(t, err)
}

func TestStore_GetSet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "k", "v"))
	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestStore_AddFloorsAtZero(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	n, err := s.Add(ctx, "n", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = s.Add(ctx, "n", -3)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestStore_ConcurrentAdds(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Add(ctx, "n", 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	v, _, err := s.Get(ctx, "n")
	require.NoError(t, err)
	assert.Equal(t, "50", v)
}

func TestStore_Watch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := newTestStore(t)

	events := make(chan imagegate.ChangeEvent, 4)
	require.NoError(t, s.Watch(ctx, func(ev imagegate.ChangeEvent) { events <- ev }))

	_, err := s.Add(ctx, "n", 1)
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, imagegate.ChangeEvent{Key: "n", Value: "1"}, ev)
	case <-time.After(time.Second):
		t.Fatal("no change event")
	}
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := badgerstore.Open(badgerstore.Options{Dir: dir})
	require.NoError(t, err)
	_, err = s.Add(ctx, "imageapp_daily_count", 7)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = badgerstore.Open(badgerstore.Options{Dir: dir})
	require.NoError(t, err)
	defer s.Close()

	v, ok, err := s.Get(ctx, "imageapp_daily_count")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "7", v)
}

func TestStore_BacksQueue(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	cfg := imagegate.DefaultQueueConfig()
	q, err := imagegate.NewQueue(cfg, s)
	require.NoError(t, err)
	defer q.Close()

	require.NoError(t, q.EnterAndGenerate(ctx, func(context.Context) error { return nil }))
	assert.Equal(t, int64(0), q.Counter().Active(ctx))
	assert.Equal(t, int64(1), q.Quota().Used(ctx))
}
