package imagegate_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	ig "github.com/ineyio/imagegate"
	"github.com/ineyio/imagegate/store"
)

var errStoreDown = errors.New("store down")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// plainStore hides Adder and Watcher so callers take the read-then-write
// path and only see changes by polling.
type plainStore struct {
	mu     sync.Mutex
	values map[string]string
}

var _ ig.Store = (*plainStore)(nil)

func newPlainStore() *plainStore {
	return &plainStore{values: make(map[string]string)}
}

func (s *plainStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *plainStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// failingStore fails every operation.
type failingStore struct{}

func (failingStore) Get(context.Context, string) (string, bool, error) {
	return "", false, errStoreDown
}

func (failingStore) Set(context.Context, string, string) error { return errStoreDown }

func (failingStore) Add(context.Context, string, int64) (int64, error) { return 0, errStoreDown }

// watchCountingStore is a memory store that counts Watch subscriptions.
type watchCountingStore struct {
	*store.Memory
	watches  atomic.Int32
	watchErr error
}

func newWatchCountingStore() *watchCountingStore {
	return &watchCountingStore{Memory: store.NewMemory()}
}

func (s *watchCountingStore) Watch(ctx context.Context, fn func(ig.ChangeEvent)) error {
	s.watches.Add(1)
	if s.watchErr != nil {
		return s.watchErr
	}
	return s.Memory.Watch(ctx, fn)
}
