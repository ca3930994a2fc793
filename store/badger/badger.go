// Package badger provides an on-disk Store for imagegate backed by
// BadgerDB. State survives restarts of a single process; badger's directory
// lock keeps other processes out, so share state across processes with the
// redis or postgres stores instead.
package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/ineyio/imagegate"
)

// Store is a BadgerDB-backed Store.
type Store struct {
	db *badgerdb.DB

	mu       sync.Mutex
	watchers map[int]func(imagegate.ChangeEvent)
	nextID   int
}

var (
	_ imagegate.Store   = (*Store)(nil)
	_ imagegate.Adder   = (*Store)(nil)
	_ imagegate.Watcher = (*Store)(nil)
)

// Options configures the store.
type Options struct {
	// Dir is the directory for BadgerDB data files. Required unless InMemory.
	Dir string

	// InMemory runs BadgerDB without disk persistence. Useful for tests.
	InMemory bool

	// Logger receives badger's warnings and errors. Nil means slog.Default().
	Logger *slog.Logger
}

// Open opens or creates a store.
func Open(opts Options) (*Store, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("imagegate/badger: Options.Dir is required for on-disk mode")
	}
	dbOpts := badgerdb.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = badgerdb.DefaultOptions("").WithInMemory(true)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dbOpts = dbOpts.WithLogger(slogAdapter{logger: logger})

	db, err := badgerdb.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("imagegate/badger: open: %w", err)
	}
	return &Store{
		db:       db,
		watchers: make(map[int]func(imagegate.ChangeEvent)),
	}, nil
}

func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	var val []byte
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("imagegate/badger: get %s: %w", key, err)
	}
	return string(val), true, nil
}

func (s *Store) Set(_ context.Context, key, value string) error {
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("imagegate/badger: set %s: %w", key, err)
	}
	s.notify(imagegate.ChangeEvent{Key: key, Value: value})
	return nil
}

// Add applies delta in one read-write transaction, flooring at zero.
// Conflicting transactions are retried.
func (s *Store) Add(_ context.Context, key string, delta int64) (int64, error) {
	var n int64
	for {
		err := s.db.Update(func(txn *badgerdb.Txn) error {
			n = 0
			item, err := txn.Get([]byte(key))
			switch {
			case errors.Is(err, badgerdb.ErrKeyNotFound):
			case err != nil:
				return err
			default:
				if err := item.Value(func(v []byte) error {
					n, _ = strconv.ParseInt(string(v), 10, 64)
					return nil
				}); err != nil {
					return err
				}
			}
			n = max(n+delta, 0)
			return txn.Set([]byte(key), []byte(strconv.FormatInt(n, 10)))
		})
		if errors.Is(err, badgerdb.ErrConflict) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("imagegate/badger: add %s: %w", key, err)
		}
		break
	}
	s.notify(imagegate.ChangeEvent{Key: key, Value: strconv.FormatInt(n, 10)})
	return n, nil
}

// Watch delivers writes made through this Store until ctx is done.
func (s *Store) Watch(ctx context.Context, fn func(imagegate.ChangeEvent)) error {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = fn
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}()
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) notify(ev imagegate.ChangeEvent) {
	s.mu.Lock()
	fns := make([]func(imagegate.ChangeEvent), 0, len(s.watchers))
	for _, fn := range s.watchers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// slogAdapter routes badger's logger to slog, dropping debug and info.
type slogAdapter struct {
	logger *slog.Logger
}

func (a slogAdapter) Errorf(f string, v ...interface{}) {
	a.logger.Error(fmt.Sprintf(f, v...), "component", "badger")
}

func (a slogAdapter) Warningf(f string, v ...interface{}) {
	a.logger.Warn(fmt.Sprintf(f, v...), "component", "badger")
}

func (a slogAdapter) Infof(string, ...interface{})  {}
func (a slogAdapter) Debugf(string, ...interface{}) {}
