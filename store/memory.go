// Package store provides imagegate.Store implementations.
//
// Memory lives in this package; disk and network backends live in the
// badger, redis and postgres subpackages.
package store

import (
	"context"
	"strconv"
	"sync"

	"github.com/ineyio/imagegate"
)

// Memory is an in-process Store. Adds are atomic and every write is
// delivered to watchers synchronously, after the lock is released.
type Memory struct {
	mu       sync.Mutex
	values   map[string]string
	watchers map[int]func(imagegate.ChangeEvent)
	nextID   int
}

var (
	_ imagegate.Store   = (*Memory)(nil)
	_ imagegate.Adder   = (*Memory)(nil)
	_ imagegate.Watcher = (*Memory)(nil)
)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		values:   make(map[string]string),
		watchers: make(map[int]func(imagegate.ChangeEvent)),
	}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.values[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	m.values[key] = value
	fns := m.snapshot()
	m.mu.Unlock()

	notify(fns, imagegate.ChangeEvent{Key: key, Value: value})
	return nil
}

// Add applies delta to an integer key, flooring the result at zero.
func (m *Memory) Add(_ context.Context, key string, delta int64) (int64, error) {
	m.mu.Lock()
	n, _ := strconv.ParseInt(m.values[key], 10, 64)
	n = max(n+delta, 0)
	v := strconv.FormatInt(n, 10)
	m.values[key] = v
	fns := m.snapshot()
	m.mu.Unlock()

	notify(fns, imagegate.ChangeEvent{Key: key, Value: v})
	return n, nil
}

func (m *Memory) Watch(ctx context.Context, fn func(imagegate.ChangeEvent)) error {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.watchers[id] = fn
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.watchers, id)
		m.mu.Unlock()
	}()
	return nil
}

// snapshot copies the watcher list. Must be called with lock held.
func (m *Memory) snapshot() []func(imagegate.ChangeEvent) {
	if len(m.watchers) == 0 {
		return nil
	}
	fns := make([]func(imagegate.ChangeEvent), 0, len(m.watchers))
	for _, fn := range m.watchers {
		fns = append(fns, fn)
	}
	return fns
}

func notify(fns []func(imagegate.ChangeEvent), ev imagegate.ChangeEvent) {
	for _, fn := range fns {
		fn(ev)
	}
}
