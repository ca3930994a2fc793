package imagegate

import (
	"context"
	"log/slog"
	"strconv"
)

// Counter tracks the number of in-flight generations in a shared Store.
//
// When the store implements Adder every change is atomic. Otherwise each
// change is a read followed by a write, and two processes updating the
// counter at the same moment can lose an update. The cap is then
// approximate: exceeding it costs upstream latency, not correctness.
//
// Storage failures never surface to callers. They are logged and the
// operation degrades to a zero value.
type Counter struct {
	store  Store
	key    string
	logger *slog.Logger
}

// NewCounter creates a Counter over key in store.
// A nil store behaves as permanently empty.
func NewCounter(store Store, key string, logger *slog.Logger) *Counter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Counter{store: store, key: key, logger: logger}
}

// Active returns the current count, 0 if unset.
func (c *Counter) Active(ctx context.Context) int64 {
	if c.store == nil {
		return 0
	}
	n, err := readInt(ctx, c.store, c.key)
	if err != nil {
		c.logger.Warn("read active count", "key", c.key, "error", err)
		return 0
	}
	return n
}

// Increase adds one slot and returns the new count. It does not enforce
// any maximum.
func (c *Counter) Increase(ctx context.Context) int64 {
	n, _ := c.add(ctx, 1)
	return n
}

// Decrease releases one slot and returns the new count, never below zero.
func (c *Counter) Decrease(ctx context.Context) int64 {
	n, _ := c.add(ctx, -1)
	return n
}

// Reset forces the count to zero. It is meant for clearing stuck state.
func (c *Counter) Reset(ctx context.Context) int64 {
	if c.store == nil {
		return 0
	}
	if err := c.store.Set(ctx, c.key, "0"); err != nil {
		c.logger.Warn("reset active count", "key", c.key, "error", err)
	}
	return 0
}

// Watch calls fn with the new count whenever another writer changes it.
// It returns ErrWatchUnsupported if the store cannot publish changes.
func (c *Counter) Watch(ctx context.Context, fn func(active int64)) error {
	w, ok := c.store.(Watcher)
	if !ok {
		return ErrWatchUnsupported
	}
	return w.Watch(ctx, func(ev ChangeEvent) {
		if ev.Key != c.key {
			return
		}
		fn(parseCount(ev.Value))
	})
}

// add applies delta and reports whether the store accepted the write.
func (c *Counter) add(ctx context.Context, delta int64) (int64, bool) {
	if c.store == nil {
		return 0, false
	}

	if a, ok := c.store.(Adder); ok {
		n, err := a.Add(ctx, c.key, delta)
		if err != nil {
			c.logger.Warn("update active count", "key", c.key, "delta", delta, "error", err)
			return 0, false
		}
		return n, true
	}

	n, err := readInt(ctx, c.store, c.key)
	if err != nil {
		c.logger.Warn("read active count", "key", c.key, "error", err)
		return 0, false
	}
	n = max(n+delta, 0)
	if err := c.store.Set(ctx, c.key, strconv.FormatInt(n, 10)); err != nil {
		c.logger.Warn("write active count", "key", c.key, "error", err)
		return n, false
	}
	return n, true
}

// acquire takes a slot if fewer than limit are held. counted reports
// whether the store recorded the slot, and so whether it must be released.
// A failing store admits without counting.
func (c *Counter) acquire(ctx context.Context, limit int64) (active int64, admitted, counted bool) {
	if c.store == nil {
		return 0, true, false
	}

	if a, ok := c.store.(Adder); ok {
		n, err := a.Add(ctx, c.key, 1)
		if err != nil {
			c.logger.Warn("acquire slot", "key", c.key, "error", err)
			return 0, true, false
		}
		if n > limit {
			if _, err := a.Add(ctx, c.key, -1); err != nil {
				c.logger.Warn("roll back slot", "key", c.key, "error", err)
			}
			return n - 1, false, false
		}
		return n, true, true
	}

	if n := c.Active(ctx); n >= limit {
		return n, false, false
	}
	n, ok := c.add(ctx, 1)
	return n, true, ok
}

func readInt(ctx context.Context, store Store, key string) (int64, error) {
	v, ok, err := store.Get(ctx, key)
	if err != nil || !ok {
		return 0, err
	}
	return parseCount(v), nil
}

// parseCount reads a stored decimal. Garbage and negatives read as zero.
func parseCount(v string) int64 {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
