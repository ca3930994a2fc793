// Package redis provides a Redis-backed Store for imagegate.
//
// Every process pointing at the same Redis shares one admission state.
// Adds run as a Lua script, so the concurrency cap holds across processes.
// Writes are published on a pub/sub channel so other processes can wake
// their waiters without polling.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ineyio/imagegate"
)

// Store is a Redis-backed Store.
type Store struct {
	client    goredis.UniversalClient
	keyPrefix string
	channel   string
	logger    *slog.Logger
}

var (
	_ imagegate.Store   = (*Store)(nil)
	_ imagegate.Adder   = (*Store)(nil)
	_ imagegate.Watcher = (*Store)(nil)
)

// Option configures Store.
type Option func(*Store)

// WithKeyPrefix sets the Redis key prefix (default "imagegate:").
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.keyPrefix = prefix }
}

// WithLogger sets the logger used for dropped change messages.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New creates a new Redis-backed Store.
// The client must be a connected *goredis.Client or *goredis.ClusterClient.
func New(client goredis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		client:    client,
		keyPrefix: "imagegate:",
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.channel = s.keyPrefix + "changes"
	return s
}

func (s *Store) key(k string) string {
	return s.keyPrefix + k
}

// change is the pub/sub payload.
type change struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// setScript writes a value and publishes the change.
// KEYS[1] = full key
// ARGV[1] = value
// ARGV[2] = channel
// ARGV[3] = logical key
var setScript = goredis.NewScript(`
redis.call("SET", KEYS[1], ARGV[1])
redis.call("PUBLISH", ARGV[2], cjson.encode({key = ARGV[3], value = ARGV[1]}))
return 1
`)

// addScript applies a delta floored at zero and publishes the change.
// KEYS[1] = full key
// ARGV[1] = delta
// ARGV[2] = channel
// ARGV[3] = logical key
//
// Returns the new value.
var addScript = goredis.NewScript(`
local n = tonumber(redis.call("GET", KEYS[1]) or "0") or 0
n = n + tonumber(ARGV[1])
if n < 0 then
    n = 0
end
redis.call("SET", KEYS[1], tostring(n))
redis.call("PUBLISH", ARGV[2], cjson.encode({key = ARGV[3], value = tostring(n)}))
return n
`)

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("imagegate/redis: get %s: %w", key, err)
	}
	return v, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	err := setScript.Run(ctx, s.client,
		[]string{s.key(key)},
		value, s.channel, key,
	).Err()
	if err != nil {
		return fmt.Errorf("imagegate/redis: set %s: %w", key, err)
	}
	return nil
}

// Add atomically applies delta, flooring the result at zero.
func (s *Store) Add(ctx context.Context, key string, delta int64) (int64, error) {
	n, err := addScript.Run(ctx, s.client,
		[]string{s.key(key)},
		delta, s.channel, key,
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("imagegate/redis: add %s: %w", key, err)
	}
	return n, nil
}

// Watch subscribes to the change channel until ctx is done.
func (s *Store) Watch(ctx context.Context, fn func(imagegate.ChangeEvent)) error {
	sub := s.client.Subscribe(ctx, s.channel)
	// Wait for the subscription confirmation so no change is missed after
	// Watch returns.
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return fmt.Errorf("imagegate/redis: subscribe: %w", err)
	}

	ch := sub.Channel()
	go func() {
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var c change
				if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
					s.logger.Warn("drop malformed change message", "channel", msg.Channel, "error", err)
					continue
				}
				fn(imagegate.ChangeEvent{Key: c.Key, Value: c.Value})
			}
		}
	}()
	return nil
}
