package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/ineyio/imagegate"
	"github.com/ineyio/imagegate/cache"
	"github.com/ineyio/imagegate/meter"
	"github.com/ineyio/imagegate/provider/gemini"
	"github.com/ineyio/imagegate/provider/mock"
	"github.com/ineyio/imagegate/provider/openai"
	"github.com/ineyio/imagegate/store"
	badgerstore "github.com/ineyio/imagegate/store/badger"
	pgstore "github.com/ineyio/imagegate/store/postgres"
	redisstore "github.com/ineyio/imagegate/store/redis"
)

// app holds the components built from a Config.
type app struct {
	cfg    imagegate.Config
	logger *slog.Logger
	store  imagegate.Store
	queue  *imagegate.Queue
	relay  *imagegate.Relay
	images *cache.ImageCache

	closers []func() error
}

// openStore opens only the shared store. Commands that inspect state use
// it without building generators.
func openStore(ctx context.Context, cfg imagegate.StoreConfig, logger *slog.Logger) (imagegate.Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Backend {
	case "", "memory":
		return store.NewMemory(), noop, nil

	case "badger":
		s, err := badgerstore.Open(badgerstore.Options{
			Dir:      cfg.Badger.Dir,
			InMemory: cfg.Badger.InMemory,
			Logger:   logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil

	case "redis":
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("connect to redis %s: %w", cfg.Redis.Addr, err)
		}
		opts := []redisstore.Option{redisstore.WithLogger(logger)}
		if cfg.Redis.KeyPrefix != "" {
			opts = append(opts, redisstore.WithKeyPrefix(cfg.Redis.KeyPrefix))
		}
		return redisstore.New(client, opts...), client.Close, nil

	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		opts := []pgstore.Option{pgstore.WithLogger(logger)}
		if cfg.Postgres.TablePrefix != "" {
			opts = append(opts, pgstore.WithTablePrefix(cfg.Postgres.TablePrefix))
		}
		s := pgstore.New(pool, opts...)
		if err := s.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return s, func() error { pool.Close(); return nil }, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// newGenerators builds the generators in config order.
func newGenerators(cfgs []imagegate.GeneratorConfig) ([]imagegate.Generator, error) {
	gens := make([]imagegate.Generator, 0, len(cfgs))
	for _, gc := range cfgs {
		switch gc.Provider {
		case "openai":
			opts := []openai.Option{openai.WithName(gc.Name())}
			if gc.Model != "" {
				opts = append(opts, openai.WithModel(gc.Model))
			}
			if gc.BaseURL != "" {
				opts = append(opts, openai.WithBaseURL(gc.BaseURL))
			}
			if gc.Timeout > 0 {
				opts = append(opts, openai.WithTimeout(gc.Timeout))
			}
			gens = append(gens, openai.New(gc.Auth.APIKey, opts...))
		case "gemini":
			opts := []gemini.Option{gemini.WithName(gc.Name())}
			if gc.Model != "" {
				opts = append(opts, gemini.WithModel(gc.Model))
			}
			if gc.BaseURL != "" {
				opts = append(opts, gemini.WithBaseURL(gc.BaseURL))
			}
			gens = append(gens, gemini.New(gc.Auth.APIKey, opts...))
		case "mock":
			gens = append(gens, mock.New(mock.WithName(gc.Name()), mock.WithLatency(gc.Latency)))
		default:
			return nil, fmt.Errorf("unknown provider %q", gc.Provider)
		}
	}
	return gens, nil
}

// newImageCache builds the image cache, or nil when caching is off.
func newImageCache(cfg imagegate.CacheConfig) (*cache.ImageCache, error) {
	switch cfg.Backend {
	case "", "none":
		return nil, nil
	case "local":
		files, err := cache.NewLocal(cfg.Dir)
		if err != nil {
			return nil, fmt.Errorf("open cache dir: %w", err)
		}
		return cache.New(files), nil
	case "s3":
		files := cache.NewS3(cache.NewS3Client(cfg.S3), cfg.S3.Bucket, cfg.S3.Prefix)
		return cache.New(files), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

// openApp builds every component from cfg.
func openApp(ctx context.Context, cfg imagegate.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	st, closeStore, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return nil, err
	}
	a.store = st
	a.closers = append(a.closers, closeStore)

	m := meter.NewLogMeter(logger)

	a.queue, err = imagegate.NewQueue(cfg.Queue, st,
		imagegate.WithMeter(m),
		imagegate.WithLogger(logger),
	)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, a.queue.Close)

	gens, err := newGenerators(cfg.Generators)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.relay, err = imagegate.NewRelay(gens, imagegate.WithRelayMeter(m))
	if err != nil {
		a.Close()
		return nil, err
	}

	a.images, err = newImageCache(cfg.Cache)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Close releases components in reverse order of creation.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func printf(format string, args ...any) {
	fmt.Fprintf(os.Stdout, format, args...)
}
