package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ineyio/imagegate/cache"
	"github.com/ineyio/imagegate/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the HTTP API until SIGINT or SIGTERM.

Routes:
  POST /api/generate        generate an image through the queue
  GET  /api/proxy-image     fetch a remote image through the cache
  POST /api/download        download an image as an attachment
  GET  /api/images/{id}     serve a cached generated image
  GET  /api/queue           admission status
  GET  /api/queue/ws        live active count over websocket
  POST /api/queue/reset     clear the active count (server.enable_reset)
  GET  /health              health check`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	logger := newLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := server.New(cfg.Server, a.queue, a.relay,
		server.WithImageCache(a.images),
		server.WithFetcher(cache.NewFetcher(cache.WithCache(a.images), cache.WithLogger(logger))),
		server.WithLogger(logger),
	)
	logger.Info("starting imagegate",
		"store", cfg.Store.Backend,
		"generators", len(cfg.Generators),
		"max_concurrent", cfg.Queue.MaxConcurrent,
		"daily_limit", cfg.Queue.DailyLimit,
	)
	return srv.ListenAndServe(ctx)
}
