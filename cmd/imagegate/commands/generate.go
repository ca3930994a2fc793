package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ineyio/imagegate"
	"github.com/ineyio/imagegate/cache"
)

var (
	generateSize string
	generateOut  string
)

var generateCmd = &cobra.Command{
	Use:   "generate PROMPT",
	Short: "Generate one image through the shared queue",
	Long: `Generate one image. The request waits for a free slot and counts
against the daily quota like any HTTP request, so several concurrent runs
sharing a redis, postgres or badger store coordinate with each other and
with running servers.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVarP(&generateSize, "size", "s", string(imagegate.SizeSquare),
		"image size: 1024x1024, 1024x1792 or 1792x1024")
	generateCmd.Flags().StringVarP(&generateOut, "out", "o", "", "write the first image to this file")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	req := imagegate.GenerateRequest{
		Prompt: strings.Join(args, " "),
		Size:   imagegate.Size(generateSize),
	}

	var resp imagegate.GenerateResponse
	err = a.queue.EnterAndGenerate(ctx, func(ctx context.Context) error {
		var err error
		resp, err = a.relay.Generate(ctx, req)
		return err
	})
	if err != nil {
		return err
	}

	printf("generator: %s (%s)\n", resp.Generator, resp.Model)
	if resp.RevisedPrompt != "" {
		printf("revised prompt: %s\n", resp.RevisedPrompt)
	}
	for _, img := range resp.Images {
		if img.URL != "" {
			printf("image: %s\n", img.URL)
		} else {
			printf("image: %d bytes inline (%s)\n", len(img.Data), img.ContentType)
		}
	}

	if generateOut == "" || len(resp.Images) == 0 {
		return nil
	}
	data, err := imageBytes(ctx, a, resp.Images[0])
	if err != nil {
		return err
	}
	if err := os.WriteFile(generateOut, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", generateOut, err)
	}
	printf("saved: %s\n", generateOut)
	return nil
}

func imageBytes(ctx context.Context, a *app, img imagegate.Image) ([]byte, error) {
	if img.URL == "" {
		return img.Data, nil
	}
	f := cache.NewFetcher(cache.WithCache(a.images), cache.WithLogger(a.logger))
	e, err := f.Fetch(ctx, img.URL)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", img.URL, err)
	}
	return e.Data, nil
}
