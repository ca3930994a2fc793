package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ineyio/imagegate"
)

var (
	// Global flags
	configPath string
	envFile    string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "imagegate",
	Short: "Image generation relay with shared admission control",
	Long: `imagegate - relay image generation requests under a concurrency cap
and a daily quota shared by every process using the same store.

Configuration is read from a YAML file (--config). ${VAR} references are
expanded from the environment, which is first loaded from --env-file.
Without a config file the defaults apply: in-memory store, mock generator,
3 concurrent slots and 250 generations per day.

Examples:
  # Run the HTTP API
  imagegate serve --config imagegate.yaml

  # Generate from the shell; concurrent runs share the queue
  imagegate generate "a cat on the moon" --size 1792x1024 --out cat.png

  # Inspect or clear the admission state
  imagegate queue status
  imagegate queue reset`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "imagegate.yaml", "config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// loadConfig loads the env file and the config. Missing files are not an
// error unless the config path was set explicitly.
func loadConfig(cmd *cobra.Command) (imagegate.Config, error) {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return imagegate.Config{}, fmt.Errorf("load env file %s: %w", envFile, err)
	}

	if _, err := os.Stat(configPath); errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") {
		cfg := imagegate.DefaultConfig()
		return cfg, cfg.Validate()
	}
	return imagegate.LoadConfig(configPath)
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
