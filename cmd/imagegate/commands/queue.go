package commands

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/ineyio/imagegate"
)

var queueJSON bool

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Show or reset the admission state",
}

var queueStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show active slots and today's usage",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withQueue(cmd, func(ctx context.Context, q *imagegate.Queue) error {
			st := q.Status(ctx)
			if queueJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}
			printf("%s\n", renderStatus(st))
			return nil
		})
	},
}

var queueResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Force the active count to zero",
	Long: `Force the active count to zero. Use this to clear slots left behind
by processes that exited without releasing them. Requests still running
will release their slots normally; the count is floored at zero.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withQueue(cmd, func(ctx context.Context, q *imagegate.Queue) error {
			before := q.Counter().Active(ctx)
			q.Counter().Reset(ctx)
			printf("active count reset (was %d)\n", before)
			return nil
		})
	},
}

func init() {
	queueStatusCmd.Flags().BoolVar(&queueJSON, "json", false, "print status as JSON")
	queueCmd.AddCommand(queueStatusCmd, queueResetCmd)
	rootCmd.AddCommand(queueCmd)
}

// withQueue opens the configured store and runs fn with a Queue over it.
func withQueue(cmd *cobra.Command, fn func(context.Context, *imagegate.Queue) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, closeStore, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	q, err := imagegate.NewQueue(cfg.Queue, st, imagegate.WithLogger(logger))
	if err != nil {
		return err
	}
	defer q.Close()

	return fn(ctx, q)
}
