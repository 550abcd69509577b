package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/your-org/fdsender/internal/models"
	"github.com/your-org/fdsender/internal/queue"
)

func newWatchCmd(a *app) *cobra.Command {
	var cameraIDs []int64
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow batches sent by any fdsend process",
		Long:  "Print a line for every batch published to the sent stream until interrupted.\nRequires nats.url.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.config()
			if err != nil {
				return fmt.Errorf("watch: %w", err)
			}
			if cfg.NATS.URL == "" {
				return errors.New("watch: nats.url is not configured")
			}

			consumer, err := queue.NewConsumer(cfg.NATS.URL)
			if err != nil {
				return fmt.Errorf("watch: %w", err)
			}
			defer consumer.Close()

			ctx, cancel := signalContext()
			defer cancel()

			out := cmd.OutOrStdout()
			err = consumer.ConsumeSent(ctx, func(_ context.Context, n models.SentNotice) error {
				printNotice(out, n)
				return nil
			}, cameraIDs...)
			if err != nil {
				return fmt.Errorf("watch: %w", err)
			}

			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().Int64SliceVar(&cameraIDs, "camera-id", nil, "only these camera ids")
	return cmd
}

func printNotice(w io.Writer, n models.SentNotice) {
	fmt.Fprintf(w, "%s  %-24s x%-4d camera %-4d ts %d  run %s\n",
		n.SentAt.Local().Format(time.TimeOnly), n.Template, n.Count, n.CameraID, n.Timestamp, n.RunID)
}
