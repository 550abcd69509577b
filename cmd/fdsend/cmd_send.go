package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/your-org/fdsender/internal/dispatch"
)

func newSendCmd(a *app) *cobra.Command {
	var (
		req  dispatch.SendRequest
		meta []string
	)
	cmd := &cobra.Command{
		Use:   "send <template>",
		Short: "Send a batch of synthetic events",
		Long:  "Craft --count events from a template key such as face-male or vehicle-type-sedan\nand submit them. --resolve waits until the backend has indexed them;\n--wait-cluster also waits for cluster membership.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.load()
			if err != nil {
				return fmt.Errorf("send: %w", err)
			}
			req.Template = args[0]
			if req.Metadata, err = parseMetadata(meta); err != nil {
				return fmt.Errorf("send: %w", err)
			}

			ctx, cancel := signalContext()
			defer cancel()

			events, err := s.Send(ctx, req)
			out := cmd.OutOrStdout()
			if len(events) > 0 {
				fmt.Fprintf(out, "Sent %d %s events at %d\n", len(events), req.Template, events[0].Timestamp)
			}
			for _, ev := range events {
				if !ev.Resolved() {
					continue
				}
				size := 1
				if ev.ClusterSize != nil {
					size = *ev.ClusterSize
				}
				fmt.Fprintf(out, "  %s -> id %d (cluster %d)\n", ev.LocalID, *ev.ID, size)
			}
			if err != nil {
				return fmt.Errorf("send: %w", err)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.IntVarP(&req.Count, "count", "n", 1, "number of events")
	f.StringVar(&req.Camera, "camera", "", "camera name or id (default from config)")
	f.Int64Var(&req.Timestamp, "timestamp", 0, "epoch seconds (default: paced now)")
	f.BoolVar(&req.Resolve, "resolve", false, "wait until the backend has indexed the events")
	f.BoolVar(&req.WaitForCluster, "wait-cluster", false, "also wait for cluster membership")
	f.BoolVar(&req.Untracked, "untracked", false, "do not record the events locally")
	f.StringArrayVar(&meta, "meta", nil, "extra metadata key=value (repeatable)")
	return cmd
}
