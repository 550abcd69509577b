package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/your-org/fdsender/internal/sender"
)

type countFlags struct {
	cameras   []string
	timeslice string
	from, to  string
}

func (f *countFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.cameras, "cameras", nil, "restrict to these cameras")
	cmd.Flags().StringVar(&f.timeslice, "timeslice", "", "rolling window: 5m, 1h, 12h, 1d, 7d, 30d")
	cmd.Flags().StringVar(&f.from, "from", "", "window start (RFC 3339), overrides --timeslice")
	cmd.Flags().StringVar(&f.to, "to", "", "window end (RFC 3339)")
}

func (f *countFlags) options() (sender.CountOptions, error) {
	opts := sender.CountOptions{Cameras: f.cameras, Timeslice: f.timeslice}
	for _, b := range []struct {
		raw string
		dst **time.Time
	}{{f.from, &opts.From}, {f.to, &opts.To}} {
		if b.raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, b.raw)
		if err != nil {
			return sender.CountOptions{}, err
		}
		*b.dst = &t
	}
	return opts, nil
}

func newCountCmd(a *app) *cobra.Command {
	var flags countFlags
	cmd := &cobra.Command{
		Use:   "count <template>",
		Short: "Count known objects matching a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.options()
			if err != nil {
				return fmt.Errorf("count: %w", err)
			}
			s, err := a.load()
			if err != nil {
				return fmt.Errorf("count: %w", err)
			}

			ctx, cancel := signalContext()
			defer cancel()

			n, err := s.ObjectsCount(ctx, args[0], opts)
			if err != nil {
				return fmt.Errorf("count: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newAgesCmd(a *app) *cobra.Command {
	var flags countFlags
	cmd := &cobra.Command{
		Use:   "ages <min> <max>",
		Short: "Count faces aged within [min, max]",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			minAge, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("ages: invalid min %q: %w", args[0], err)
			}
			maxAge, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("ages: invalid max %q: %w", args[1], err)
			}
			opts, err := flags.options()
			if err != nil {
				return fmt.Errorf("ages: %w", err)
			}
			s, err := a.load()
			if err != nil {
				return fmt.Errorf("ages: %w", err)
			}

			ctx, cancel := signalContext()
			defer cancel()

			n, err := s.ObjectsCountForAges(ctx, minAge, maxAge, opts)
			if err != nil {
				return fmt.Errorf("ages: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
