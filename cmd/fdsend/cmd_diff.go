package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/your-org/fdsender/internal/precondition"
)

func newDiffCmd(a *app) *cobra.Command {
	var (
		scope    precondition.Scope
		minCount int
	)
	cmd := &cobra.Command{
		Use:   "diff <template> <template> [template...]",
		Short: "Make template counts strictly increasing in argument order",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.load()
			if err != nil {
				return fmt.Errorf("diff: %w", err)
			}

			ctx, cancel := signalContext()
			defer cancel()

			if err := s.CheckDiff(ctx, args, scope, minCount); err != nil {
				return fmt.Errorf("diff: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Ordered %d templates\n", len(args))
			return nil
		},
	}
	cmd.Flags().IntVar(&minCount, "min", 0, "minimum count of the first template")
	cmd.Flags().StringSliceVar(&scope.Cameras, "cameras", nil, "restrict to these cameras")
	return cmd
}

func newDiffCamerasCmd(a *app) *cobra.Command {
	var sets []string
	cmd := &cobra.Command{
		Use:   "diff-cameras <template> --set cam[,cam] --set cam[,cam]...",
		Short: "Make one template's counts strictly increasing across camera sets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(sets) < 2 {
				return fmt.Errorf("diff-cameras: want at least two --set flags, got %d", len(sets))
			}
			cameraSets := make([][]string, len(sets))
			for i, set := range sets {
				cameraSets[i] = splitList(set)
			}

			s, err := a.load()
			if err != nil {
				return fmt.Errorf("diff-cameras: %w", err)
			}

			ctx, cancel := signalContext()
			defer cancel()

			if err := s.CheckDiffInCameras(ctx, args[0], cameraSets...); err != nil {
				return fmt.Errorf("diff-cameras: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Ordered %s across %d camera sets\n", args[0], len(cameraSets))
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&sets, "set", nil, "comma-separated camera set (repeatable, in order)")
	return cmd
}
