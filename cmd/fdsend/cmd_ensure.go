package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/your-org/fdsender/internal/precondition"
)

func newEnsureCmd(a *app) *cobra.Command {
	var scope precondition.Scope
	cmd := &cobra.Command{
		Use:   "ensure <template=count> [template=count...]",
		Short: "Top up templates to at least the given counts",
		Long:  "Send whatever is missing so that each template has at least count matching\nobjects within the scope. Targets already met send nothing.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conditions, err := parseConditions(args)
			if err != nil {
				return fmt.Errorf("ensure: %w", err)
			}
			s, err := a.load()
			if err != nil {
				return fmt.Errorf("ensure: %w", err)
			}

			ctx, cancel := signalContext()
			defer cancel()

			if err := s.CheckMin(ctx, conditions, scope); err != nil {
				return fmt.Errorf("ensure: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Ensured %d conditions\n", len(conditions))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&scope.Cameras, "cameras", nil, "restrict to these cameras")
	return cmd
}

func newGuardCmd(a *app) *cobra.Command {
	var scope precondition.Scope
	cmd := &cobra.Command{
		Use:   "guard <template=count> [template=count...]",
		Short: "Fail when a template exceeds the given counts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conditions, err := parseConditions(args)
			if err != nil {
				return fmt.Errorf("guard: %w", err)
			}
			s, err := a.load()
			if err != nil {
				return fmt.Errorf("guard: %w", err)
			}

			ctx, cancel := signalContext()
			defer cancel()

			if err := s.CheckMax(ctx, conditions, scope); err != nil {
				return fmt.Errorf("guard: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "All %d conditions within bounds\n", len(conditions))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&scope.Cameras, "cameras", nil, "restrict to these cameras")
	return cmd
}
