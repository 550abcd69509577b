package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCamerasCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cameras",
		Short: "List backend cameras",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.load()
			if err != nil {
				return fmt.Errorf("cameras: %w", err)
			}

			ctx, cancel := signalContext()
			defer cancel()

			cameras, err := s.Cameras(ctx)
			if err != nil {
				return fmt.Errorf("cameras: %w", err)
			}
			out := cmd.OutOrStdout()
			for _, c := range cameras {
				state := "active"
				switch {
				case c.Archived:
					state = "archived"
				case !c.Active:
					state = "inactive"
				}
				fmt.Fprintf(out, "%d\t%s\t%s\n", c.ID, c.Name, state)
			}
			return nil
		},
	}
	cmd.AddCommand(newCameraAddCmd(a))
	return cmd
}

func newCameraAddCmd(a *app) *cobra.Command {
	var inactive bool
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Register a camera on the backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.load()
			if err != nil {
				return fmt.Errorf("cameras add: %w", err)
			}

			ctx, cancel := signalContext()
			defer cancel()

			cam, err := s.CreateCamera(ctx, args[0], !inactive)
			if err != nil {
				return fmt.Errorf("cameras add: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created camera %d %s\n", cam.ID, cam.Name)
			return nil
		},
	}
	cmd.Flags().BoolVar(&inactive, "inactive", false, "create the camera inactive")
	return cmd
}
