package main

import (
	"github.com/spf13/cobra"
)

// newRootCmd creates the root fdsend command with all subcommands attached.
func newRootCmd() *cobra.Command {
	return newRootCmdWithApp(&app{})
}

func newRootCmdWithApp(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "fdsend",
		Short:         "Synthetic detection sender",
		Long:          "fdsend crafts synthetic detection events, pushes them into the analytics backend\nand reconciles them against its index.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(*cobra.Command, []string) {
			a.close()
		},
	}

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "path to config file")

	cmd.AddCommand(
		newSendCmd(a),
		newEnsureCmd(a),
		newGuardCmd(a),
		newDiffCmd(a),
		newDiffCamerasCmd(a),
		newCountCmd(a),
		newAgesCmd(a),
		newCamerasCmd(a),
		newWatchCmd(a),
	)

	return cmd
}
