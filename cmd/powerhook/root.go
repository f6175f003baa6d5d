package main

import (
	"github.com/spf13/cobra"

	"tools.zach/dev/powerhook/internal/paths"
)

// commandContext carries the persistent flags shared by every subcommand.
type commandContext struct {
	dataDirFlag string
}

// dataDir resolves the --data-dir flag, $POWERHOOK_HOME or the default.
func (c *commandContext) dataDir() (paths.DataDir, error) {
	return paths.Resolve(c.dataDirFlag)
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           paths.BinaryName,
		Short:         "Run hooks when the machine sleeps and wakes",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&ctx.dataDirFlag, "data-dir", "", "Data directory for config, state, hooks and logs (default $"+paths.HomeEnv+" or ~/"+paths.DataDirRel+")")

	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newStopCommand(ctx))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the powerhook version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := cmd.OutOrStdout().Write([]byte(paths.BinaryName + " " + resolveVersion() + "\n"))
			return err
		},
	}
}
