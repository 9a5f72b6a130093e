package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand(exitCode *int) *cobra.Command {
	var configFlag string
	opts := func() cliOptions {
		return cliOptions{configPath: resolveConfigPath(configFlag)}
	}

	rootCmd := &cobra.Command{
		Use:           "mapsite",
		Short:         "Build a map site from My Maps KML or CSV data with locally cached images",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "配置文件路径（默认 ./config.toml，可被 "+configEnv+" 覆盖）")

	rootCmd.AddCommand(newBuildCommand(exitCode, opts))
	rootCmd.AddCommand(newImagesCommand(exitCode, opts))
	rootCmd.AddCommand(newServeCommand(exitCode, opts))
	rootCmd.AddCommand(newCheckConfigCommand(exitCode, opts))
	rootCmd.AddCommand(newVersionCommand(exitCode))

	return rootCmd
}
