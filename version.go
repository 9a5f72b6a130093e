package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mapsite/mapsite/internal/version"
)

func newVersionCommand(exitCode *int) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "显示版本信息",
		Args:  cobra.NoArgs,
		RunE:  runWith(exitCode, runVersion),
	}
}

// runVersion 输出注入的版本 + 提交信息。
func runVersion() int {
	fmt.Fprintln(stdOut, version.Full())
	return 0
}
