package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

const configEnv = "MAPSITE_CONFIG"

func main() {
	os.Exit(execute(os.Args[1:]))
}

// execute 构建命令树并执行，返回进程退出码，方便测试。
// cobra 只负责参数解析，解析失败返回 2；业务结果由各 run* 函数的返回值决定。
func execute(args []string) int {
	exitCode := 0
	root := newRootCommand(&exitCode)
	root.SetArgs(args)
	root.SetOut(stdOut)
	root.SetErr(stdErr)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(stdErr, "解析参数失败: %v\n", err)
		return 2
	}
	return exitCode
}

// cliOptions 汇总所有子命令共享的选项。
type cliOptions struct {
	configPath string
}

// resolveConfigPath 按 --config > MAPSITE_CONFIG > ./config.toml 的优先级计算配置路径。
func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv(configEnv); env != "" {
		return env
	}
	return "config.toml"
}

// runWith 把 run* 的退出码写回 exitCode。
func runWith(exitCode *int, fn func() int) func(*cobra.Command, []string) error {
	return func(*cobra.Command, []string) error {
		*exitCode = fn()
		return nil
	}
}
