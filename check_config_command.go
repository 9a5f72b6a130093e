package main

import (
	"fmt"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/mapsite/mapsite/internal/config"
	"github.com/mapsite/mapsite/internal/logging"
)

type checkConfigOptions struct {
	cliOptions
	print bool
}

func newCheckConfigCommand(exitCode *int, base func() cliOptions) *cobra.Command {
	var printFlag bool
	cmd := &cobra.Command{
		Use:   "check-config",
		Short: "仅校验配置后退出",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().BoolVar(&printFlag, "print", false, "校验通过后输出补全默认值的配置")
	cmd.RunE = runWith(exitCode, func() int {
		return runCheckConfig(checkConfigOptions{cliOptions: base(), print: printFlag})
	})
	return cmd
}

// effectiveConfig 把全局字段展开到顶层，与配置文件的书写方式一致。
type effectiveConfig struct {
	config.GlobalConfig
	Source config.SourceConfig `toml:"Source"`
}

func runCheckConfig(opts checkConfigOptions) int {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	fields := logging.BaseFields("check_config", opts.configPath)
	fields["source_type"] = cfg.Source.Type
	fields["images_dir"] = cfg.Global.ImagesPath()
	fields["output"] = cfg.Global.OutputFile()
	fields["result"] = "ok"
	logger.WithFields(fields).Info("配置校验通过")

	if opts.print {
		data, err := toml.Marshal(effectiveConfig{GlobalConfig: cfg.Global, Source: cfg.Source})
		if err != nil {
			fmt.Fprintf(stdErr, "输出配置失败: %v\n", err)
			return 1
		}
		_, _ = stdOut.Write(data)
	}
	return 0
}
