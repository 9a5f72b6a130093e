package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mapsite/mapsite/internal/config"
	"github.com/mapsite/mapsite/internal/ingest"
	"github.com/mapsite/mapsite/internal/logging"
	"github.com/mapsite/mapsite/internal/site"
	"github.com/mapsite/mapsite/internal/version"
)

type buildOptions struct {
	cliOptions
	local bool
}

func newBuildCommand(exitCode *int, base func() cliOptions) *cobra.Command {
	var localFlag bool
	cmd := &cobra.Command{
		Use:   "build",
		Short: "下载要素、摄取图片并写出 GeoJSON 与要素页面",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().BoolVar(&localFlag, "local", false, "使用工作目录中已保存的 KML/CSV 副本")
	cmd.RunE = runWith(exitCode, func() int {
		return runBuild(buildOptions{cliOptions: base(), local: localFlag})
	})
	return cmd
}

// runBuild 遵循“配置 → 日志 → 数据源 → 图片摄取 → 输出”顺序执行一次构建。
func runBuild(opts buildOptions) int {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}
	if opts.local {
		cfg.Source.Local = true
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	fields := logging.BaseFields("build", opts.configPath)
	fields["source_type"] = cfg.Source.Type
	fields["local"] = cfg.Source.Local
	fields["concurrency"] = cfg.Global.Concurrency
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("构建开始")

	gen, err := site.New(site.Options{Config: cfg, Logger: logger})
	if err != nil {
		fmt.Fprintf(stdErr, "初始化构建失败: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := gen.Run(ctx)
	if err != nil {
		switch {
		case errors.Is(err, site.ErrLocked):
			fmt.Fprintf(stdErr, "另一个构建正在运行: %v\n", err)
		case errors.Is(err, context.Canceled):
			fmt.Fprintf(stdErr, "构建被中断，未写出任何产物: %v\n", err)
		case ingest.IsFatal(err):
			fmt.Fprintf(stdErr, "图片目录写入失败: %v\n", err)
		default:
			fmt.Fprintf(stdErr, "构建失败: %v\n", err)
		}
		return 1
	}

	fmt.Fprintf(stdOut, "features=%d images=%d/%d pages=%d output=%s\n",
		report.Features, report.ImagesResolved, report.ImagesRequested, report.Pages, report.OutputPath)
	return 0
}
