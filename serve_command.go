package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mapsite/mapsite/internal/cache"
	"github.com/mapsite/mapsite/internal/config"
	"github.com/mapsite/mapsite/internal/logging"
	"github.com/mapsite/mapsite/internal/server"
	"github.com/mapsite/mapsite/internal/server/routes"
	"github.com/mapsite/mapsite/internal/version"
)

type serveOptions struct {
	cliOptions
	port int
}

func newServeCommand(exitCode *int, base func() cliOptions) *cobra.Command {
	var portFlag int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "启动本地预览服务器",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().IntVarP(&portFlag, "port", "p", 0, "监听端口（覆盖 ListenPort）")
	cmd.RunE = runWith(exitCode, func() int {
		return runServe(serveOptions{cliOptions: base(), port: portFlag})
	})
	return cmd
}

func runServe(opts serveOptions) int {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}
	if opts.port > 0 {
		cfg.Global.ListenPort = opts.port
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	app, err := newPreviewApp(cfg, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化预览服务失败: %v\n", err)
		return 1
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["site_root"] = cfg.Global.SiteRoot
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("预览服务启动")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		_ = app.Shutdown()
	}()

	if err := app.Listen(fmt.Sprintf(":%d", cfg.Global.ListenPort), fiber.ListenConfig{
		DisableStartupMessage: true,
	}); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// newPreviewApp 依次挂载中间件、诊断接口与静态站点，诊断路由必须先于静态文件注册。
func newPreviewApp(cfg *config.Config, logger *logrus.Logger) (*fiber.App, error) {
	store, err := cache.NewStore(cfg.Global.ImagesPath())
	if err != nil {
		return nil, err
	}
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		SiteRoot:   cfg.Global.SiteRoot,
		ListenPort: cfg.Global.ListenPort,
	})
	if err != nil {
		return nil, err
	}
	routes.RegisterDiagnosticRoutes(app, routes.Diagnostics{Store: store, Config: cfg})
	server.MountSite(app, cfg.Global.SiteRoot)
	return app, nil
}
