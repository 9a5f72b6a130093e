package server

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/static"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mapsite/mapsite/internal/version"
)

// AppOptions controls how the preview application behaves.
type AppOptions struct {
	Logger     *logrus.Logger
	SiteRoot   string
	ListenPort int
}

const contextKeyRequestID = "_mapsite_request_id"

// NewApp builds a Fiber application with recover, request-ID and access-log
// middleware plus the health endpoint. Static files are mounted separately via
// MountSite so diagnostics routes registered in between take precedence.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.ListenPort <= 0 || opts.ListenPort > 65535 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}
	if info, err := os.Stat(opts.SiteRoot); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("site root %q is not a directory", opts.SiteRoot)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
		AppName:       version.Full(),
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware(opts.Logger))

	app.Get("/-/healthz", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"version": version.Full(),
		})
	})

	return app, nil
}

// MountSite serves SiteRoot for every path not matched by earlier routes.
func MountSite(app *fiber.App, root string) {
	app.Get("/*", static.New(root))
}

// requestContextMiddleware 生成请求 ID 并在响应后记录访问日志。
func requestContextMiddleware(logger *logrus.Logger) fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)

		started := time.Now()
		err := c.Next()

		fields := logrus.Fields{
			"action":     "preview",
			"request_id": reqID,
			"method":     c.Method(),
			"path":       c.Path(),
			"status":     c.Response().StatusCode(),
			"elapsed_ms": time.Since(started).Milliseconds(),
		}
		if err != nil {
			logger.WithFields(fields).WithError(err).Warn("request_failed")
			return err
		}
		if !isDiagnosticsPath(c.Path()) {
			logger.WithFields(fields).Debug("request_served")
		}
		return nil
	}
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

func isDiagnosticsPath(path string) bool {
	return strings.HasPrefix(path, "/-/")
}
