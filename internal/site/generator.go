package site

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"

	"github.com/mapsite/mapsite/internal/cache"
	"github.com/mapsite/mapsite/internal/config"
	"github.com/mapsite/mapsite/internal/geojson"
	"github.com/mapsite/mapsite/internal/ingest"
	"github.com/mapsite/mapsite/internal/logging"
	"github.com/mapsite/mapsite/internal/server"
	"github.com/mapsite/mapsite/internal/source"
)

const lockFileName = "mapsite.lock"

// ErrLocked 表示另一个构建进程正持有工作目录锁。
var ErrLocked = errors.New("another build is already running")

// Options 汇总 Generator 的依赖；Client 与 Source 缺省时按配置构造。
type Options struct {
	Config *config.Config
	Logger *logrus.Logger
	Client *http.Client
	Source source.Source
}

// Report 汇总一次构建的结果。
type Report struct {
	Features        int           `json:"features"`
	WithImages      int           `json:"with_images"`
	ImagesRequested int           `json:"images_requested"`
	ImagesResolved  int           `json:"images_resolved"`
	Pages           int           `json:"pages"`
	OutputPath      string        `json:"output_path"`
	Ingest          ingest.Stats  `json:"ingest"`
	Elapsed         time.Duration `json:"elapsed"`
}

// Generator 执行站点构建。同一工作目录同一时间只允许一个构建。
type Generator struct {
	cfg    *config.Config
	logger *logrus.Logger
	log    *logrus.Entry
	client *http.Client
	source source.Source
	lock   *flock.Flock
}

// New 构造 Generator；数据源未注入时按 Source.Type 从注册表打开。
func New(opts Options) (*Generator, error) {
	if opts.Config == nil {
		return nil, errors.New("config is required")
	}
	client := opts.Client
	if client == nil {
		client = server.NewUpstreamClient(opts.Config)
	}
	src := opts.Source
	if src == nil {
		var err error
		src, err = source.Open(source.Deps{Config: opts.Config, Client: client, Logger: opts.Logger})
		if err != nil {
			return nil, err
		}
	}
	return &Generator{
		cfg:    opts.Config,
		logger: opts.Logger,
		log:    logging.Component(opts.Logger, "site"),
		client: client,
		source: src,
		lock:   flock.New(filepath.Join(opts.Config.Global.WorkDir, lockFileName)),
	}, nil
}

// Run 执行一次完整构建。图片目录写入失败会中止构建并返回错误。
func (g *Generator) Run(ctx context.Context) (*Report, error) {
	started := time.Now()
	if err := os.MkdirAll(g.cfg.Global.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	ok, err := g.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (lock %s)", ErrLocked, g.lock.Path())
	}
	defer func() {
		if err := g.lock.Unlock(); err != nil {
			g.log.WithError(err).Warn("site_unlock_failed")
		}
	}()

	features, err := g.source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load features: %w", err)
	}

	ingestor, err := g.newIngestor()
	if err != nil {
		return nil, err
	}

	report := &Report{Features: len(features), OutputPath: g.cfg.Global.OutputFile()}
	for i := range features {
		props := features[i].Properties
		if _, ok := props[geojson.ImagesKey]; !ok {
			continue
		}
		urls := geojson.ImageURLs(props, geojson.ImagesKey)
		resolved, err := ingestor.ResolveBatch(ctx, urls)
		if err != nil {
			return nil, fmt.Errorf("ingest images for feature %q: %w", features[i].String("nome"), err)
		}
		geojson.ReplaceImages(props, geojson.ImagesKey, resolved)

		if len(urls) > 0 {
			report.WithImages++
		}
		report.ImagesRequested += len(urls)
		for _, p := range resolved {
			if p != "" {
				report.ImagesResolved++
			}
		}
	}

	// 中断的构建不能覆盖上一次完整的产物。
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("build interrupted: %w", err)
	}

	collection := geojson.NewCollection(g.source.LayerName(), features)
	if err := geojson.WriteFile(report.OutputPath, collection); err != nil {
		return nil, fmt.Errorf("write geojson: %w", err)
	}
	g.log.WithFields(logrus.Fields{
		"path":     report.OutputPath,
		"features": len(features),
	}).Info("geojson_written")

	if dir := g.cfg.Global.PagesPath(); dir != "" {
		pages, err := WritePages(dir, features, g.log)
		if err != nil {
			return nil, fmt.Errorf("write pages: %w", err)
		}
		report.Pages = pages
	}

	report.Ingest = ingestor.Stats()
	report.Elapsed = time.Since(started)
	g.log.WithFields(logrus.Fields{
		"action":           "build",
		"features":         report.Features,
		"with_images":      report.WithImages,
		"images_requested": report.ImagesRequested,
		"images_resolved":  report.ImagesResolved,
		"pages":            report.Pages,
		"elapsed_ms":       report.Elapsed.Milliseconds(),
	}).Info("site_build_complete")
	return report, nil
}

func (g *Generator) newIngestor() (*ingest.Ingestor, error) {
	store, err := cache.NewStore(g.cfg.Global.ImagesPath())
	if err != nil {
		return nil, fmt.Errorf("open image store: %w", err)
	}
	global := g.cfg.Global
	return ingest.New(ingest.Options{
		Store:         store,
		Client:        g.client,
		Logger:        g.logger,
		PublicPrefix:  global.PublicImagePrefix(),
		UserAgent:     global.UserAgent,
		MaxImageBytes: global.MaxImageBytes,
		Transcoder: ingest.Transcoder{
			MaxWidth:  global.MaxWidth,
			MaxHeight: global.MaxHeight,
			Quality:   global.JPEGQuality,
		},
		Concurrency: global.Concurrency,
	})
}
