package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/mapsite/mapsite/internal/cache"
	"github.com/mapsite/mapsite/internal/logging"
)

const defaultMaxImageBytes = 32 * 1024 * 1024

// Options 汇总构造 Ingestor 所需的依赖与参数。
type Options struct {
	Store  cache.Store
	Client *http.Client
	Logger *logrus.Logger

	// PublicPrefix 是返回路径的前缀，例如 /assets/data/images。
	PublicPrefix  string
	UserAgent     string
	MaxImageBytes int64
	Transcoder    Transcoder
	// Concurrency 是 ResolveBatch 的并发度，1 表示严格顺序执行。
	Concurrency int
}

// Stats 是一次运行内的计数快照。
type Stats struct {
	Requested  int64 `json:"requested"`
	MemoryHits int64 `json:"memory_hits"`
	DiskHits   int64 `json:"disk_hits"`
	Fetched    int64 `json:"fetched"`
	Stored     int64 `json:"stored"`
	StoredRaw  int64 `json:"stored_raw"`
	Invalid    int64 `json:"invalid"`
	Failed     int64 `json:"failed"`
}

type counters struct {
	requested, memoryHits, diskHits, fetched, stored, storedRaw, invalid, failed atomic.Int64
}

// Ingestor 把图片 URL 解析为本地引用路径：内存表 → 磁盘探测 → 抓取转码写盘。
// 同一 Ingestor 的内存表只在本次运行内有效，磁盘文件跨运行持久存在。
type Ingestor struct {
	store      cache.Store
	fetcher    *fetcher
	transcoder Transcoder
	log        *logrus.Entry
	prefix     string
	workers    int

	mu       sync.Mutex
	resolved map[string]string // key: 原始 URL，value: 公开引用路径
	owners   map[string]string // key: 文件名，value: 首个解析到它的 URL

	flights singleflight.Group
	stats   counters
}

// New 构造 Ingestor；Store 与 Client 必须注入。
func New(opts Options) (*Ingestor, error) {
	if opts.Store == nil {
		return nil, errors.New("image store is required")
	}
	if opts.Client == nil {
		return nil, errors.New("http client is required")
	}
	maxBytes := opts.MaxImageBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxImageBytes
	}
	workers := opts.Concurrency
	if workers < 1 {
		workers = 1
	}
	transcoder := opts.Transcoder
	if transcoder.Quality <= 0 {
		transcoder.Quality = 85
	}

	return &Ingestor{
		store: opts.Store,
		fetcher: &fetcher{
			client:    opts.Client,
			userAgent: opts.UserAgent,
			maxBytes:  maxBytes,
		},
		transcoder: transcoder,
		log:        logging.Component(opts.Logger, "ingest"),
		prefix:     strings.TrimSuffix(opts.PublicPrefix, "/"),
		workers:    workers,
		resolved:   make(map[string]string),
		owners:     make(map[string]string),
	}, nil
}

// Resolve 返回 rawURL 对应的公开引用路径；空字符串表示无法解析（Absent）。
// 图片目录的文件系统错误以 *WriteError 返回，ctx 取消时返回 ctx.Err()。
func (i *Ingestor) Resolve(ctx context.Context, rawURL string) (string, error) {
	i.stats.requested.Add(1)

	id, err := NewIdentity(rawURL)
	if err != nil {
		i.stats.invalid.Add(1)
		i.log.WithField("image_url", rawURL).Debug("image_url_invalid")
		return "", nil
	}

	if p, ok := i.lookup(rawURL); ok {
		i.stats.memoryHits.Add(1)
		return p, nil
	}

	// 同一标识的并发请求合并为一次磁盘探测/抓取。
	value, err, _ := i.flights.Do(id.Name(), func() (interface{}, error) {
		return i.resolveIdentity(ctx, id)
	})
	if err != nil {
		return "", err
	}

	p, _ := value.(string)
	if p != "" {
		i.remember(id, p)
	}
	return p, nil
}

// ResolveBatch 逐个解析 urls，结果与输入等长且顺序一致；重复 URL 第二次起命中缓存。
// 单个 URL 的失败只会得到空字符串；文件系统错误或 ctx 取消会终止批次并返回错误。
func (i *Ingestor) ResolveBatch(ctx context.Context, urls []string) ([]string, error) {
	results := make([]string, len(urls))
	if len(urls) == 0 {
		return results, nil
	}

	started := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.workers)
	for idx, rawURL := range urls {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p, err := i.Resolve(gctx, rawURL)
			if err != nil {
				return err
			}
			results[idx] = p
			return nil
		})
	}
	err := g.Wait()

	resolved := 0
	for _, p := range results {
		if p != "" {
			resolved++
		}
	}
	fields := logrus.Fields{
		"requested":  len(urls),
		"resolved":   resolved,
		"elapsed_ms": time.Since(started).Milliseconds(),
	}
	if err != nil {
		i.log.WithFields(fields).WithError(err).Error("image_batch_aborted")
		return results, err
	}
	i.log.WithFields(fields).Debug("image_batch_complete")
	return results, nil
}

// Stats 返回当前计数快照。
func (i *Ingestor) Stats() Stats {
	return Stats{
		Requested:  i.stats.requested.Load(),
		MemoryHits: i.stats.memoryHits.Load(),
		DiskHits:   i.stats.diskHits.Load(),
		Fetched:    i.stats.fetched.Load(),
		Stored:     i.stats.stored.Load(),
		StoredRaw:  i.stats.storedRaw.Load(),
		Invalid:    i.stats.invalid.Load(),
		Failed:     i.stats.failed.Load(),
	}
}

func (i *Ingestor) resolveIdentity(ctx context.Context, id Identity) (string, error) {
	name, err := i.probeDisk(ctx, id)
	if err != nil {
		return "", err
	}
	if name != "" {
		i.stats.diskHits.Add(1)
		i.log.WithFields(logging.ImageFields(id.URL, name, true)).Debug("image_cache_hit")
		return i.publicPath(name), nil
	}

	fields := logging.ImageFields(id.URL, id.Name(), false)
	started := time.Now()

	res, err := i.fetcher.fetch(ctx, id.URL)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		i.stats.failed.Add(1)
		i.log.WithFields(fields).WithError(err).Warn("image_fetch_failed")
		return "", nil
	}
	i.stats.fetched.Add(1)

	if !strings.HasPrefix(strings.ToLower(res.ContentType), "image/") {
		i.log.WithFields(fields).
			WithField("content_type", res.ContentType).
			Warn("image_content_type_mismatch")
	}

	out, err := i.transcoder.Transcode(res.Body)
	if err != nil {
		// 已经拿到字节就一定落盘：原样保存在猜测扩展名下。
		i.log.WithFields(fields).WithError(err).Warn("image_transcode_failed")
		if res.FinalURL != id.URL {
			fields["final_url"] = res.FinalURL
		}
		if err := i.put(ctx, id.Name(), res.Body); err != nil {
			return "", err
		}
		i.stats.storedRaw.Add(1)
		fields["size"] = humanize.Bytes(uint64(len(res.Body)))
		fields["elapsed_ms"] = time.Since(started).Milliseconds()
		i.log.WithFields(fields).Info("image_stored_raw")
		return i.publicPath(id.Name()), nil
	}

	name = id.StoredName()
	if err := i.put(ctx, name, out.Data); err != nil {
		return "", err
	}
	i.stats.stored.Add(1)

	fields["identity"] = name
	if res.FinalURL != id.URL {
		fields["final_url"] = res.FinalURL
	}
	fields["source_format"] = out.SourceFormat
	fields["size"] = humanize.Bytes(uint64(len(out.Data)))
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if out.Resized() {
		fields["resized_from"] = dims(out.SourceWidth, out.SourceHeight)
		fields["resized_to"] = dims(out.Width, out.Height)
	}
	i.log.WithFields(fields).Info("image_stored")
	return i.publicPath(name), nil
}

// probeDisk 依次检查猜测扩展名与 .jpg 改写形式，返回首个存在的文件名。
func (i *Ingestor) probeDisk(ctx context.Context, id Identity) (string, error) {
	for _, name := range id.Candidates() {
		_, err := i.store.Stat(ctx, name)
		switch {
		case err == nil:
			return name, nil
		case errors.Is(err, cache.ErrNotFound):
			continue
		case isCanceled(err):
			return "", err
		default:
			return "", &WriteError{Name: name, Op: "stat", Err: err}
		}
	}
	return "", nil
}

func (i *Ingestor) put(ctx context.Context, name string, data []byte) error {
	_, err := i.store.PutOnce(ctx, name, bytes.NewReader(data))
	if err == nil || errors.Is(err, cache.ErrExists) {
		return nil
	}
	if isCanceled(err) {
		return err
	}
	return &WriteError{Name: name, Op: "write", Err: err}
}

// isCanceled 区分上下文取消与真正的存储故障。
func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (i *Ingestor) lookup(rawURL string) (string, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	p, ok := i.resolved[rawURL]
	return p, ok
}

func (i *Ingestor) remember(id Identity, publicPath string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.resolved[id.URL] = publicPath
	owner, seen := i.owners[id.Hash]
	if !seen {
		i.owners[id.Hash] = id.URL
		return
	}
	if owner != id.URL {
		i.log.WithFields(logrus.Fields{
			"image_url":   id.URL,
			"collides_to": owner,
			"hash":        id.Hash,
		}).Warn("image_identity_collision")
	}
}

func (i *Ingestor) publicPath(name string) string {
	return i.prefix + "/" + name
}

func dims(w, h int) string {
	return fmt.Sprintf("%dx%d", w, h)
}
