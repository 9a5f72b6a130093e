package source

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/mapsite/mapsite/internal/config"
	"github.com/mapsite/mapsite/internal/geojson"
)

// Source 产出一组待处理的地图要素。
type Source interface {
	// Load 下载（或读取本地副本）并解析为要素列表，顺序与源数据一致。
	Load(ctx context.Context) ([]geojson.Feature, error)
	// LayerName 返回写入 FeatureCollection.name 的图层名。
	LayerName() string
}

// Deps 是构造数据源时注入的依赖。
type Deps struct {
	Config *config.Config
	Client *http.Client
	Logger *logrus.Logger
}

// Factory 根据配置构造数据源。
type Factory func(Deps) (Source, error)

// Metadata 记录一种数据源类型的静态信息。
type Metadata struct {
	Key         string
	Description string
	New         Factory
}

var globalRegistry = newRegistry()

type registry struct {
	mu      sync.RWMutex
	sources map[string]Metadata
}

func newRegistry() *registry {
	return &registry{sources: make(map[string]Metadata)}
}

// Register 将数据源类型加入全局注册表，重复键会返回错误。
func Register(meta Metadata) error {
	return globalRegistry.register(meta)
}

// MustRegister 在注册失败时 panic，适合子包 init() 中调用。
func MustRegister(meta Metadata) {
	if err := Register(meta); err != nil {
		panic(err)
	}
}

// Resolve 返回指定键的数据源元数据。
func Resolve(key string) (Metadata, bool) {
	return globalRegistry.resolve(key)
}

// List 返回按键排序的元数据列表。
func List() []Metadata {
	return globalRegistry.list()
}

// Keys 返回所有已注册类型的键值。
func Keys() []string {
	items := List()
	result := make([]string, len(items))
	for i, meta := range items {
		result[i] = meta.Key
	}
	return result
}

// Open 按 Source.Type 构造数据源；类型未注册时返回错误。
func Open(deps Deps) (Source, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	key := deps.Config.Source.Type
	meta, ok := Resolve(key)
	if !ok {
		return nil, fmt.Errorf("source type %q is not registered (known: %s)", key, strings.Join(Keys(), ", "))
	}
	return meta.New(deps)
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func (r *registry) register(meta Metadata) error {
	key := normalizeKey(meta.Key)
	if key == "" {
		return fmt.Errorf("source key is required")
	}
	if meta.New == nil {
		return fmt.Errorf("source %s has no factory", key)
	}
	meta.Key = key

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sources[key]; exists {
		return fmt.Errorf("source %s already registered", key)
	}
	r.sources[key] = meta
	return nil
}

func (r *registry) resolve(key string) (Metadata, bool) {
	normalized := normalizeKey(key)
	if normalized == "" {
		return Metadata{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	meta, ok := r.sources[normalized]
	return meta, ok
}

func (r *registry) list() []Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.sources) == 0 {
		return nil
	}

	keys := make([]string, 0, len(r.sources))
	for key := range r.sources {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	result := make([]Metadata, 0, len(keys))
	for _, key := range keys {
		result = append(result, r.sources[key])
	}
	return result
}
