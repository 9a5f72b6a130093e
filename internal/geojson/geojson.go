// Package geojson 定义站点输出的 GeoJSON 结构，并负责图片属性的读取与回填。
package geojson

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/mapsite/mapsite/internal/cache"
)

// CRS84 是输出图层声明的坐标参考系。
const CRS84 = "urn:ogc:def:crs:OGC:1.3:CRS84"

// DefaultLayerName 在未配置 LayerName 时使用。
const DefaultLayerName = "Features Layer"

// ImagesKey 是要素属性中保存图片列表的键。
const ImagesKey = "imagens"

// Geometry 是 Point / LineString / Polygon 之一，Coordinates 按 GeoJSON 约定嵌套。
type Geometry struct {
	Type        string `json:"type"`
	Coordinates any    `json:"coordinates"`
}

// NewPoint 构造经纬度点，坐标顺序为 lon, lat。
func NewPoint(lon, lat float64) *Geometry {
	return &Geometry{Type: "Point", Coordinates: []float64{lon, lat}}
}

// NewLineString 构造折线。
func NewLineString(coords [][]float64) *Geometry {
	return &Geometry{Type: "LineString", Coordinates: coords}
}

// NewPolygon 构造仅包含外环的多边形。
func NewPolygon(outer [][]float64) *Geometry {
	return &Geometry{Type: "Polygon", Coordinates: [][][]float64{outer}}
}

// Feature 是单个地图要素；Geometry 为 nil 时输出 null。
type Feature struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
	Geometry   *Geometry      `json:"geometry"`
}

// NewFeature 返回带空属性表的要素。
func NewFeature() Feature {
	return Feature{Type: "Feature", Properties: map[string]any{}}
}

// String 读取字符串属性，缺失或类型不符时返回空串。
func (f Feature) String(key string) string {
	s, _ := f.Properties[key].(string)
	return s
}

// FeatureCollection 是最终写出的图层。
type FeatureCollection struct {
	Type     string    `json:"type"`
	Name     string    `json:"name"`
	CRS      CRS       `json:"crs"`
	Features []Feature `json:"features"`
}

// CRS 是具名坐标参考系块。
type CRS struct {
	Type       string            `json:"type"`
	Properties map[string]string `json:"properties"`
}

// NewCollection 包装 features，空切片输出为 []。
func NewCollection(name string, features []Feature) *FeatureCollection {
	if name == "" {
		name = DefaultLayerName
	}
	if features == nil {
		features = []Feature{}
	}
	return &FeatureCollection{
		Type: "FeatureCollection",
		Name: name,
		CRS: CRS{
			Type:       "name",
			Properties: map[string]string{"name": CRS84},
		},
		Features: features,
	}
}

// ImageURLs 把属性值归一化为有序 URL 列表：字符串、字符串列表，
// 或以键排序的映射（值为字符串）。空串会被跳过。
func ImageURLs(props map[string]any, key string) []string {
	var out []string
	add := func(v any) {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}

	switch v := props[key].(type) {
	case nil:
		return nil
	case string:
		add(v)
	case []string:
		for _, s := range v {
			add(s)
		}
	case []any:
		for _, item := range v {
			add(item)
		}
	case map[string]any:
		for _, k := range sortedKeys(v) {
			add(v[k])
		}
	case map[string]string:
		for _, k := range sortedKeys(v) {
			add(v[k])
		}
	}
	return out
}

// ReplaceImages 按 ImageURLs 的顺序用解析结果回填图片字段，并保持原有结构：
// 列表仍为列表，映射仍为映射（键不变），单个字符串仍为字符串，null 保持 null。
// 空串（无法解析）在列表和映射中被丢弃，单个字符串则置为空串。
func ReplaceImages(props map[string]any, key string, resolved []string) {
	next := 0
	take := func(v any) (string, bool) {
		s, ok := v.(string)
		if !ok || s == "" {
			return "", false
		}
		if next >= len(resolved) {
			return "", false
		}
		p := resolved[next]
		next++
		return p, p != ""
	}
	keepList := func(items []any) []string {
		kept := make([]string, 0, len(items))
		for _, item := range items {
			if p, ok := take(item); ok {
				kept = append(kept, p)
			}
		}
		return kept
	}

	switch v := props[key].(type) {
	case nil:
		return
	case string:
		p, _ := take(v)
		props[key] = p
	case []string:
		items := make([]any, len(v))
		for i, s := range v {
			items[i] = s
		}
		props[key] = keepList(items)
	case []any:
		props[key] = keepList(v)
	case map[string]any:
		props[key] = replaceMap(sortedKeys(v), func(k string) any { return v[k] }, take)
	case map[string]string:
		props[key] = replaceMap(sortedKeys(v), func(k string) any { return v[k] }, take)
	}
}

func replaceMap(keys []string, get func(string) any, take func(any) (string, bool)) map[string]string {
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if p, ok := take(get(k)); ok {
			out[k] = p
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// WriteFile 以缩进格式原子写出图层。
func WriteFile(path string, fc *FeatureCollection) error {
	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode geojson: %w", err)
	}
	data = append(data, '\n')

	return cache.WriteFileAtomic(path, data)
}

// ReadFile 读取此前写出的图层，供 serve 与测试使用。
func ReadFile(path string) (*FeatureCollection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fc FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("decode geojson %s: %w", path, err)
	}
	return &fc, nil
}
