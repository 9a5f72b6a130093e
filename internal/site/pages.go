package site

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/mapsite/mapsite/internal/cache"
	"github.com/mapsite/mapsite/internal/geojson"
)

const pageLayout = "point"

// frontMatter 是要素页面的 YAML 头，字段顺序即输出顺序。
type frontMatter struct {
	Layout      string         `yaml:"layout"`
	Title       string         `yaml:"title"`
	Slug        string         `yaml:"slug"`
	Properties  map[string]any `yaml:"properties,omitempty"`
	Images      []string       `yaml:"images,omitempty"`
	Coordinates any            `yaml:"coordinates,omitempty"`
}

// reservedKeys 已单独输出，不再重复写入 properties。
var reservedKeys = map[string]struct{}{
	"nome":            {},
	"slug":            {},
	geojson.ImagesKey: {},
}

// WritePages 为每个带 slug 的要素写出 <slug>.md，返回写出的页面数。
// slug 含路径分隔符或以点开头的要素会被跳过。
func WritePages(dir string, features []geojson.Feature, log *logrus.Entry) (int, error) {
	written := 0
	for _, f := range features {
		slug := strings.TrimSpace(f.String("slug"))
		if slug == "" {
			continue
		}
		if !validSlug(slug) {
			log.WithField("slug", slug).Warn("page_slug_invalid")
			continue
		}

		data, err := RenderPage(f)
		if err != nil {
			return written, fmt.Errorf("render page %s: %w", slug, err)
		}
		if err := cache.WriteFileAtomic(filepath.Join(dir, slug+".md"), data); err != nil {
			return written, err
		}
		written++
	}
	log.WithFields(logrus.Fields{"dir": dir, "pages": written}).Info("pages_written")
	return written, nil
}

// RenderPage 生成仅包含 front matter 的 Markdown 页面。
func RenderPage(f geojson.Feature) ([]byte, error) {
	fm := frontMatter{
		Layout: pageLayout,
		Title:  f.String("nome"),
		Slug:   strings.TrimSpace(f.String("slug")),
		Images: geojson.ImageURLs(f.Properties, geojson.ImagesKey),
	}
	if fm.Title == "" {
		fm.Title = fm.Slug
	}
	for k, v := range f.Properties {
		if _, skip := reservedKeys[k]; skip {
			continue
		}
		if fm.Properties == nil {
			fm.Properties = map[string]any{}
		}
		fm.Properties[k] = v
	}
	if f.Geometry != nil {
		fm.Coordinates = f.Geometry.Coordinates
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(fm); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	buf.WriteString("---\n")
	return buf.Bytes(), nil
}

func validSlug(slug string) bool {
	return !strings.HasPrefix(slug, ".") && !strings.ContainsAny(slug, `/\`)
}
