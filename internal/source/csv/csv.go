// Package csv 下载表格数据（如 Google Sheets 的 CSV 导出）并按配置列映射为点要素。
package csv

import (
	"bytes"
	"context"
	"encoding/base64"
	stdcsv "encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/mapsite/mapsite/internal/config"
	"github.com/mapsite/mapsite/internal/geojson"
	"github.com/mapsite/mapsite/internal/logging"
	"github.com/mapsite/mapsite/internal/source"
)

const acceptCSV = "text/csv,text/plain,*/*"

const defaultSlugColumn = "slug"

func init() {
	source.MustRegister(source.Metadata{
		Key:         "csv",
		Description: "CSV table with one point per row",
		New:         newSource,
	})
}

type csvSource struct {
	deps  source.Deps
	cfg   config.SourceConfig
	local string
	log   *logrus.Entry
}

func newSource(deps source.Deps) (source.Source, error) {
	cfg := deps.Config.Source
	if strings.TrimSpace(cfg.CSVURL) == "" {
		return nil, errors.New("csv source requires Source.CSVURL")
	}
	if deps.Client == nil {
		return nil, errors.New("csv source requires an http client")
	}
	if cfg.SlugColumn == "" {
		cfg.SlugColumn = defaultSlugColumn
	}
	return &csvSource{
		deps:  deps,
		cfg:   cfg,
		local: LocalPath(deps.Config.Global.WorkDir, cfg.CSVURL),
		log:   logging.Component(deps.Logger, "source.csv"),
	}, nil
}

// LocalPath 返回 CSV 副本的位置：文件名为 URL 的 URL-safe base64 编码。
func LocalPath(workDir, rawURL string) string {
	return filepath.Join(workDir, base64.URLEncoding.EncodeToString([]byte(rawURL))+".csv")
}

func (s *csvSource) LayerName() string {
	if s.cfg.LayerName != "" {
		return s.cfg.LayerName
	}
	return geojson.DefaultLayerName
}

func (s *csvSource) Load(ctx context.Context) ([]geojson.Feature, error) {
	data, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	features, err := s.parse(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"csv_url":  s.cfg.CSVURL,
		"features": len(features),
	}).Info("csv_parsed")
	return features, nil
}

func (s *csvSource) read(ctx context.Context) ([]byte, error) {
	if s.cfg.Local {
		if _, err := os.Stat(s.local); err == nil {
			s.log.WithField("path", s.local).Debug("csv_local_copy")
			return source.ReadLocal(s.local)
		}
	}

	data, err := source.Fetch(ctx, s.deps.Client, s.cfg.CSVURL, s.deps.Config.Global.UserAgent, acceptCSV)
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"csv_url": s.cfg.CSVURL,
		"size":    humanize.Bytes(uint64(len(data))),
	}).Info("csv_downloaded")

	if err := source.SaveRaw(s.local, data); err != nil {
		return nil, fmt.Errorf("save raw csv: %w", err)
	}
	return data, nil
}

func (s *csvSource) parse(r io.Reader) ([]geojson.Feature, error) {
	reader := stdcsv.NewReader(r)
	reader.Comma = s.cfg.Separator()
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return []geojson.Feature{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		header[i] = name
		if _, dup := columns[name]; !dup {
			columns[name] = i
		}
	}

	wanted := toSet(s.cfg.PropertyNames)
	imageCols := toSet(s.cfg.ImagePropertyNames)

	features := []geojson.Feature{}
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return features, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}

		cell := func(name string) string {
			idx, ok := columns[name]
			if !ok || idx >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[idx])
		}

		f := geojson.NewFeature()
		images := []string{}
		for i, name := range header {
			value := ""
			if i < len(record) {
				value = strings.TrimSpace(record[i])
			}
			if _, ok := wanted[name]; ok {
				f.Properties[name] = value
			}
			if _, ok := imageCols[name]; ok && value != "" {
				images = append(images, value)
			}
		}
		f.Properties["slug"] = cell(s.cfg.SlugColumn)
		f.Properties[geojson.ImagesKey] = images
		f.Geometry = geojson.NewPoint(parseFloat(cell(s.cfg.LongitudeColumn)), parseFloat(cell(s.cfg.LatitudeColumn)))
		features = append(features, f)
	}
}

// parseFloat 容忍空值与逗号小数点，无法解析时返回 0。
func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil {
		return 0
	}
	return v
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set
}
