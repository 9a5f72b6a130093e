// Package kml 从 Google My Maps 导出 KML 并解析 Placemark 为地图要素。
package kml

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/mapsite/mapsite/internal/config"
	"github.com/mapsite/mapsite/internal/geojson"
	"github.com/mapsite/mapsite/internal/logging"
	"github.com/mapsite/mapsite/internal/source"
)

const acceptKML = "application/vnd.google-earth.kml+xml,application/xml,text/xml,*/*"

// endpoint 是 My Maps 的 KML 导出地址，测试中替换为本地上游。
var endpoint = "https://www.google.com/maps/d/kml"

var looksLikeKML = regexp.MustCompile(`(?i)<\?xml|<kml`)

func init() {
	source.MustRegister(source.Metadata{
		Key:         "kml",
		Description: "Google My Maps KML export (Placemark + ExtendedData)",
		New:         newSource,
	})
}

type kmlSource struct {
	deps   source.Deps
	cfg    config.SourceConfig
	local  string
	log    *logrus.Entry
	props  map[string]struct{}
	images map[string]struct{}
}

func newSource(deps source.Deps) (source.Source, error) {
	cfg := deps.Config.Source
	if strings.TrimSpace(cfg.MapID) == "" {
		return nil, errors.New("kml source requires Source.MapID")
	}
	if deps.Client == nil && !cfg.Local {
		return nil, errors.New("kml source requires an http client")
	}
	return &kmlSource{
		deps:   deps,
		cfg:    cfg,
		local:  filepath.Join(deps.Config.Global.WorkDir, cfg.MapID+".kml"),
		log:    logging.Component(deps.Logger, "source.kml"),
		props:  toSet(cfg.PropertyNames),
		images: toSet(cfg.ImagePropertyNames),
	}, nil
}

func (s *kmlSource) LayerName() string {
	if s.cfg.LayerName != "" {
		return s.cfg.LayerName
	}
	return fmt.Sprintf("%s (%s)", geojson.DefaultLayerName, s.cfg.MapID)
}

func (s *kmlSource) Load(ctx context.Context) ([]geojson.Feature, error) {
	data, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	features, err := Parse(bytes.NewReader(data), s.props, s.images)
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"map_id":   s.cfg.MapID,
		"features": len(features),
	}).Info("kml_parsed")
	return features, nil
}

func (s *kmlSource) read(ctx context.Context) ([]byte, error) {
	if s.cfg.Local {
		s.log.WithField("path", s.local).Debug("kml_local_copy")
		return source.ReadLocal(s.local)
	}

	target := endpoint + "?mid=" + url.QueryEscape(s.cfg.MapID) + "&forcekml=1"
	data, err := source.Fetch(ctx, s.deps.Client, target, s.deps.Config.Global.UserAgent, acceptKML)
	if err != nil {
		return nil, fmt.Errorf("download map %s (is the map public?): %w", s.cfg.MapID, err)
	}
	if !looksLikeKML.Match(data) {
		return nil, fmt.Errorf("downloaded content is not KML: %q", preview(data))
	}
	s.log.WithFields(logrus.Fields{
		"map_id": s.cfg.MapID,
		"size":   humanize.Bytes(uint64(len(data))),
	}).Info("kml_downloaded")

	if err := source.SaveRaw(s.local, data); err != nil {
		return nil, fmt.Errorf("save raw kml: %w", err)
	}
	return data, nil
}

// placemark 覆盖 My Maps 导出中常见的几何与扩展数据位置。
type placemark struct {
	Name  string   `xml:"name"`
	Data  []data   `xml:"ExtendedData>Data"`
	Point []string `xml:"Point>coordinates"`
	Line  []string `xml:"LineString>coordinates"`
	Ring  []string `xml:"Polygon>outerBoundaryIs>LinearRing>coordinates"`
	Multi struct {
		Point []string `xml:"Point>coordinates"`
		Line  []string `xml:"LineString>coordinates"`
		Ring  []string `xml:"Polygon>outerBoundaryIs>LinearRing>coordinates"`
	} `xml:"MultiGeometry"`
}

type data struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value"`
}

// Parse 流式扫描 r 中的全部 Placemark（任意 Folder 深度），按文档顺序返回要素。
// props 与 images 为小写的 Data 名称集合。
func Parse(r io.Reader, props, images map[string]struct{}) ([]geojson.Feature, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = false

	features := []geojson.Feature{}
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return features, nil
		}
		if err != nil {
			return nil, fmt.Errorf("parse kml: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "Placemark" {
			continue
		}
		var pm placemark
		if err := dec.DecodeElement(&pm, &start); err != nil {
			return nil, fmt.Errorf("parse placemark: %w", err)
		}
		features = append(features, pm.feature(props, images))
	}
}

func (pm placemark) feature(props, images map[string]struct{}) geojson.Feature {
	f := geojson.NewFeature()
	f.Properties["nome"] = strings.TrimSpace(pm.Name)

	for _, d := range pm.Data {
		name := strings.ToLower(strings.TrimSpace(d.Name))
		value := strings.TrimSpace(d.Value)
		if _, ok := images[name]; ok {
			f.Properties[geojson.ImagesKey] = strings.Fields(value)
			continue
		}
		if _, ok := props[name]; ok && value != "" {
			f.Properties[name] = value
		}
	}

	f.Geometry = pm.geometry()
	return f
}

func (pm placemark) geometry() *geojson.Geometry {
	for _, text := range append(pm.Point, pm.Multi.Point...) {
		if c := parseCoordinate(strings.TrimSpace(text)); c != nil {
			return geojson.NewPoint(c[0], c[1])
		}
	}
	for _, text := range append(pm.Line, pm.Multi.Line...) {
		if coords := parseCoordinates(text); len(coords) >= 2 {
			return geojson.NewLineString(coords)
		}
	}
	for _, text := range append(pm.Ring, pm.Multi.Ring...) {
		if coords := parseCoordinates(text); len(coords) >= 4 {
			return geojson.NewPolygon(coords)
		}
	}
	return nil
}

// parseCoordinates 解析以空白分隔的 lon,lat[,alt] 序列，丢弃分量不足的元组。
func parseCoordinates(text string) [][]float64 {
	var out [][]float64
	for _, tuple := range strings.Fields(text) {
		if c := parseCoordinate(tuple); c != nil {
			out = append(out, c)
		}
	}
	return out
}

func parseCoordinate(tuple string) []float64 {
	parts := strings.Split(tuple, ",")
	if tuple == "" || len(parts) < 2 {
		return nil
	}
	return []float64{parseFloat(parts[0]), parseFloat(parts[1])}
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[strings.ToLower(name)] = struct{}{}
	}
	return set
}

func preview(data []byte) string {
	if len(data) > 200 {
		data = data[:200]
	}
	return string(data)
}
