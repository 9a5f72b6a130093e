package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	defaultUserAgent = "Mozilla/5.0 (compatible; mapsite image ingestor)"
	defaultImagesDir = "assets/data/images"
)

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	applySourceDefaults(&cfg.Source)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absRoot, err := filepath.Abs(cfg.Global.SiteRoot)
	if err != nil {
		return nil, fmt.Errorf("无法解析站点目录: %w", err)
	}
	cfg.Global.SiteRoot = absRoot
	if !filepath.IsAbs(cfg.Global.WorkDir) {
		cfg.Global.WorkDir = filepath.Join(absRoot, cfg.Global.WorkDir)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("SiteRoot", ".")
	v.SetDefault("ImagesDir", defaultImagesDir)
	v.SetDefault("OutputPath", "assets/data/features.geojson")
	v.SetDefault("WorkDir", "tmp")
	v.SetDefault("FetchTimeout", "30s")
	v.SetDefault("MaxRedirects", 5)
	v.SetDefault("UserAgent", defaultUserAgent)
	v.SetDefault("MaxImageBytes", 32*1024*1024)
	v.SetDefault("MaxWidth", 1200)
	v.SetDefault("MaxHeight", 800)
	v.SetDefault("JPEGQuality", 85)
	v.SetDefault("Concurrency", 4)
	v.SetDefault("ListenPort", 4000)
	v.SetDefault("Source.CSVSeparator", ";")
}

// applyGlobalDefaults 兜底处理显式写成 0 或空串的字段，行为与默认值保持一致。
func applyGlobalDefaults(g *GlobalConfig) {
	if strings.TrimSpace(g.SiteRoot) == "" {
		g.SiteRoot = "."
	}
	if strings.TrimSpace(g.ImagesDir) == "" {
		g.ImagesDir = defaultImagesDir
	}
	if strings.TrimSpace(g.WorkDir) == "" {
		g.WorkDir = "tmp"
	}
	if g.FetchTimeout.DurationValue() == 0 {
		g.FetchTimeout = Duration(30 * time.Second)
	}
	if strings.TrimSpace(g.UserAgent) == "" {
		g.UserAgent = defaultUserAgent
	}
	if g.MaxImageBytes == 0 {
		g.MaxImageBytes = 32 * 1024 * 1024
	}
	if g.MaxWidth == 0 {
		g.MaxWidth = 1200
	}
	if g.MaxHeight == 0 {
		g.MaxHeight = 800
	}
	if g.JPEGQuality == 0 {
		g.JPEGQuality = 85
	}
	if g.Concurrency == 0 {
		g.Concurrency = 4
	}
	if g.ListenPort == 0 {
		g.ListenPort = 4000
	}
}

func applySourceDefaults(s *SourceConfig) {
	s.Type = strings.ToLower(strings.TrimSpace(s.Type))
	if s.CSVSeparator == "" {
		s.CSVSeparator = ";"
	}
	s.PropertyNames = normalizeNames(s.PropertyNames, s.Type == "kml")
	s.ImagePropertyNames = normalizeNames(s.ImagePropertyNames, s.Type == "kml")
}

// normalizeNames 去掉空白项；KML 的 Data 名称按小写比较，因此 kml 源统一转小写。
func normalizeNames(names []string, lower bool) []string {
	if len(names) == 0 {
		return nil
	}
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if lower {
			name = strings.ToLower(name)
		}
		out = append(out, name)
	}
	return out
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
