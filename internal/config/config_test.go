package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	cfgPath := testConfigPath(t, "valid.toml")

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if cfg.Global.FetchTimeout.DurationValue() != 20*time.Second {
		t.Fatalf("FetchTimeout 应解析为 20s，得到 %s", cfg.Global.FetchTimeout.DurationValue())
	}
	if cfg.Global.MaxWidth != 1200 || cfg.Global.MaxHeight != 800 {
		t.Fatalf("尺寸上限应使用默认 1200x800，得到 %dx%d", cfg.Global.MaxWidth, cfg.Global.MaxHeight)
	}
	if cfg.Global.JPEGQuality != 85 {
		t.Fatalf("JPEGQuality 应默认 85，得到 %d", cfg.Global.JPEGQuality)
	}
	if cfg.Global.MaxRedirects != 5 {
		t.Fatalf("MaxRedirects 应默认 5，得到 %d", cfg.Global.MaxRedirects)
	}
	if !filepath.IsAbs(cfg.Global.SiteRoot) {
		t.Fatalf("SiteRoot 应被转换为绝对路径: %s", cfg.Global.SiteRoot)
	}
	if cfg.Global.WorkDir != filepath.Join(cfg.Global.SiteRoot, "tmp") {
		t.Fatalf("WorkDir 应相对 SiteRoot 解析，得到 %s", cfg.Global.WorkDir)
	}
	if cfg.Source.PropertyNames[0] != "slug" {
		t.Fatalf("kml 属性名应统一转为小写，得到 %v", cfg.Source.PropertyNames)
	}
}

func TestLoadCSVSource(t *testing.T) {
	cfg, err := Load(testConfigPath(t, "csv.toml"))
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if cfg.Source.Type != "csv" {
		t.Fatalf("Type 应被标准化为 csv，得到 %s", cfg.Source.Type)
	}
	if cfg.Source.Separator() != ',' {
		t.Fatalf("分隔符应为逗号，得到 %q", cfg.Source.Separator())
	}
	if cfg.Global.FetchTimeout.DurationValue() != 45*time.Second {
		t.Fatalf("整数 FetchTimeout 应按秒解析，得到 %s", cfg.Global.FetchTimeout.DurationValue())
	}
	if cfg.Global.JPEGQuality != 70 {
		t.Fatalf("JPEGQuality 覆盖未生效: %d", cfg.Global.JPEGQuality)
	}
	if cfg.Source.ImagePropertyNames[1] != "foto2" {
		t.Fatalf("csv 列名应保持原样与顺序: %v", cfg.Source.ImagePropertyNames)
	}
}

func TestValidateRejectsBadSource(t *testing.T) {
	cfgPath := testConfigPath(t, "missing.toml")

	if _, err := Load(cfgPath); err == nil {
		t.Fatalf("不合法的配置应返回错误")
	}
}

func TestValidateEnforcesListenPortRange(t *testing.T) {
	cfg := validConfig()
	cfg.Global.ListenPort = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatalf("ListenPort 超出范围应当报错")
	}
}

func TestValidateEnforcesJPEGQuality(t *testing.T) {
	cfg := validConfig()
	cfg.Global.JPEGQuality = 101
	err := cfg.Validate()
	fieldErr, ok := err.(FieldError)
	if !ok {
		t.Fatalf("应返回 FieldError，得到 %T (%v)", err, err)
	}
	if fieldErr.Field != "Global.JPEGQuality" {
		t.Fatalf("字段路径不符: %s", fieldErr.Field)
	}
}

func TestSourceTypeValidation(t *testing.T) {
	testCases := []struct {
		name       string
		sourceType string
		shouldErr  bool
	}{
		{"kml ok", "kml", false},
		{"upper case ok", "KML", false},
		{"missing type", "", true},
		{"unsupported type", "shapefile", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Source.Type = tc.sourceType
			err := cfg.Validate()
			if tc.shouldErr && err == nil {
				t.Fatalf("expected error for type %q", tc.sourceType)
			}
			if !tc.shouldErr && err != nil {
				t.Fatalf("unexpected error for type %q: %v", tc.sourceType, err)
			}
		})
	}
}

func TestValidateCSVRequiresCoordinates(t *testing.T) {
	cfg := validConfig()
	cfg.Source = SourceConfig{
		Type:         "csv",
		CSVURL:       "https://example.com/a.csv",
		CSVSeparator: ";",
	}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("缺少经纬度列时应报错")
	}

	cfg.Source.LatitudeColumn = "lat"
	cfg.Source.LongitudeColumn = "lng"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("完整 csv 配置不应报错: %v", err)
	}

	cfg.Source.CSVURL = "ftp://example.com/a.csv"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("非 http(s) CSVURL 应报错")
	}
}

func TestPublicImagePrefix(t *testing.T) {
	testCases := []struct {
		name   string
		global GlobalConfig
		want   string
	}{
		{"derived from dir", GlobalConfig{ImagesDir: "assets/data/images"}, "/assets/data/images"},
		{"explicit prefix", GlobalConfig{ImagesDir: "x", ImagesURLPrefix: "/media/"}, "/media"},
		{"prefix without slash", GlobalConfig{ImagesDir: "x", ImagesURLPrefix: "img"}, "/img"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.global.PublicImagePrefix(); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func validConfig() *Config {
	return &Config{
		Global: GlobalConfig{
			ListenPort:    4000,
			SiteRoot:      ".",
			ImagesDir:     "assets/data/images",
			OutputPath:    "assets/data/features.geojson",
			WorkDir:       "tmp",
			FetchTimeout:  Duration(30 * time.Second),
			MaxRedirects:  5,
			MaxImageBytes: 1 << 20,
			MaxWidth:      1200,
			MaxHeight:     800,
			JPEGQuality:   85,
			Concurrency:   1,
		},
		Source: SourceConfig{
			Type:  "kml",
			MapID: "abc",
		},
	}
}
