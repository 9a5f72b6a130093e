package config

import (
	"fmt"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if seconds, err := time.ParseDuration(raw); err == nil {
		*d = Duration(seconds)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// MarshalText 输出 Go Duration 字符串，供 check-config --print 回显。
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述一次站点构建的全局行为：日志、目录布局、图片抓取与转码参数。
type GlobalConfig struct {
	LogLevel      string `mapstructure:"LogLevel" toml:"LogLevel"`
	LogFilePath   string `mapstructure:"LogFilePath" toml:"LogFilePath"`
	LogMaxSize    int    `mapstructure:"LogMaxSize" toml:"LogMaxSize"`
	LogMaxBackups int    `mapstructure:"LogMaxBackups" toml:"LogMaxBackups"`
	LogCompress   bool   `mapstructure:"LogCompress" toml:"LogCompress"`

	// SiteRoot 是静态站点根目录，ImagesDir/OutputPath/PagesDir 均相对于它解析。
	SiteRoot        string `mapstructure:"SiteRoot" toml:"SiteRoot"`
	ImagesDir       string `mapstructure:"ImagesDir" toml:"ImagesDir"`
	ImagesURLPrefix string `mapstructure:"ImagesURLPrefix" toml:"ImagesURLPrefix"`
	OutputPath      string `mapstructure:"OutputPath" toml:"OutputPath"`
	PagesDir        string `mapstructure:"PagesDir" toml:"PagesDir"`
	WorkDir         string `mapstructure:"WorkDir" toml:"WorkDir"`

	FetchTimeout  Duration `mapstructure:"FetchTimeout" toml:"FetchTimeout"`
	MaxRedirects  int      `mapstructure:"MaxRedirects" toml:"MaxRedirects"`
	UserAgent     string   `mapstructure:"UserAgent" toml:"UserAgent"`
	MaxImageBytes int64    `mapstructure:"MaxImageBytes" toml:"MaxImageBytes"`
	MaxWidth      int      `mapstructure:"MaxWidth" toml:"MaxWidth"`
	MaxHeight     int      `mapstructure:"MaxHeight" toml:"MaxHeight"`
	JPEGQuality   int      `mapstructure:"JPEGQuality" toml:"JPEGQuality"`
	Concurrency   int      `mapstructure:"Concurrency" toml:"Concurrency"`

	ListenPort int `mapstructure:"ListenPort" toml:"ListenPort"`
}

// SourceConfig 决定要素数据从哪里来（Google My Maps KML 或 CSV）以及保留哪些属性。
type SourceConfig struct {
	Type               string   `mapstructure:"Type" toml:"Type"`
	MapID              string   `mapstructure:"MapID" toml:"MapID,omitempty"`
	CSVURL             string   `mapstructure:"CSVURL" toml:"CSVURL,omitempty"`
	CSVSeparator       string   `mapstructure:"CSVSeparator" toml:"CSVSeparator,omitempty"`
	Local              bool     `mapstructure:"Local" toml:"Local"`
	LayerName          string   `mapstructure:"LayerName" toml:"LayerName,omitempty"`
	PropertyNames      []string `mapstructure:"PropertyNames" toml:"PropertyNames"`
	ImagePropertyNames []string `mapstructure:"ImagePropertyNames" toml:"ImagePropertyNames"`
	SlugColumn         string   `mapstructure:"SlugColumn" toml:"SlugColumn,omitempty"`
	LatitudeColumn     string   `mapstructure:"LatitudeColumn" toml:"LatitudeColumn,omitempty"`
	LongitudeColumn    string   `mapstructure:"LongitudeColumn" toml:"LongitudeColumn,omitempty"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global GlobalConfig `mapstructure:",squash" toml:"Global"`
	Source SourceConfig `mapstructure:"Source" toml:"Source"`
}

// ImagesPath 返回图片目录在磁盘上的位置。
func (g GlobalConfig) ImagesPath() string {
	return g.resolve(g.ImagesDir)
}

// OutputFile 返回 GeoJSON 输出文件在磁盘上的位置。
func (g GlobalConfig) OutputFile() string {
	return g.resolve(g.OutputPath)
}

// PagesPath 返回要素页面目录；未配置时为空，表示不生成页面。
func (g GlobalConfig) PagesPath() string {
	if strings.TrimSpace(g.PagesDir) == "" {
		return ""
	}
	return g.resolve(g.PagesDir)
}

// PublicImagePrefix 返回写入 GeoJSON 的图片引用前缀，例如 /assets/data/images。
func (g GlobalConfig) PublicImagePrefix() string {
	prefix := strings.TrimSpace(g.ImagesURLPrefix)
	if prefix == "" {
		prefix = "/" + filepath.ToSlash(g.ImagesDir)
	}
	prefix = path.Clean("/" + strings.TrimPrefix(prefix, "/"))
	return strings.TrimSuffix(prefix, "/")
}

func (g GlobalConfig) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(g.SiteRoot, p)
}

// Separator 返回 CSV 分隔符的首个 rune，默认分号。
func (s SourceConfig) Separator() rune {
	for _, r := range s.CSVSeparator {
		return r
	}
	return ';'
}
