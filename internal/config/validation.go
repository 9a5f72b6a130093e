package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

var supportedSourceTypes = map[string]struct{}{
	"kml": {},
	"csv": {},
}

const supportedSourceTypeList = "kml|csv"

// Validate 针对语义级别做进一步校验，防止非法配置进入构建流程。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if strings.TrimSpace(g.ImagesDir) == "" {
		return newFieldError("Global.ImagesDir", "不能为空")
	}
	if filepath.IsAbs(g.ImagesDir) && strings.TrimSpace(g.ImagesURLPrefix) == "" {
		return newFieldError("Global.ImagesURLPrefix", "ImagesDir 为绝对路径时必须显式配置")
	}
	if strings.TrimSpace(g.OutputPath) == "" {
		return newFieldError("Global.OutputPath", "不能为空")
	}
	if g.FetchTimeout.DurationValue() <= 0 {
		return newFieldError("Global.FetchTimeout", "必须大于 0")
	}
	if g.MaxRedirects < 0 {
		return newFieldError("Global.MaxRedirects", "不能为负数")
	}
	if g.MaxImageBytes <= 0 {
		return newFieldError("Global.MaxImageBytes", "必须大于 0")
	}
	if g.MaxWidth <= 0 || g.MaxHeight <= 0 {
		return newFieldError("Global.MaxWidth/MaxHeight", "必须大于 0")
	}
	if g.JPEGQuality < 1 || g.JPEGQuality > 100 {
		return newFieldError("Global.JPEGQuality", "必须在 1-100")
	}
	if g.Concurrency < 1 {
		return newFieldError("Global.Concurrency", "至少为 1")
	}

	return c.Source.validate()
}

func (s SourceConfig) validate() error {
	normalizedType := strings.ToLower(strings.TrimSpace(s.Type))
	if normalizedType == "" {
		return newFieldError(sourceField("Type"), "不能为空")
	}
	if _, ok := supportedSourceTypes[normalizedType]; !ok {
		return newFieldError(sourceField("Type"), "仅支持 "+supportedSourceTypeList)
	}

	switch normalizedType {
	case "kml":
		if strings.TrimSpace(s.MapID) == "" {
			return newFieldError(sourceField("MapID"), "kml 源必须提供 MapID")
		}
	case "csv":
		if err := validateHTTPURL(s.CSVURL); err != nil {
			return fmt.Errorf("%s: %w", sourceField("CSVURL"), err)
		}
		if strings.TrimSpace(s.LatitudeColumn) == "" || strings.TrimSpace(s.LongitudeColumn) == "" {
			return newFieldError(sourceField("LatitudeColumn/LongitudeColumn"), "csv 源必须同时提供经纬度列")
		}
		if len([]rune(s.CSVSeparator)) != 1 {
			return newFieldError(sourceField("CSVSeparator"), "必须是单个字符")
		}
	}
	return nil
}

func validateHTTPURL(raw string) error {
	if raw == "" {
		return errors.New("缺少地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("缺少 Host: %s", raw)
	}
	return nil
}
