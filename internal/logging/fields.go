package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// ImageFields 提供图片 URL、缓存标识与命中状态字段，供图片摄取日志复用。
func ImageFields(url, identity string, cacheHit bool) logrus.Fields {
	return logrus.Fields{
		"action":    "image_ingest",
		"image_url": url,
		"identity":  identity,
		"cache_hit": cacheHit,
	}
}
