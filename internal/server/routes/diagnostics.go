package routes

import (
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/mapsite/mapsite/internal/cache"
	"github.com/mapsite/mapsite/internal/config"
	"github.com/mapsite/mapsite/internal/source"
)

// Diagnostics 汇总诊断接口所需的依赖。
type Diagnostics struct {
	Store  cache.Store
	Config *config.Config
}

// RegisterDiagnosticRoutes 暴露 /-/images 与 /-/sources 诊断接口，
// 便于预览时确认图片目录内容与数据源配置。
func RegisterDiagnosticRoutes(app *fiber.App, diag Diagnostics) {
	if app == nil {
		return
	}

	if diag.Store != nil {
		app.Get("/-/images", func(c fiber.Ctx) error {
			entries, err := diag.Store.List(c.Context())
			if err != nil {
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "image_list_failed"})
			}
			return c.JSON(encodeImages(entries))
		})
	}

	app.Get("/-/sources", func(c fiber.Ctx) error {
		payload := fiber.Map{"sources": encodeSources(source.List())}
		if diag.Config != nil {
			payload["configured"] = encodeConfigured(diag.Config.Source)
		}
		return c.JSON(payload)
	})

	app.Get("/-/sources/:key", func(c fiber.Ctx) error {
		key := strings.ToLower(strings.TrimSpace(c.Params("key")))
		if key == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "source_key_required"})
		}
		meta, ok := source.Resolve(key)
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "source_not_found"})
		}
		return c.JSON(sourcePayload{Key: meta.Key, Description: meta.Description})
	})
}

type imagesPayload struct {
	Count      int           `json:"count"`
	TotalBytes int64         `json:"total_bytes"`
	Images     []cache.Entry `json:"images"`
}

type sourcePayload struct {
	Key         string `json:"key"`
	Description string `json:"description"`
}

type configuredPayload struct {
	Type               string   `json:"type"`
	MapID              string   `json:"map_id,omitempty"`
	CSVURL             string   `json:"csv_url,omitempty"`
	Local              bool     `json:"local"`
	PropertyNames      []string `json:"property_names"`
	ImagePropertyNames []string `json:"image_property_names"`
}

func encodeImages(entries []cache.Entry) imagesPayload {
	payload := imagesPayload{Count: len(entries), Images: entries}
	if payload.Images == nil {
		payload.Images = []cache.Entry{}
	}
	for _, entry := range entries {
		payload.TotalBytes += entry.SizeBytes
	}
	return payload
}

func encodeSources(metas []source.Metadata) []sourcePayload {
	result := make([]sourcePayload, 0, len(metas))
	for _, meta := range metas {
		result = append(result, sourcePayload{Key: meta.Key, Description: meta.Description})
	}
	return result
}

func encodeConfigured(cfg config.SourceConfig) configuredPayload {
	return configuredPayload{
		Type:               cfg.Type,
		MapID:              cfg.MapID,
		CSVURL:             cfg.CSVURL,
		Local:              cfg.Local,
		PropertyNames:      append([]string{}, cfg.PropertyNames...),
		ImagePropertyNames: append([]string{}, cfg.ImagePropertyNames...),
	}
}
