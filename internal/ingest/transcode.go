package ingest

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"math"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// defaultMaxPixels 限制解码前图片头声明的像素数，防止小文件声明巨幅尺寸耗尽内存。
const defaultMaxPixels = 64 * 1000 * 1000

// Transcoder 把任意可解码的栅格图片归一化为尺寸受限的 JPEG。
// 纯 Go 实现，不依赖 CGo。
type Transcoder struct {
	MaxWidth  int
	MaxHeight int
	Quality   int
	// MaxPixels 为 0 时使用 defaultMaxPixels。
	MaxPixels int
}

// Transcoded 描述一次转码的输出。
type Transcoded struct {
	Data         []byte
	SourceFormat string
	SourceWidth  int
	SourceHeight int
	Width        int
	Height       int
}

// Resized 报告输出尺寸是否与源图不同。
func (t *Transcoded) Resized() bool {
	return t.Width != t.SourceWidth || t.Height != t.SourceHeight
}

// Transcode 解码 data，超出边界时等比缩小（从不放大），并始终重新编码为 JPEG。
func (t Transcoder) Transcode(data []byte) (*Transcoded, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrDecodeFailed)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	limit := t.MaxPixels
	if limit <= 0 {
		limit = defaultMaxPixels
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(limit) {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrDecodeFailed, cfg.Width, cfg.Height, limit)
	}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}

	bounds := src.Bounds()
	width, height := fitWithin(bounds.Dx(), bounds.Dy(), t.MaxWidth, t.MaxHeight)
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: empty image %dx%d", ErrDecodeFailed, bounds.Dx(), bounds.Dy())
	}

	// JPEG 没有透明通道，先铺白底再绘制，避免透明区域变黑。
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	if width == bounds.Dx() && height == bounds.Dy() {
		draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: t.Quality}); err != nil {
		return nil, fmt.Errorf("%w: encode JPEG: %v", ErrDecodeFailed, err)
	}

	return &Transcoded{
		Data:         buf.Bytes(),
		SourceFormat: format,
		SourceWidth:  bounds.Dx(),
		SourceHeight: bounds.Dy(),
		Width:        width,
		Height:       height,
	}, nil
}

// fitWithin 计算等比缩放后的尺寸，使宽高均不超过上限；已在边界内时原样返回。
func fitWithin(width, height, maxWidth, maxHeight int) (int, int) {
	if width <= 0 || height <= 0 {
		return width, height
	}
	if (maxWidth <= 0 || width <= maxWidth) && (maxHeight <= 0 || height <= maxHeight) {
		return width, height
	}

	scale := 1.0
	if maxWidth > 0 && width > maxWidth {
		scale = float64(maxWidth) / float64(width)
	}
	if maxHeight > 0 && height > maxHeight {
		scale = math.Min(scale, float64(maxHeight)/float64(height))
	}

	w := int(math.Round(float64(width) * scale))
	h := int(math.Round(float64(height) * scale))
	if maxWidth > 0 && w > maxWidth {
		w = maxWidth
	}
	if maxHeight > 0 && h > maxHeight {
		h = maxHeight
	}
	return max(w, 1), max(h, 1)
}
