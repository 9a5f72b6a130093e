package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/mapsite/mapsite/internal/cache"
)

// maxSourceBytes 限制 KML/CSV 下载体积。
const maxSourceBytes = 64 << 20

// ErrDownload 表示源数据下载失败（网络错误或非 2xx）。
var ErrDownload = errors.New("source download failed")

// Fetch 以 GET 下载 rawURL 的完整响应体；非 2xx 返回 ErrDownload。
func Fetch(ctx context.Context, client *http.Client, rawURL, userAgent, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownload, err)
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownload, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: HTTP %d from %s", ErrDownload, resp.StatusCode, rawURL)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSourceBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrDownload, err)
	}
	return body, nil
}

// SaveRaw 原子写入源数据副本，供 Local 模式复用。
func SaveRaw(path string, data []byte) error {
	return cache.WriteFileAtomic(path, data)
}

// ReadLocal 读取 Local 模式下的源数据副本。
func ReadLocal(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read local copy: %w", err)
	}
	return data, nil
}
