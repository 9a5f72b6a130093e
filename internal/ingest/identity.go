package ingest

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/url"
	"path"
	"strings"
)

// HashPrefixLen 是文件名中 URL 摘要的十六进制长度。
// 9 位（36 bit）与既有图片目录保持兼容，在上万张图片的规模下仍需关注碰撞。
const HashPrefixLen = 9

const defaultExt = ".jpg"

var recognizedExts = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
	".webp": {},
	".bmp":  {},
	".svg":  {},
}

// Identity 是由 URL 字符串（而非内容）推导出的缓存标识。
type Identity struct {
	URL  string
	Hash string
	// Ext 是根据 URL 路径猜测的扩展名，只决定首次抓取的目标文件名。
	Ext string
}

// NewIdentity 校验 rawURL 并推导缓存标识；非 http(s) 地址返回 ErrInvalidURL。
func NewIdentity(rawURL string) (Identity, error) {
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return Identity{}, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	sum := md5.Sum([]byte(rawURL))
	return Identity{
		URL:  rawURL,
		Hash: hex.EncodeToString(sum[:])[:HashPrefixLen],
		Ext:  guessExtension(rawURL),
	}, nil
}

// Name 返回猜测扩展名下的文件名。
func (id Identity) Name() string {
	return id.Hash + id.Ext
}

// JPEGName 返回扩展名被改写为 .jpg 后的文件名。
func (id Identity) JPEGName() string {
	return id.Hash + defaultExt
}

// StoredName 返回转码成功后的最终文件名：猜测扩展名已是 JPEG 时保持不变，否则改写为 .jpg。
func (id Identity) StoredName() string {
	if id.Ext == ".jpg" || id.Ext == ".jpeg" {
		return id.Name()
	}
	return id.JPEGName()
}

// Candidates 返回磁盘探测顺序：先猜测扩展名，再 .jpg 改写形式。
func (id Identity) Candidates() []string {
	if id.Ext == defaultExt {
		return []string{id.Name()}
	}
	return []string{id.Name(), id.JPEGName()}
}

func guessExtension(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return defaultExt
	}
	ext := strings.ToLower(path.Ext(parsed.Path))
	if _, ok := recognizedExts[ext]; ok {
		return ext
	}
	return defaultExt
}
