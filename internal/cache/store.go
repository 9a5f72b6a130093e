package cache

import (
	"context"
	"errors"
	"io"
	"time"
)

// Store 负责管理图片目录的读写。磁盘布局遵循：
//
//	<ImagesDir>/<hash-prefix><ext>    # 转码后的 JPEG 或原始字节
//
// 目录中没有索引文件，文件是否存在即代表缓存是否命中。
type Store interface {
	// Stat 返回指定文件名的条目信息；不存在时返回 ErrNotFound。
	Stat(ctx context.Context, name string) (*Entry, error)

	// PutOnce 将 body 写入 name。实现需通过临时文件 + rename 保证原子性；
	// 若 name 已存在则保留旧文件并返回 ErrExists 与已有条目。
	PutOnce(ctx context.Context, name string, body io.Reader) (*Entry, error)

	// List 按文件名排序返回目录中的全部条目。
	List(ctx context.Context) ([]Entry, error)

	// Dir 返回图片目录的绝对路径。
	Dir() string
}

// Entry 表示目录中的一个图片文件。
type Entry struct {
	Name      string    `json:"name"`
	FilePath  string    `json:"file_path"`
	SizeBytes int64     `json:"size_bytes"`
	ModTime   time.Time `json:"mod_time"`
}

var (
	// ErrNotFound 表示缓存不存在。
	ErrNotFound = errors.New("cache entry not found")
	// ErrExists 表示目标文件已存在，本次写入被丢弃。
	ErrExists = errors.New("cache entry already exists")
	// ErrInvalidName 表示文件名不是目录内的平铺文件名。
	ErrInvalidName = errors.New("invalid cache entry name")
)
