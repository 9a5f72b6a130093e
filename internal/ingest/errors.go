package ingest

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidURL 表示 URL 为空、相对地址或非 http(s) 协议，不会产生任何副作用。
	ErrInvalidURL = errors.New("invalid image url")
	// ErrFetchFailed 表示网络错误、超时或非 2xx 响应。
	ErrFetchFailed = errors.New("image fetch failed")
	// ErrDecodeFailed 表示字节已下载但无法解码或重新编码为 JPEG。
	ErrDecodeFailed = errors.New("image decode failed")
)

// WriteError 表示图片目录不可写（磁盘满、权限不足等），会终止整个批次。
type WriteError struct {
	Name string
	Op   string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("image store %s %s: %v", e.Op, e.Name, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// IsFatal 报告 err 是否为需要终止批次的文件系统错误。
func IsFatal(err error) bool {
	var writeErr *WriteError
	return errors.As(err, &writeErr)
}
