package cache

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteFileAtomic 写入 path 之外的临时文件后 rename 覆盖目标，读者只会看到完整内容。
// 与 PutOnce 不同，它会替换已存在的文件，用于 GeoJSON、页面与源数据副本。
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}
	tempFile, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()

	_, err = tempFile.Write(data)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Chmod(tempName, 0o644)
	}
	if err == nil {
		err = os.Rename(tempName, path)
	}
	if err != nil {
		os.Remove(tempName)
		return err
	}
	return nil
}
