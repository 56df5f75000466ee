package todo

import (
	"context"
	stdErrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileBackend 把待办集合保存为本地 JSON 文件。
type FileBackend struct {
	path string
}

// NewFileBackend 创建文件后端，并确保所在目录存在。
func NewFileBackend(path string) (*FileBackend, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("待办文件路径不能为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("创建待办目录失败: %w", err)
	}
	return &FileBackend{path: path}, nil
}

// Path 返回数据文件路径。
func (b *FileBackend) Path() string { return b.path }

// Load 读取文件。文件不存在视为空集合。
func (b *FileBackend) Load(context.Context) ([]Record, error) {
	data, err := os.ReadFile(b.path)
	if stdErrors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取待办文件失败: %w", err)
	}
	return decodeRecords(data)
}

// Save 先写入临时文件再原子替换。
func (b *FileBackend) Save(_ context.Context, records []Record) error {
	data, err := encodeRecords(records)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(b.path), filepath.Base(b.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("写入待办文件失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("写入待办文件失败: %w", err)
	}
	if err := os.Rename(tmpName, b.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("替换待办文件失败: %w", err)
	}
	return nil
}

// Close 对文件后端无操作。
func (b *FileBackend) Close() error { return nil }

var _ Backend = (*FileBackend)(nil)
