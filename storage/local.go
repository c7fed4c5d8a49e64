package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage 本地文件系统密文存储
type LocalStorage struct {
	absBasePath string
}

// NewLocalStorage 创建本地存储提供者，存储根不存在时创建
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	absPath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path for '%s': %w", basePath, err)
	}

	if err := os.MkdirAll(absPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage root '%s': %w", absPath, err)
	}

	return &LocalStorage{
		absBasePath: absPath + string(os.PathSeparator),
	}, nil
}

// resolve 将相对存储路径规范化为绝对路径并校验仍在存储根内
// 写入与读取共用同一条校验路径，规范化后越界一律拒绝。
func (s *LocalStorage) resolve(storagePath string) (string, error) {
	if storagePath == "" || filepath.IsAbs(storagePath) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, storagePath)
	}

	fullPath := filepath.Clean(filepath.Join(s.absBasePath, filepath.FromSlash(storagePath)))
	if !strings.HasPrefix(fullPath, s.absBasePath) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, storagePath)
	}
	return fullPath, nil
}

// SaveWithContext 保存密文对象，目标目录不存在时创建
func (s *LocalStorage) SaveWithContext(ctx context.Context, storagePath string, ciphertext io.Reader) error {
	dstPath, err := s.resolve(storagePath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dstPath), 0755); err != nil {
		return fmt.Errorf("failed to create object directory: %w", err)
	}

	dst, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("failed to create object file: %w", err)
	}

	if _, err := io.Copy(dst, ciphertext); err != nil {
		_ = dst.Close()
		_ = os.Remove(dstPath)
		return fmt.Errorf("failed to write object: %w", err)
	}

	if err := dst.Close(); err != nil {
		_ = os.Remove(dstPath)
		return fmt.Errorf("failed to close object file: %w", err)
	}
	return nil
}

// GetWithContext 打开密文对象
func (s *LocalStorage) GetWithContext(ctx context.Context, storagePath string) (io.ReadSeekCloser, error) {
	fullPath, err := s.resolve(storagePath)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to open object: %w", err)
	}
	return file, nil
}

// DeleteWithContext 删除密文对象
func (s *LocalStorage) DeleteWithContext(ctx context.Context, storagePath string) error {
	fullPath, err := s.resolve(storagePath)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			return ErrObjectNotFound
		}
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// Exists 检查对象是否存在
func (s *LocalStorage) Exists(ctx context.Context, storagePath string) (bool, error) {
	fullPath, err := s.resolve(storagePath)
	if err != nil {
		return false, err
	}

	if _, err := os.Stat(fullPath); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Health 检查存储健康状态
func (s *LocalStorage) Health(ctx context.Context) error {
	_, err := os.ReadDir(s.absBasePath)
	return err
}

// Name 返回存储名称
func (s *LocalStorage) Name() string {
	return "local"
}

// BasePath 返回存储根路径
func (s *LocalStorage) BasePath() string {
	return s.absBasePath
}
