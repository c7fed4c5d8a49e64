package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/studio-b12/gowebdav"

	"github.com/anoixa/media-vault/config"
)

// WebDAVStorage WebDAV 密文对象存储
type WebDAVStorage struct {
	client   *gowebdav.Client
	rootPath string
}

// NewWebDAVStorage 创建 WebDAV 存储提供者并验证连接
func NewWebDAVStorage(cfg *config.Config) (*WebDAVStorage, error) {
	if cfg.StorageWebDAVURL == "" {
		return nil, fmt.Errorf("webdav URL is required")
	}

	rootPath := strings.Trim(cfg.StorageWebDAVRoot, "/")
	if rootPath != "" {
		rootPath = "/" + rootPath
	}

	client := gowebdav.NewClient(cfg.StorageWebDAVURL, cfg.StorageWebDAVUsername, cfg.StorageWebDAVPassword)
	if err := client.Connect(); err != nil {
		return nil, fmt.Errorf("webdav connection test failed: %w", err)
	}

	return &WebDAVStorage{client: client, rootPath: rootPath}, nil
}

// fullPath 生成完整的 WebDAV 路径
func (s *WebDAVStorage) fullPath(storagePath string) string {
	return path.Join(s.rootPath, "/", storagePath)
}

// SaveWithContext 上传密文对象，父目录不存在时递归创建
func (s *WebDAVStorage) SaveWithContext(ctx context.Context, storagePath string, ciphertext io.Reader) error {
	fullPath := s.fullPath(storagePath)

	if err := s.client.MkdirAll(path.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("failed to create webdav directory: %w", err)
	}

	if err := s.client.WriteStream(fullPath, ciphertext, 0644); err != nil {
		return fmt.Errorf("failed to write object '%s': %w", storagePath, err)
	}
	return nil
}

// GetWithContext 获取密文对象
// WebDAV 流不可回绕，完整读入后以内存读取器返回；主存储路径是本地
// 文件系统，此后端面向小规模远端部署。
func (s *WebDAVStorage) GetWithContext(ctx context.Context, storagePath string) (io.ReadSeekCloser, error) {
	fullPath := s.fullPath(storagePath)

	stream, err := s.client.ReadStream(fullPath)
	if err != nil {
		if isWebDAVNotFound(err) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to read object '%s': %w", storagePath, err)
	}
	defer stream.Close()

	data, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("failed to read object '%s': %w", storagePath, err)
	}
	return nopReadSeekCloser{bytes.NewReader(data)}, nil
}

// DeleteWithContext 删除密文对象
func (s *WebDAVStorage) DeleteWithContext(ctx context.Context, storagePath string) error {
	if err := s.client.Remove(s.fullPath(storagePath)); err != nil {
		if isWebDAVNotFound(err) {
			return ErrObjectNotFound
		}
		return fmt.Errorf("failed to delete object '%s': %w", storagePath, err)
	}
	return nil
}

// Exists 检查对象是否存在
func (s *WebDAVStorage) Exists(ctx context.Context, storagePath string) (bool, error) {
	_, err := s.client.Stat(s.fullPath(storagePath))
	if err != nil {
		if isWebDAVNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Health 检查存储健康状态
func (s *WebDAVStorage) Health(ctx context.Context) error {
	root := s.rootPath
	if root == "" {
		root = "/"
	}
	_, err := s.client.ReadDir(root)
	return err
}

// Name 返回存储名称
func (s *WebDAVStorage) Name() string {
	return "webdav"
}

// isWebDAVNotFound 判断是否为对象不存在错误
func isWebDAVNotFound(err error) bool {
	if err == nil {
		return false
	}
	if os.IsNotExist(err) {
		return true
	}
	return strings.Contains(err.Error(), "404")
}

type nopReadSeekCloser struct {
	*bytes.Reader
}

func (nopReadSeekCloser) Close() error { return nil }
