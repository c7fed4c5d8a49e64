package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/anoixa/media-vault/config"
)

// MinioStorage S3 兼容的密文对象存储
type MinioStorage struct {
	client *minio.Client
	bucket string
}

// NewMinioStorage 创建 MinIO 存储提供者，桶不存在时创建
func NewMinioStorage(cfg *config.Config) (*MinioStorage, error) {
	client, err := minio.New(cfg.StorageMinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.StorageMinioAccessKey, cfg.StorageMinioSecretKey, ""),
		Secure: cfg.StorageMinioUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MinIO client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	bucket := cfg.StorageMinioBucket
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket '%s': %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket '%s': %w", bucket, err)
		}
	}

	return &MinioStorage{client: client, bucket: bucket}, nil
}

// SaveWithContext 流式上传密文对象，大小未知时走分段上传
func (s *MinioStorage) SaveWithContext(ctx context.Context, storagePath string, ciphertext io.Reader) error {
	_, err := s.client.PutObject(ctx, s.bucket, storagePath, ciphertext, -1, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return fmt.Errorf("failed to upload object '%s': %w", storagePath, err)
	}
	return nil
}

// GetWithContext 获取密文对象
// 先 Stat 以便把缺失对象与其他错误区分开。
func (s *MinioStorage) GetWithContext(ctx context.Context, storagePath string) (io.ReadSeekCloser, error) {
	if _, err := s.client.StatObject(ctx, s.bucket, storagePath, minio.StatObjectOptions{}); err != nil {
		if isMinioNotFound(err) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to stat object '%s': %w", storagePath, err)
	}

	object, err := s.client.GetObject(ctx, s.bucket, storagePath, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object '%s': %w", storagePath, err)
	}
	return object, nil
}

// DeleteWithContext 删除密文对象
func (s *MinioStorage) DeleteWithContext(ctx context.Context, storagePath string) error {
	err := s.client.RemoveObject(ctx, s.bucket, storagePath, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to delete object '%s': %w", storagePath, err)
	}
	return nil
}

// Exists 检查对象是否存在
func (s *MinioStorage) Exists(ctx context.Context, storagePath string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, storagePath, minio.StatObjectOptions{})
	if err != nil {
		if isMinioNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Health 检查存储健康状态
func (s *MinioStorage) Health(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}

// Name 返回存储名称
func (s *MinioStorage) Name() string {
	return "minio"
}

// isMinioNotFound 判断是否为对象不存在错误
func isMinioNotFound(err error) bool {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		return resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket"
	}
	return false
}

var _ io.ReadSeekCloser = (*minio.Object)(nil)
