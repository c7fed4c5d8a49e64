package storage

import (
	"fmt"
	"log"

	"github.com/anoixa/media-vault/config"
)

// NewProvider 根据配置创建密文对象存储提供者
func NewProvider(cfg *config.Config) (Provider, error) {
	switch cfg.StorageType {
	case "local", "":
		provider, err := NewLocalStorage(cfg.StorageLocalPath)
		if err != nil {
			return nil, err
		}
		log.Printf("Using 'local' object storage at %s", provider.BasePath())
		return provider, nil
	case "minio":
		provider, err := NewMinioStorage(cfg)
		if err != nil {
			return nil, err
		}
		log.Printf("Using 'minio' object storage, bucket %s", cfg.StorageMinioBucket)
		return provider, nil
	case "webdav":
		provider, err := NewWebDAVStorage(cfg)
		if err != nil {
			return nil, err
		}
		log.Println("Using 'webdav' object storage")
		return provider, nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.StorageType)
	}
}
