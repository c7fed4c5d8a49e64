package types

import (
	"errors"
	"time"
)

// Cache 元数据缓存接口
type Cache interface {
	// Set 设置缓存项
	Set(key string, value interface{}, expiration time.Duration) error

	// Get 获取缓存项并反序列化到 dest
	Get(key string, dest interface{}) error

	// Delete 删除缓存项
	Delete(key string) error

	// Close 关闭缓存连接
	Close() error
}

// ErrCacheMiss 缓存未命中错误
var ErrCacheMiss = errors.New("cache miss")

// IsCacheMiss 判断是否为缓存未命中错误
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}
