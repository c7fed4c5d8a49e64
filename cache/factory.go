package cache

import (
	"fmt"
	"log"

	"github.com/anoixa/media-vault/cache/redis"
	"github.com/anoixa/media-vault/cache/ristretto"
	"github.com/anoixa/media-vault/cache/types"
	"github.com/anoixa/media-vault/config"
)

// New 根据配置创建元数据缓存提供者
// cache_type 为 none 时返回 nil，调用方按无缓存处理。
func New(cfg *config.Config) (types.Cache, error) {
	switch cfg.CacheType {
	case "memory", "":
		log.Println("Using in-memory metadata cache")
		return ristretto.NewRistretto()
	case "redis":
		log.Printf("Using redis metadata cache at %s", cfg.CacheRedisAddr)
		return redis.NewRedis(cfg.CacheRedisAddr, cfg.CacheRedisPassword, cfg.CacheRedisDB)
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.CacheType)
	}
}
