package core

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/anoixa/media-vault/cache/types"
	"github.com/anoixa/media-vault/storage"
)

const healthCheckTimeout = 5 * time.Second

// checkDatabaseHealth 检查数据库连通性
func checkDatabaseHealth(db *gorm.DB) string {
	if db == nil {
		return "unavailable"
	}
	sqlDB, err := db.DB()
	if err != nil {
		return "error: " + err.Error()
	}

	ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return "error: " + err.Error()
	}
	return "ok"
}

// checkStorageHealth 检查对象存储健康状态
func checkStorageHealth(store storage.Provider) string {
	if store == nil {
		return "unavailable"
	}
	ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
	defer cancel()
	if err := store.Health(ctx); err != nil {
		return "error: " + err.Error()
	}
	return "ok"
}

// checkCacheHealth 检查元数据缓存，未启用缓存视为正常
func checkCacheHealth(metaCache types.Cache) string {
	if metaCache == nil {
		return "ok"
	}
	probe := "health-probe"
	if err := metaCache.Set("vault:health", probe, time.Minute); err != nil {
		return "error: " + err.Error()
	}
	var got string
	if err := metaCache.Get("vault:health", &got); err != nil && !types.IsCacheMiss(err) {
		return "error: " + err.Error()
	}
	return "ok"
}
