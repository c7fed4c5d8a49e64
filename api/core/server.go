package core

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/anoixa/media-vault/api/common"
	"github.com/anoixa/media-vault/api/handler/albums"
	"github.com/anoixa/media-vault/api/handler/objects"
	"github.com/anoixa/media-vault/api/middleware"
	"github.com/anoixa/media-vault/cache/types"
	"github.com/anoixa/media-vault/config"
	"github.com/anoixa/media-vault/internal/vault"
	"github.com/anoixa/media-vault/storage"
)

var startTime = time.Now()

// ServerDependencies 服务器依赖项
type ServerDependencies struct {
	Service   *vault.Service
	DB        *gorm.DB
	Store     storage.Provider
	MetaCache types.Cache
}

// 启动gin
func setupRouter(deps *ServerDependencies) (*gin.Engine, func()) {
	cfg := config.Get()

	// 仅在开发版本时启用 gin 日志
	if config.CommitHash != "n/a" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	if config.CommitHash == "n/a" {
		router.Use(gin.Logger())
	}
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins(),
		AllowMethods:     []string{"GET", "POST", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	router.SetTrustedProxies(nil)

	// 限制上传文件大小
	router.MaxMultipartMemory = int64(cfg.UploadMaxSizeMB) << 20

	// 请求体大小限制，按批量上传总量放宽
	requestBodyLimit := int64(cfg.UploadMaxBatchTotalMB) * 2 << 20
	if requestBodyLimit < 100<<20 {
		requestBodyLimit = 100 << 20
	}
	router.Use(middleware.MaxBytesReader(requestBodyLimit))

	// 请求ID追踪
	router.Use(middleware.RequestID())

	// 速率限制
	apiRateLimiter := middleware.NewIPRateLimiter(cfg.RateLimitApiRPS, cfg.RateLimitApiBurst, cfg.RateLimitExpireTime)
	objectRateLimiter := middleware.NewIPRateLimiter(cfg.RateLimitObjectRPS, cfg.RateLimitObjectBurst, cfg.RateLimitExpireTime)
	cleanup := func() {
		apiRateLimiter.StopCleanup()
		objectRateLimiter.StopCleanup()
	}

	router.GET("/health", func(context *gin.Context) {
		health := gin.H{
			"status":  "ok",
			"uptime":  time.Since(startTime).Round(time.Second).String(),
			"version": config.Version,
			"checks": gin.H{
				"database": checkDatabaseHealth(deps.DB),
				"storage":  checkStorageHealth(deps.Store),
				"cache":    checkCacheHealth(deps.MetaCache),
			},
		}
		httpStatus := http.StatusOK
		for _, checkResult := range health["checks"].(gin.H) {
			if result, ok := checkResult.(string); ok && result != "ok" {
				httpStatus = http.StatusServiceUnavailable
				break
			}
		}
		context.JSON(httpStatus, health)
	})
	router.GET("/version", func(context *gin.Context) {
		common.RespondSuccess(context, gin.H{
			"version": config.Version,
			"commit":  config.CommitHash,
		})
	})

	albumHandler := albums.NewHandler(deps.Service)
	objectHandler := objects.NewHandler(deps.Service)

	// 对象读取是公开接口，凭对象标识访问
	objectsGroup := router.Group("/objects")
	objectsGroup.Use(objectRateLimiter.Middleware())
	{
		objectsGroup.GET("/:storedName", objectHandler.GetObject) // GET /objects/{storedName}
	}

	apiGroup := router.Group("/api")
	apiGroup.Use(func(context *gin.Context) { // 所有API禁止缓存
		context.Header("Cache-Control", "no-store")
		context.Next()
	})
	{
		v1 := apiGroup.Group("/v1")
		v1.Use(apiRateLimiter.Middleware())
		{
			albumsGroup := v1.Group("/albums")
			{
				albumsGroup.POST("", albumHandler.CreateAlbumHandler)          // POST /api/v1/albums
				albumsGroup.GET("/:token", albumHandler.GetAlbumDetailHandler) // GET /api/v1/albums/{token}
			}
		}
	}

	return router, cleanup
}

// StartServer 创建 http.Server
func StartServer(deps *ServerDependencies) (*http.Server, func()) {
	cfg := config.Get()
	router, clean := setupRouter(deps)

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  cfg.ServerIdleTimeout,
	}

	return srv, clean
}
