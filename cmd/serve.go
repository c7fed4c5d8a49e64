package cmd

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/anoixa/media-vault/api/core"
	"github.com/anoixa/media-vault/cache"
	"github.com/anoixa/media-vault/config"
	"github.com/anoixa/media-vault/database/dbcore"
	"github.com/anoixa/media-vault/database/repo/albums"
	"github.com/anoixa/media-vault/internal/transcode"
	"github.com/anoixa/media-vault/internal/vault"
	"github.com/anoixa/media-vault/storage"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start API server",
	Run: func(cmd *cobra.Command, args []string) {
		RunServer()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func RunServer() {
	config.InitConfig()
	cfg := config.Get()

	// 主密钥是硬前提，缺失或格式错误直接退出
	key, err := vault.LoadKey(cfg.VaultMasterKey)
	if err != nil {
		log.Fatalf("Failed to load master key: %v", err)
	}
	cipher, err := vault.NewCipher(key)
	if err != nil {
		log.Fatalf("Failed to initialize cipher: %v", err)
	}

	if err := os.MkdirAll("./data", os.ModePerm); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}
	if err := os.MkdirAll(cfg.VaultTempDir, os.ModePerm); err != nil {
		log.Fatalf("Failed to create temp directory: %v", err)
	}

	db, err := dbcore.Open(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	if err := dbcore.AutoMigrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	log.Printf("Database initialized, type: %s", cfg.DBType)

	store, err := storage.NewProvider(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	log.Printf("Storage initialized, provider: %s", store.Name())

	metaCache, err := cache.New(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize cache: %v", err)
	}

	transcoder := transcode.NewFFmpeg(cfg.TranscodeFFmpegPath, cfg.VaultTempDir, cfg.TranscodeTimeout)

	service := vault.NewService(
		cipher,
		store,
		transcoder,
		albums.NewRepository(db),
		metaCache,
		cfg.VaultTempDir,
		cfg.CacheMetadataTTL,
	)

	// 启动时清理残留临时文件
	go cleanOldTempFiles(cfg.VaultTempDir)

	deps := &core.ServerDependencies{
		Service:   service,
		DB:        db,
		Store:     store,
		MetaCache: metaCache,
	}

	// 启动gin
	server, cleanup := core.StartServer(deps)
	go func() {
		log.Printf("Server started on %s", cfg.Addr())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// 处理退出signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if cleanup != nil {
		cleanup()
	}

	if metaCache != nil {
		if err := metaCache.Close(); err != nil {
			log.Printf("Error closing cache: %v", err)
		}
	}

	if err := dbcore.Close(db); err != nil {
		log.Printf("Error closing database: %v", err)
	}

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited successfully")
}

// cleanOldTempFiles 清理超过24小时的临时文件
func cleanOldTempFiles(tempDir string) {
	if _, err := os.Stat(tempDir); os.IsNotExist(err) {
		return
	}

	entries, err := os.ReadDir(tempDir)
	if err != nil {
		log.Printf("Failed to read temp directory: %v", err)
		return
	}

	cutoff := time.Now().Add(-24 * time.Hour)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			storage.RemoveTemp(filepath.Join(tempDir, entry.Name()))
			removed++
		}
	}
	if removed > 0 {
		log.Printf("Removed %d stale temp files", removed)
	}
}
