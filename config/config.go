package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

var (
	globalConfig Config
	once         sync.Once
)

// Config 扁平化配置结构体
type Config struct {
	// 服务器配置
	ServerHost         string        `mapstructure:"server_host"`
	ServerPort         int           `mapstructure:"server_port"`
	ServerDomain       string        `mapstructure:"server_domain"`
	ServerReadTimeout  time.Duration `mapstructure:"server_read_timeout"`
	ServerWriteTimeout time.Duration `mapstructure:"server_write_timeout"`
	ServerIdleTimeout  time.Duration `mapstructure:"server_idle_timeout"`

	// CORS 配置，逗号分隔的来源列表
	CORSAllowedOrigins string `mapstructure:"cors_allowed_origins"`

	// 数据库配置
	DBType     string `mapstructure:"db_type"`
	DBHost     string `mapstructure:"db_host"`
	DBPort     int    `mapstructure:"db_port"`
	DBUsername string `mapstructure:"db_username"`
	DBPassword string `mapstructure:"db_password"`
	DBName     string `mapstructure:"db_name"`
	DBFilePath string `mapstructure:"db_file_path"`

	// 存储配置
	StorageType      string `mapstructure:"storage_type"`
	StorageLocalPath string `mapstructure:"storage_local_path"`

	StorageMinioEndpoint  string `mapstructure:"storage_minio_endpoint"`
	StorageMinioAccessKey string `mapstructure:"storage_minio_access_key"`
	StorageMinioSecretKey string `mapstructure:"storage_minio_secret_key"`
	StorageMinioBucket    string `mapstructure:"storage_minio_bucket"`
	StorageMinioUseSSL    bool   `mapstructure:"storage_minio_use_ssl"`

	StorageWebDAVURL      string `mapstructure:"storage_webdav_url"`
	StorageWebDAVUsername string `mapstructure:"storage_webdav_username"`
	StorageWebDAVPassword string `mapstructure:"storage_webdav_password"`
	StorageWebDAVRoot     string `mapstructure:"storage_webdav_root"`

	// 加密配置
	VaultMasterKey string `mapstructure:"vault_master_key"`
	VaultTempDir   string `mapstructure:"vault_temp_dir"`

	// 上传配置
	UploadMaxSizeMB       int `mapstructure:"upload_max_size_mb"`
	UploadMaxBatchTotalMB int `mapstructure:"upload_max_batch_total_mb"`

	// 转码配置
	TranscodeFFmpegPath string        `mapstructure:"transcode_ffmpeg_path"`
	TranscodeTimeout    time.Duration `mapstructure:"transcode_timeout"`

	// 缓存配置
	CacheType          string        `mapstructure:"cache_type"`
	CacheRedisAddr     string        `mapstructure:"cache_redis_addr"`
	CacheRedisPassword string        `mapstructure:"cache_redis_password"`
	CacheRedisDB       int           `mapstructure:"cache_redis_db"`
	CacheMetadataTTL   time.Duration `mapstructure:"cache_metadata_ttl"`

	// 限流配置
	RateLimitApiRPS       float64       `mapstructure:"rate_limit_api_rps"`
	RateLimitApiBurst     int           `mapstructure:"rate_limit_api_burst"`
	RateLimitObjectRPS    float64       `mapstructure:"rate_limit_object_rps"`
	RateLimitObjectBurst  int           `mapstructure:"rate_limit_object_burst"`
	RateLimitExpireTime   time.Duration `mapstructure:"rate_limit_expire_time"`
}

// InitConfig Initialize configuration
func InitConfig() {
	once.Do(func() {
		loadConfig()
	})
}

func Get() *Config {
	return &globalConfig
}

// loadConfig Core configuration loading
func loadConfig() {
	setDefaults()

	viper.SetConfigFile(".env")
	viper.SetConfigType("env")

	if err := viper.ReadInConfig(); err != nil {
		fmt.Fprintln(os.Stderr, "Info: .env file not found, using defaults and environment variables")
	} else {
		fmt.Fprintln(os.Stderr, "Info: Loaded configuration from .env file")
	}

	viper.AutomaticEnv()
	for _, key := range viper.AllKeys() {
		viper.BindEnv(key)
	}

	if err := viper.Unmarshal(&globalConfig); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: Unable to unmarshal config, %v\n", err)
		os.Exit(1)
	}
}

// setDefaults 设置默认值
func setDefaults() {
	// 服务器配置默认值
	viper.SetDefault("server_host", "127.0.0.1")
	viper.SetDefault("server_port", 8080)
	viper.SetDefault("server_domain", "")
	viper.SetDefault("server_read_timeout", "15s")
	viper.SetDefault("server_write_timeout", "0s") // 流式下载不限制写超时
	viper.SetDefault("server_idle_timeout", "120s")

	viper.SetDefault("cors_allowed_origins", "")

	// 数据库配置默认值
	viper.SetDefault("db_type", "sqlite")
	viper.SetDefault("db_host", "localhost")
	viper.SetDefault("db_port", 5432)
	viper.SetDefault("db_username", "postgres")
	viper.SetDefault("db_password", "")
	viper.SetDefault("db_name", "media-vault")
	viper.SetDefault("db_file_path", "")

	// 存储配置默认值
	viper.SetDefault("storage_type", "local")
	viper.SetDefault("storage_local_path", "./data/objects")
	viper.SetDefault("storage_minio_endpoint", "")
	viper.SetDefault("storage_minio_access_key", "")
	viper.SetDefault("storage_minio_secret_key", "")
	viper.SetDefault("storage_minio_bucket", "media-vault")
	viper.SetDefault("storage_minio_use_ssl", true)
	viper.SetDefault("storage_webdav_url", "")
	viper.SetDefault("storage_webdav_username", "")
	viper.SetDefault("storage_webdav_password", "")
	viper.SetDefault("storage_webdav_root", "")

	// 加密配置默认值，密钥必须显式配置
	viper.SetDefault("vault_master_key", "")
	viper.SetDefault("vault_temp_dir", "./data/temp")

	// 上传配置默认值
	viper.SetDefault("upload_max_size_mb", 512)
	viper.SetDefault("upload_max_batch_total_mb", 2048)

	// 转码配置默认值
	viper.SetDefault("transcode_ffmpeg_path", "ffmpeg")
	viper.SetDefault("transcode_timeout", "10m")

	// 缓存配置默认值
	viper.SetDefault("cache_type", "memory")
	viper.SetDefault("cache_redis_addr", "localhost:6379")
	viper.SetDefault("cache_redis_password", "")
	viper.SetDefault("cache_redis_db", 0)
	viper.SetDefault("cache_metadata_ttl", "1h")

	// 限流配置默认值
	viper.SetDefault("rate_limit_api_rps", 10.0)
	viper.SetDefault("rate_limit_api_burst", 20)
	viper.SetDefault("rate_limit_object_rps", 100.0)
	viper.SetDefault("rate_limit_object_burst", 200)
	viper.SetDefault("rate_limit_expire_time", "10m")
}

// Addr 返回监听地址，格式为 "host:port"
func (c *Config) Addr() string {
	host := c.ServerHost
	if host == "" {
		host = "0.0.0.0"
	}
	port := c.ServerPort
	if port == 0 {
		port = 8080
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// BaseURL 返回基础 URL，用于生成分享链接
func (c *Config) BaseURL() string {
	if c.ServerDomain != "" {
		return c.ServerDomain
	}
	host := c.ServerHost
	if host == "0.0.0.0" || host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s:%d", host, c.ServerPort)
}

// AllowedOrigins 返回允许的跨域来源列表
func (c *Config) AllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return []string{c.BaseURL()}
	}
	parts := strings.Split(c.CORSAllowedOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}
