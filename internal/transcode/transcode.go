package transcode

import (
	"context"
	"path/filepath"
	"strings"
)

// 转码目标：广泛可播放的 mp4 容器
const (
	TargetContentType = "video/mp4"
	TargetExtension   = ".mp4"
)

// Transcoder 外部转码能力抽象
// 纯副作用步骤：输入临时文件，输出新的临时文件，调用方负责两者的清理。
type Transcoder interface {
	Transcode(ctx context.Context, inputPath string) (string, error)
}

// 需要归一化的容器，按声明的 MIME 类型匹配
var transcodeContentTypes = map[string]bool{
	"video/quicktime":  true,
	"video/x-msvideo":  true,
	"video/x-matroska": true,
}

// 需要归一化的容器，按文件扩展名匹配
var transcodeExtensions = map[string]bool{
	".mov": true,
	".avi": true,
	".mkv": true,
}

// NeedsTranscode 判断上传文件是否需要先转码
// MIME 类型与扩展名任一信号命中即转，宁可多转也不漏掉标错类型的上传。
func NeedsTranscode(contentType, filename string) bool {
	mediaType := strings.ToLower(strings.TrimSpace(contentType))
	if idx := strings.Index(mediaType, ";"); idx >= 0 {
		mediaType = strings.TrimSpace(mediaType[:idx])
	}
	if transcodeContentTypes[mediaType] {
		return true
	}

	ext := strings.ToLower(filepath.Ext(filename))
	return transcodeExtensions[ext]
}
