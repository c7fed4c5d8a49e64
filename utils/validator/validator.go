package validator

import "strings"

// MediaKind 上传媒体的大类
type MediaKind string

const (
	MediaKindImage MediaKind = "image"
	MediaKindVideo MediaKind = "video"
)

// MediaKindOf 将声明的内容类型归类为图片或视频
// 仅接受 image/* 与 video/*，其余类型一律拒绝。
func MediaKindOf(contentType string) (MediaKind, bool) {
	mediaType := strings.ToLower(strings.TrimSpace(contentType))
	if idx := strings.Index(mediaType, ";"); idx >= 0 {
		mediaType = strings.TrimSpace(mediaType[:idx])
	}

	switch {
	case strings.HasPrefix(mediaType, "image/"):
		return MediaKindImage, true
	case strings.HasPrefix(mediaType, "video/"):
		return MediaKindVideo, true
	default:
		return "", false
	}
}
