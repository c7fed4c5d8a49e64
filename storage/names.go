package storage

import (
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/anoixa/media-vault/utils"
)

// objectNameBytes 对象标识的随机部分长度（字节）
const objectNameBytes = 16

// NewObjectName 生成抗碰撞的对象标识：随机十六进制 + 原始扩展名
// 标识与用户提供的文件名无关，防止路径猜测与枚举。
func NewObjectName(ext string) (string, error) {
	name, err := utils.GenerateRandomHex(objectNameBytes)
	if err != nil {
		return "", fmt.Errorf("failed to generate object name: %w", err)
	}
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return name + ext, nil
}

// ObjectPath 按日期分层生成相对存储路径
func ObjectPath(objectName string, createdAt time.Time) string {
	return path.Join("objects", createdAt.Format("2006/01/02"), objectName)
}

// IsValidObjectName 校验对象标识是否合法
func IsValidObjectName(name string) bool {
	if name == "" {
		return false
	}
	if filepath.IsAbs(name) {
		return false
	}
	if strings.Contains(name, "..") {
		return false
	}

	for _, r := range name {
		if !((r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') ||
			r == '-' || r == '_' || r == '.') {
			return false
		}
	}
	return true
}

// RemoveTemp 尽力删除临时文件
// 文件已不存在视为成功（幂等）；其余失败只记录日志，不影响主流程。
func RemoveTemp(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Printf("Failed to remove temp file %s: %v", utils.SanitizeLogMessage(path), err)
	}
}
