package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
)

// 相册令牌固定为 16 字节随机数的十六进制表示
var albumTokenPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

// GenerateRandomHex Generate a random hex string of n bytes
func GenerateRandomHex(n int) (string, error) {
	bytes := make([]byte, n)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// GenerateAlbumToken 生成相册分享令牌
func GenerateAlbumToken() (string, error) {
	return GenerateRandomHex(16)
}

// IsValidAlbumToken 校验令牌格式，避免对畸形输入做无谓的目录查询
func IsValidAlbumToken(token string) bool {
	return albumTokenPattern.MatchString(token)
}
