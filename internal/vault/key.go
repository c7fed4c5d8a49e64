package vault

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
)

// KeySize AES-256 主密钥长度
const KeySize = 32

// LoadKey 解析配置中的主密钥
// 接受 64 位十六进制字符串，或解码后恰好为 32 字节的 base64 字符串。
// 其余输入一律视为配置错误，由调用方决定是否终止进程。
func LoadKey(secret string) ([]byte, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("master key is not configured")
	}

	if len(secret) == hex.EncodedLen(KeySize) {
		if key, err := hex.DecodeString(secret); err == nil {
			return key, nil
		}
	}

	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding} {
		if key, err := enc.DecodeString(secret); err == nil && len(key) == KeySize {
			return key, nil
		}
	}

	return nil, errors.New("master key must be 64 hex characters or base64 decoding to exactly 32 bytes")
}
