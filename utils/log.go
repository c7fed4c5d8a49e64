package utils

import (
	"strings"
	"unicode"
)

func SanitizeLogMessage(msg string) string {
	var sb strings.Builder
	for _, r := range msg {
		if r == 10 || r == 9 {
			sb.WriteRune(r)
		} else if unicode.IsPrint(r) || unicode.IsGraphic(r) {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// SanitizeLogIdentifier 截断并清洗用于日志输出的对象标识
func SanitizeLogIdentifier(identifier string) string {
	if len(identifier) > 64 {
		identifier = identifier[:64] + "..."
	}
	return SanitizeLogMessage(identifier)
}
