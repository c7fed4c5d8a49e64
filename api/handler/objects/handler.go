package objects

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"unicode"

	"github.com/gin-gonic/gin"

	"github.com/anoixa/media-vault/api/common"
	"github.com/anoixa/media-vault/internal/vault"
	"github.com/anoixa/media-vault/utils"
)

// Handler 对象读取接口处理器
type Handler struct {
	service *vault.Service
}

// NewHandler 创建对象处理器
func NewHandler(service *vault.Service) *Handler {
	return &Handler{service: service}
}

// GetObject 解密并流式返回已存储对象
// GET /objects/:storedName
func (h *Handler) GetObject(c *gin.Context) {
	storedName := c.Param("storedName")

	stream, err := h.service.StreamObject(c.Request.Context(), storedName)
	if err != nil {
		switch {
		case errors.Is(err, vault.ErrNotFound):
			common.RespondError(c, http.StatusNotFound, "Object not found")
		case errors.Is(err, vault.ErrDecryptionFailed):
			log.Printf("Failed to decrypt object %s: %v", utils.SanitizeLogIdentifier(storedName), err)
			common.RespondError(c, http.StatusInternalServerError, "Failed to decrypt object")
		default:
			log.Printf("Failed to open object %s: %v", utils.SanitizeLogIdentifier(storedName), err)
			common.RespondError(c, http.StatusInternalServerError, "Failed to read object")
		}
		return
	}
	defer stream.Close()

	contentType := stream.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Type", contentType)
	c.Header("Content-Length", strconv.FormatInt(stream.Size, 10))
	c.Header("Cache-Control", "private, max-age=86400")
	setContentDisposition(c, stream.OriginalName)

	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, stream); err != nil && !isBrokenPipe(err) {
		log.Printf("Failed to stream object %s: %v", utils.SanitizeLogIdentifier(storedName), err)
	}
}

// setContentDisposition 设置下载文件名，非 ASCII 名称附带 RFC 5987 编码
func setContentDisposition(c *gin.Context, originalName string) {
	if originalName == "" {
		return
	}
	asciiName := toASCII(originalName)
	if asciiName == originalName {
		c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="%s"`, asciiName))
	} else {
		rfc5987Name := url.QueryEscape(originalName)
		c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="%s"; filename*=UTF-8''%s`, asciiName, rfc5987Name))
	}
}

// isBrokenPipe 客户端中途断开不算服务端错误
func isBrokenPipe(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "connection reset by peer")
}

// toASCII 将字符串转换为 ASCII 表示，非 ASCII 字符转为下划线
func toASCII(s string) string {
	var result []rune
	for _, r := range s {
		if r > unicode.MaxASCII || r == '"' {
			result = append(result, '_')
		} else {
			result = append(result, r)
		}
	}
	return string(result)
}
