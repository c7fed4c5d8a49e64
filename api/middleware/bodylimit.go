package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// MaxBytesReader 限制请求体大小，超限的读取返回 413
func MaxBytesReader(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}
