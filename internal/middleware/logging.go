// Package middleware 存放 Gin 框架的中间件。
package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"dejny-gpt-go/pkg/log"
)

// RequestLogger 是一个 Gin 中间件，用于记录每个请求的概要日志。
// multipart 请求体不做捕获，避免把上传的二进制内容写进日志。
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		c.Next()

		latency := time.Since(startTime)
		statusCode := c.Writer.Status()
		clientIP := c.ClientIP()
		method := c.Request.Method
		path := c.Request.URL.Path
		contentType := c.ContentType()

		fields := []interface{}{
			"statusCode", statusCode,
			"latency", latency.String(),
			"clientIP", clientIP,
			"method", method,
			"path", path,
			"responseSize", c.Writer.Size(),
		}
		if strings.HasPrefix(contentType, "multipart/") {
			fields = append(fields, "contentType", contentType)
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "errors", c.Errors.String())
		}

		log.Infow("HTTP Request Log", fields...)
	}
}
