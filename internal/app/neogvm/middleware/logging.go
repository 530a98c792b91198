/**
 * 中间件:日志相关中间件
 * @author: sun977
 * @date: 2025.11.10
 * @description: 定义日志中间件
 * @func:
 *   - GinLoggingMiddleware Gin日志中间件[同时把客户端IP存储到Gin上下文和标准上下文,供后续使用]
 */
package middleware

import (
	"context"
	"time"

	"neogvm/internal/pkg/logger"
	"neogvm/internal/pkg/utils"

	"github.com/gin-gonic/gin"
)

// GinLoggingMiddleware Gin日志中间件
// 记录所有HTTP请求的访问日志，4xx/5xx 另记一条警告
// 使用方式: router.Use(middlewareManager.GinLoggingMiddleware())
func (m *MiddlewareManager) GinLoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		clientIP := utils.GetClientIP(c)
		c.Set("client_ip", clientIP)
		// service 层只拿到标准上下文，这里同步一份
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), utils.ContextKeyClientIP, clientIP))

		c.Next()

		requestID := c.GetString("request_id")
		subject := c.GetString("subject")
		logger.LogAccessRequest(c, start, requestID, subject)

		if status := c.Writer.Status(); status >= 400 {
			errorMsg := c.Errors.String()
			if errorMsg == "" {
				errorMsg = statusText(status)
			}
			logger.LogWarn("HTTP request failed", requestID, clientIP, c.Request.URL.Path, c.Request.Method, map[string]interface{}{
				"status_code": status,
				"error":       errorMsg,
				"duration":    time.Since(start).Milliseconds(),
			})
		}
	}
}

func statusText(code int) string {
	switch code {
	case 400:
		return "Bad Request"
	case 401:
		return "Unauthorized"
	case 403:
		return "Forbidden"
	case 404:
		return "Not Found"
	case 500:
		return "Internal Server Error"
	default:
		return "HTTP Error"
	}
}
