/**
 * 中间件:安全中间件
 * @author: sun977
 * @date: 2025.11.10
 * @description: 定义安全中间件
 * @func:
 *   - GinCORSMiddleware CORS跨域资源共享中间件，按配置生成
 *   - GinSecurityHeadersMiddleware 安全头部中间件
 *   - GinRequestIDMiddleware 请求ID中间件，为每个请求添加唯一的请求ID
 */
package middleware

import (
	"context"
	"time"

	"neogvm/internal/pkg/logger"
	"neogvm/internal/pkg/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// GinCORSMiddleware CORS跨域资源共享中间件
// 未配置允许源时放行全部来源(此时不允许携带凭据)
func (m *MiddlewareManager) GinCORSMiddleware() gin.HandlerFunc {
	c := m.securityConfig.CORS

	cfg := cors.Config{
		AllowMethods:     c.AllowMethods,
		AllowHeaders:     c.AllowHeaders,
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: c.AllowCredentials,
		MaxAge:           time.Duration(c.MaxAge) * time.Second,
	}
	if len(cfg.AllowMethods) == 0 {
		cfg.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(cfg.AllowHeaders) == 0 {
		cfg.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	}
	if len(c.AllowOrigins) == 0 || (len(c.AllowOrigins) == 1 && c.AllowOrigins[0] == "*") {
		cfg.AllowAllOrigins = true
		cfg.AllowCredentials = false
	} else {
		cfg.AllowOrigins = c.AllowOrigins
	}

	logger.WithFields(logrus.Fields{
		"path":        "middleware.security.GinCORSMiddleware",
		"operation":   "cors_middleware",
		"func_name":   "middleware.security.GinCORSMiddleware",
		"all_origins": cfg.AllowAllOrigins,
		"origins":     cfg.AllowOrigins,
	}).Debug("CORS middleware configured")

	return cors.New(cfg)
}

// GinSecurityHeadersMiddleware 安全头中间件
func (m *MiddlewareManager) GinSecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// X-Content-Type-Options: 防止MIME类型嗅探攻击
		c.Header("X-Content-Type-Options", "nosniff")
		// X-Frame-Options: 防止点击劫持攻击
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none';")

		// Strict-Transport-Security: 仅在HTTPS环境下设置
		if c.Request.TLS != nil || c.Request.Header.Get("X-Forwarded-Proto") == "https" {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Header("Server", "NeoGVM")
		c.Next()
	}
}

// GinRequestIDMiddleware 请求ID中间件
// 沿用上游代理带来的 X-Request-ID，没有时生成一个
func (m *MiddlewareManager) GinRequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		c.Set("request_id", requestID)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), utils.ContextKeyRequestID, requestID))
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}
