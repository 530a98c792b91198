/**
 * 中间件:认证相关中间件
 * @author: sun977
 * @date: 2025.11.10
 * @description: 定义认证相关中间件
 * @func:
 *   - GinJWTAuthMiddleware: Gin JWT认证中间件
 *   - GinRequireScope: 权限范围检查中间件
 *   - extractTokenFromGinHeader: 从Gin请求头中提取JWT令牌
 */
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"neogvm/internal/model"
	"neogvm/internal/pkg/auth"
	"neogvm/internal/pkg/logger"
	"neogvm/internal/pkg/utils"

	"github.com/gin-gonic/gin"
)

// GinJWTAuthMiddleware Gin JWT认证中间件
// 鉴权关闭时直接放行；通过校验后把 subject 与 claims 写入Gin上下文
func (m *MiddlewareManager) GinJWTAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.AuthEnabled() {
			c.Next()
			return
		}

		clientIP := utils.GetClientIP(c)
		requestID := c.GetString("request_id")

		accessToken, err := m.extractTokenFromGinHeader(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, model.APIResponse{
				Code:    http.StatusUnauthorized,
				Status:  "failed",
				Message: "missing or invalid authorization header",
				Error:   err.Error(),
			})
			return
		}

		claims, err := m.jwtManager.ValidateToken(accessToken)
		if err != nil {
			logger.LogWarn("token validation failed", requestID, clientIP, c.Request.URL.Path, c.Request.Method, map[string]interface{}{
				"operation": "token_validation",
				"error":     err.Error(),
			})
			c.AbortWithStatusJSON(http.StatusUnauthorized, model.APIResponse{
				Code:    http.StatusUnauthorized,
				Status:  "failed",
				Message: "invalid or expired token",
				Error:   err.Error(),
			})
			return
		}

		c.Set("subject", claims.Subject)
		c.Set("claims", claims)
		c.Next()
	}
}

// GinRequireScope 要求令牌具有指定权限范围，鉴权关闭时放行
func (m *MiddlewareManager) GinRequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.AuthEnabled() {
			c.Next()
			return
		}
		v, ok := c.Get("claims")
		claims, _ := v.(*auth.TokenClaims)
		if !ok || claims == nil || !claims.HasScope(scope) {
			c.AbortWithStatusJSON(http.StatusForbidden, model.APIResponse{
				Code:    http.StatusForbidden,
				Status:  "failed",
				Message: "insufficient scope",
				Error:   "scope " + scope + " required",
			})
			return
		}
		c.Next()
	}
}

// extractTokenFromGinHeader 从 Authorization: Bearer <token> 中提取令牌
func (m *MiddlewareManager) extractTokenFromGinHeader(c *gin.Context) (string, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", errors.New("authorization header is required")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", errors.New("authorization header format must be Bearer {token}")
	}
	return strings.TrimSpace(parts[1]), nil
}
