package middleware

import (
	"neogvm/internal/config"
	"neogvm/internal/pkg/auth"
)

// MiddlewareManager 中间件管理器
// 负责管理所有Gin框架的中间件，提供统一的中间件接口
type MiddlewareManager struct {
	jwtManager     *auth.JWTManager       // JWT管理器，鉴权关闭时为 nil
	securityConfig *config.SecurityConfig // 安全配置
}

// NewMiddlewareManager 创建中间件管理器
func NewMiddlewareManager(jwtManager *auth.JWTManager, securityConfig *config.SecurityConfig) *MiddlewareManager {
	if securityConfig == nil {
		securityConfig = &config.SecurityConfig{}
	}
	return &MiddlewareManager{
		jwtManager:     jwtManager,
		securityConfig: securityConfig,
	}
}

// AuthEnabled 是否开启接口鉴权
func (m *MiddlewareManager) AuthEnabled() bool {
	return m.securityConfig.JWT.Enabled && m.jwtManager != nil
}
