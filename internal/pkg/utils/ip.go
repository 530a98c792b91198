package utils

import (
	"context"
	"net"
	"strings"

	"github.com/gin-gonic/gin"
)

// ContextKey 标准上下文键类型，避免裸字符串键冲突
type ContextKey string

const (
	// ContextKeyClientIP 标准上下文中的客户端IP
	ContextKeyClientIP ContextKey = "client_ip"
	// ContextKeyRequestID 标准上下文中的请求ID
	ContextKeyRequestID ContextKey = "request_id"
)

// NormalizeIP 标准化IP地址：
// - 带端口的地址去掉端口
// - X-Forwarded-For 列表取第一个
// - IPv4-mapped IPv6 (::ffff:192.0.2.1) 转成纯 IPv4
// - 其余按原样返回
func NormalizeIP(input string) string {
	if input == "" {
		return ""
	}

	ip := strings.TrimSpace(strings.Split(input, ",")[0])

	if h, _, err := net.SplitHostPort(ip); err == nil {
		ip = h
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ip
	}
	if v4 := parsed.To4(); v4 != nil {
		return v4.String()
	}
	return parsed.String()
}

// GetClientIP 从 Gin 上下文获取标准化后的客户端IP
func GetClientIP(c *gin.Context) string {
	clientIPRaw := c.GetHeader("X-Forwarded-For")
	if clientIPRaw == "" {
		clientIPRaw = c.GetHeader("X-Real-IP")
	}
	if clientIPRaw == "" {
		clientIPRaw = c.ClientIP()
	}
	return NormalizeIP(clientIPRaw)
}

// GetClientIPFromContext 从标准上下文读取客户端IP，由日志中间件写入
func GetClientIPFromContext(ctx context.Context) string {
	if ip, ok := ctx.Value(ContextKeyClientIP).(string); ok {
		return ip
	}
	return ""
}

// GetRequestIDFromContext 从标准上下文读取请求ID，由请求ID中间件写入
func GetRequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return id
	}
	return ""
}
