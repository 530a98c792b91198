/**
 * 路由:健康检查路由
 * @author: sun977
 * @date: 2025.11.10
 * @description: 包含健康检查与 prometheus 指标路由
 * @func:
 */

package router

import (
	"net/http"
	"time"

	"neogvm/internal/pkg/logger"
	"neogvm/internal/pkg/metrics"
	"neogvm/internal/pkg/version"

	"github.com/gin-gonic/gin"
)

// setupHealthRoutes 设置健康检查路由
func (r *Router) setupHealthRoutes(group *gin.RouterGroup) {
	healthPath := r.config.Monitor.HealthPath
	if healthPath == "" {
		healthPath = "/health"
	}
	group.GET(healthPath, r.healthCheck)
	group.GET("/ready", r.healthCheck)

	if r.config.Monitor.MetricsEnabled {
		metricsPath := r.config.Monitor.MetricsPath
		if metricsPath == "" {
			metricsPath = "/metrics"
		}
		group.GET(metricsPath, gin.WrapH(metrics.Handler()))
	}
}

// healthCheck 健康检查处理器
func (r *Router) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"version":   version.GetVersion(),
		"timestamp": logger.FormatTimestamp(time.Now()),
	})
}
