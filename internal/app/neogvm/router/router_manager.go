/**
 * 路由:路由管理器
 * @author: sun977
 * @date: 2025.11.10
 * @description: 路由管理器，包含Router结构体、NewRouter函数和SetupRoutes主函数
 * @func:
 */
package router

import (
	"neogvm/internal/app/neogvm/middleware"
	"neogvm/internal/config"
	gvmHandler "neogvm/internal/handler/gvm"
	"neogvm/internal/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Router 路由管理器
type Router struct {
	config            *config.Config
	engine            *gin.Engine
	middlewareManager *middleware.MiddlewareManager
	scanHandler       *gvmHandler.ScanHandler
	pipelineHandler   *gvmHandler.PipelineHandler
}

// NewRouter 创建路由管理器实例
func NewRouter(cfg *config.Config, mm *middleware.MiddlewareManager, scanHandler *gvmHandler.ScanHandler, pipelineHandler *gvmHandler.PipelineHandler) *Router {
	switch cfg.Server.Mode {
	case gin.DebugMode, gin.TestMode:
		gin.SetMode(cfg.Server.Mode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	return &Router{
		config:            cfg,
		engine:            gin.New(),
		middlewareManager: mm,
		scanHandler:       scanHandler,
		pipelineHandler:   pipelineHandler,
	}
}

// SetupRoutes 先注册全局中间件，再注册各模块路由
func (r *Router) SetupRoutes() {
	r.registerGlobalMiddleware()
	r.registerRoutes()
}

// GetEngine 获取Gin引擎实例
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}

// registerGlobalMiddleware 注册全局中间件
func (r *Router) registerGlobalMiddleware() {
	logger.WithFields(map[string]interface{}{
		"path":      "router_manager.registerGlobalMiddleware",
		"operation": "register_global_middleware",
		"func_name": "router.registerGlobalMiddleware",
	}).Debug("开始注册全局中间件")

	// 系统恢复中间件，防止 panic 直接导致进程崩溃
	r.engine.Use(gin.Recovery())

	if r.middlewareManager != nil {
		r.engine.Use(r.middlewareManager.GinRequestIDMiddleware())
		r.engine.Use(r.middlewareManager.GinCORSMiddleware())
		r.engine.Use(r.middlewareManager.GinSecurityHeadersMiddleware())
		r.engine.Use(r.middlewareManager.GinLoggingMiddleware())
	}
}

// registerRoutes 注册路由
func (r *Router) registerRoutes() {
	// 健康检查与指标挂在根路径，便于探针与抓取
	r.setupHealthRoutes(r.engine.Group(""))

	api := r.engine.Group("/api")
	v1 := api.Group("/v1")

	r.setupGVMRoutes(v1)

	logger.WithFields(map[string]interface{}{
		"path":      "router_manager.registerRoutes",
		"operation": "register_routes",
		"func_name": "router.registerRoutes",
		"routes":    len(r.engine.Routes()),
	}).Info("路由注册完成")
}
