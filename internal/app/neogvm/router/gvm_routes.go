package router

import "github.com/gin-gonic/gin"

// setupGVMRoutes 扫描管理器与流水线路由，开启鉴权时需要 JWT
func (r *Router) setupGVMRoutes(v1 *gin.RouterGroup) {
	gvm := v1.Group("/gvm")
	if r.middlewareManager != nil {
		gvm.Use(r.middlewareManager.GinJWTAuthMiddleware())
	}

	gvm.GET("/version", r.scanHandler.Version)
	gvm.GET("/reports", r.scanHandler.Reports)
	gvm.GET("/reports/summaries", r.scanHandler.ReportSummaries)
	gvm.POST("/scan", r.scope("scan"), r.scanHandler.TriggerScan)

	gvm.GET("/pipeline/status", r.pipelineHandler.Status)
	gvm.POST("/pipeline/:stage/run", r.scope("pipeline"), r.pipelineHandler.RunStage)
}

func (r *Router) scope(name string) gin.HandlerFunc {
	if r.middlewareManager == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return r.middlewareManager.GinRequireScope(name)
}
