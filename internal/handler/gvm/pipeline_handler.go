package gvm

import (
	"context"
	"fmt"
	"net/http"

	"neogvm/internal/pkg/logger"
	"neogvm/internal/service/pipeline"
	"neogvm/internal/service/scheduler"

	"github.com/gin-gonic/gin"
)

// PipelineService 处理器依赖的流水线服务
type PipelineService interface {
	RunStage(ctx context.Context, name string) ([]*pipeline.StageResult, error)
	Status() map[string]pipeline.StageResult
}

// JobLister 提供调度任务列表，调度器未启用时为 nil
type JobLister interface {
	Jobs() []scheduler.Job
}

// PipelineHandler 流水线处理器
type PipelineHandler struct {
	pipelineService PipelineService
	jobs            JobLister
}

// NewPipelineHandler 创建流水线处理器
func NewPipelineHandler(pipelineService PipelineService, jobs JobLister) *PipelineHandler {
	return &PipelineHandler{pipelineService: pipelineService, jobs: jobs}
}

// RunStage 同步运行一个阶段(或 all)，返回各阶段统计
func (h *PipelineHandler) RunStage(c *gin.Context) {
	requestID, clientIP := requestMeta(c)
	subject := c.GetString("subject")
	stage := c.Param("stage")

	if !pipeline.IsStage(stage) {
		failed(c, http.StatusBadRequest, "Unknown pipeline stage", fmt.Errorf("unknown stage %q", stage))
		return
	}

	results, err := h.pipelineService.RunStage(c.Request.Context(), stage)
	if err != nil {
		logger.LogAuditOperation(subject, "run_stage", stage, "failed", clientIP, requestID, map[string]interface{}{
			"error": err.Error(),
		})
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"status":  "failed",
			"message": "Pipeline stage failed",
			"error":   err.Error(),
			"data":    gin.H{"results": results},
		})
		return
	}

	logger.LogAuditOperation(subject, "run_stage", stage, "success", clientIP, requestID, nil)
	success(c, "ok", gin.H{"results": results})
}

// Status 各阶段最近一次运行结果与调度任务
func (h *PipelineHandler) Status(c *gin.Context) {
	data := gin.H{"stages": h.pipelineService.Status()}
	if h.jobs != nil {
		data["jobs"] = h.jobs.Jobs()
	}
	success(c, "ok", data)
}
