/**
 * 处理器:扫描管理器接口
 * @author: sun977
 * @date: 2025.11.10
 * @description: 版本查询、报告列表、报告概要、发起扫描。核心层的错误一律以 500 返回错误信息
 * @func:
 *   - Version
 *   - Reports
 *   - ReportSummaries
 *   - TriggerScan
 */
package gvm

import (
	"context"
	"net/http"

	"neogvm/internal/model"
	gvmModel "neogvm/internal/model/gvm"
	"neogvm/internal/pkg/gmp"
	"neogvm/internal/pkg/logger"
	"neogvm/internal/pkg/utils"

	"github.com/gin-gonic/gin"
)

// ScanService 处理器依赖的扫描服务
type ScanService interface {
	Version(ctx context.Context) (*gmp.Node, error)
	Reports(ctx context.Context) ([]*gmp.Node, error)
	Summaries(ctx context.Context) ([]gvmModel.ReportSummary, error)
	TriggerScan(ctx context.Context, req *gvmModel.ScanRequest) (*gvmModel.ScanResponse, error)
}

// ScanHandler 扫描管理器处理器
type ScanHandler struct {
	scanService ScanService
}

// NewScanHandler 创建扫描管理器处理器
func NewScanHandler(scanService ScanService) *ScanHandler {
	return &ScanHandler{scanService: scanService}
}

// requestMeta 提取请求ID与客户端IP
func requestMeta(c *gin.Context) (requestID, clientIP string) {
	requestID = c.GetString("request_id")
	if requestID == "" {
		requestID = c.GetHeader("X-Request-ID")
	}
	return requestID, utils.GetClientIP(c)
}

func failed(c *gin.Context, code int, message string, err error) {
	c.JSON(code, model.APIResponse{
		Code:    code,
		Status:  "failed",
		Message: message,
		Error:   err.Error(),
	})
}

func success(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, model.APIResponse{
		Code:    http.StatusOK,
		Status:  "success",
		Message: message,
		Data:    data,
	})
}

// Version 扫描管理器版本，数据以响应根元素名为键
func (h *ScanHandler) Version(c *gin.Context) {
	requestID, clientIP := requestMeta(c)

	root, err := h.scanService.Version(c.Request.Context())
	if err != nil {
		logger.LogError(err, requestID, clientIP, c.Request.URL.Path, c.Request.Method, map[string]interface{}{
			"operation": "get_version",
			"func_name": "handler.gvm.Version",
		})
		failed(c, http.StatusInternalServerError, "Failed to get scanner version", err)
		return
	}

	success(c, "ok", gin.H{root.Name: root})
}

// Reports 报告列表，原样返回扫描管理器的报告元素
func (h *ScanHandler) Reports(c *gin.Context) {
	requestID, clientIP := requestMeta(c)

	reports, err := h.scanService.Reports(c.Request.Context())
	if err != nil {
		logger.LogError(err, requestID, clientIP, c.Request.URL.Path, c.Request.Method, map[string]interface{}{
			"operation": "list_reports",
			"func_name": "handler.gvm.Reports",
		})
		failed(c, http.StatusInternalServerError, "Failed to list reports", err)
		return
	}

	success(c, "ok", gin.H{"reports": reports})
}

// ReportSummaries 报告概要列表
func (h *ScanHandler) ReportSummaries(c *gin.Context) {
	requestID, clientIP := requestMeta(c)

	summaries, err := h.scanService.Summaries(c.Request.Context())
	if err != nil {
		logger.LogError(err, requestID, clientIP, c.Request.URL.Path, c.Request.Method, map[string]interface{}{
			"operation": "list_report_summaries",
			"func_name": "handler.gvm.ReportSummaries",
		})
		failed(c, http.StatusInternalServerError, "Failed to list report summaries", err)
		return
	}

	success(c, "ok", gin.H{"reports": summaries})
}

// TriggerScan 发起扫描
func (h *ScanHandler) TriggerScan(c *gin.Context) {
	requestID, clientIP := requestMeta(c)
	subject := c.GetString("subject")

	var req gvmModel.ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.LogWarn("invalid scan request", requestID, clientIP, c.Request.URL.Path, c.Request.Method, map[string]interface{}{
			"operation": "trigger_scan",
			"error":     err.Error(),
		})
		failed(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	resp, err := h.scanService.TriggerScan(c.Request.Context(), &req)
	if err != nil {
		logger.LogAuditOperation(subject, "trigger_scan", req.TargetName, "failed", clientIP, requestID, map[string]interface{}{
			"hosts": req.Hosts,
			"error": err.Error(),
		})
		failed(c, http.StatusInternalServerError, "Failed to start scan", err)
		return
	}

	logger.LogAuditOperation(subject, "trigger_scan", req.TargetName, "success", clientIP, requestID, map[string]interface{}{
		"hosts":   req.Hosts,
		"task_id": resp.TaskID,
	})
	success(c, resp.Message, resp)
}
