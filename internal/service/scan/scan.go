package scan

import (
	"context"
	"errors"
	"strings"

	"neogvm/internal/model/gvm"
	"neogvm/internal/pkg/gmp"
	"neogvm/internal/pkg/logger"
	"neogvm/internal/pkg/notify"
)

// ScanManager 扫描发起与查询所需的扫描管理器操作
type ScanManager interface {
	GetVersion(ctx context.Context) (*gmp.Response, error)
	ListReports(ctx context.Context) ([]*gmp.Node, error)
	CreateTarget(ctx context.Context, name, hosts string) (string, error)
	CreateTask(ctx context.Context, name, targetID, configID string) (string, error)
	StartTask(ctx context.Context, taskID string) (string, error)
}

// ScanService 扫描服务：版本、报告列表、报告概要、发起扫描
type ScanService struct {
	client   ScanManager
	notifier notify.Notifier
}

// NewScanService 创建扫描服务
func NewScanService(client ScanManager, notifier notify.Notifier) *ScanService {
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	return &ScanService{client: client, notifier: notifier}
}

// Version 扫描管理器版本信息
func (s *ScanService) Version(ctx context.Context) (*gmp.Node, error) {
	resp, err := s.client.GetVersion(ctx)
	if err != nil {
		logger.LogError(err, "", "", "service.scan.Version", "SERVICE", nil)
		return nil, err
	}
	return resp.Root, nil
}

// Reports 报告列表，总是返回切片
func (s *ScanService) Reports(ctx context.Context) ([]*gmp.Node, error) {
	reports, err := s.client.ListReports(ctx)
	if err != nil {
		logger.LogError(err, "", "", "service.scan.Reports", "SERVICE", nil)
		return nil, err
	}
	if reports == nil {
		reports = []*gmp.Node{}
	}
	return reports, nil
}

// Summaries 报告概要列表
func (s *ScanService) Summaries(ctx context.Context) ([]gvm.ReportSummary, error) {
	reports, err := s.Reports(ctx)
	if err != nil {
		return nil, err
	}
	return gmp.SummarizeReports(reports), nil
}

// TriggerScan 创建目标 → 创建任务 → 启动任务，返回任务ID
// 任务名为 "<目标名> Scan"
func (s *ScanService) TriggerScan(ctx context.Context, req *gvm.ScanRequest) (*gvm.ScanResponse, error) {
	if strings.TrimSpace(req.TargetName) == "" || strings.TrimSpace(req.Hosts) == "" || strings.TrimSpace(req.ScanConfigID) == "" {
		return nil, errors.New("target_name, hosts and scan_config_id are required")
	}
	fields := map[string]interface{}{
		"target_name": req.TargetName,
		"hosts":       req.Hosts,
		"config_id":   req.ScanConfigID,
	}

	targetID, err := s.client.CreateTarget(ctx, req.TargetName, req.Hosts)
	if err != nil {
		logger.LogError(err, "", "", "service.scan.TriggerScan.CreateTarget", "SERVICE", fields)
		return nil, err
	}
	fields["target_id"] = targetID

	taskID, err := s.client.CreateTask(ctx, req.TargetName+" Scan", targetID, req.ScanConfigID)
	if err != nil {
		logger.LogError(err, "", "", "service.scan.TriggerScan.CreateTask", "SERVICE", fields)
		return nil, err
	}
	fields["task_id"] = taskID

	reportID, err := s.client.StartTask(ctx, taskID)
	if err != nil {
		logger.LogError(err, "", "", "service.scan.TriggerScan.StartTask", "SERVICE", fields)
		return nil, err
	}
	fields["report_id"] = reportID
	logger.LogInfo("Scan started", "", "", "service.scan.TriggerScan", "SERVICE", fields)

	event := notify.NewEvent(notify.EventScanStarted)
	event.TaskID, event.ReportID = taskID, reportID
	if err := s.notifier.Publish(ctx, event); err != nil {
		logger.LogWarn("failed to publish scan event: "+err.Error(), "", "", "service.scan.TriggerScan", "SERVICE", fields)
	}

	return &gvm.ScanResponse{Message: "Scan started", TaskID: taskID}, nil
}
