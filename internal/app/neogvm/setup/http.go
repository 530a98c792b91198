package setup

import (
	"neogvm/internal/config"
	gvmHandler "neogvm/internal/handler/gvm"
	"neogvm/internal/pkg/logger"
	"neogvm/internal/service/scheduler"
)

// BuildSchedulerModule 构建调度器，app.scheduler 关闭时返回空模块
func BuildSchedulerModule(cfg *config.Config, core *CoreModule) *SchedulerModule {
	if !cfg.App.Scheduler {
		logger.WithFields(map[string]interface{}{
			"path":      "setup.scheduler",
			"operation": "build_service",
			"func_name": "setup.BuildSchedulerModule",
		}).Info("调度器已关闭，仅提供手动触发")
		return &SchedulerModule{}
	}

	s := scheduler.NewSchedulerService(core.PipelineService, scheduler.Intervals(&cfg.Pipeline.Intervals), cfg.Pipeline.RunOnStart)
	return &SchedulerModule{Scheduler: s}
}

// BuildHTTPModule 构建处理器
func BuildHTTPModule(core *CoreModule, sched *SchedulerModule) *HTTPModule {
	var jobs gvmHandler.JobLister
	if sched != nil && sched.Scheduler != nil {
		jobs = sched.Scheduler
	}
	return &HTTPModule{
		ScanHandler:     gvmHandler.NewScanHandler(core.ScanService),
		PipelineHandler: gvmHandler.NewPipelineHandler(core.PipelineService, jobs),
	}
}
