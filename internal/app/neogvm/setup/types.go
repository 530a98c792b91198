/**
 * 初始化
 * @author: sun977
 * @date: 2025.11.10
 * @description: 程序初始化相关的类型定义。setup 层只负责依赖装配，不侵入业务逻辑
 * @func:
 */
package setup

import (
	"errors"
	"io"

	gvmHandler "neogvm/internal/handler/gvm"
	"neogvm/internal/pkg/gmp"
	"neogvm/internal/pkg/notify"
	"neogvm/internal/repo/artifact"
	"neogvm/internal/service/pipeline"
	"neogvm/internal/service/scan"
	"neogvm/internal/service/scheduler"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// CoreModule 流水线与扫描服务的聚合输出，server 与 run 命令共用
type CoreModule struct {
	Client    *gmp.Client
	Artifacts *artifact.FileRepository
	Notifier  notify.Notifier
	DB        *gorm.DB      // 未使用数据库后端时为 nil
	Redis     *redis.Client // 未使用 redis 台账时为 nil

	PipelineService *pipeline.Service
	ScanService     *scan.ScanService

	closers []io.Closer
}

// Close 释放桥接、通知、数据库连接
func (m *CoreModule) Close() error {
	var errs []error
	for i := len(m.closers) - 1; i >= 0; i-- {
		if err := m.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	m.closers = nil
	return errors.Join(errs...)
}

// HTTPModule HTTP 层的聚合输出
type HTTPModule struct {
	ScanHandler     *gvmHandler.ScanHandler
	PipelineHandler *gvmHandler.PipelineHandler
}

// SchedulerModule 调度器，未启用时 Scheduler 为 nil
type SchedulerModule struct {
	Scheduler scheduler.SchedulerService
}
