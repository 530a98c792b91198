/**
 * 服务:流水线调度
 * @author: sun977
 * @date: 2025.11.07
 * @description: 每个阶段一个固定间隔的周期任务，互不等待；上一次运行未结束时下一次照常触发，
 *               重叠运行的正确性由阶段自身的幂等检查保证。单次运行没有内部超时。
 * @func: SchedulerService、Intervals
 */
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"neogvm/internal/config"
	"neogvm/internal/pkg/logger"
	"neogvm/internal/service/pipeline"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// StageRunner 可按名称运行阶段的对象
type StageRunner interface {
	RunStage(ctx context.Context, name string) ([]*pipeline.StageResult, error)
}

// SchedulerService 调度服务接口
type SchedulerService interface {
	Start(ctx context.Context) error
	Stop()
	Jobs() []Job
}

// Job 已注册的周期任务
type Job struct {
	Stage    string        `json:"stage"`
	Interval time.Duration `json:"interval"`
	Next     time.Time     `json:"next"`
	Prev     time.Time     `json:"prev"`
}

// Intervals 从配置读取各阶段间隔，<=0 的阶段不调度
func Intervals(cfg *config.StageIntervals) map[string]time.Duration {
	return map[string]time.Duration{
		pipeline.StageDiscoverIDs: cfg.DiscoverIDs,
		pipeline.StageMapping:     cfg.Mapping,
		pipeline.StageFetch:       cfg.Fetch,
		pipeline.StageParse:       cfg.Parse,
		pipeline.StageIngest:      cfg.Ingest,
	}
}

type schedulerService struct {
	runner     StageRunner
	intervals  map[string]time.Duration
	runOnStart bool

	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]cron.EntryID
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewSchedulerService 创建调度服务
func NewSchedulerService(runner StageRunner, intervals map[string]time.Duration, runOnStart bool) SchedulerService {
	return &schedulerService{
		runner:     runner,
		intervals:  intervals,
		runOnStart: runOnStart,
		entries:    make(map[string]cron.EntryID),
	}
}

// Start 注册全部阶段并启动
func (s *schedulerService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return fmt.Errorf("scheduler already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	cronLogger := cronLogAdapter{}
	c := cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger)),
	)

	for _, stage := range pipeline.Stages {
		interval := s.intervals[stage]
		if interval <= 0 {
			logger.LogSystemEvent("scheduler", "stage_disabled", stage, logrus.InfoLevel, nil)
			continue
		}
		stage := stage
		id, err := c.AddFunc("@every "+interval.String(), func() { s.runStage(ctx, stage) })
		if err != nil {
			cancel()
			return fmt.Errorf("failed to schedule stage %s: %w", stage, err)
		}
		s.entries[stage] = id
	}

	s.cron, s.cancel = c, cancel
	c.Start()

	if s.runOnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for _, stage := range pipeline.Stages {
				if ctx.Err() != nil {
					return
				}
				s.runStage(ctx, stage)
			}
		}()
	}

	logger.LogSystemEvent("scheduler", "started", fmt.Sprintf("%d stages scheduled", len(s.entries)), logrus.InfoLevel, map[string]interface{}{
		"run_on_start": s.runOnStart,
	})
	return nil
}

func (s *schedulerService) runStage(ctx context.Context, stage string) {
	if _, err := s.runner.RunStage(ctx, stage); err != nil {
		logger.LogError(err, "", "", "service.scheduler.runStage", "SCHEDULER", map[string]interface{}{
			"stage": stage,
		})
	}
}

// Stop 停止触发新任务，取消进行中的运行并等待其返回
func (s *schedulerService) Stop() {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.mu.Unlock()
	if c == nil {
		return
	}

	cancel()
	<-c.Stop().Done()
	s.wg.Wait()
	logger.LogSystemEvent("scheduler", "stopped", "", logrus.InfoLevel, nil)
}

// Jobs 返回已注册任务
func (s *schedulerService) Jobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs := make([]Job, 0, len(s.entries))
	for _, stage := range pipeline.Stages {
		id, ok := s.entries[stage]
		if !ok {
			continue
		}
		e := s.cron.Entry(id)
		jobs = append(jobs, Job{Stage: stage, Interval: s.intervals[stage], Next: e.Next, Prev: e.Prev})
	}
	return jobs
}

// cronLogAdapter 把 cron 内部日志转到 logrus
type cronLogAdapter struct{}

func (cronLogAdapter) Info(msg string, keysAndValues ...interface{}) {
	logger.WithFields(kvFields(keysAndValues)).Debug("cron: " + msg)
}

func (cronLogAdapter) Error(err error, msg string, keysAndValues ...interface{}) {
	fields := kvFields(keysAndValues)
	fields["error"] = err
	logger.WithFields(fields).Error("cron: " + msg)
}

func kvFields(keysAndValues []interface{}) logrus.Fields {
	fields := logrus.Fields{"component": "cron"}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}
