/**
 * 服务:漏洞报告入库流水线
 * @author: sun977
 * @date: 2025.11.06
 * @description: 五个互相独立的阶段通过制品文件衔接：发现报告ID、构建报告→任务映射、拉取详细报告、
 *               解析并归档、写入检索索引。阶段之间不加锁，安全性依赖每个条目的幂等检查
 *               (制品已存在即跳过、账本已记录即跳过)，允许同一阶段重叠运行。
 * @func: Service、StageResult、RunStage、Status
 */
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"neogvm/internal/model/system"
	"neogvm/internal/pkg/extractor"
	"neogvm/internal/pkg/gmp"
	"neogvm/internal/pkg/logger"
	"neogvm/internal/pkg/metrics"
	"neogvm/internal/pkg/notify"
	"neogvm/internal/repo/artifact"
	"neogvm/internal/repo/ledger"
	"neogvm/internal/repo/searchindex"

	"github.com/sirupsen/logrus"
)

// 阶段名
const (
	StageDiscoverIDs = "ids"
	StageMapping     = "mapping"
	StageFetch       = "fetch"
	StageParse       = "parse"
	StageIngest      = "ingest"
	StageAll         = "all"
)

// DefaultIndexName 漏洞索引名
const DefaultIndexName = "goldoak_vulnerabilities"

// Stages 按数据流向排列的阶段
var Stages = []string{StageDiscoverIDs, StageMapping, StageFetch, StageParse, StageIngest}

// ScanManager 流水线用到的扫描管理器操作
type ScanManager interface {
	ListReports(ctx context.Context) ([]*gmp.Node, error)
	GetReportDetail(ctx context.Context, reportID string, filter gmp.ReportFilter) (*gmp.Response, error)
}

// StageResult 一次阶段运行的统计
type StageResult struct {
	Stage      string    `json:"stage"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Processed  int       `json:"processed"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	Error      string    `json:"error,omitempty"`
}

// Duration 运行耗时
func (r *StageResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Dependencies 流水线依赖
type Dependencies struct {
	Client     ScanManager
	Artifacts  artifact.Repository
	Extractors *extractor.Selector
	Index      searchindex.Index
	Ledger     ledger.Ledger
	Notifier   notify.Notifier
	IndexName  string
	Filter     *gmp.ReportFilter
}

// Service 流水线服务
type Service struct {
	client     ScanManager
	artifacts  artifact.Repository
	extractors *extractor.Selector
	index      searchindex.Index
	ledger     ledger.Ledger
	notifier   notify.Notifier
	indexName  string
	filter     gmp.ReportFilter

	mu     sync.RWMutex
	status map[string]StageResult
}

// NewService 创建流水线服务
func NewService(deps Dependencies) *Service {
	s := &Service{
		client:     deps.Client,
		artifacts:  deps.Artifacts,
		extractors: deps.Extractors,
		index:      deps.Index,
		ledger:     deps.Ledger,
		notifier:   deps.Notifier,
		indexName:  deps.IndexName,
		filter:     gmp.DefaultReportFilter(),
		status:     make(map[string]StageResult),
	}
	if deps.Filter != nil {
		s.filter = *deps.Filter
	}
	if s.notifier == nil {
		s.notifier = notify.NopNotifier{}
	}
	if s.indexName == "" {
		s.indexName = DefaultIndexName
	}
	if s.extractors == nil {
		s.extractors, _ = extractor.NewSelector(extractor.StrategyDocument, 0)
	}
	return s
}

// RunStage 按名称运行阶段，all 依次运行全部阶段，前一阶段失败不阻止后续阶段
func (s *Service) RunStage(ctx context.Context, name string) ([]*StageResult, error) {
	if name == StageAll {
		results := make([]*StageResult, 0, len(Stages))
		var firstErr error
		for _, stage := range Stages {
			res, err := s.runByName(ctx, stage)
			results = append(results, res)
			if err != nil && firstErr == nil {
				firstErr = err
			}
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
		}
		return results, firstErr
	}

	res, err := s.runByName(ctx, name)
	if res == nil {
		return nil, err
	}
	return []*StageResult{res}, err
}

func (s *Service) runByName(ctx context.Context, name string) (*StageResult, error) {
	switch name {
	case StageDiscoverIDs:
		return s.DiscoverReportIDs(ctx)
	case StageMapping:
		return s.BuildReportTaskMapping(ctx)
	case StageFetch:
		return s.FetchDetailedReports(ctx)
	case StageParse:
		return s.ParseAndArchive(ctx)
	case StageIngest:
		return s.IngestParsedReports(ctx)
	default:
		return nil, fmt.Errorf("%w: %s", system.ErrUnknownStage, name)
	}
}

// IsStage 判断阶段名是否合法(含 all)
func IsStage(name string) bool {
	if name == StageAll {
		return true
	}
	for _, s := range Stages {
		if s == name {
			return true
		}
	}
	return false
}

// Status 返回各阶段最近一次运行结果
func (s *Service) Status() map[string]StageResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]StageResult, len(s.status))
	for k, v := range s.status {
		out[k] = v
	}
	return out
}

// run 统一处理计时、日志、指标和状态记录
func (s *Service) run(ctx context.Context, stage string, fn func(ctx context.Context, res *StageResult) error) (*StageResult, error) {
	res := &StageResult{Stage: stage, StartedAt: time.Now()}
	logger.LogStageEvent(stage, "started", logrus.InfoLevel, nil, nil)

	err := fn(ctx, res)

	res.FinishedAt = time.Now()
	if err != nil {
		res.Error = err.Error()
	}
	metrics.ObserveStage(stage, err, res.Duration())

	fields := map[string]interface{}{
		"processed":   res.Processed,
		"skipped":     res.Skipped,
		"failed":      res.Failed,
		"duration_ms": res.Duration().Milliseconds(),
	}
	if err != nil {
		fields["error_kind"] = system.Kind(err)
		logger.LogStageEvent(stage, "failed", logrus.ErrorLevel, err, fields)
	} else {
		logger.LogStageEvent(stage, "finished", logrus.InfoLevel, nil, fields)
	}

	s.mu.Lock()
	s.status[stage] = *res
	s.mu.Unlock()
	return res, err
}

// itemFailed 记录单个条目失败，不中断同批其它条目
func itemFailed(res *StageResult, event string, err error, fields map[string]interface{}) {
	res.Failed++
	if fields == nil {
		fields = map[string]interface{}{}
	}
	fields["error_kind"] = system.Kind(err)
	logger.LogStageEvent(res.Stage, event, logrus.WarnLevel, err, fields)
}
