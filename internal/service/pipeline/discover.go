package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"neogvm/internal/model/system"
	"neogvm/internal/pkg/gmp"
	"neogvm/internal/pkg/logger"
	"neogvm/internal/pkg/metrics"
	"neogvm/internal/repo/artifact"

	"github.com/sirupsen/logrus"
)

// listReports 拉取报告列表；结构异常视为空结果
func (s *Service) listReports(ctx context.Context, stage string) ([]*gmp.Node, error) {
	reports, err := s.client.ListReports(ctx)
	if errors.Is(err, system.ErrMalformedResponse) {
		logger.LogStageEvent(stage, "malformed report listing", logrus.WarnLevel, err, nil)
		return nil, nil
	}
	return reports, err
}

// DiscoverReportIDs 阶段1：写出本次发现的报告ID快照
// 空结果不落盘，下游继续使用上一份有效快照
func (s *Service) DiscoverReportIDs(ctx context.Context) (*StageResult, error) {
	return s.run(ctx, StageDiscoverIDs, func(ctx context.Context, res *StageResult) error {
		reports, err := s.listReports(ctx, res.Stage)
		if err != nil {
			return err
		}
		ids := gmp.ReportIDs(reports)
		if len(ids) == 0 {
			logger.LogStageEvent(res.Stage, "no report ids, snapshot not written", logrus.WarnLevel, nil, nil)
			return nil
		}

		var b strings.Builder
		for _, id := range ids {
			b.WriteString(id)
			b.WriteByte('\n')
		}
		a, err := s.artifacts.WriteNew(ctx, artifact.AreaReports, artifact.KindReportIDs, "", []byte(b.String()))
		if err != nil {
			return err
		}
		metrics.ArtifactsWrittenCounter.WithLabelValues("report_ids").Inc()
		res.Processed = len(ids)
		logger.LogStageEvent(res.Stage, "snapshot written", logrus.InfoLevel, nil, map[string]interface{}{
			"file":  a.Name,
			"count": len(ids),
		})
		return nil
	})
}

// BuildReportTaskMapping 阶段2：写出 报告ID→任务ID 映射
// 与阶段1各自请求报告列表，两者之间只保证最终一致
func (s *Service) BuildReportTaskMapping(ctx context.Context) (*StageResult, error) {
	return s.run(ctx, StageMapping, func(ctx context.Context, res *StageResult) error {
		reports, err := s.listReports(ctx, res.Stage)
		if err != nil {
			return err
		}
		mapping := gmp.ReportTaskMapping(reports)
		res.Skipped = len(reports) - len(mapping)
		if len(mapping) == 0 {
			logger.LogStageEvent(res.Stage, "no mapped reports, mapping not written", logrus.WarnLevel, nil, nil)
			return nil
		}

		data, err := json.MarshalIndent(mapping, "", "    ")
		if err != nil {
			return system.NewPersistenceError("marshal_mapping", "", err)
		}
		a, err := s.artifacts.WriteNew(ctx, artifact.AreaReports, artifact.KindMapping, "", data)
		if err != nil {
			return err
		}
		metrics.ArtifactsWrittenCounter.WithLabelValues("mapping").Inc()
		res.Processed = len(mapping)
		logger.LogStageEvent(res.Stage, "mapping written", logrus.InfoLevel, nil, map[string]interface{}{
			"file":  a.Name,
			"count": len(mapping),
		})
		return nil
	})
}

// LatestMapping 读取最新的映射快照，不存在时返回 system.ErrNotFound
func (s *Service) LatestMapping(ctx context.Context) (map[string]string, string, error) {
	a, err := s.artifacts.Latest(ctx, artifact.AreaReports, artifact.KindMapping)
	if err != nil {
		return nil, "", err
	}
	data, err := s.artifacts.Read(ctx, a)
	if err != nil {
		return nil, a.Name, err
	}
	mapping := map[string]string{}
	if err := json.Unmarshal(data, &mapping); err != nil {
		return nil, a.Name, system.NewExtractionError("load_mapping", a.Name, err)
	}
	return mapping, a.Name, nil
}
