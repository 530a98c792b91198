package pipeline

import (
	"context"
	"errors"
	"sort"

	"neogvm/internal/model/system"
	"neogvm/internal/pkg/logger"
	"neogvm/internal/pkg/metrics"
	"neogvm/internal/repo/artifact"

	"github.com/sirupsen/logrus"
)

// FetchDetailedReports 阶段3：为最新映射中的每个报告拉取详细报告
// 待解析区或归档区已有该报告的制品即跳过；拉取失败不写任何文件，下一轮自然重试
func (s *Service) FetchDetailedReports(ctx context.Context) (*StageResult, error) {
	return s.run(ctx, StageFetch, func(ctx context.Context, res *StageResult) error {
		mapping, name, err := s.LatestMapping(ctx)
		if errors.Is(err, system.ErrNotFound) {
			logger.LogStageEvent(res.Stage, "no mapping available", logrus.InfoLevel, nil, nil)
			return nil
		}
		if err != nil {
			return err
		}

		ids := make([]string, 0, len(mapping))
		for id := range mapping {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		for _, reportID := range ids {
			if err := ctx.Err(); err != nil {
				return err
			}
			fields := map[string]interface{}{"report_id": reportID, "mapping": name}

			exists, err := s.artifacts.Exists(ctx, artifact.KindDetailed, reportID, artifact.AreaPending, artifact.AreaArchive)
			if err != nil {
				itemFailed(res, "existence check failed", err, fields)
				continue
			}
			if exists {
				res.Skipped++
				continue
			}

			if err := s.fetchOne(ctx, reportID); err != nil {
				itemFailed(res, "fetch failed", err, fields)
				continue
			}
			res.Processed++
		}
		return nil
	})
}

func (s *Service) fetchOne(ctx context.Context, reportID string) error {
	resp, err := s.client.GetReportDetail(ctx, reportID, s.filter)
	if err != nil {
		return err
	}
	// 没有 report 元素的成功响应不落盘，否则存在性检查会把它当成已拉取
	if resp.Root.Child("report") == nil {
		return system.NewMalformedError("get_report_detail", "response for report %s has no report element", reportID)
	}

	a, err := s.artifacts.WriteNew(ctx, artifact.AreaPending, artifact.KindDetailed, reportID, resp.Raw)
	if err != nil {
		return err
	}
	metrics.ArtifactsWrittenCounter.WithLabelValues("detailed").Inc()
	logger.LogStageEvent(StageFetch, "detailed report saved", logrus.InfoLevel, nil, map[string]interface{}{
		"report_id": reportID,
		"file":      a.Name,
		"bytes":     a.Size,
	})
	return nil
}
