package pipeline

import (
	"context"
	"encoding/json"

	"neogvm/internal/model/gvm"
	"neogvm/internal/model/system"
	"neogvm/internal/pkg/extractor"
	"neogvm/internal/pkg/logger"
	"neogvm/internal/pkg/metrics"
	"neogvm/internal/repo/artifact"

	"github.com/sirupsen/logrus"
)

// ParseAndArchive 阶段4：解析待处理的详细报告并归档
// 解析结果落盘后才移动源文件；任一步失败源文件留在待解析区，下一轮重新解析
func (s *Service) ParseAndArchive(ctx context.Context) (*StageResult, error) {
	return s.run(ctx, StageParse, func(ctx context.Context, res *StageResult) error {
		pending, err := s.artifacts.List(ctx, artifact.AreaPending, artifact.KindDetailed)
		if err != nil {
			return err
		}

		for _, a := range pending {
			if err := ctx.Err(); err != nil {
				return err
			}
			fields := map[string]interface{}{"report_id": a.ReportID, "file": a.Name}

			written, err := s.parseOne(ctx, a)
			if err != nil {
				itemFailed(res, "parse failed", err, fields)
				continue
			}
			if _, err := s.artifacts.Move(ctx, a, artifact.AreaArchive); err != nil {
				itemFailed(res, "archive failed", err, fields)
				continue
			}
			fields["parsed_files"] = written
			logger.LogStageEvent(res.Stage, "report parsed and archived", logrus.InfoLevel, nil, fields)
			res.Processed++
		}
		return nil
	})
}

// parseOne 解析一个详细报告并写出解析结果，返回写出的文件名
func (s *Service) parseOne(ctx context.Context, a *artifact.Artifact) ([]string, error) {
	ext := s.extractors.ForSize(a.Size)

	rc, err := s.artifacts.Open(ctx, a)
	if err != nil {
		return nil, err
	}
	result, err := ext.Extract(ctx, rc)
	rc.Close()
	if err != nil {
		return nil, system.NewExtractionError("extract_"+ext.Name(), a.Name, err)
	}

	payloads, err := parsedPayloads(result)
	if err != nil {
		return nil, system.NewExtractionError("marshal_parsed", a.Name, err)
	}
	if len(payloads) == 0 {
		logger.LogStageEvent(StageParse, "no report records found", logrus.WarnLevel, nil, map[string]interface{}{
			"report_id": a.ReportID,
			"file":      a.Name,
		})
	}

	names := make([]string, 0, len(payloads))
	for _, data := range payloads {
		parsed, err := s.artifacts.WriteNew(ctx, artifact.AreaParsed, artifact.KindParsed, a.ReportID, data)
		if err != nil {
			return names, err
		}
		metrics.ArtifactsWrittenCounter.WithLabelValues("parsed").Inc()
		names = append(names, parsed.Name)
	}
	return names, nil
}

// parsedPayloads 整文档策略写一个 {"vulnerabilities": [...]} 文件；
// 流式策略每个报告级记录写一个兼容格式文件
func parsedPayloads(result *extractor.Result) ([][]byte, error) {
	if result.Strategy != extractor.StrategyStream {
		vulns := result.Vulnerabilities
		if vulns == nil {
			vulns = []gvm.VulnerabilityRecord{}
		}
		data, err := json.MarshalIndent(gvm.VulnerabilityFile{Vulnerabilities: vulns}, "", "    ")
		if err != nil {
			return nil, err
		}
		return [][]byte{data}, nil
	}

	out := make([][]byte, 0, len(result.Reports))
	for i := range result.Reports {
		data, err := json.MarshalIndent(&result.Reports[i], "", "    ")
		if err != nil {
			return nil, err
		}
		out = append(out, data)
	}
	return out, nil
}
