package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"neogvm/internal/model/gvm"
	"neogvm/internal/model/system"
	"neogvm/internal/pkg/logger"
	"neogvm/internal/pkg/metrics"
	"neogvm/internal/pkg/notify"
	"neogvm/internal/repo/artifact"
	"neogvm/internal/repo/searchindex"

	"github.com/sirupsen/logrus"
)

// parsedFile 同时兼容两种解析结果格式
type parsedFile struct {
	Vulnerabilities *[]gvm.VulnerabilityRecord `json:"vulnerabilities"`
	gvm.ReportRecord
}

// decodeParsedFile 标准格式直接返回；兼容格式展开为漏洞记录
func decodeParsedFile(data []byte) ([]gvm.VulnerabilityRecord, error) {
	var f parsedFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if f.Vulnerabilities != nil {
		return *f.Vulnerabilities, nil
	}
	if f.ReportID != "" || f.Results != nil {
		return f.ReportRecord.Records(), nil
	}
	return nil, errors.New("neither vulnerabilities nor report results present")
}

// IngestParsedReports 入库阶段：把账本中没有的解析结果文件逐条 upsert 到索引
// 缺少 id 的记录丢弃；文件内全部记录写入成功后才登记账本，否则下一轮整文件重试(upsert 幂等)
func (s *Service) IngestParsedReports(ctx context.Context) (*StageResult, error) {
	return s.run(ctx, StageIngest, func(ctx context.Context, res *StageResult) error {
		created, err := s.index.EnsureIndex(ctx, s.indexName, searchindex.VulnerabilityMapping())
		if err != nil {
			return err
		}
		if created {
			logger.LogStageEvent(res.Stage, "index created", logrus.InfoLevel, nil, map[string]interface{}{"index": s.indexName})
		}

		ingested, err := s.ledger.Load(ctx)
		if err != nil {
			return err
		}
		files, err := s.artifacts.List(ctx, artifact.AreaParsed, artifact.KindParsed)
		if err != nil {
			return err
		}

		for _, a := range files {
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, ok := ingested[a.Name]; ok {
				res.Skipped++
				continue
			}
			fields := map[string]interface{}{"report_id": a.ReportID, "file": a.Name}

			docs, err := s.ingestOne(ctx, a)
			if err != nil {
				itemFailed(res, "ingest failed", err, fields)
				continue
			}
			if err := s.ledger.Record(ctx, a.Name); err != nil {
				itemFailed(res, "ledger update failed", err, fields)
				continue
			}
			res.Processed++

			fields["documents"] = docs
			logger.LogStageEvent(res.Stage, "file ingested", logrus.InfoLevel, nil, fields)

			event := notify.NewEvent(notify.EventReportIngested)
			event.ReportID, event.File, event.Documents = a.ReportID, a.Name, docs
			if err := s.notifier.Publish(ctx, event); err != nil {
				logger.LogStageEvent(res.Stage, "notify failed", logrus.WarnLevel, err, fields)
			}
		}
		return nil
	})
}

// ingestOne 写入单个文件的全部记录，返回成功写入的文档数
func (s *Service) ingestOne(ctx context.Context, a *artifact.Artifact) (int, error) {
	data, err := s.artifacts.Read(ctx, a)
	if err != nil {
		return 0, err
	}
	records, err := decodeParsedFile(data)
	if err != nil {
		return 0, system.NewExtractionError("decode_parsed", a.Name, err)
	}

	indexed, failed := 0, 0
	var lastErr error
	for i := range records {
		rec := &records[i]
		if rec.ID == "" {
			metrics.IndexDocumentsCounter.WithLabelValues("skipped").Inc()
			logger.LogStageEvent(StageIngest, "record without id skipped", logrus.WarnLevel, nil, map[string]interface{}{
				"file":  a.Name,
				"title": rec.Title,
			})
			continue
		}
		if err := s.index.Upsert(ctx, s.indexName, rec.ID, rec.Document()); err != nil {
			metrics.IndexDocumentsCounter.WithLabelValues("error").Inc()
			logger.LogStageEvent(StageIngest, "document upsert failed", logrus.WarnLevel, err, map[string]interface{}{
				"file":      a.Name,
				"record_id": rec.ID,
			})
			failed++
			lastErr = err
			continue
		}
		metrics.IndexDocumentsCounter.WithLabelValues("success").Inc()
		indexed++
	}

	if failed > 0 {
		return indexed, fmt.Errorf("%d of %d documents failed: %w", failed, len(records), lastErr)
	}
	return indexed, nil
}
