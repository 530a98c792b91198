package extractor

import (
	"context"
	"encoding/xml"
	"errors"
	"io"

	"neogvm/internal/model/gvm"
	"neogvm/internal/pkg/logger"
)

// StreamExtractor 流式解析
// 逐 token 遍历，只在单个 <result> 上做局部解码；报告元素结束时产出一条报告级记录并释放
type StreamExtractor struct{}

// NewStreamExtractor 创建流式解析器
func NewStreamExtractor() *StreamExtractor {
	return &StreamExtractor{}
}

// Name 策略名
func (e *StreamExtractor) Name() string {
	return StrategyStream
}

type streamResult struct {
	ID          string `xml:"id,attr"`
	Name        string `xml:"name"`
	Severity    string `xml:"severity"`
	Threat      string `xml:"threat"`
	Description string `xml:"description"`
}

type streamOwner struct {
	Name string `xml:"name"`
}

// reportFrame 一个尚未结束的 <report>
type reportFrame struct {
	record gvm.ReportRecord
	depth  int
}

// Extract 收集全部报告级记录
func (e *StreamExtractor) Extract(ctx context.Context, r io.Reader) (*Result, error) {
	result := &Result{Strategy: StrategyStream}
	err := e.Walk(ctx, r, func(rec gvm.ReportRecord) error {
		result.Reports = append(result.Reports, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Walk 每完成一个顶层 <report> 回调一次
// 嵌套的 <report>(gvmd 详细报告的内层)并入外层记录，外层缺失的字段由内层补齐；
// 缺少 report_id 的记录记日志后跳过，不中断遍历
func (e *StreamExtractor) Walk(ctx context.Context, r io.Reader, fn func(gvm.ReportRecord) error) error {
	dec := newDecoder(r)

	var (
		path   []string
		frames []*reportFrame
	)

	parent := func() string {
		if len(path) == 0 {
			return ""
		}
		return path[len(path)-1]
	}
	current := func() *reportFrame {
		if len(frames) == 0 {
			return nil
		}
		return frames[len(frames)-1]
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			frame := current()
			name := t.Name.Local

			switch {
			case name == "report":
				frames = append(frames, &reportFrame{
					record: gvm.ReportRecord{ReportID: attr(t, "id"), Results: []gvm.ResultSummary{}},
					depth:  len(path),
				})

			case frame != nil && name == "result" && parent() == "results" && len(path) == frame.depth+2:
				var res streamResult
				if err := dec.DecodeElement(&res, &t); err != nil {
					return err
				}
				frame.record.Results = append(frame.record.Results, gvm.ResultSummary(res))
				continue

			case frame != nil && parent() == "report" && len(path) == frame.depth+1:
				if handled, err := decodeReportField(dec, t, &frame.record); err != nil {
					return err
				} else if handled {
					continue
				}
			}
			path = append(path, name)

		case xml.EndElement:
			if len(path) == 0 {
				continue
			}
			path = path[:len(path)-1]
			if t.Name.Local != "report" || len(frames) == 0 {
				continue
			}

			done := frames[len(frames)-1]
			frames = frames[:len(frames)-1]

			if outer := current(); outer != nil {
				mergeReport(&outer.record, &done.record)
				continue
			}

			if done.record.ReportID == "" {
				logger.WithFields(map[string]interface{}{
					"func_name": "extractor.StreamExtractor.Walk",
					"results":   len(done.record.Results),
				}).Warn("skipping report element without report id")
				continue
			}
			if err := fn(done.record); err != nil {
				return err
			}
		}
	}
	return nil
}

// decodeReportField 解码报告级字段，返回是否已消费该元素
func decodeReportField(dec *xml.Decoder, t xml.StartElement, rec *gvm.ReportRecord) (bool, error) {
	switch t.Name.Local {
	case "owner":
		var owner streamOwner
		if err := dec.DecodeElement(&owner, &t); err != nil {
			return true, err
		}
		if rec.Owner == "" {
			rec.Owner = owner.Name
		}
		return true, nil
	case "creation_time", "modification_time":
		var value string
		if err := dec.DecodeElement(&value, &t); err != nil {
			return true, err
		}
		if t.Name.Local == "creation_time" && rec.CreationTime == "" {
			rec.CreationTime = value
		}
		if t.Name.Local == "modification_time" && rec.ModificationTime == "" {
			rec.ModificationTime = value
		}
		return true, nil
	}
	return false, nil
}

// mergeReport 把内层报告并入外层
func mergeReport(outer, inner *gvm.ReportRecord) {
	if outer.ReportID == "" {
		outer.ReportID = inner.ReportID
	}
	if outer.Owner == "" {
		outer.Owner = inner.Owner
	}
	if outer.CreationTime == "" {
		outer.CreationTime = inner.CreationTime
	}
	if outer.ModificationTime == "" {
		outer.ModificationTime = inner.ModificationTime
	}
	outer.Results = append(outer.Results, inner.Results...)
}

func attr(t xml.StartElement, name string) string {
	for _, a := range t.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}
