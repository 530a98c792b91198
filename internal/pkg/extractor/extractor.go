/**
 * 解析器:详细报告解析
 * @author: sun977
 * @date: 2025.11.05
 * @description: 把 gvmd 详细报告 XML 转换为扁平漏洞记录。两种策略共享同一接口，
 *               按文件大小选择：整文档解析输出漏洞列表，流式解析输出报告级记录。
 * @func: Extractor 接口、Result、Selector
 */
package extractor

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"

	"neogvm/internal/model/gvm"

	"golang.org/x/net/html/charset"
)

// 策略名称
const (
	StrategyDocument = "document"
	StrategyStream   = "stream"
	StrategyAuto     = "auto"
)

// Result 解析结果，按策略只会填充其中一个字段
type Result struct {
	Strategy        string
	Vulnerabilities []gvm.VulnerabilityRecord
	Reports         []gvm.ReportRecord
}

// Count 返回结果条目数(漏洞数或报告内结果数之和)
func (r *Result) Count() int {
	if r.Strategy == StrategyStream {
		n := 0
		for i := range r.Reports {
			n += len(r.Reports[i].Results)
		}
		return n
	}
	return len(r.Vulnerabilities)
}

// Extractor 详细报告解析接口
// 可选子树缺失时以空值填充，不得因此让整条记录失败
type Extractor interface {
	Name() string
	Extract(ctx context.Context, r io.Reader) (*Result, error)
}

// Selector 根据配置和文件大小选择解析策略
type Selector struct {
	strategy  string
	threshold int64
	document  Extractor
	stream    Extractor
}

// NewSelector 创建策略选择器
func NewSelector(strategy string, threshold int64) (*Selector, error) {
	switch strategy {
	case StrategyDocument, StrategyStream, StrategyAuto:
	default:
		return nil, fmt.Errorf("unknown extraction strategy: %s", strategy)
	}
	return &Selector{
		strategy:  strategy,
		threshold: threshold,
		document:  NewDocumentExtractor(),
		stream:    NewStreamExtractor(),
	}, nil
}

// ForSize 返回适用于给定文件大小的解析器
// auto 模式下超过阈值(阈值<=0 时视为不限制)切换为流式解析
func (s *Selector) ForSize(size int64) Extractor {
	switch s.strategy {
	case StrategyDocument:
		return s.document
	case StrategyStream:
		return s.stream
	}
	if s.threshold > 0 && size > s.threshold {
		return s.stream
	}
	return s.document
}

// newDecoder 按 XML 声明的编码转码，gvmd 导出的旧报告可能是 ISO-8859-1
func newDecoder(r io.Reader) *xml.Decoder {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel
	return dec
}
