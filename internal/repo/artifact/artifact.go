/**
 * 仓库:流水线制品
 * @author: sun977
 * @date: 2025.11.05
 * @description: 流水线各阶段之间只通过制品文件交换数据。文件名即契约：
 *               {prefix}[{reportId}_]{timestamp}{ext}，时间戳定宽可排序，"最新"按文件名字典序确定。
 * @func: Area、Kind、Artifact、Repository 接口
 */
package artifact

import (
	"context"
	"io"
	"strings"
	"time"
)

// TimestampFormat 制品时间戳格式，UTC、定宽、字典序即时间序
const TimestampFormat = "20060102T150405.000Z"

// Area 制品存放区域
type Area string

const (
	AreaReports Area = "reports" // ID 快照与映射
	AreaPending Area = "pending" // 待解析的详细报告
	AreaArchive Area = "archive" // 已解析的详细报告
	AreaParsed  Area = "parsed"  // 解析结果
)

// Kind 制品类型，决定文件名前后缀以及是否携带 reportId
type Kind struct {
	Prefix       string
	Ext          string
	WithReportID bool
}

var (
	KindReportIDs = Kind{Prefix: "report_ids_", Ext: ".txt"}
	KindMapping   = Kind{Prefix: "report_task_mapping_", Ext: ".json"}
	KindDetailed  = Kind{Prefix: "detailed_report_", Ext: ".xml", WithReportID: true}
	KindParsed    = Kind{Prefix: "parsed_report_", Ext: ".json", WithReportID: true}
)

// FileName 生成文件名
func (k Kind) FileName(reportID string, ts time.Time) string {
	stamp := ts.UTC().Format(TimestampFormat)
	if k.WithReportID {
		return k.Prefix + reportID + "_" + stamp + k.Ext
	}
	return k.Prefix + stamp + k.Ext
}

// Parse 解析文件名，返回 reportId 与时间戳；不属于该类型时 ok=false
func (k Kind) Parse(name string) (reportID, stamp string, ok bool) {
	if !strings.HasPrefix(name, k.Prefix) || !strings.HasSuffix(name, k.Ext) {
		return "", "", false
	}
	body := strings.TrimSuffix(strings.TrimPrefix(name, k.Prefix), k.Ext)
	if !k.WithReportID {
		return "", body, body != ""
	}
	i := strings.LastIndex(body, "_")
	if i <= 0 || i == len(body)-1 {
		return "", "", false
	}
	return body[:i], body[i+1:], true
}

// Artifact 一个已落盘的制品
type Artifact struct {
	Name      string
	Area      Area
	Kind      Kind
	ReportID  string
	Timestamp string
	Size      int64
}

// Repository 制品仓库
// 写入从不覆盖已有文件；移动是原子的；"是否已产生"的检查覆盖调用方给出的全部区域
type Repository interface {
	// WriteNew 以新时间戳写入一个制品
	WriteNew(ctx context.Context, area Area, kind Kind, reportID string, data []byte) (*Artifact, error)
	// WriteNewFrom 从 reader 流式写入一个制品
	WriteNewFrom(ctx context.Context, area Area, kind Kind, reportID string, r io.Reader) (*Artifact, error)
	// Latest 返回某区域内某类型文件名最大的制品，不存在时返回 system.ErrNotFound
	Latest(ctx context.Context, area Area, kind Kind) (*Artifact, error)
	// List 按文件名升序列出
	List(ctx context.Context, area Area, kind Kind) ([]*Artifact, error)
	// Exists 检查任一区域内是否已有该 reportId 的制品
	Exists(ctx context.Context, kind Kind, reportID string, areas ...Area) (bool, error)
	// Open 打开制品读取
	Open(ctx context.Context, a *Artifact) (io.ReadCloser, error)
	// Read 读取制品全部内容
	Read(ctx context.Context, a *Artifact) ([]byte, error)
	// Move 把制品移动到另一区域，文件名不变
	Move(ctx context.Context, a *Artifact, to Area) (*Artifact, error)
}
