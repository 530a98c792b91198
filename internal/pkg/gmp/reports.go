package gmp

import (
	"errors"
	"fmt"

	"neogvm/internal/model/gvm"
)

var errEmptyOutput = errors.New("bridge returned empty output")

// StatusError 扫描管理器返回的非成功状态
type StatusError struct {
	Status string
	Text   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gmp status %s: %s", e.Status, e.Text)
}

// ReportID 报告元素的 id 属性
func ReportID(report *Node) string {
	return report.Attr("id")
}

// TaskID 报告所属任务的 id
func TaskID(report *Node) string {
	return report.Child("task").Attr("id")
}

// ReportIDs 按出现顺序提取报告ID，缺失 id 的条目跳过
func ReportIDs(reports []*Node) []string {
	ids := make([]string, 0, len(reports))
	for _, r := range reports {
		if id := ReportID(r); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// ReportTaskMapping 提取 报告ID→任务ID 映射，任一缺失的条目不计入
func ReportTaskMapping(reports []*Node) map[string]string {
	mapping := make(map[string]string, len(reports))
	for _, r := range reports {
		reportID, taskID := ReportID(r), TaskID(r)
		if reportID != "" && taskID != "" {
			mapping[reportID] = taskID
		}
	}
	return mapping
}

// SummarizeReport 提取报告概要；扫描时间与计数位于内层 <report> 元素
func SummarizeReport(report *Node) gvm.ReportSummary {
	inner := report.Child("report")
	summary := gvm.ReportSummary{
		ReportID:  ReportID(report),
		ScanStart: inner.ChildText("scan_start"),
		ScanEnd:   inner.ChildText("scan_end"),
		TaskName:  report.ChildText("task", "name"),
		VulnCount: inner.ChildText("vulns", "count"),
	}
	if summary.TaskName == "" {
		summary.TaskName = "N/A"
	}
	if rc := inner.Child("result_count"); rc != nil {
		summary.ResultCount = &gvm.ResultCount{
			Full:     rc.ChildText("full"),
			Filtered: rc.ChildText("filtered"),
		}
	}
	return summary
}

// SummarizeReports 批量提取报告概要
func SummarizeReports(reports []*Node) []gvm.ReportSummary {
	out := make([]gvm.ReportSummary, 0, len(reports))
	for _, r := range reports {
		out = append(out, SummarizeReport(r))
	}
	return out
}
