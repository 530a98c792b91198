// Package gmp 封装 Greenbone Management Protocol 的命令构造、响应解析与桥接执行
package gmp

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
)

// Command GMP 命令元素
type Command struct {
	name     string
	attrs    [][2]string
	text     string
	children []*Command
}

// NewCommand 创建命令元素
func NewCommand(name string) *Command {
	return &Command{name: name}
}

// Attr 追加属性，保持追加顺序
func (c *Command) Attr(key, value string) *Command {
	c.attrs = append(c.attrs, [2]string{key, value})
	return c
}

// Text 设置元素文本
func (c *Command) Text(text string) *Command {
	c.text = text
	return c
}

// Child 追加子元素
func (c *Command) Child(child *Command) *Command {
	c.children = append(c.children, child)
	return c
}

// Name 命令名，用于日志和错误上下文
func (c *Command) Name() string {
	return c.name
}

// String 渲染为 XML，属性值与文本均做转义
func (c *Command) String() string {
	var buf bytes.Buffer
	c.render(&buf)
	return buf.String()
}

func (c *Command) render(buf *bytes.Buffer) {
	buf.WriteByte('<')
	buf.WriteString(c.name)
	for _, kv := range c.attrs {
		buf.WriteByte(' ')
		buf.WriteString(kv[0])
		buf.WriteString(`="`)
		_ = xml.EscapeText(buf, []byte(kv[1]))
		buf.WriteByte('"')
	}
	if c.text == "" && len(c.children) == 0 {
		buf.WriteString("/>")
		return
	}
	buf.WriteByte('>')
	_ = xml.EscapeText(buf, []byte(c.text))
	for _, child := range c.children {
		child.render(buf)
	}
	buf.WriteString("</")
	buf.WriteString(c.name)
	buf.WriteByte('>')
}

// ReportFilter 详细报告过滤条件
type ReportFilter struct {
	ApplyOverrides   bool
	Levels           string
	MinQoD           int
	First            int
	Rows             int
	Sort             string
	IgnorePagination bool
}

// DefaultReportFilter 拉取详细报告使用的固定过滤条件:
// 不应用覆盖规则，高/中/低三级，QoD>=50，不分页，按名称排序
func DefaultReportFilter() ReportFilter {
	return ReportFilter{
		ApplyOverrides:   false,
		Levels:           "hml",
		MinQoD:           50,
		First:            1,
		Rows:             1000,
		Sort:             "name",
		IgnorePagination: true,
	}
}

// String 渲染为 GMP filter 字符串
func (f ReportFilter) String() string {
	terms := []string{
		fmt.Sprintf("apply_overrides=%d", boolToInt(f.ApplyOverrides)),
		"levels=" + f.Levels,
		fmt.Sprintf("min_qod=%d", f.MinQoD),
		fmt.Sprintf("first=%d", f.First),
		fmt.Sprintf("rows=%d", f.Rows),
		"sort=" + f.Sort,
		fmt.Sprintf("ignore_pagination=%d", boolToInt(f.IgnorePagination)),
	}
	return strings.Join(terms, " ")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// GetVersionCommand <get_version/>
func GetVersionCommand() *Command {
	return NewCommand("get_version")
}

// GetReportsCommand <get_reports/>，只取报告列表不带明细
func GetReportsCommand() *Command {
	return NewCommand("get_reports")
}

// GetReportDetailCommand 拉取单个报告明细
func GetReportDetailCommand(reportID string, filter ReportFilter, formatID string) *Command {
	return NewCommand("get_reports").
		Attr("report_id", reportID).
		Attr("filter", filter.String()).
		Attr("details", "1").
		Attr("format_id", formatID)
}

// CreateTargetCommand 创建扫描目标
func CreateTargetCommand(name, hosts, portListID string) *Command {
	return NewCommand("create_target").
		Child(NewCommand("name").Text(name)).
		Child(NewCommand("hosts").Text(hosts)).
		Child(NewCommand("port_list").Attr("id", portListID))
}

// CreateTaskCommand 创建扫描任务
func CreateTaskCommand(name, configID, targetID string) *Command {
	return NewCommand("create_task").
		Child(NewCommand("name").Text(name)).
		Child(NewCommand("config").Attr("id", configID)).
		Child(NewCommand("target").Attr("id", targetID))
}

// StartTaskCommand 启动扫描任务
func StartTaskCommand(taskID string) *Command {
	return NewCommand("start_task").Attr("task_id", taskID)
}
