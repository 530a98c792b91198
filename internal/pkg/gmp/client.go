package gmp

import (
	"bytes"
	"context"
	"strings"

	"neogvm/internal/model/system"
)

// Response 解析后的 GMP 响应，保留原始字节用于落盘
type Response struct {
	Root *Node
	Raw  []byte
}

// ParseResponse 解析桥接输出
// 无法解析视为上游错误；status 非 2xx 同样视为上游错误
func ParseResponse(op string, raw []byte) (*Response, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, system.NewUpstreamError(op, errEmptyOutput)
	}

	root, err := ParseNode(raw)
	if err != nil {
		return nil, system.NewUpstreamError(op, err)
	}

	if status := root.Attr("status"); status != "" && !strings.HasPrefix(status, "2") {
		return nil, system.NewUpstreamError(op, &StatusError{Status: status, Text: root.Attr("status_text")})
	}

	return &Response{Root: root, Raw: raw}, nil
}

// Client GMP 客户端，不做重试，调用方依靠调度周期自愈
type Client struct {
	runner     BridgeRunner
	formatID   string
	portListID string
}

// NewClient 创建客户端
func NewClient(runner BridgeRunner, formatID, portListID string) *Client {
	return &Client{
		runner:     runner,
		formatID:   formatID,
		portListID: portListID,
	}
}

// Invoke 执行一条命令并解析响应
func (c *Client) Invoke(ctx context.Context, cmd *Command) (*Response, error) {
	out, err := c.runner.Run(ctx, cmd.String())
	if err != nil {
		return nil, system.NewUpstreamError(cmd.Name(), err)
	}
	return ParseResponse(cmd.Name(), out)
}

// GetVersion 查询协议版本
func (c *Client) GetVersion(ctx context.Context) (*Response, error) {
	return c.Invoke(ctx, GetVersionCommand())
}

// ListReports 获取报告列表，单个或多个 <report> 都返回切片
func (c *Client) ListReports(ctx context.Context) ([]*Node, error) {
	resp, err := c.Invoke(ctx, GetReportsCommand())
	if err != nil {
		return nil, err
	}
	if resp.Root.Name != "get_reports_response" {
		return nil, system.NewMalformedError("get_reports", "unexpected root element <%s>", resp.Root.Name)
	}
	return resp.Root.ChildrenNamed("report"), nil
}

// GetReportDetail 拉取单个报告的明细
func (c *Client) GetReportDetail(ctx context.Context, reportID string, filter ReportFilter) (*Response, error) {
	return c.Invoke(ctx, GetReportDetailCommand(reportID, filter, c.formatID))
}

// CreateTarget 创建扫描目标，返回目标ID
func (c *Client) CreateTarget(ctx context.Context, name, hosts string) (string, error) {
	return c.invokeForID(ctx, CreateTargetCommand(name, hosts, c.portListID))
}

// CreateTask 创建扫描任务，返回任务ID
func (c *Client) CreateTask(ctx context.Context, name, targetID, configID string) (string, error) {
	return c.invokeForID(ctx, CreateTaskCommand(name, configID, targetID))
}

// StartTask 启动扫描任务，返回本次运行生成的报告ID(可能为空)
func (c *Client) StartTask(ctx context.Context, taskID string) (string, error) {
	resp, err := c.Invoke(ctx, StartTaskCommand(taskID))
	if err != nil {
		return "", err
	}
	return resp.Root.ChildText("report_id"), nil
}

func (c *Client) invokeForID(ctx context.Context, cmd *Command) (string, error) {
	resp, err := c.Invoke(ctx, cmd)
	if err != nil {
		return "", err
	}
	id := resp.Root.Attr("id")
	if id == "" {
		return "", system.NewMalformedError(cmd.Name(), "response <%s> carries no id", resp.Root.Name)
	}
	return id, nil
}
