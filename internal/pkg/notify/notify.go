/**
 * 通知:入库事件
 * @author: sun977
 * @date: 2025.11.06
 * @description: 解析结果文件入库完成后向下游广播事件，通知失败不影响入库
 * @func: Event、Notifier、NopNotifier、RabbitNotifier
 */
package notify

import (
	"context"
	"time"

	"neogvm/internal/config"

	"github.com/google/uuid"
)

// 事件类型
const (
	EventReportIngested = "report.ingested"
	EventScanStarted    = "scan.started"
)

// Event 通知事件
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	ReportID  string    `json:"report_id,omitempty"`
	TaskID    string    `json:"task_id,omitempty"`
	File      string    `json:"file,omitempty"`
	Documents int       `json:"documents"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent 创建带唯一 id 的事件
func NewEvent(eventType string) *Event {
	return &Event{ID: uuid.NewString(), Type: eventType, Timestamp: time.Now().UTC()}
}

// Notifier 事件发布器
type Notifier interface {
	Publish(ctx context.Context, event *Event) error
	Close() error
}

// NopNotifier 未启用通知时使用
type NopNotifier struct{}

// Publish 丢弃事件
func (NopNotifier) Publish(context.Context, *Event) error { return nil }

// Close 无操作
func (NopNotifier) Close() error { return nil }

// New 按配置创建通知器
func New(cfg *config.NotifyConfig) Notifier {
	if !cfg.Enabled || cfg.URL == "" {
		return NopNotifier{}
	}
	return NewRabbitNotifier(cfg)
}
