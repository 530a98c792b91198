package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"neogvm/internal/config"
	"neogvm/internal/pkg/logger"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitNotifier 发布到 fanout 交换机，首次发布时建连，连接断开后下次发布重连
type RabbitNotifier struct {
	cfg     config.NotifyConfig
	conn    *amqp.Connection
	channel *amqp.Channel
	mu      sync.Mutex
	closed  bool
}

// NewRabbitNotifier 创建 RabbitMQ 通知器
func NewRabbitNotifier(cfg *config.NotifyConfig) *RabbitNotifier {
	return &RabbitNotifier{cfg: *cfg}
}

func (n *RabbitNotifier) connect() error {
	if n.channel != nil && !n.channel.IsClosed() {
		return nil
	}
	n.reset()

	conn, err := amqp.Dial(n.cfg.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(n.cfg.Exchange, "fanout", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	n.conn, n.channel = conn, ch
	logger.WithFields(map[string]interface{}{
		"func_name": "notify.RabbitNotifier.connect",
		"exchange":  n.cfg.Exchange,
	}).Info("connected to RabbitMQ")
	return nil
}

func (n *RabbitNotifier) reset() {
	if n.channel != nil {
		n.channel.Close()
		n.channel = nil
	}
	if n.conn != nil {
		n.conn.Close()
		n.conn = nil
	}
}

// Publish 发布事件
func (n *RabbitNotifier) Publish(ctx context.Context, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return errors.New("notifier is closed")
	}
	if err := n.connect(); err != nil {
		return err
	}

	err = n.channel.PublishWithContext(ctx, n.cfg.Exchange, n.cfg.RoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID,
		Type:         event.Type,
		Timestamp:    event.Timestamp,
		Body:         body,
	})
	if err != nil {
		n.reset()
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Close 关闭连接
func (n *RabbitNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
	n.reset()
	return nil
}
