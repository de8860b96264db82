package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopledger/internal/logger"
	"github.com/shopledger/internal/queue"
)

var notificationTemplateVarPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// orderNotificationTemplates 订单事件对应的通知文案
var orderNotificationTemplates = map[string]string{
	"order_created":    "Order {{order_no}} has been placed.",
	"order_paid":       "Payment received for order {{order_no}}.",
	"order_confirmed":  "Order {{order_no}} has been confirmed.",
	"order_processing": "Order {{order_no}} is being prepared.",
	"order_shipped":    "Order {{order_no}} has shipped.",
	"order_delivered":  "Order {{order_no}} has been delivered.",
	"order_cancelled":  "Order {{order_no}} has been cancelled.",
	"order_refunded":   "Order {{order_no}} has been refunded.",
}

// Notification 渲染后的通知
type Notification struct {
	UserID  uint
	OrderID uint
	Event   string
	Message string
}

// Notifier 通知投递渠道
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// LogNotifier 写入结构化日志的通知渠道
type LogNotifier struct{}

// Send 记录通知
func (LogNotifier) Send(_ context.Context, n Notification) error {
	logger.Infow("notification_sent",
		"user_id", n.UserID,
		"order_id", n.OrderID,
		"event", n.Event,
		"message", n.Message,
	)
	return nil
}

// NotificationService 订单通知服务
type NotificationService struct {
	notifier Notifier
}

// NewNotificationService 创建通知服务
func NewNotificationService(notifier Notifier) *NotificationService {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &NotificationService{notifier: notifier}
}

// NotifyOrderStatus 渲染并投递订单状态通知，未知事件忽略
func (s *NotificationService) NotifyOrderStatus(ctx context.Context, payload queue.OrderStatusNotifyPayload) error {
	tmpl, ok := orderNotificationTemplates[strings.TrimSpace(payload.Event)]
	if !ok {
		logger.Debugw("notification_event_ignored", "event", payload.Event, "order_id", payload.OrderID)
		return nil
	}
	message := renderNotificationTemplate(tmpl, map[string]interface{}{
		"order_no": payload.OrderNo,
		"status":   payload.Status,
		"order_id": payload.OrderID,
	})
	return s.notifier.Send(ctx, Notification{
		UserID:  payload.UserID,
		OrderID: payload.OrderID,
		Event:   payload.Event,
		Message: message,
	})
}

func renderNotificationTemplate(tmpl string, variables map[string]interface{}) string {
	return notificationTemplateVarPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		sub := notificationTemplateVarPattern.FindStringSubmatch(match)
		if len(sub) < 2 {
			return match
		}
		value, ok := variables[sub[1]]
		if !ok {
			return match
		}
		return fmt.Sprint(value)
	})
}
