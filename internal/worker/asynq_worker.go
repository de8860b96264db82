package worker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/shopledger/internal/constants"
	"github.com/shopledger/internal/logger"
	"github.com/shopledger/internal/provider"
	"github.com/shopledger/internal/queue"
	"github.com/shopledger/internal/service"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskOrderStatusNotify, c.handleOrderStatusNotify)
	mux.HandleFunc(queue.TaskOrderPaymentIntent, c.handleOrderPaymentIntent)
	mux.HandleFunc(queue.TaskOrderPaymentRefund, c.handleOrderPaymentRefund)
	mux.HandleFunc(queue.TaskCacheInvalidate, c.handleCacheInvalidate)
}

func (c *Consumer) handleOrderStatusNotify(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil || c.NotificationService == nil {
		logger.Debugw("worker_order_status_notify_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.OrderStatusNotifyPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_order_status_notify_unmarshal_failed", "error", err)
		return err
	}
	if payload.OrderID == 0 || strings.TrimSpace(payload.Event) == "" {
		logger.Debugw("worker_order_status_notify_skip_invalid_payload", "order_id", payload.OrderID, "event", payload.Event)
		return nil
	}
	if err := c.NotificationService.NotifyOrderStatus(ctx, payload); err != nil {
		logger.Warnw("worker_order_status_notify_send_failed",
			"order_id", payload.OrderID,
			"event", payload.Event,
			"error", err,
		)
		return err
	}
	return nil
}

func (c *Consumer) handleOrderPaymentIntent(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil || c.PaymentGateway == nil || c.OrderService == nil {
		logger.Debugw("worker_order_payment_intent_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.OrderPaymentIntentPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_order_payment_intent_unmarshal_failed", "error", err)
		return err
	}
	if payload.OrderID == 0 {
		logger.Debugw("worker_order_payment_intent_skip_invalid_payload", "order_id", payload.OrderID)
		return nil
	}
	order, err := c.OrderRepo.GetByID(payload.OrderID)
	if err != nil {
		logger.Warnw("worker_order_payment_intent_fetch_order_failed", "order_id", payload.OrderID, "error", err)
		return err
	}
	if order == nil {
		logger.Debugw("worker_order_payment_intent_skip_order_not_found", "order_id", payload.OrderID)
		return nil
	}
	// 已有流水号或订单已结束时不再重复创建
	if order.PaymentRef != "" || order.PaymentStatus != constants.PaymentStatusUnpaid || service.IsTerminalOrderStatus(order.Status) {
		logger.Debugw("worker_order_payment_intent_skip_settled",
			"order_id", order.ID,
			"status", order.Status,
			"payment_status", order.PaymentStatus,
		)
		return nil
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(payload.Amount))
	if err != nil {
		logger.Warnw("worker_order_payment_intent_invalid_amount", "order_id", order.ID, "amount", payload.Amount)
		return nil
	}
	ref, err := c.PaymentGateway.CreateIntent(ctx, order.OrderNo, amount, payload.Currency)
	if err != nil {
		logger.Warnw("worker_order_payment_intent_create_failed", "order_id", order.ID, "error", err)
		return err
	}
	if err := c.OrderService.AttachPaymentIntent(ctx, order.ID, ref); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return nil
		}
		logger.Warnw("worker_order_payment_intent_attach_failed", "order_id", order.ID, "payment_ref", ref, "error", err)
		return err
	}
	return nil
}

func (c *Consumer) handleOrderPaymentRefund(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil || c.PaymentGateway == nil {
		logger.Debugw("worker_order_payment_refund_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.OrderPaymentRefundPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_order_payment_refund_unmarshal_failed", "error", err)
		return err
	}
	if payload.OrderID == 0 || strings.TrimSpace(payload.PaymentRef) == "" {
		logger.Debugw("worker_order_payment_refund_skip_invalid_payload", "order_id", payload.OrderID)
		return nil
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(payload.Amount))
	if err != nil || !amount.IsPositive() {
		logger.Warnw("worker_order_payment_refund_invalid_amount", "order_id", payload.OrderID, "amount", payload.Amount)
		return nil
	}
	refundRef, err := c.PaymentGateway.Refund(ctx, payload.PaymentRef, amount)
	if err != nil {
		logger.Warnw("worker_order_payment_refund_failed",
			"order_id", payload.OrderID,
			"payment_ref", payload.PaymentRef,
			"error", err,
		)
		return err
	}
	logger.Infow("worker_order_payment_refunded",
		"order_id", payload.OrderID,
		"payment_ref", payload.PaymentRef,
		"refund_ref", refundRef,
		"amount", amount.StringFixed(2),
		"reason", payload.Reason,
	)
	return nil
}

func (c *Consumer) handleCacheInvalidate(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil || c.CacheCoordinator == nil {
		logger.Debugw("worker_cache_invalidate_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.CacheInvalidatePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_cache_invalidate_unmarshal_failed", "error", err)
		return err
	}
	if len(payload.Keys) == 0 {
		return nil
	}
	if err := c.CacheCoordinator.Invalidate(ctx, payload.Keys...); err != nil {
		logger.Warnw("worker_cache_invalidate_failed", "keys", payload.Keys, "error", err)
		return err
	}
	return nil
}
