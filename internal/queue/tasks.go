package queue

import (
	"encoding/json"

	"github.com/shopledger/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskOrderStatusNotify 订单状态通知任务
	TaskOrderStatusNotify = constants.TaskOrderStatusNotify
	// TaskOrderPaymentIntent 提交后创建支付意图
	TaskOrderPaymentIntent = constants.TaskOrderPaymentIntent
	// TaskOrderPaymentRefund 提交后向支付网关发起退款
	TaskOrderPaymentRefund = constants.TaskOrderPaymentRefund
	// TaskCacheInvalidate 缓存失效补偿任务
	TaskCacheInvalidate = constants.TaskCacheInvalidate
)

// OrderStatusNotifyPayload 订单状态通知载荷
type OrderStatusNotifyPayload struct {
	OrderID uint   `json:"order_id"`
	OrderNo string `json:"order_no"`
	UserID  uint   `json:"user_id"`
	Event   string `json:"event"`
	Status  string `json:"status"`
}

// OrderPaymentIntentPayload 支付意图载荷
type OrderPaymentIntentPayload struct {
	OrderID  uint   `json:"order_id"`
	OrderNo  string `json:"order_no"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// OrderPaymentRefundPayload 网关退款载荷
type OrderPaymentRefundPayload struct {
	OrderID    uint   `json:"order_id"`
	PaymentRef string `json:"payment_ref"`
	Amount     string `json:"amount"`
	Reason     string `json:"reason"`
}

// CacheInvalidatePayload 缓存失效载荷
type CacheInvalidatePayload struct {
	Keys []string `json:"keys"`
}

// NewOrderStatusNotifyTask 创建订单状态通知任务
func NewOrderStatusNotifyTask(payload OrderStatusNotifyPayload) (*asynq.Task, error) {
	return newJSONTask(TaskOrderStatusNotify, payload)
}

// NewOrderPaymentIntentTask 创建支付意图任务
func NewOrderPaymentIntentTask(payload OrderPaymentIntentPayload) (*asynq.Task, error) {
	return newJSONTask(TaskOrderPaymentIntent, payload)
}

// NewOrderPaymentRefundTask 创建网关退款任务
func NewOrderPaymentRefundTask(payload OrderPaymentRefundPayload) (*asynq.Task, error) {
	return newJSONTask(TaskOrderPaymentRefund, payload)
}

// NewCacheInvalidateTask 创建缓存失效任务
func NewCacheInvalidateTask(payload CacheInvalidatePayload) (*asynq.Task, error) {
	return newJSONTask(TaskCacheInvalidate, payload)
}

func newJSONTask(taskType string, payload interface{}) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, body), nil
}
