package queue

import (
	"fmt"
	"strings"

	"github.com/shopledger/internal/config"
	"github.com/shopledger/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// DefaultQueue 默认队列名称
	DefaultQueue = constants.QueueDefault
	// CriticalQueue 支付相关任务队列
	CriticalQueue = constants.QueueCritical

	defaultMaxRetry = 8
)

// Client 队列客户端封装
type Client struct {
	client   *asynq.Client
	enabled  bool
	maxRetry int
}

// NewClient 创建队列客户端，未启用时返回空实现
func NewClient(cfg *config.QueueConfig) (*Client, error) {
	if cfg == nil || !cfg.Enabled {
		return &Client{enabled: false}, nil
	}
	maxRetry := cfg.MaxRetry
	if maxRetry <= 0 {
		maxRetry = defaultMaxRetry
	}
	return &Client{
		client:   asynq.NewClient(buildRedisOpt(cfg)),
		enabled:  true,
		maxRetry: maxRetry,
	}, nil
}

// Enabled 判断是否启用
func (c *Client) Enabled() bool {
	return c != nil && c.enabled && c.client != nil
}

// Close 关闭客户端
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueOrderStatusNotify 推送订单状态通知任务
func (c *Client) EnqueueOrderStatusNotify(payload OrderStatusNotifyPayload, opts ...asynq.Option) error {
	if !c.Enabled() {
		return nil
	}
	task, err := NewOrderStatusNotifyTask(payload)
	if err != nil {
		return err
	}
	return c.enqueue(task, DefaultQueue, opts...)
}

// EnqueueOrderPaymentIntent 推送支付意图任务
func (c *Client) EnqueueOrderPaymentIntent(payload OrderPaymentIntentPayload, opts ...asynq.Option) error {
	if !c.Enabled() {
		return nil
	}
	task, err := NewOrderPaymentIntentTask(payload)
	if err != nil {
		return err
	}
	// 同一订单只保留一个待执行的支付意图任务
	opts = append([]asynq.Option{asynq.TaskID(fmt.Sprintf("payment_intent:%d", payload.OrderID))}, opts...)
	return c.enqueue(task, CriticalQueue, opts...)
}

// EnqueueOrderPaymentRefund 推送网关退款任务
func (c *Client) EnqueueOrderPaymentRefund(payload OrderPaymentRefundPayload, opts ...asynq.Option) error {
	if !c.Enabled() {
		return nil
	}
	task, err := NewOrderPaymentRefundTask(payload)
	if err != nil {
		return err
	}
	opts = append([]asynq.Option{asynq.TaskID(fmt.Sprintf("payment_refund:%d", payload.OrderID))}, opts...)
	return c.enqueue(task, CriticalQueue, opts...)
}

// EnqueueCacheInvalidate 推送缓存失效补偿任务
func (c *Client) EnqueueCacheInvalidate(payload CacheInvalidatePayload, opts ...asynq.Option) error {
	if !c.Enabled() || len(payload.Keys) == 0 {
		return nil
	}
	task, err := NewCacheInvalidateTask(payload)
	if err != nil {
		return err
	}
	return c.enqueue(task, DefaultQueue, opts...)
}

func (c *Client) enqueue(task *asynq.Task, queueName string, opts ...asynq.Option) error {
	options := append([]asynq.Option{asynq.Queue(queueName), asynq.MaxRetry(c.maxRetry)}, opts...)
	_, err := c.client.Enqueue(task, options...)
	return err
}

// BuildServerConfig 生成队列服务配置
func BuildServerConfig(cfg *config.QueueConfig) (asynq.RedisClientOpt, asynq.Config) {
	concurrency := 10
	if cfg != nil && cfg.Concurrency > 0 {
		concurrency = cfg.Concurrency
	}
	queues := map[string]int{CriticalQueue: 6, DefaultQueue: 3}
	if cfg != nil && len(cfg.Queues) > 0 {
		queues = cfg.Queues
	}
	return buildRedisOpt(cfg), asynq.Config{
		Concurrency: concurrency,
		Queues:      queues,
	}
}

func buildRedisOpt(cfg *config.QueueConfig) asynq.RedisClientOpt {
	host := "127.0.0.1"
	port := 6379
	password := ""
	db := 0
	if cfg != nil {
		if strings.TrimSpace(cfg.Host) != "" {
			host = strings.TrimSpace(cfg.Host)
		}
		if cfg.Port > 0 {
			port = cfg.Port
		}
		password = cfg.Password
		db = cfg.DB
	}
	return asynq.RedisClientOpt{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	}
}
