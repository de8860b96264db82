package service

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/shopledger/internal/cache"
	"github.com/shopledger/internal/constants"
	"github.com/shopledger/internal/logger"
	"github.com/shopledger/internal/queue"

	"github.com/hibiken/asynq"
)

const (
	defaultInvalidationBuffer  = 1024
	defaultInvalidationTimeout = 3 * time.Second
)

// CacheEvent 触发缓存失效的领域事件
type CacheEvent interface {
	Name() string
	CacheKeys() []string
}

// StockChanged 库存变动事件
type StockChanged struct {
	ProductIDs []uint
}

// Name 事件名
func (e StockChanged) Name() string { return "stock_changed" }

// CacheKeys 受影响的缓存键
func (e StockChanged) CacheKeys() []string {
	if len(e.ProductIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(e.ProductIDs)+4)
	for _, id := range e.ProductIDs {
		keys = append(keys, cache.ProductKey(id))
	}
	return append(keys, cache.ProductListKeys()...)
}

// OrderChanged 订单创建或状态变化事件
type OrderChanged struct {
	OrderID    uint
	UserID     uint
	ProductIDs []uint
	Status     string
}

// Name 事件名
func (e OrderChanged) Name() string { return "order_changed" }

// CacheKeys 受影响的缓存键
func (e OrderChanged) CacheKeys() []string {
	keys := []string{
		cache.OrderKey(e.OrderID),
		constants.CacheKeyOrdersRecent,
		constants.CacheKeyAnalyticsDash,
		constants.CacheKeyAnalyticsRecent,
	}
	if e.UserID != 0 {
		keys = append(keys, cache.UserOrdersKey(e.UserID))
	}
	return append(keys, StockChanged{ProductIDs: e.ProductIDs}.CacheKeys()...)
}

// CacheEventPublisher 缓存事件发布方
type CacheEventPublisher interface {
	Publish(event CacheEvent)
}

type invalidationRetrier interface {
	EnqueueCacheInvalidate(payload queue.CacheInvalidatePayload, opts ...asynq.Option) error
}

// CacheCoordinatorStats 协调器计数
type CacheCoordinatorStats struct {
	Published int64
	Dropped   int64
	Processed int64
	Failed    int64
}

// CacheCoordinator 缓存失效协调器
// Publish 不阻塞调用方，失效失败只记录日志并交给队列补偿
type CacheCoordinator struct {
	store   cache.Store
	retrier invalidationRetrier
	events  chan CacheEvent
	timeout time.Duration

	published atomic.Int64
	dropped   atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
}

// NewCacheCoordinator 创建缓存失效协调器
func NewCacheCoordinator(store cache.Store, retrier invalidationRetrier, buffer int) *CacheCoordinator {
	if buffer <= 0 {
		buffer = defaultInvalidationBuffer
	}
	return &CacheCoordinator{
		store:   store,
		retrier: retrier,
		events:  make(chan CacheEvent, buffer),
		timeout: defaultInvalidationTimeout,
	}
}

// Publish 投递事件，缓冲区已满时丢弃
func (c *CacheCoordinator) Publish(event CacheEvent) {
	if c == nil || event == nil {
		return
	}
	select {
	case c.events <- event:
		c.published.Add(1)
	default:
		c.dropped.Add(1)
		logger.Warnw("cache_event_dropped", "event", event.Name(), "buffer", cap(c.events))
	}
}

// Run 持续消费事件直到 ctx 取消
func (c *CacheCoordinator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-c.events:
			c.handle(ctx, event)
		}
	}
}

// Drain 同步处理当前缓冲区内的全部事件
func (c *CacheCoordinator) Drain(ctx context.Context) int {
	handled := 0
	for {
		select {
		case event := <-c.events:
			c.handle(ctx, event)
			handled++
		default:
			return handled
		}
	}
}

// Stats 返回计数快照
func (c *CacheCoordinator) Stats() CacheCoordinatorStats {
	return CacheCoordinatorStats{
		Published: c.published.Load(),
		Dropped:   c.dropped.Load(),
		Processed: c.processed.Load(),
		Failed:    c.failed.Load(),
	}
}

// Invalidate 立即删除缓存键
func (c *CacheCoordinator) Invalidate(ctx context.Context, keys ...string) error {
	if c == nil || c.store == nil || len(keys) == 0 {
		return nil
	}
	delCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.store.Del(delCtx, keys...)
}

func (c *CacheCoordinator) handle(ctx context.Context, event CacheEvent) {
	keys := dedupeStrings(event.CacheKeys())
	if len(keys) == 0 {
		return
	}
	if err := c.Invalidate(ctx, keys...); err != nil {
		c.failed.Add(1)
		logger.Warnw("cache_invalidate_failed",
			"event", event.Name(),
			"keys", keys,
			"error", err,
		)
		if c.retrier != nil {
			if err := c.retrier.EnqueueCacheInvalidate(queue.CacheInvalidatePayload{Keys: keys}); err != nil {
				logger.Warnw("cache_invalidate_enqueue_failed", "event", event.Name(), "error", err)
			}
		}
		return
	}
	c.processed.Add(1)
	logger.Debugw("cache_invalidated", "event", event.Name(), "keys", len(keys))
}

func dedupeStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
