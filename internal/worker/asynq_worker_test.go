package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopledger/internal/config"
	"github.com/shopledger/internal/constants"
	"github.com/shopledger/internal/models"
	"github.com/shopledger/internal/provider"
	"github.com/shopledger/internal/queue"
	"github.com/shopledger/internal/service"

	"github.com/glebarez/sqlite"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type memoryStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: map[string][]byte{}}
}

func (s *memoryStore) GetJSON(_ context.Context, key string, dest interface{}) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (s *memoryStore) SetJSON(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = raw
	return nil
}

func (s *memoryStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}

func (s *memoryStore) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[key]
	return ok
}

type capturingNotifier struct {
	mu   sync.Mutex
	sent []service.Notification
}

func (n *capturingNotifier) Send(_ context.Context, notification service.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification)
	return nil
}

type recordingGateway struct {
	intents int
	refunds []string
}

func (g *recordingGateway) CreateIntent(_ context.Context, orderNo string, _ decimal.Decimal, _ string) (string, error) {
	g.intents++
	return fmt.Sprintf("pi_test_%s_%d", orderNo, g.intents), nil
}

func (g *recordingGateway) Refund(_ context.Context, paymentRef string, amount decimal.Decimal) (string, error) {
	g.refunds = append(g.refunds, paymentRef+"="+amount.StringFixed(2))
	return "re_test", nil
}

func newWorkerTestContainer(t *testing.T) (*provider.Container, *memoryStore) {
	t.Helper()
	dsn := fmt.Sprintf("file:worker_%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.AllModels()...))

	cfg := &config.Config{}
	store := newMemoryStore()
	return provider.NewContainerWithDB(cfg, db, store), store
}

func createTestOrder(t *testing.T, c *provider.Container, stock, qty int) *models.Order {
	t.Helper()
	product, err := c.ProductService.Create(service.CreateProductInput{
		SKU:          fmt.Sprintf("SKU-%d", time.Now().UnixNano()),
		Name:         "Widget",
		Price:        decimal.RequireFromString("12.00"),
		InitialStock: stock,
		IsActive:     true,
	})
	require.NoError(t, err)
	order, err := c.OrderService.CreateOrder(context.Background(), service.CreateOrderInput{
		UserID: 1,
		Items:  []service.CreateOrderItem{{ProductID: product.ID, Quantity: qty}},
	})
	require.NoError(t, err)
	return order
}

func jsonTask(t *testing.T, taskType string, payload interface{}) *asynq.Task {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return asynq.NewTask(taskType, body)
}

func TestConsumerRegister(t *testing.T) {
	c, _ := newWorkerTestContainer(t)
	mux := asynq.NewServeMux()
	NewConsumer(c).Register(mux)

	for _, taskType := range []string{
		queue.TaskOrderStatusNotify,
		queue.TaskOrderPaymentIntent,
		queue.TaskOrderPaymentRefund,
		queue.TaskCacheInvalidate,
	} {
		_, pattern := mux.Handler(asynq.NewTask(taskType, nil))
		assert.Equal(t, taskType, pattern)
	}

	var nilConsumer *Consumer
	nilConsumer.Register(mux)
}

func TestHandleOrderStatusNotify(t *testing.T) {
	c, _ := newWorkerTestContainer(t)
	notifier := &capturingNotifier{}
	c.NotificationService = service.NewNotificationService(notifier)
	consumer := NewConsumer(c)

	err := consumer.handleOrderStatusNotify(context.Background(), jsonTask(t, queue.TaskOrderStatusNotify, queue.OrderStatusNotifyPayload{
		OrderID: 7,
		OrderNo: "ORD1",
		UserID:  3,
		Event:   "order_delivered",
		Status:  constants.OrderStatusDelivered,
	}))
	require.NoError(t, err)
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, uint(7), notifier.sent[0].OrderID)

	// 缺少事件名的载荷直接跳过
	err = consumer.handleOrderStatusNotify(context.Background(), jsonTask(t, queue.TaskOrderStatusNotify, queue.OrderStatusNotifyPayload{OrderID: 7}))
	require.NoError(t, err)
	assert.Len(t, notifier.sent, 1)

	err = consumer.handleOrderStatusNotify(context.Background(), asynq.NewTask(queue.TaskOrderStatusNotify, []byte("{")))
	assert.Error(t, err)
}

func TestHandleOrderPaymentIntentAttachesOnce(t *testing.T) {
	c, _ := newWorkerTestContainer(t)
	gateway := &recordingGateway{}
	c.PaymentGateway = gateway
	consumer := NewConsumer(c)
	order := createTestOrder(t, c, 5, 2)

	payload := queue.OrderPaymentIntentPayload{
		OrderID:  order.ID,
		OrderNo:  order.OrderNo,
		Amount:   order.Total.String(),
		Currency: order.Currency,
	}
	require.NoError(t, consumer.handleOrderPaymentIntent(context.Background(), jsonTask(t, queue.TaskOrderPaymentIntent, payload)))

	reloaded, err := c.OrderRepo.GetByID(order.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(reloaded.PaymentRef, "pi_test_"))
	assert.Equal(t, 1, gateway.intents)

	require.NoError(t, consumer.handleOrderPaymentIntent(context.Background(), jsonTask(t, queue.TaskOrderPaymentIntent, payload)))
	assert.Equal(t, 1, gateway.intents)

	// 订单不存在时不重试
	missing := payload
	missing.OrderID = 9999
	require.NoError(t, consumer.handleOrderPaymentIntent(context.Background(), jsonTask(t, queue.TaskOrderPaymentIntent, missing)))
	assert.Equal(t, 1, gateway.intents)
}

func TestHandleOrderPaymentIntentSkipsCancelledOrder(t *testing.T) {
	c, _ := newWorkerTestContainer(t)
	gateway := &recordingGateway{}
	c.PaymentGateway = gateway
	consumer := NewConsumer(c)
	order := createTestOrder(t, c, 5, 1)
	_, err := c.OrderService.CancelOrder(context.Background(), order.ID, service.UserActor(1), "changed mind")
	require.NoError(t, err)

	err = consumer.handleOrderPaymentIntent(context.Background(), jsonTask(t, queue.TaskOrderPaymentIntent, queue.OrderPaymentIntentPayload{
		OrderID: order.ID,
		Amount:  "12.00",
	}))
	require.NoError(t, err)
	assert.Zero(t, gateway.intents)
}

func TestHandleOrderPaymentRefund(t *testing.T) {
	c, _ := newWorkerTestContainer(t)
	gateway := &recordingGateway{}
	c.PaymentGateway = gateway
	consumer := NewConsumer(c)

	require.NoError(t, consumer.handleOrderPaymentRefund(context.Background(), jsonTask(t, queue.TaskOrderPaymentRefund, queue.OrderPaymentRefundPayload{
		OrderID:    4,
		PaymentRef: "pi_abc",
		Amount:     "15.5",
		Reason:     "damaged",
	})))
	assert.Equal(t, []string{"pi_abc=15.50"}, gateway.refunds)

	for _, payload := range []queue.OrderPaymentRefundPayload{
		{OrderID: 4, PaymentRef: "", Amount: "1"},
		{OrderID: 4, PaymentRef: "pi_abc", Amount: "abc"},
		{OrderID: 4, PaymentRef: "pi_abc", Amount: "0"},
	} {
		require.NoError(t, consumer.handleOrderPaymentRefund(context.Background(), jsonTask(t, queue.TaskOrderPaymentRefund, payload)))
	}
	assert.Len(t, gateway.refunds, 1)
}

func TestHandleCacheInvalidate(t *testing.T) {
	c, store := newWorkerTestContainer(t)
	consumer := NewConsumer(c)
	ctx := context.Background()
	require.NoError(t, store.SetJSON(ctx, "product:1", 1, 0))
	require.NoError(t, store.SetJSON(ctx, "products:all", 1, 0))
	require.NoError(t, store.SetJSON(ctx, "order:9", 1, 0))

	err := consumer.handleCacheInvalidate(ctx, jsonTask(t, queue.TaskCacheInvalidate, queue.CacheInvalidatePayload{
		Keys: []string{"product:1", "products:all"},
	}))
	require.NoError(t, err)
	assert.False(t, store.has("product:1"))
	assert.False(t, store.has("products:all"))
	assert.True(t, store.has("order:9"))

	require.NoError(t, consumer.handleCacheInvalidate(ctx, jsonTask(t, queue.TaskCacheInvalidate, queue.CacheInvalidatePayload{})))
}

func TestNewServiceRequiresQueueOrScheduler(t *testing.T) {
	c, _ := newWorkerTestContainer(t)
	consumer := NewConsumer(c)

	_, err := NewService(&config.Config{}, consumer)
	assert.Error(t, err)
	_, err = NewService(nil, consumer)
	assert.Error(t, err)
	_, err = NewService(&config.Config{}, nil)
	assert.Error(t, err)

	svc, err := NewService(&config.Config{Scheduler: config.SchedulerConfig{Enabled: true}}, consumer)
	require.NoError(t, err)
	assert.Equal(t, "worker", svc.Name())
	require.NotNil(t, svc.Scheduler())
	assert.Equal(t, []string{JobAnalyticsRefresh, JobInventoryCacheCleanup, JobOrderProgression}, svc.Scheduler().Jobs())
}
