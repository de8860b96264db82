package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopledger/internal/config"
	"github.com/shopledger/internal/models"
	"github.com/shopledger/internal/queue"
	"github.com/shopledger/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func openServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db failed: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		t.Fatalf("migrate models failed: %v", err)
	}
	return db
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(start time.Time) *testClock {
	return &testClock{now: start}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []CacheEvent
}

func (p *recordingPublisher) Publish(event CacheEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, 0, len(p.events))
	for _, e := range p.events {
		names = append(names, e.Name())
	}
	return names
}

type recordingTasks struct {
	mu          sync.Mutex
	notify      []queue.OrderStatusNotifyPayload
	intents     []queue.OrderPaymentIntentPayload
	refunds     []queue.OrderPaymentRefundPayload
	invalidates []queue.CacheInvalidatePayload
	failWith    error
}

func (r *recordingTasks) EnqueueOrderStatusNotify(payload queue.OrderStatusNotifyPayload, _ ...asynq.Option) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notify = append(r.notify, payload)
	return r.failWith
}

func (r *recordingTasks) EnqueueOrderPaymentIntent(payload queue.OrderPaymentIntentPayload, _ ...asynq.Option) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.intents = append(r.intents, payload)
	return r.failWith
}

func (r *recordingTasks) EnqueueOrderPaymentRefund(payload queue.OrderPaymentRefundPayload, _ ...asynq.Option) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refunds = append(r.refunds, payload)
	return r.failWith
}

func (r *recordingTasks) EnqueueCacheInvalidate(payload queue.CacheInvalidatePayload, _ ...asynq.Option) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalidates = append(r.invalidates, payload)
	return r.failWith
}

func (r *recordingTasks) notifyEvents() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	events := make([]string, 0, len(r.notify))
	for _, n := range r.notify {
		events = append(events, n.Event)
	}
	return events
}

// memoryStore 进程内缓存，用于断言缓存读写与失效
type memoryStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	deleted []string
	delErr  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: map[string][]byte{}}
}

func (m *memoryStore) GetJSON(_ context.Context, key string, dest interface{}) (bool, error) {
	m.mu.Lock()
	raw, ok := m.data[key]
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (m *memoryStore) SetJSON(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = raw
	return nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.delErr != nil {
		return m.delErr
	}
	for _, key := range keys {
		delete(m.data, key)
		m.deleted = append(m.deleted, key)
	}
	return nil
}

func (m *memoryStore) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

type serviceFixture struct {
	db          *gorm.DB
	clock       *testClock
	productRepo *repository.GormProductRepository
	orderRepo   *repository.GormOrderRepository
	cartRepo    *repository.GormCartRepository
	txnRepo     *repository.GormInventoryTransactionRepository
	events      *recordingPublisher
	tasks       *recordingTasks
	store       *memoryStore
	policy      ProgressionPolicy
	ledger      *StockLedger
	machine     *OrderStateMachine
	orders      *OrderService
	carts       *CartService
	progression *ProgressionService
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	db := openServiceTestDB(t)
	f := &serviceFixture{
		db:          db,
		clock:       newTestClock(time.Now().UTC().Truncate(time.Second)),
		productRepo: repository.NewProductRepository(db),
		orderRepo:   repository.NewOrderRepository(db),
		cartRepo:    repository.NewCartRepository(db),
		txnRepo:     repository.NewInventoryTransactionRepository(db),
		events:      &recordingPublisher{},
		tasks:       &recordingTasks{},
		store:       newMemoryStore(),
		policy:      NewProgressionPolicy(config.ProgressionConfig{}),
	}
	f.ledger = NewStockLedger(db, f.productRepo, f.txnRepo, repository.NewDashboardRepository(db), f.events, 3, 10)
	f.machine = NewOrderStateMachine(f.orderRepo, f.policy)
	f.machine.now = f.clock.Now
	f.orders = NewOrderService(OrderServiceOptions{
		DB:           db,
		OrderRepo:    f.orderRepo,
		ProductRepo:  f.productRepo,
		CartRepo:     f.cartRepo,
		Ledger:       f.ledger,
		StateMachine: f.machine,
		Policy:       f.policy,
		Events:       f.events,
		Tasks:        f.tasks,
		Store:        f.store,
		OrderConfig:  config.OrderConfig{},
		CacheConfig:  config.CacheConfig{},
	})
	f.orders.now = f.clock.Now
	f.carts = NewCartService(f.cartRepo, f.productRepo, config.OrderConfig{})
	f.carts.now = f.clock.Now
	f.progression = NewProgressionService(db, f.orderRepo, f.machine, f.policy, f.events, f.tasks, 3)
	f.progression.now = f.clock.Now
	return f
}

func (f *serviceFixture) product(t *testing.T, sku string, stock int, price string) *models.Product {
	t.Helper()
	product := &models.Product{
		SKU:           sku,
		Name:          "商品 " + sku,
		Price:         models.NewMoneyFromDecimal(decimal.RequireFromString(price)),
		StockQuantity: stock,
		IsActive:      true,
	}
	if err := f.productRepo.Create(product); err != nil {
		t.Fatalf("create product failed: %v", err)
	}
	return product
}

func (f *serviceFixture) stockOf(t *testing.T, productID uint) int {
	t.Helper()
	stock, found, err := f.productRepo.GetStock(productID)
	if err != nil || !found {
		t.Fatalf("get stock failed: found=%v err=%v", found, err)
	}
	return stock
}

func (f *serviceFixture) transactions(t *testing.T, productID uint) []models.InventoryTransaction {
	t.Helper()
	rows, _, err := f.txnRepo.ListByProduct(productID, 1, 100)
	if err != nil {
		t.Fatalf("list transactions failed: %v", err)
	}
	return rows
}

func (f *serviceFixture) countRows(t *testing.T, model interface{}) int64 {
	t.Helper()
	var count int64
	if err := f.db.Model(model).Count(&count).Error; err != nil {
		t.Fatalf("count rows failed: %v", err)
	}
	return count
}

func (f *serviceFixture) placeOrder(t *testing.T, userID uint, items ...CreateOrderItem) *models.Order {
	t.Helper()
	order, err := f.orders.CreateOrder(context.Background(), CreateOrderInput{UserID: userID, Items: items})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	return order
}

func (f *serviceFixture) assertReconciled(t *testing.T, productIDs ...uint) {
	t.Helper()
	for _, id := range productIDs {
		report, err := f.ledger.Reconcile(id)
		if err != nil {
			t.Fatalf("reconcile product %d failed: %v", id, err)
		}
		if !report.Consistent {
			t.Fatalf("product %d ledger mismatch: %+v", id, report)
		}
	}
}

var errStoreDown = errors.New("store down")
