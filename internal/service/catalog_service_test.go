package service

import (
	"context"
	"testing"

	"github.com/shopledger/internal/cache"
	"github.com/shopledger/internal/config"
	"github.com/shopledger/internal/constants"
	"github.com/shopledger/internal/queue"
	"github.com/shopledger/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProductCreateIsIdempotentBySKU(t *testing.T) {
	f := newServiceFixture(t)
	svc := NewProductService(f.productRepo, f.store, config.CacheConfig{}, 0)
	sale := decimal.RequireFromString("7.50")

	product, err := svc.Create(CreateProductInput{
		SKU:          " tee-01 ",
		Name:         "T-Shirt",
		Price:        decimal.RequireFromString("9.00"),
		SalePrice:    &sale,
		InitialStock: 12,
		IsActive:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, "TEE-01", product.SKU)
	assert.Equal(t, 12, product.InitialStock)
	require.NotNil(t, product.SalePrice)
	assert.Equal(t, "7.50", product.SalePrice.String())

	again, err := svc.Create(CreateProductInput{SKU: "TEE-01", Name: "Other", InitialStock: 99})
	require.NoError(t, err)
	assert.Equal(t, product.ID, again.ID)
	assert.Equal(t, 12, f.stockOf(t, product.ID))

	_, err = svc.Create(CreateProductInput{SKU: "X", Name: "bad", InitialStock: -1})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = svc.Create(CreateProductInput{Name: "no sku"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestProductGetCachesAndHidesInactive(t *testing.T) {
	f := newServiceFixture(t)
	svc := NewProductService(f.productRepo, f.store, config.CacheConfig{}, 0)
	active := f.product(t, "ON", 3, "2.00")

	got, err := svc.Get(context.Background(), active.ID)
	require.NoError(t, err)
	assert.Equal(t, "ON", got.SKU)
	assert.True(t, f.store.has(cache.ProductKey(active.ID)))

	_, err = svc.Get(context.Background(), 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProductListPublicStockFilter(t *testing.T) {
	f := newServiceFixture(t)
	svc := NewProductService(f.productRepo, f.store, config.CacheConfig{}, 5)
	f.product(t, "MANY", 50, "1.00")
	f.product(t, "FEW", 2, "1.00")
	f.product(t, "NONE", 0, "1.00")

	all, total, err := svc.ListPublic(0, "", "", 1, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, all, 3)

	out, _, err := svc.ListPublic(0, "", constants.ProductStockStatusOutOfStock, 1, 20)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "NONE", out[0].SKU)

	_, _, err = svc.ListPublic(0, "", "plenty", 1, 20)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestProductListAdminIncludesInactive(t *testing.T) {
	f := newServiceFixture(t)
	svc := NewProductService(f.productRepo, f.store, config.CacheConfig{}, 0)
	f.product(t, "LIVE", 4, "1.00")
	_, err := svc.Create(CreateProductInput{SKU: "HIDDEN", Name: "Hidden", Price: decimal.RequireFromString("1.00")})
	require.NoError(t, err)

	_, publicTotal, err := svc.ListPublic(0, "", "", 1, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 1, publicTotal)

	_, adminTotal, err := svc.ListAdmin(0, "", "", 1, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 2, adminTotal)
}

func TestBestsellersReflectOrders(t *testing.T) {
	f := newServiceFixture(t)
	svc := NewProductService(f.productRepo, f.store, config.CacheConfig{}, 0)
	hot := f.product(t, "HOTSELL", 20, "1.00")
	f.product(t, "COLD", 20, "1.00")
	f.placeOrder(t, 1, CreateOrderItem{ProductID: hot.ID, Quantity: 3})

	best, err := svc.Bestsellers(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, best)
	assert.Equal(t, hot.ID, best[0].ID)
	assert.True(t, f.store.has(constants.CacheKeyProductsBest))
}

func TestCategoryCreateAndList(t *testing.T) {
	f := newServiceFixture(t)
	svc := NewCategoryService(repository.NewCategoryRepository(f.db), f.store, 0)

	created, err := svc.Create(CreateCategoryInput{Slug: "Home-Goods", Name: "Home", SortOrder: 2})
	require.NoError(t, err)
	assert.Equal(t, "home-goods", created.Slug)

	again, err := svc.Create(CreateCategoryInput{Slug: "home-goods", Name: "Dup"})
	require.NoError(t, err)
	assert.Equal(t, created.ID, again.ID)

	_, err = svc.Create(CreateCategoryInput{Slug: "bad slug", Name: "x"})
	assert.ErrorIs(t, err, ErrValidation)

	list, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.True(t, f.store.has(constants.CacheKeyCategoriesAll))
}

func TestAnalyticsRefreshCachesSnapshot(t *testing.T) {
	f := newServiceFixture(t)
	svc := NewAnalyticsService(repository.NewDashboardRepository(f.db), f.orderRepo, f.store, config.CacheConfig{}, 0)
	svc.now = f.clock.Now
	product := f.product(t, "STAT", 10, "10.00")
	f.placeOrder(t, 1, CreateOrderItem{ProductID: product.ID, Quantity: 1})
	cancelled := f.placeOrder(t, 2, CreateOrderItem{ProductID: product.ID, Quantity: 2})
	_, err := f.orders.CancelOrder(context.Background(), cancelled.ID, AdminActor(1), "")
	require.NoError(t, err)

	snapshot, err := svc.Dashboard(context.Background(), false)
	require.NoError(t, err)
	assert.EqualValues(t, 2, snapshot.Overview.OrdersTotal)
	assert.EqualValues(t, 1, snapshot.Overview.CancelledOrders)
	assert.EqualValues(t, 1, snapshot.StatusCounts[constants.OrderStatusPending])
	assert.EqualValues(t, 9, snapshot.Stock.TotalUnits)
	assert.Len(t, snapshot.Trends, analyticsWindowDays)
	assert.True(t, f.store.has(constants.CacheKeyAnalyticsDash))
	assert.True(t, f.store.has(constants.CacheKeyAnalyticsRecent))

	recent, err := svc.RecentOrders(context.Background())
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	require.NoError(t, f.store.SetJSON(context.Background(), constants.CacheKeyProductsAll, 1, 0))
	require.NoError(t, svc.CleanupInventoryCache(context.Background()))
	assert.False(t, f.store.has(constants.CacheKeyProductsAll))
}

type capturingNotifier struct {
	sent []Notification
}

func (c *capturingNotifier) Send(_ context.Context, n Notification) error {
	c.sent = append(c.sent, n)
	return nil
}

func TestNotifyOrderStatusRendersTemplate(t *testing.T) {
	notifier := &capturingNotifier{}
	svc := NewNotificationService(notifier)

	err := svc.NotifyOrderStatus(context.Background(), queue.OrderStatusNotifyPayload{
		OrderID: 3,
		OrderNo: "ORD20260101000000123456",
		UserID:  8,
		Event:   "order_shipped",
		Status:  constants.OrderStatusShipped,
	})
	require.NoError(t, err)
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "Order ORD20260101000000123456 has shipped.", notifier.sent[0].Message)
	assert.Equal(t, uint(8), notifier.sent[0].UserID)

	require.NoError(t, svc.NotifyOrderStatus(context.Background(), queue.OrderStatusNotifyPayload{Event: "order_teleported"}))
	assert.Len(t, notifier.sent, 1)
}

func TestRenderNotificationTemplateKeepsUnknownVars(t *testing.T) {
	got := renderNotificationTemplate("{{ order_no }} / {{missing}}", map[string]interface{}{"order_no": "A1"})
	assert.Equal(t, "A1 / {{missing}}", got)
}

func TestManualGateway(t *testing.T) {
	gateway := ManualGateway{}
	ref, err := gateway.CreateIntent(context.Background(), "ORD1", decimal.NewFromInt(5), "USD")
	require.NoError(t, err)
	assert.Regexp(t, `^pi_`, ref)
	refundRef, err := gateway.Refund(context.Background(), ref, decimal.NewFromInt(5))
	require.NoError(t, err)
	assert.Regexp(t, `^re_`, refundRef)
}
