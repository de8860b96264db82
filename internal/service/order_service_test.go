package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopledger/internal/cache"
	"github.com/shopledger/internal/constants"
	"github.com/shopledger/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestMergeCreateOrderItems(t *testing.T) {
	items := []CreateOrderItem{
		{ProductID: 1, Quantity: 1},
		{ProductID: 2, Quantity: 4},
		{ProductID: 1, Quantity: 2},
	}
	merged, err := mergeCreateOrderItems(items)
	if err != nil {
		t.Fatalf("mergeCreateOrderItems error: %v", err)
	}
	if len(merged) != 2 {
		t.Fatalf("expected 2 items, got %d", len(merged))
	}
	if merged[0].ProductID != 1 || merged[0].Quantity != 3 {
		t.Fatalf("unexpected merged item: %+v", merged[0])
	}
	if merged[1].ProductID != 2 || merged[1].Quantity != 4 {
		t.Fatalf("unexpected merged item: %+v", merged[1])
	}
}

func TestMergeCreateOrderItemsRejectsInvalidLines(t *testing.T) {
	cases := []CreateOrderItem{
		{ProductID: 0, Quantity: 1},
		{ProductID: 1, Quantity: 0},
		{ProductID: 1, Quantity: -2},
	}
	for _, item := range cases {
		_, err := mergeCreateOrderItems([]CreateOrderItem{item})
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("expected validation error for %+v, got %v", item, err)
		}
	}
}

func TestCreateOrderDecrementsStockAndPrices(t *testing.T) {
	f := newServiceFixture(t)
	widget := f.product(t, "WIDGET", 10, "20.00")
	gadget := f.product(t, "GADGET", 5, "5.50")

	order := f.placeOrder(t, 7,
		CreateOrderItem{ProductID: widget.ID, Quantity: 2},
		CreateOrderItem{ProductID: gadget.ID, Quantity: 1},
	)

	require.Equal(t, constants.OrderStatusPending, order.Status)
	require.Equal(t, constants.PaymentStatusUnpaid, order.PaymentStatus)
	require.Regexp(t, `^ORD\d{14}\d{6}$`, order.OrderNo)
	require.Len(t, order.Items, 2)
	assert.Equal(t, "45.50", order.Subtotal.String())
	assert.Equal(t, "4.55", order.Tax.String())
	assert.Equal(t, "10.00", order.Shipping.String())
	assert.Equal(t, "0.00", order.Discount.String())
	assert.Equal(t, "60.05", order.Total.String())
	require.NotNil(t, order.NextActionAt)
	assert.True(t, order.NextActionAt.Equal(f.clock.Now().Add(f.policy.PendingDelay)))

	assert.Equal(t, 8, f.stockOf(t, widget.ID))
	assert.Equal(t, 4, f.stockOf(t, gadget.ID))

	rows := f.transactions(t, widget.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, models.TransactionTypeOut, rows[0].TransactionType)
	assert.Equal(t, -2, rows[0].Quantity)
	assert.Equal(t, 10, rows[0].PreviousStock)
	assert.Equal(t, 8, rows[0].NewStock)
	assert.Equal(t, models.ReferenceTypeOrder, rows[0].ReferenceType)
	require.NotNil(t, rows[0].ReferenceID)
	assert.Equal(t, order.ID, *rows[0].ReferenceID)
	assert.Equal(t, "40.00", rows[0].TotalValue.String())

	assert.Contains(t, f.events.names(), "order_changed")
	assert.Contains(t, f.events.names(), "stock_changed")
	assert.Equal(t, []string{"order_created"}, f.tasks.notifyEvents())
	require.Len(t, f.tasks.intents, 1)
	assert.Equal(t, "60.05", f.tasks.intents[0].Amount)

	f.assertReconciled(t, widget.ID, gadget.ID)
}

func TestCreateOrderFreeShippingAndSalePrice(t *testing.T) {
	f := newServiceFixture(t)
	product := f.product(t, "BUNDLE", 3, "80.00")
	sale := models.MoneyPtr(decimal.RequireFromString("50.00"))
	require.NoError(t, f.db.Model(&models.Product{}).Where("id = ?", product.ID).Update("sale_price", *sale).Error)

	order := f.placeOrder(t, 1, CreateOrderItem{ProductID: product.ID, Quantity: 2})

	assert.Equal(t, "50.00", order.Items[0].UnitPrice.String())
	assert.Equal(t, "100.00", order.Subtotal.String())
	assert.Equal(t, "0.00", order.Shipping.String())
	assert.Equal(t, "110.00", order.Total.String())
}

func TestCreateOrderInsufficientStockLeavesNoRows(t *testing.T) {
	f := newServiceFixture(t)
	product := f.product(t, "SCARCE", 3, "10.00")

	_, err := f.orders.CreateOrder(context.Background(), CreateOrderInput{
		UserID: 1,
		Items:  []CreateOrderItem{{ProductID: product.ID, Quantity: 5}},
	})

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 3, stockErr.Available)
	assert.Equal(t, 5, stockErr.Requested)
	assert.True(t, errors.Is(err, ErrInsufficientStock))

	assert.Equal(t, 3, f.stockOf(t, product.ID))
	assert.Zero(t, f.countRows(t, &models.Order{}))
	assert.Zero(t, f.countRows(t, &models.OrderItem{}))
	assert.Zero(t, f.countRows(t, &models.InventoryTransaction{}))
}

func TestCreateOrderRollsBackWhenLaterItemFails(t *testing.T) {
	f := newServiceFixture(t)
	first := f.product(t, "FIRST", 5, "10.00")
	second := f.product(t, "SECOND", 2, "10.00")

	// 预检通过后，在同一事务内抢走第二个商品的库存
	var once sync.Once
	err := f.db.Callback().Create().After("gorm:create").Register("test:steal_stock", func(db *gorm.DB) {
		if db.Statement.Schema == nil || db.Statement.Schema.Table != "order_items" {
			return
		}
		once.Do(func() {
			db.Session(&gorm.Session{NewDB: true}).Exec("UPDATE products SET stock_quantity = 1 WHERE id = ?", second.ID)
		})
	})
	require.NoError(t, err)

	_, err = f.orders.CreateOrder(context.Background(), CreateOrderInput{
		UserID: 1,
		Items:  []CreateOrderItem{{ProductID: first.ID, Quantity: 1}, {ProductID: second.ID, Quantity: 2}},
	})

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, second.ID, stockErr.ProductID)
	assert.Equal(t, 1, stockErr.Available)

	assert.Equal(t, 5, f.stockOf(t, first.ID))
	assert.Equal(t, 2, f.stockOf(t, second.ID))
	assert.Zero(t, f.countRows(t, &models.Order{}))
	assert.Zero(t, f.countRows(t, &models.OrderItem{}))
	assert.Zero(t, f.countRows(t, &models.InventoryTransaction{}))
	f.assertReconciled(t, first.ID, second.ID)
}

func TestCreateOrderValidation(t *testing.T) {
	f := newServiceFixture(t)
	product := f.product(t, "VALID", 5, "10.00")
	inactive := f.product(t, "HIDDEN", 5, "10.00")
	require.NoError(t, f.db.Model(&models.Product{}).Where("id = ?", inactive.ID).Update("is_active", false).Error)

	cases := []struct {
		name  string
		input CreateOrderInput
		want  error
	}{
		{"missing user", CreateOrderInput{Items: []CreateOrderItem{{ProductID: product.ID, Quantity: 1}}}, ErrValidation},
		{"empty items", CreateOrderInput{UserID: 1}, ErrValidation},
		{"zero quantity", CreateOrderInput{UserID: 1, Items: []CreateOrderItem{{ProductID: product.ID}}}, ErrValidation},
		{"unknown product", CreateOrderInput{UserID: 1, Items: []CreateOrderItem{{ProductID: 9999, Quantity: 1}}}, ErrNotFound},
		{"inactive product", CreateOrderInput{UserID: 1, Items: []CreateOrderItem{{ProductID: inactive.ID, Quantity: 1}}}, ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.orders.CreateOrder(context.Background(), tc.input)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Zero(t, f.countRows(t, &models.Order{}))
}

func TestConcurrentCheckoutOnLastUnit(t *testing.T) {
	f := newServiceFixture(t)
	product := f.product(t, "LAST", 1, "15.00")

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		shortages atomic.Int32
		others    = make(chan error, 2)
	)
	start := make(chan struct{})
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(userID uint) {
			defer wg.Done()
			<-start
			_, err := f.orders.CreateOrder(context.Background(), CreateOrderInput{
				UserID: userID,
				Items:  []CreateOrderItem{{ProductID: product.ID, Quantity: 1}},
			})
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, ErrInsufficientStock):
				shortages.Add(1)
			default:
				others <- err
			}
		}(uint(i + 1))
	}
	close(start)
	wg.Wait()
	close(others)

	for err := range others {
		t.Fatalf("unexpected error: %v", err)
	}
	assert.EqualValues(t, 1, successes.Load())
	assert.EqualValues(t, 1, shortages.Load())
	assert.Equal(t, 0, f.stockOf(t, product.ID))

	rows := f.transactions(t, product.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, models.TransactionTypeOut, rows[0].TransactionType)
	f.assertReconciled(t, product.ID)
}

func TestConcurrentCheckoutNeverOversells(t *testing.T) {
	f := newServiceFixture(t)
	product := f.product(t, "HOT", 5, "3.00")

	const buyers = 12
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(userID uint) {
			defer wg.Done()
			_, err := f.orders.CreateOrder(context.Background(), CreateOrderInput{
				UserID: userID,
				Items:  []CreateOrderItem{{ProductID: product.ID, Quantity: 1}},
			})
			if err == nil {
				successes.Add(1)
				return
			}
			if !errors.Is(err, ErrInsufficientStock) {
				t.Errorf("unexpected error: %v", err)
			}
		}(uint(i + 1))
	}
	wg.Wait()

	assert.EqualValues(t, 5, successes.Load())
	assert.Equal(t, 0, f.stockOf(t, product.ID))
	assert.Len(t, f.transactions(t, product.ID), 5)
	f.assertReconciled(t, product.ID)
}

func TestOrderNumbersUniqueUnderCollisionStress(t *testing.T) {
	f := newServiceFixture(t)
	product := f.product(t, "BULK", 1000, "1.00")

	// 随机段只有 40 个取值，迫使生成器反复碰撞
	var counter atomic.Int64
	f.orders.numbers.now = f.clock.Now
	f.orders.numbers.random = func() string {
		return fmt.Sprintf("%06d", counter.Add(1)%40)
	}
	f.orders.numbers.maxAttempts = 64

	const total = 30
	var wg sync.WaitGroup
	errs := make(chan error, total)
	for i := 0; i < total; i++ {
		wg.Add(1)
		go func(userID uint) {
			defer wg.Done()
			if _, err := f.orders.CreateOrder(context.Background(), CreateOrderInput{
				UserID: userID,
				Items:  []CreateOrderItem{{ProductID: product.ID, Quantity: 1}},
			}); err != nil {
				errs <- err
			}
		}(uint(i + 1))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("create order failed: %v", err)
	}

	var numbers []string
	require.NoError(t, f.db.Model(&models.Order{}).Pluck("order_no", &numbers).Error)
	require.Len(t, numbers, total)
	seen := make(map[string]struct{}, total)
	for _, no := range numbers {
		_, dup := seen[no]
		require.False(t, dup, "duplicate order number %s", no)
		seen[no] = struct{}{}
	}
	assert.Equal(t, 1000-total, f.stockOf(t, product.ID))
	f.assertReconciled(t, product.ID)
}

func TestCreateOrderExhaustedOrderNumbersIsConflict(t *testing.T) {
	f := newServiceFixture(t)
	product := f.product(t, "FIXED", 10, "1.00")
	f.orders.numbers.now = f.clock.Now
	f.orders.numbers.random = func() string { return "000001" }

	first := f.placeOrder(t, 1, CreateOrderItem{ProductID: product.ID, Quantity: 1})
	_, err := f.orders.CreateOrder(context.Background(), CreateOrderInput{
		UserID: 2,
		Items:  []CreateOrderItem{{ProductID: product.ID, Quantity: 1}},
	})

	var conflict *ConcurrencyConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, defaultMaxConflictRetries, conflict.Attempts)
	assert.ErrorIs(t, err, errOrderNoExhausted)
	assert.Equal(t, 9, f.stockOf(t, product.ID))
	assert.EqualValues(t, 1, f.countRows(t, &models.Order{}))
	assert.NotEmpty(t, first.OrderNo)
}

func TestCancelPendingOrderRestoresEveryItem(t *testing.T) {
	f := newServiceFixture(t)
	a := f.product(t, "A", 10, "4.00")
	b := f.product(t, "B", 10, "6.00")
	order := f.placeOrder(t, 3,
		CreateOrderItem{ProductID: a.ID, Quantity: 3},
		CreateOrderItem{ProductID: b.ID, Quantity: 1},
	)
	require.Equal(t, 7, f.stockOf(t, a.ID))
	require.Equal(t, 9, f.stockOf(t, b.ID))

	cancelled, err := f.orders.CancelOrder(context.Background(), order.ID, UserActor(3), "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, constants.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, "changed my mind", cancelled.CancelReason)
	assert.Equal(t, "user:3", cancelled.CanceledBy)
	assert.NotNil(t, cancelled.CanceledAt)
	assert.Nil(t, cancelled.NextActionAt)

	assert.Equal(t, 10, f.stockOf(t, a.ID))
	assert.Equal(t, 10, f.stockOf(t, b.ID))
	for _, product := range []*models.Product{a, b} {
		rows := f.transactions(t, product.ID)
		require.Len(t, rows, 2)
		assert.Equal(t, models.TransactionTypeReturn, rows[0].TransactionType)
		assert.Equal(t, models.ReferenceTypeOrder, rows[0].ReferenceType)
		require.NotNil(t, rows[0].ReferenceID)
		assert.Equal(t, order.ID, *rows[0].ReferenceID)
	}
	assert.Equal(t, 3, f.transactions(t, a.ID)[0].Quantity)
	assert.Equal(t, 1, f.transactions(t, b.ID)[0].Quantity)
	assert.Contains(t, f.tasks.notifyEvents(), "order_cancelled")
	assert.Empty(t, f.tasks.refunds)
	f.assertReconciled(t, a.ID, b.ID)
}

func TestCancelTwiceDoesNotRestoreTwice(t *testing.T) {
	f := newServiceFixture(t)
	product := f.product(t, "TWICE", 5, "2.00")
	order := f.placeOrder(t, 1, CreateOrderItem{ProductID: product.ID, Quantity: 2})

	_, err := f.orders.CancelOrder(context.Background(), order.ID, AdminActor(9), "")
	require.NoError(t, err)
	_, err = f.orders.CancelOrder(context.Background(), order.ID, AdminActor(9), "")

	var transitionErr *InvalidStateTransitionError
	require.ErrorAs(t, err, &transitionErr)
	assert.Equal(t, constants.OrderStatusCancelled, transitionErr.From)
	assert.Equal(t, constants.OrderStatusCancelled, transitionErr.To)
	assert.Equal(t, 5, f.stockOf(t, product.ID))
	assert.Len(t, f.transactions(t, product.ID), 2)
	f.assertReconciled(t, product.ID)
}

func TestCancelShippedOrderFails(t *testing.T) {
	f := newServiceFixture(t)
	product := f.product(t, "SHIP", 5, "2.00")
	order := f.placeOrder(t, 1, CreateOrderItem{ProductID: product.ID, Quantity: 2})
	advanceTo(t, f, order.ID, constants.OrderStatusShipped)

	_, err := f.orders.CancelOrder(context.Background(), order.ID, UserActor(1), "too late")

	var transitionErr *InvalidStateTransitionError
	require.ErrorAs(t, err, &transitionErr)
	assert.Equal(t, constants.OrderStatusShipped, transitionErr.From)
	assert.Equal(t, constants.OrderStatusCancelled, transitionErr.To)
	assert.Equal(t, 3, f.stockOf(t, product.ID))
	assert.Len(t, f.transactions(t, product.ID), 1)

	current, err := f.orderRepo.GetByID(order.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.OrderStatusShipped, current.Status)
}

func TestCancelOtherUsersOrderIsNotFound(t *testing.T) {
	f := newServiceFixture(t)
	product := f.product(t, "OWN", 5, "2.00")
	order := f.placeOrder(t, 1, CreateOrderItem{ProductID: product.ID, Quantity: 1})

	_, err := f.orders.CancelOrder(context.Background(), order.ID, UserActor(2), "")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 4, f.stockOf(t, product.ID))

	_, err = f.orders.CancelOrder(context.Background(), 9999, AdminActor(1), "")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCancelPaidOrderEnqueuesGatewayRefund(t *testing.T) {
	f := newServiceFixture(t)
	product := f.product(t, "PAID", 5, "30.00")
	order := f.placeOrder(t, 1, CreateOrderItem{ProductID: product.ID, Quantity: 1})
	_, err := f.orders.ConfirmPayment(context.Background(), order.ID, "pi_test")
	require.NoError(t, err)

	cancelled, err := f.orders.CancelOrder(context.Background(), order.ID, SystemActor(), "")
	require.NoError(t, err)
	assert.Equal(t, constants.PaymentStatusRefunded, cancelled.PaymentStatus)
	assert.Equal(t, "system", cancelled.CanceledBy)
	require.Len(t, f.tasks.refunds, 1)
	assert.Equal(t, "pi_test", f.tasks.refunds[0].PaymentRef)
	assert.Equal(t, order.Total.String(), f.tasks.refunds[0].Amount)
}

func TestRefundAboveTotalIsValidationError(t *testing.T) {
	f := newServiceFixture(t)
	product := f.product(t, "REFUND", 5, "20.00")
	order := f.placeOrder(t, 1, CreateOrderItem{ProductID: product.ID, Quantity: 1})
	advanceTo(t, f, order.ID, constants.OrderStatusDelivered)

	over := order.Total.Decimal.Add(decimal.RequireFromString("0.01"))
	_, err := f.orders.Refund(context.Background(), RefundInput{OrderID: order.ID, Amount: over, Reason: "broken"})

	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "amount", validation.Field)
	current, err := f.orderRepo.GetByID(order.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.OrderStatusDelivered, current.Status)
	assert.Nil(t, current.RefundAmount)
}

func TestRefundValidation(t *testing.T) {
	f := newServiceFixture(t)
	product := f.product(t, "RV", 5, "20.00")
	order := f.placeOrder(t, 1, CreateOrderItem{ProductID: product.ID, Quantity: 1})

	_, err := f.orders.Refund(context.Background(), RefundInput{OrderID: 9999, Amount: decimal.NewFromInt(1), Reason: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.orders.Refund(context.Background(), RefundInput{OrderID: order.ID, Amount: decimal.Zero, Reason: "x"})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.orders.Refund(context.Background(), RefundInput{OrderID: order.ID, Amount: decimal.NewFromInt(1), Reason: "  "})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.orders.Refund(context.Background(), RefundInput{OrderID: order.ID, Amount: decimal.NewFromInt(1), Reason: "early"})
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
}

func TestRefundDeliveredOrderKeepsStock(t *testing.T) {
	f := newServiceFixture(t)
	product := f.product(t, "RD", 5, "20.00")
	order := f.placeOrder(t, 1, CreateOrderItem{ProductID: product.ID, Quantity: 2})
	_, err := f.orders.ConfirmPayment(context.Background(), order.ID, "pi_rd")
	require.NoError(t, err)
	advanceTo(t, f, order.ID, constants.OrderStatusDelivered)

	refunded, err := f.orders.Refund(context.Background(), RefundInput{
		OrderID: order.ID,
		Amount:  decimal.RequireFromString("10.00"),
		Reason:  "partial damage",
	})
	require.NoError(t, err)
	assert.Equal(t, constants.OrderStatusRefunded, refunded.Status)
	assert.Equal(t, constants.PaymentStatusRefunded, refunded.PaymentStatus)
	require.NotNil(t, refunded.RefundAmount)
	assert.Equal(t, "10.00", refunded.RefundAmount.String())
	assert.Equal(t, "partial damage", refunded.RefundReason)
	assert.NotNil(t, refunded.RefundedAt)
	assert.Equal(t, 3, f.stockOf(t, product.ID))
	assert.Len(t, f.transactions(t, product.ID), 1)
	require.Len(t, f.tasks.refunds, 1)
	assert.Equal(t, "10.00", f.tasks.refunds[0].Amount)
}

func TestRefundShippedRequiresPayment(t *testing.T) {
	f := newServiceFixture(t)
	product := f.product(t, "RS", 5, "20.00")
	unpaid := f.placeOrder(t, 1, CreateOrderItem{ProductID: product.ID, Quantity: 1})
	advanceTo(t, f, unpaid.ID, constants.OrderStatusShipped)

	_, err := f.orders.Refund(context.Background(), RefundInput{OrderID: unpaid.ID, Amount: decimal.NewFromInt(1), Reason: "lost"})
	var transitionErr *InvalidStateTransitionError
	require.ErrorAs(t, err, &transitionErr)
	assert.Equal(t, constants.OrderStatusShipped, transitionErr.From)

	paid := f.placeOrder(t, 1, CreateOrderItem{ProductID: product.ID, Quantity: 1})
	_, err = f.orders.ConfirmPayment(context.Background(), paid.ID, "pi_rs")
	require.NoError(t, err)
	advanceTo(t, f, paid.ID, constants.OrderStatusShipped)

	refunded, err := f.orders.Refund(context.Background(), RefundInput{OrderID: paid.ID, Amount: paid.Total.Decimal, Reason: "lost"})
	require.NoError(t, err)
	assert.Equal(t, constants.OrderStatusRefunded, refunded.Status)
}

func TestConfirmPayment(t *testing.T) {
	f := newServiceFixture(t)
	product := f.product(t, "PAY", 5, "20.00")
	order := f.placeOrder(t, 1, CreateOrderItem{ProductID: product.ID, Quantity: 1})

	confirmed, err := f.orders.ConfirmPayment(context.Background(), order.ID, "pi_pay")
	require.NoError(t, err)
	assert.Equal(t, constants.OrderStatusConfirmed, confirmed.Status)
	assert.Equal(t, constants.PaymentStatusPaid, confirmed.PaymentStatus)
	assert.Equal(t, "pi_pay", confirmed.PaymentRef)
	assert.NotNil(t, confirmed.ConfirmedAt)

	again, err := f.orders.ConfirmPayment(context.Background(), order.ID, "pi_other")
	require.NoError(t, err)
	assert.Equal(t, "pi_pay", again.PaymentRef)

	_, err = f.orders.CancelOrder(context.Background(), order.ID, AdminActor(1), "")
	require.NoError(t, err)
	_, err = f.orders.ConfirmPayment(context.Background(), order.ID, "pi_late")
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
}

func TestAttachPaymentIntent(t *testing.T) {
	f := newServiceFixture(t)
	product := f.product(t, "PI", 5, "20.00")
	order := f.placeOrder(t, 1, CreateOrderItem{ProductID: product.ID, Quantity: 1})

	require.ErrorIs(t, f.orders.AttachPaymentIntent(context.Background(), order.ID, ""), ErrValidation)
	require.ErrorIs(t, f.orders.AttachPaymentIntent(context.Background(), 9999, "pi_x"), ErrNotFound)
	require.NoError(t, f.orders.AttachPaymentIntent(context.Background(), order.ID, "pi_x"))

	current, err := f.orderRepo.GetByID(order.ID)
	require.NoError(t, err)
	assert.Equal(t, "pi_x", current.PaymentRef)
	assert.Equal(t, constants.PaymentStatusUnpaid, current.PaymentStatus)
}

func TestGetOrderReadsThroughCache(t *testing.T) {
	f := newServiceFixture(t)
	product := f.product(t, "CACHE", 5, "20.00")
	order := f.placeOrder(t, 1, CreateOrderItem{ProductID: product.ID, Quantity: 1})

	got, err := f.orders.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.OrderNo, got.OrderNo)
	assert.True(t, f.store.has(cache.OrderKey(order.ID)))

	// 绕过服务直接改库，缓存命中时仍返回旧值
	require.NoError(t, f.db.Model(&models.Order{}).Where("id = ?", order.ID).Update("notes", "changed").Error)
	cached, err := f.orders.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Empty(t, cached.Notes)

	_, err = f.orders.GetOrder(context.Background(), 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOrderQueries(t *testing.T) {
	f := newServiceFixture(t)
	product := f.product(t, "Q", 50, "1.00")
	for i := 0; i < 3; i++ {
		f.placeOrder(t, 1, CreateOrderItem{ProductID: product.ID, Quantity: 1})
	}
	other := f.placeOrder(t, 2, CreateOrderItem{ProductID: product.ID, Quantity: 1})

	mine, total, err := f.orders.ListUserOrders(1, "", 1, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, mine, 2)

	_, err = f.orders.GetOrderForUser(other.ID, 1)
	assert.ErrorIs(t, err, ErrNotFound)
	got, err := f.orders.GetOrderForUser(other.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, other.ID, got.ID)

	_, _, err = f.orders.ListUserOrders(1, "bogus", 1, 10)
	assert.ErrorIs(t, err, ErrValidation)

	recent, err := f.orders.RecentOrders(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, recent, 4)
	assert.True(t, f.store.has(constants.CacheKeyOrdersRecent))
}

// advanceTo 通过手动推进把订单推到目标状态
func advanceTo(t *testing.T, f *serviceFixture, orderID uint, target string) {
	t.Helper()
	for i := 0; i < 5; i++ {
		order, err := f.orderRepo.GetByID(orderID)
		require.NoError(t, err)
		if order.Status == target {
			return
		}
		_, err = f.progression.AdvanceOrder(context.Background(), orderID)
		require.NoError(t, err)
	}
	t.Fatalf("order %d did not reach %s", orderID, target)
}
