package service

import (
	"context"
	"errors"
	"testing"

	"github.com/shopledger/internal/models"
	"github.com/shopledger/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestCartAddItemAccumulatesWithinStock(t *testing.T) {
	f := newServiceFixture(t)
	product := f.product(t, "CART-ACC", 5, "10.00")

	_, err := f.carts.AddItem(1, product.ID, 2)
	require.NoError(t, err)
	item, err := f.carts.AddItem(1, product.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 4, item.Quantity)

	_, err = f.carts.AddItem(1, product.ID, 2)
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 6, stockErr.Requested)
	assert.Equal(t, 5, stockErr.Available)

	stored, err := f.cartRepo.GetByUserAndProduct(1, product.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, 4, stored.Quantity)
	assert.Equal(t, int64(1), f.countRows(t, &models.CartItem{}))
}

func TestCartAddItemRejectsUnavailableProducts(t *testing.T) {
	f := newServiceFixture(t)
	product := f.product(t, "CART-OFF", 5, "10.00")
	require.NoError(t, f.db.Model(&models.Product{}).Where("id = ?", product.ID).Update("is_active", false).Error)

	_, err := f.carts.AddItem(1, product.ID, 1)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.carts.AddItem(1, 9999, 1)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.carts.AddItem(1, product.ID, 0)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.carts.AddItem(0, product.ID, 1)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Zero(t, f.countRows(t, &models.CartItem{}))
}

func TestCartUpdateAndRemoveItem(t *testing.T) {
	f := newServiceFixture(t)
	product := f.product(t, "CART-UPD", 5, "10.00")

	_, err := f.carts.UpdateItem(1, product.ID, 2)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.carts.AddItem(1, product.ID, 1)
	require.NoError(t, err)
	item, err := f.carts.UpdateItem(1, product.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, item.Quantity)

	_, err = f.carts.UpdateItem(1, product.ID, 10)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	_, err = f.carts.UpdateItem(1, product.ID, -1)
	assert.ErrorIs(t, err, ErrValidation)

	require.NoError(t, f.carts.RemoveItem(1, product.ID))
	err = f.carts.RemoveItem(1, product.ID)
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "cart_item", notFound.Resource)
}

func TestCartGetDropsUnavailableProducts(t *testing.T) {
	f := newServiceFixture(t)
	kept := f.product(t, "CART-KEEP", 5, "10.00")
	gone := f.product(t, "CART-GONE", 5, "10.00")
	_, err := f.carts.AddItem(1, kept.ID, 2)
	require.NoError(t, err)
	_, err = f.carts.AddItem(1, gone.ID, 1)
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&models.Product{}).Where("id = ?", gone.ID).Update("is_active", false).Error)

	view, err := f.carts.Get(1)
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, kept.ID, view.Items[0].ProductID)
	assert.Equal(t, "20.00", view.Items[0].LineTotal.String())
	assert.True(t, view.Items[0].InStock)
	assert.Equal(t, 2, view.TotalItems)
	assert.Equal(t, "20.00", view.Subtotal.String())
	assert.Equal(t, int64(1), f.countRows(t, &models.CartItem{}))
}

func TestCartLineFlagsQuantityAboveCurrentStock(t *testing.T) {
	f := newServiceFixture(t)
	product := f.product(t, "CART-LOW", 5, "10.00")
	_, err := f.carts.AddItem(1, product.ID, 4)
	require.NoError(t, err)
	f.placeOrder(t, 2, CreateOrderItem{ProductID: product.ID, Quantity: 3})

	view, err := f.carts.Get(1)
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, 2, view.Items[0].StockQuantity)
	assert.False(t, view.Items[0].InStock)
}

func TestCartSummaryUsesOrderPricing(t *testing.T) {
	f := newServiceFixture(t)
	widget := f.product(t, "CART-W", 10, "20.00")
	gadget := f.product(t, "CART-G", 5, "5.50")
	_, err := f.carts.AddItem(1, widget.ID, 2)
	require.NoError(t, err)
	_, err = f.carts.AddItem(1, gadget.ID, 1)
	require.NoError(t, err)

	summary, err := f.carts.Summary(1)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.ItemCount)
	assert.Equal(t, 3, summary.TotalItems)
	assert.Equal(t, "45.50", summary.Subtotal.String())
	assert.Equal(t, "4.55", summary.Tax.String())
	assert.Equal(t, "10.00", summary.Shipping.String())
	assert.Equal(t, "60.05", summary.Total.String())

	order := f.placeOrder(t, 1,
		CreateOrderItem{ProductID: widget.ID, Quantity: 2},
		CreateOrderItem{ProductID: gadget.ID, Quantity: 1},
	)
	assert.Equal(t, summary.Total.String(), order.Total.String())
}

func TestCartClear(t *testing.T) {
	f := newServiceFixture(t)
	product := f.product(t, "CART-CLR", 5, "10.00")
	_, err := f.carts.AddItem(1, product.ID, 1)
	require.NoError(t, err)

	removed, err := f.carts.Clear(1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
	removed, err = f.carts.Clear(1)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestCreateOrderClearsOnlyBuyersCart(t *testing.T) {
	f := newServiceFixture(t)
	product := f.product(t, "CART-ORD", 10, "10.00")
	_, err := f.carts.AddItem(1, product.ID, 2)
	require.NoError(t, err)
	_, err = f.carts.AddItem(2, product.ID, 1)
	require.NoError(t, err)

	f.placeOrder(t, 1, CreateOrderItem{ProductID: product.ID, Quantity: 2})

	mine, err := f.cartRepo.ListByUser(1)
	require.NoError(t, err)
	assert.Empty(t, mine)
	theirs, err := f.cartRepo.ListByUser(2)
	require.NoError(t, err)
	assert.Len(t, theirs, 1)
}

func TestCreateOrderKeepsCartWhenCheckoutFails(t *testing.T) {
	f := newServiceFixture(t)
	product := f.product(t, "CART-FAIL", 3, "10.00")
	_, err := f.carts.AddItem(1, product.ID, 3)
	require.NoError(t, err)

	_, err = f.orders.CreateOrder(context.Background(), CreateOrderInput{
		UserID: 1,
		Items:  []CreateOrderItem{{ProductID: product.ID, Quantity: 4}},
	})
	require.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, int64(1), f.countRows(t, &models.CartItem{}))
}

type failingClearCartRepo struct {
	repository.CartRepository
	err error
}

func (r failingClearCartRepo) WithTx(tx *gorm.DB) repository.CartRepository {
	return failingClearCartRepo{CartRepository: r.CartRepository.WithTx(tx), err: r.err}
}

func (r failingClearCartRepo) ClearByUser(uint) (int64, error) {
	return 0, r.err
}

func TestCreateOrderRollsBackWhenCartClearFails(t *testing.T) {
	f := newServiceFixture(t)
	product := f.product(t, "CART-TX", 5, "10.00")
	_, err := f.carts.AddItem(1, product.ID, 2)
	require.NoError(t, err)

	clearErr := errors.New("cart clear failed")
	f.orders.cartRepo = failingClearCartRepo{CartRepository: f.cartRepo, err: clearErr}

	_, err = f.orders.CreateOrder(context.Background(), CreateOrderInput{
		UserID: 1,
		Items:  []CreateOrderItem{{ProductID: product.ID, Quantity: 2}},
	})
	require.ErrorIs(t, err, clearErr)

	assert.Equal(t, 5, f.stockOf(t, product.ID))
	assert.Zero(t, f.countRows(t, &models.Order{}))
	assert.Zero(t, f.countRows(t, &models.InventoryTransaction{}))
	assert.Equal(t, int64(1), f.countRows(t, &models.CartItem{}))
	f.assertReconciled(t, product.ID)
}
