package service

import (
	"testing"
	"time"

	"github.com/shopledger/internal/constants"
	"github.com/shopledger/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestCanTransitionTable(t *testing.T) {
	allowed := [][2]string{
		{constants.OrderStatusPending, constants.OrderStatusConfirmed},
		{constants.OrderStatusPending, constants.OrderStatusProcessing},
		{constants.OrderStatusPending, constants.OrderStatusCancelled},
		{constants.OrderStatusConfirmed, constants.OrderStatusProcessing},
		{constants.OrderStatusConfirmed, constants.OrderStatusShipped},
		{constants.OrderStatusConfirmed, constants.OrderStatusCancelled},
		{constants.OrderStatusProcessing, constants.OrderStatusShipped},
		{constants.OrderStatusProcessing, constants.OrderStatusCancelled},
		{constants.OrderStatusShipped, constants.OrderStatusDelivered},
		{constants.OrderStatusShipped, constants.OrderStatusRefunded},
		{constants.OrderStatusDelivered, constants.OrderStatusRefunded},
	}
	for _, pair := range allowed {
		if !CanTransition(pair[0], pair[1]) {
			t.Fatalf("expected %s -> %s to be allowed", pair[0], pair[1])
		}
	}

	denied := [][2]string{
		{constants.OrderStatusShipped, constants.OrderStatusCancelled},
		{constants.OrderStatusDelivered, constants.OrderStatusCancelled},
		{constants.OrderStatusPending, constants.OrderStatusRefunded},
		{constants.OrderStatusCancelled, constants.OrderStatusPending},
		{constants.OrderStatusRefunded, constants.OrderStatusDelivered},
		{constants.OrderStatusPending, constants.OrderStatusPending},
		{constants.OrderStatusDelivered, constants.OrderStatusShipped},
	}
	for _, pair := range denied {
		if CanTransition(pair[0], pair[1]) {
			t.Fatalf("expected %s -> %s to be denied", pair[0], pair[1])
		}
	}
}

func TestIsTerminalOrderStatus(t *testing.T) {
	if !IsTerminalOrderStatus(constants.OrderStatusCancelled) || !IsTerminalOrderStatus(constants.OrderStatusRefunded) {
		t.Fatalf("cancelled and refunded should be terminal")
	}
	if IsTerminalOrderStatus(constants.OrderStatusDelivered) {
		t.Fatalf("delivered should not be terminal")
	}
}

func TestTransitionStampsTimestampsAndSchedule(t *testing.T) {
	f := newServiceFixture(t)
	product := f.product(t, "SM", 5, "1.00")
	order := f.placeOrder(t, 1, CreateOrderItem{ProductID: product.ID, Quantity: 1})

	later := f.clock.Now().Add(time.Minute)
	f.clock.Set(later)
	err := f.db.Transaction(func(tx *gorm.DB) error {
		return f.machine.Transition(tx, TransitionInput{
			OrderID: order.ID,
			From:    constants.OrderStatusPending,
			To:      constants.OrderStatusConfirmed,
		})
	})
	require.NoError(t, err)

	current, err := f.orderRepo.GetByID(order.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.OrderStatusConfirmed, current.Status)
	require.NotNil(t, current.ConfirmedAt)
	assert.True(t, current.ConfirmedAt.Equal(later))
	require.NotNil(t, current.NextActionAt)
	assert.True(t, current.NextActionAt.Equal(later.Add(f.policy.ConfirmDelay)))
}

func TestTransitionWithStaleFromReportsActualStatus(t *testing.T) {
	f := newServiceFixture(t)
	product := f.product(t, "STALE", 5, "1.00")
	order := f.placeOrder(t, 1, CreateOrderItem{ProductID: product.ID, Quantity: 1})
	advanceTo(t, f, order.ID, constants.OrderStatusProcessing)

	// 调用方持有的快照仍是 pending
	err := f.db.Transaction(func(tx *gorm.DB) error {
		return f.machine.Transition(tx, TransitionInput{
			OrderID: order.ID,
			From:    constants.OrderStatusPending,
			To:      constants.OrderStatusCancelled,
		})
	})

	var transitionErr *InvalidStateTransitionError
	require.ErrorAs(t, err, &transitionErr)
	assert.Equal(t, constants.OrderStatusProcessing, transitionErr.From)
	assert.Equal(t, constants.OrderStatusCancelled, transitionErr.To)
}

func TestTransitionRespectsDueBefore(t *testing.T) {
	f := newServiceFixture(t)
	product := f.product(t, "DUE", 5, "1.00")
	order := f.placeOrder(t, 1, CreateOrderItem{ProductID: product.ID, Quantity: 1})

	early := f.clock.Now().Add(time.Minute)
	err := f.db.Transaction(func(tx *gorm.DB) error {
		return f.machine.Transition(tx, TransitionInput{
			OrderID:   order.ID,
			From:      constants.OrderStatusPending,
			To:        constants.OrderStatusConfirmed,
			DueBefore: &early,
		})
	})
	assert.ErrorIs(t, err, ErrInvalidStateTransition)

	current, err := f.orderRepo.GetByID(order.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.OrderStatusPending, current.Status)
}

func TestTransitionShippedToRefundedRequiresPaid(t *testing.T) {
	f := newServiceFixture(t)
	product := f.product(t, "PAIDRULE", 5, "1.00")
	order := f.placeOrder(t, 1, CreateOrderItem{ProductID: product.ID, Quantity: 1})
	advanceTo(t, f, order.ID, constants.OrderStatusShipped)

	refund := func() error {
		return f.db.Transaction(func(tx *gorm.DB) error {
			return f.machine.Transition(tx, TransitionInput{
				OrderID: order.ID,
				From:    constants.OrderStatusShipped,
				To:      constants.OrderStatusRefunded,
			})
		})
	}
	require.ErrorIs(t, refund(), ErrInvalidStateTransition)

	require.NoError(t, f.db.Model(&models.Order{}).Where("id = ?", order.ID).
		Update("payment_status", constants.PaymentStatusPaid).Error)
	require.NoError(t, refund())

	current, err := f.orderRepo.GetByID(order.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.OrderStatusRefunded, current.Status)
	assert.Nil(t, current.NextActionAt)
	assert.NotNil(t, current.RefundedAt)
}

func TestLockMissingOrder(t *testing.T) {
	f := newServiceFixture(t)
	err := f.db.Transaction(func(tx *gorm.DB) error {
		_, err := f.machine.Lock(tx, 4242)
		return err
	})
	assert.ErrorIs(t, err, ErrNotFound)
}
