package service

import (
	"time"

	"github.com/shopledger/internal/constants"
	"github.com/shopledger/internal/models"
	"github.com/shopledger/internal/repository"

	"gorm.io/gorm"
)

type transitionRule struct {
	requiresPaid bool
}

// orderTransitions 订单状态迁移表，未列出的迁移一律拒绝
var orderTransitions = map[string]map[string]transitionRule{
	constants.OrderStatusPending: {
		constants.OrderStatusConfirmed:  {},
		constants.OrderStatusProcessing: {},
		constants.OrderStatusCancelled:  {},
	},
	constants.OrderStatusConfirmed: {
		constants.OrderStatusProcessing: {},
		constants.OrderStatusShipped:    {},
		constants.OrderStatusCancelled:  {},
	},
	constants.OrderStatusProcessing: {
		constants.OrderStatusShipped:   {},
		constants.OrderStatusCancelled: {},
	},
	constants.OrderStatusShipped: {
		constants.OrderStatusDelivered: {},
		constants.OrderStatusRefunded:  {requiresPaid: true},
	},
	constants.OrderStatusDelivered: {
		constants.OrderStatusRefunded: {},
	},
}

// IsTerminalOrderStatus 终态订单不再迁移
func IsTerminalOrderStatus(status string) bool {
	return status == constants.OrderStatusCancelled || status == constants.OrderStatusRefunded
}

// CanTransition 判断迁移是否在表内（不含支付状态约束）
func CanTransition(from, to string) bool {
	if from == to {
		return false
	}
	_, ok := orderTransitions[from][to]
	return ok
}

// TransitionInput 状态迁移输入
// From 为调用方读到的持久化状态，作为更新的前置条件
// Now 为空时取状态机时钟
type TransitionInput struct {
	OrderID   uint
	From      string
	To        string
	Updates   map[string]interface{}
	DueBefore *time.Time
	Now       time.Time
}

// OrderStateMachine 订单状态机
type OrderStateMachine struct {
	orderRepo repository.OrderRepository
	policy    ProgressionPolicy
	now       func() time.Time
}

// NewOrderStateMachine 创建订单状态机
func NewOrderStateMachine(orderRepo repository.OrderRepository, policy ProgressionPolicy) *OrderStateMachine {
	return &OrderStateMachine{
		orderRepo: orderRepo,
		policy:    policy,
		now:       time.Now,
	}
}

// Lock 在事务内加锁读取订单
func (m *OrderStateMachine) Lock(tx *gorm.DB, orderID uint) (*models.Order, error) {
	order, err := m.orderRepo.WithTx(tx).GetByIDForUpdate(orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, &NotFoundError{Resource: "order", ID: orderID}
	}
	return order, nil
}

// Transition 在调用方事务内执行带前置状态校验的迁移
func (m *OrderStateMachine) Transition(tx *gorm.DB, input TransitionInput) error {
	if input.From == input.To {
		return &InvalidStateTransitionError{From: input.From, To: input.To}
	}
	rule, ok := orderTransitions[input.From][input.To]
	if !ok {
		return &InvalidStateTransitionError{From: input.From, To: input.To}
	}

	now := input.Now
	if now.IsZero() {
		now = m.now()
	}
	updates := make(map[string]interface{}, len(input.Updates)+4)
	for k, v := range input.Updates {
		updates[k] = v
	}
	updates["status"] = input.To
	updates["updated_at"] = now
	if column := transitionTimestampColumn(input.To); column != "" {
		if _, ok := updates[column]; !ok {
			updates[column] = now
		}
	}
	if next := m.policy.NextActionAt(input.To, now); next != nil {
		updates["next_action_at"] = *next
	} else {
		updates["next_action_at"] = nil
	}

	guard := repository.OrderStatusGuard{
		OrderID:   input.OrderID,
		From:      input.From,
		DueBefore: input.DueBefore,
	}
	if rule.requiresPaid {
		guard.PaymentStatus = constants.PaymentStatusPaid
	}

	orderRepo := m.orderRepo.WithTx(tx)
	affected, err := orderRepo.UpdateStatusFrom(guard, updates)
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}
	current, found, err := orderRepo.GetStatus(input.OrderID)
	if err != nil {
		return err
	}
	if !found {
		return &NotFoundError{Resource: "order", ID: input.OrderID}
	}
	return &InvalidStateTransitionError{From: current, To: input.To}
}

func transitionTimestampColumn(status string) string {
	switch status {
	case constants.OrderStatusConfirmed:
		return "confirmed_at"
	case constants.OrderStatusShipped:
		return "shipped_at"
	case constants.OrderStatusDelivered:
		return "delivered_at"
	case constants.OrderStatusCancelled:
		return "canceled_at"
	case constants.OrderStatusRefunded:
		return "refunded_at"
	default:
		return ""
	}
}
