package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopledger/internal/cache"
	"github.com/shopledger/internal/config"
	"github.com/shopledger/internal/constants"
	"github.com/shopledger/internal/logger"
	"github.com/shopledger/internal/models"
	"github.com/shopledger/internal/queue"
	"github.com/shopledger/internal/repository"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const defaultMaxOrderItems = 50

// orderTaskEnqueuer 订单相关的异步任务投递（queue.Client 实现）
type orderTaskEnqueuer interface {
	EnqueueOrderStatusNotify(payload queue.OrderStatusNotifyPayload, opts ...asynq.Option) error
	EnqueueOrderPaymentIntent(payload queue.OrderPaymentIntentPayload, opts ...asynq.Option) error
	EnqueueOrderPaymentRefund(payload queue.OrderPaymentRefundPayload, opts ...asynq.Option) error
}

// Actor 订单操作方
type Actor struct {
	Type string
	ID   uint
}

// UserActor 用户本人
func UserActor(userID uint) Actor {
	return Actor{Type: constants.ActorTypeUser, ID: userID}
}

// AdminActor 后台管理员
func AdminActor(adminID uint) Actor {
	return Actor{Type: constants.ActorTypeAdmin, ID: adminID}
}

// SystemActor 系统任务
func SystemActor() Actor {
	return Actor{Type: constants.ActorTypeSystem}
}

func (a Actor) validate() error {
	switch a.Type {
	case constants.ActorTypeUser:
		if a.ID == 0 {
			return newValidationError("actor", "user id is required")
		}
		return nil
	case constants.ActorTypeAdmin, constants.ActorTypeSystem:
		return nil
	default:
		return newValidationError("actor", "unknown type %q", a.Type)
	}
}

func (a Actor) label() string {
	if a.ID == 0 {
		return a.Type
	}
	return fmt.Sprintf("%s:%d", a.Type, a.ID)
}

// OrderService 订单服务
type OrderService struct {
	db           *gorm.DB
	orderRepo    repository.OrderRepository
	productRepo  repository.ProductRepository
	cartRepo     repository.CartRepository
	ledger       *StockLedger
	stateMachine *OrderStateMachine
	policy       ProgressionPolicy
	pricing      PricingPolicy
	numbers      *orderNumberGenerator
	events       CacheEventPublisher
	tasks        orderTaskEnqueuer
	store        cache.Store
	cacheCfg     config.CacheConfig
	maxItems     int
	maxRetries   int
	now          func() time.Time
}

// OrderServiceOptions 订单服务依赖
type OrderServiceOptions struct {
	DB           *gorm.DB
	OrderRepo    repository.OrderRepository
	ProductRepo  repository.ProductRepository
	CartRepo     repository.CartRepository
	Ledger       *StockLedger
	StateMachine *OrderStateMachine
	Policy       ProgressionPolicy
	Events       CacheEventPublisher
	Tasks        orderTaskEnqueuer
	Store        cache.Store
	OrderConfig  config.OrderConfig
	CacheConfig  config.CacheConfig
}

// NewOrderService 创建订单服务
func NewOrderService(opts OrderServiceOptions) *OrderService {
	return &OrderService{
		db:           opts.DB,
		orderRepo:    opts.OrderRepo,
		productRepo:  opts.ProductRepo,
		cartRepo:     opts.CartRepo,
		ledger:       opts.Ledger,
		stateMachine: opts.StateMachine,
		policy:       opts.Policy,
		pricing:      NewPricingPolicy(opts.OrderConfig),
		numbers:      newOrderNumberGenerator(opts.OrderConfig.OrderNoMaxAttempts),
		events:       opts.Events,
		tasks:        opts.Tasks,
		store:        opts.Store,
		cacheCfg:     opts.CacheConfig,
		maxItems:     positiveInt(opts.OrderConfig.MaxItems, defaultMaxOrderItems),
		maxRetries:   positiveInt(opts.OrderConfig.MaxConflictRetries, defaultMaxConflictRetries),
		now:          time.Now,
	}
}

// CreateOrderInput 创建订单输入
type CreateOrderInput struct {
	UserID          uint
	Items           []CreateOrderItem
	ShippingAddress models.JSON
	Notes           string
}

// CreateOrderItem 创建订单项输入
type CreateOrderItem struct {
	ProductID uint
	Quantity  int
}

// CreateOrder 创建订单：预检、计价、单事务落库并扣减库存，同一事务内清空用户购物车
func (s *OrderService) CreateOrder(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	if input.UserID == 0 {
		return nil, newValidationError("user_id", "is required")
	}
	items, err := mergeCreateOrderItems(input.Items)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, newValidationError("items", "must not be empty")
	}
	if len(items) > s.maxItems {
		return nil, newValidationError("items", "at most %d distinct products per order", s.maxItems)
	}

	lines, err := s.preflight(items)
	if err != nil {
		return nil, err
	}
	quote := s.pricing.Quote(lines)
	unitCosts := make(map[uint]models.Money, len(lines))
	for _, line := range lines {
		unitCosts[line.Product.ID] = line.Product.UnitCost()
	}

	var order *models.Order
	err = runInTxWithRetryable(ctx, s.db, s.maxRetries, isOrderCreateRetryable, func(tx *gorm.DB) error {
		orderRepo := s.orderRepo.WithTx(tx)
		orderNo, err := s.numbers.Next(orderRepo.ExistsByOrderNo)
		if err != nil {
			return err
		}
		now := s.now()
		candidate := &models.Order{
			OrderNo:         orderNo,
			UserID:          input.UserID,
			Status:          constants.OrderStatusPending,
			PaymentStatus:   constants.PaymentStatusUnpaid,
			Currency:        quote.Currency,
			Subtotal:        models.NewMoneyFromDecimal(quote.Subtotal),
			Tax:             models.NewMoneyFromDecimal(quote.Tax),
			Shipping:        models.NewMoneyFromDecimal(quote.Shipping),
			Discount:        models.NewMoneyFromDecimal(quote.Discount),
			Total:           models.NewMoneyFromDecimal(quote.Total),
			ShippingAddress: input.ShippingAddress,
			Notes:           strings.TrimSpace(input.Notes),
			NextActionAt:    s.policy.NextActionAt(constants.OrderStatusPending, now),
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := orderRepo.Create(candidate, quote.freshItems()); err != nil {
			return err
		}
		orderID := candidate.ID
		userID := input.UserID
		for _, item := range candidate.Items {
			cost := unitCosts[item.ProductID]
			if _, err := s.ledger.Decrement(tx, item.ProductID, item.Quantity, StockReference{
				Type:     models.ReferenceTypeOrder,
				ID:       &orderID,
				UserID:   &userID,
				Notes:    "order " + candidate.OrderNo,
				UnitCost: &cost,
			}); err != nil {
				return err
			}
		}
		if s.cartRepo != nil {
			if _, err := s.cartRepo.WithTx(tx).ClearByUser(userID); err != nil {
				return err
			}
		}
		order = candidate
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Infow("order_created",
		"order_id", order.ID,
		"order_no", order.OrderNo,
		"user_id", order.UserID,
		"items", len(order.Items),
		"total", order.Total.String(),
	)
	s.afterOrderChanged(order)
	enqueueStatusNotify(s.tasks, order, "order_created")
	if s.tasks != nil {
		if err := s.tasks.EnqueueOrderPaymentIntent(queue.OrderPaymentIntentPayload{
			OrderID:  order.ID,
			OrderNo:  order.OrderNo,
			Amount:   order.Total.String(),
			Currency: order.Currency,
		}); err != nil {
			logger.Warnw("order_enqueue_payment_intent_failed", "order_id", order.ID, "error", err)
		}
	}
	return order, nil
}

// preflight 事务外的商品与库存预检，结果仅用于计价和快速失败
func (s *OrderService) preflight(items []CreateOrderItem) ([]pricedLine, error) {
	ids := make([]uint, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.productRepo.ListByIDs(ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]*models.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}
	lines := make([]pricedLine, 0, len(items))
	for _, item := range items {
		product, ok := byID[item.ProductID]
		if !ok || !product.IsActive {
			return nil, &NotFoundError{Resource: "product", ID: item.ProductID}
		}
		if product.StockQuantity < item.Quantity {
			return nil, &InsufficientStockError{
				ProductID: product.ID,
				Requested: item.Quantity,
				Available: product.StockQuantity,
			}
		}
		lines = append(lines, pricedLine{Product: product, Quantity: item.Quantity})
	}
	return lines, nil
}

// CancelOrder 取消订单并回补库存
func (s *OrderService) CancelOrder(ctx context.Context, orderID uint, actor Actor, reason string) (*models.Order, error) {
	if orderID == 0 {
		return nil, newValidationError("order_id", "is required")
	}
	if err := actor.validate(); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "cancelled by " + actor.Type
	}

	var before *models.Order
	err := runInTx(ctx, s.db, s.maxRetries, func(tx *gorm.DB) error {
		order, err := s.stateMachine.Lock(tx, orderID)
		if err != nil {
			return err
		}
		if actor.Type == constants.ActorTypeUser && order.UserID != actor.ID {
			return &NotFoundError{Resource: "order", ID: orderID}
		}
		updates := map[string]interface{}{
			"cancel_reason": reason,
			"canceled_by":   actor.label(),
		}
		if order.PaymentStatus == constants.PaymentStatusPaid {
			updates["payment_status"] = constants.PaymentStatusRefunded
		}
		if err := s.stateMachine.Transition(tx, TransitionInput{
			OrderID: order.ID,
			From:    order.Status,
			To:      constants.OrderStatusCancelled,
			Updates: updates,
		}); err != nil {
			return err
		}
		ref := StockReference{
			Type:  models.ReferenceTypeOrder,
			ID:    &order.ID,
			Notes: "cancel order " + order.OrderNo,
		}
		if actor.ID != 0 && actor.Type == constants.ActorTypeUser {
			ref.UserID = &actor.ID
		}
		for _, item := range order.Items {
			if _, err := s.ledger.Increment(tx, item.ProductID, item.Quantity, ref, models.TransactionTypeReturn); err != nil {
				return err
			}
		}
		before = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	updated := s.reload(before, constants.OrderStatusCancelled)
	logger.Infow("order_cancelled",
		"order_id", updated.ID,
		"order_no", updated.OrderNo,
		"actor", actor.label(),
		"restocked_items", len(before.Items),
	)
	s.afterOrderChanged(updated)
	enqueueStatusNotify(s.tasks, updated, "order_cancelled")
	if before.PaymentStatus == constants.PaymentStatusPaid {
		s.enqueueGatewayRefund(before, before.Total.Decimal, reason)
	}
	return updated, nil
}

// RefundInput 退款输入
type RefundInput struct {
	OrderID uint
	Amount  decimal.Decimal
	Reason  string
}

// Refund 已发货（已支付）或已签收订单退款，不回补库存
func (s *OrderService) Refund(ctx context.Context, input RefundInput) (*models.Order, error) {
	order, err := s.orderRepo.GetByID(input.OrderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, &NotFoundError{Resource: "order", ID: input.OrderID}
	}
	if !input.Amount.IsPositive() {
		return nil, newValidationError("amount", "must be positive")
	}
	amount := input.Amount.Round(2)
	if amount.GreaterThan(order.Total.Decimal) {
		return nil, newValidationError("amount", "%s exceeds order total %s", amount.StringFixed(2), order.Total.String())
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, newValidationError("reason", "is required")
	}

	var before *models.Order
	err = runInTx(ctx, s.db, s.maxRetries, func(tx *gorm.DB) error {
		locked, err := s.stateMachine.Lock(tx, input.OrderID)
		if err != nil {
			return err
		}
		updates := map[string]interface{}{
			"refund_amount": models.NewMoneyFromDecimal(amount),
			"refund_reason": reason,
		}
		if locked.PaymentStatus == constants.PaymentStatusPaid {
			updates["payment_status"] = constants.PaymentStatusRefunded
		}
		if err := s.stateMachine.Transition(tx, TransitionInput{
			OrderID: locked.ID,
			From:    locked.Status,
			To:      constants.OrderStatusRefunded,
			Updates: updates,
		}); err != nil {
			return err
		}
		before = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	updated := s.reload(before, constants.OrderStatusRefunded)
	logger.Infow("order_refunded",
		"order_id", updated.ID,
		"order_no", updated.OrderNo,
		"amount", amount.StringFixed(2),
		"from", before.Status,
	)
	s.enqueueGatewayRefund(before, amount, reason)
	enqueueStatusNotify(s.tasks, updated, "order_refunded")
	s.afterOrderChanged(updated)
	return updated, nil
}

// ConfirmPayment 标记订单已支付，待确认订单同时进入 confirmed
func (s *OrderService) ConfirmPayment(ctx context.Context, orderID uint, paymentRef string) (*models.Order, error) {
	if orderID == 0 {
		return nil, newValidationError("order_id", "is required")
	}
	paymentRef = strings.TrimSpace(paymentRef)

	var (
		before      *models.Order
		alreadyPaid bool
	)
	err := runInTx(ctx, s.db, s.maxRetries, func(tx *gorm.DB) error {
		order, err := s.stateMachine.Lock(tx, orderID)
		if err != nil {
			return err
		}
		if IsTerminalOrderStatus(order.Status) {
			return &InvalidStateTransitionError{From: order.Status, To: constants.OrderStatusConfirmed}
		}
		updates := map[string]interface{}{"payment_status": constants.PaymentStatusPaid}
		if paymentRef != "" {
			updates["payment_ref"] = paymentRef
		}
		affected, err := s.orderRepo.WithTx(tx).UpdatePaymentStatusFrom(order.ID, constants.PaymentStatusUnpaid, updates)
		if err != nil {
			return err
		}
		before = order
		if affected == 0 {
			alreadyPaid = true
			return nil
		}
		if order.Status != constants.OrderStatusPending {
			return nil
		}
		return s.stateMachine.Transition(tx, TransitionInput{
			OrderID: order.ID,
			From:    order.Status,
			To:      constants.OrderStatusConfirmed,
		})
	})
	if err != nil {
		return nil, err
	}

	status := before.Status
	if before.Status == constants.OrderStatusPending && !alreadyPaid {
		status = constants.OrderStatusConfirmed
	}
	updated := s.reload(before, status)
	if alreadyPaid {
		return updated, nil
	}
	logger.Infow("order_payment_confirmed",
		"order_id", updated.ID,
		"order_no", updated.OrderNo,
		"payment_ref", paymentRef,
	)
	s.afterOrderChanged(updated)
	enqueueStatusNotify(s.tasks, updated, "order_paid")
	return updated, nil
}

// AttachPaymentIntent 记录支付网关返回的支付意图编号
func (s *OrderService) AttachPaymentIntent(ctx context.Context, orderID uint, paymentRef string) error {
	paymentRef = strings.TrimSpace(paymentRef)
	if paymentRef == "" {
		return newValidationError("payment_ref", "is required")
	}
	order, err := s.orderRepo.GetByID(orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return &NotFoundError{Resource: "order", ID: orderID}
	}
	if err := s.orderRepo.UpdatePaymentRef(orderID, paymentRef); err != nil {
		return err
	}
	if s.events != nil {
		s.events.Publish(OrderChanged{OrderID: order.ID, UserID: order.UserID, Status: order.Status})
	}
	return nil
}

// reload 提交后重新读取订单，失败时以事务内快照兜底
func (s *OrderService) reload(snapshot *models.Order, status string) *models.Order {
	updated, err := s.orderRepo.GetByID(snapshot.ID)
	if err == nil && updated != nil {
		return updated
	}
	logger.Warnw("order_reload_failed", "order_id", snapshot.ID, "error", err)
	copied := *snapshot
	copied.Status = status
	return &copied
}

func (s *OrderService) afterOrderChanged(order *models.Order) {
	if s.events == nil || order == nil {
		return
	}
	productIDs := order.ProductIDs()
	s.events.Publish(OrderChanged{
		OrderID:    order.ID,
		UserID:     order.UserID,
		ProductIDs: productIDs,
		Status:     order.Status,
	})
	if len(productIDs) > 0 {
		s.events.Publish(StockChanged{ProductIDs: productIDs})
	}
}

func (s *OrderService) enqueueGatewayRefund(order *models.Order, amount decimal.Decimal, reason string) {
	if s.tasks == nil || order == nil || order.PaymentRef == "" {
		return
	}
	err := s.tasks.EnqueueOrderPaymentRefund(queue.OrderPaymentRefundPayload{
		OrderID:    order.ID,
		PaymentRef: order.PaymentRef,
		Amount:     amount.StringFixed(2),
		Reason:     reason,
	})
	if err != nil {
		logger.Warnw("order_enqueue_payment_refund_failed", "order_id", order.ID, "error", err)
	}
}

// mergeCreateOrderItems 合并重复商品的下单项
func mergeCreateOrderItems(items []CreateOrderItem) ([]CreateOrderItem, error) {
	if len(items) == 0 {
		return nil, nil
	}
	merged := make([]CreateOrderItem, 0, len(items))
	indexMap := make(map[uint]int, len(items))
	for i, item := range items {
		if item.ProductID == 0 {
			return nil, newValidationError(fmt.Sprintf("items[%d].product_id", i), "is required")
		}
		if item.Quantity <= 0 {
			return nil, newValidationError(fmt.Sprintf("items[%d].quantity", i), "must be positive")
		}
		if idx, ok := indexMap[item.ProductID]; ok {
			merged[idx].Quantity += item.Quantity
			continue
		}
		indexMap[item.ProductID] = len(merged)
		merged = append(merged, item)
	}
	return merged, nil
}

func isOrderCreateRetryable(err error) bool {
	return isRetryableConflict(err) || isUniqueViolation(err) || errors.Is(err, errOrderNoExhausted)
}
