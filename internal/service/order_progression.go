package service

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"strconv"
	"time"

	"github.com/shopledger/internal/config"
	"github.com/shopledger/internal/constants"
	"github.com/shopledger/internal/logger"
	"github.com/shopledger/internal/models"
	"github.com/shopledger/internal/queue"
	"github.com/shopledger/internal/repository"

	"gorm.io/gorm"
)

const (
	defaultPendingDelay    = 5 * time.Minute
	defaultProcessingAfter = 7 * time.Minute
	defaultConfirmDelay    = 2 * time.Minute
	defaultShipDelay       = 2 * time.Minute
	defaultDeliverDelay    = 3 * time.Minute
	defaultSweepBatchSize  = 100

	trackingAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// ProgressionPolicy 订单自动推进的时间策略
type ProgressionPolicy struct {
	PendingDelay    time.Duration
	ProcessingAfter time.Duration
	ConfirmDelay    time.Duration
	ShipDelay       time.Duration
	DeliverDelay    time.Duration
	BatchSize       int
}

// NewProgressionPolicy 根据配置生成推进策略，非法值回落默认
func NewProgressionPolicy(cfg config.ProgressionConfig) ProgressionPolicy {
	return ProgressionPolicy{
		PendingDelay:    positiveDuration(cfg.PendingDelay, defaultPendingDelay),
		ProcessingAfter: positiveDuration(cfg.ProcessingAfter, defaultProcessingAfter),
		ConfirmDelay:    positiveDuration(cfg.ConfirmDelay, defaultConfirmDelay),
		ShipDelay:       positiveDuration(cfg.ShipDelay, defaultShipDelay),
		DeliverDelay:    positiveDuration(cfg.DeliverDelay, defaultDeliverDelay),
		BatchSize:       positiveInt(cfg.BatchSize, defaultSweepBatchSize),
	}
}

// NextActionAt 进入 status 后下一次自动推进的时间，无后续自动动作时为 nil
func (p ProgressionPolicy) NextActionAt(status string, now time.Time) *time.Time {
	var delay time.Duration
	switch status {
	case constants.OrderStatusPending:
		delay = p.PendingDelay
	case constants.OrderStatusConfirmed:
		delay = p.ConfirmDelay
	case constants.OrderStatusProcessing:
		delay = p.ShipDelay
	case constants.OrderStatusShipped:
		delay = p.DeliverDelay
	default:
		return nil
	}
	next := now.Add(delay)
	return &next
}

// NextStatus 订单的下一步自动状态
// pending 订单创建超过 ProcessingAfter 直接进入 processing，否则先 confirmed
func (p ProgressionPolicy) NextStatus(order *models.Order, now time.Time) (string, bool) {
	if order == nil {
		return "", false
	}
	switch order.Status {
	case constants.OrderStatusPending:
		if now.Sub(order.CreatedAt) >= p.ProcessingAfter {
			return constants.OrderStatusProcessing, true
		}
		return constants.OrderStatusConfirmed, true
	case constants.OrderStatusConfirmed:
		return constants.OrderStatusProcessing, true
	case constants.OrderStatusProcessing:
		return constants.OrderStatusShipped, true
	case constants.OrderStatusShipped:
		return constants.OrderStatusDelivered, true
	default:
		return "", false
	}
}

// SweepResult 一次推进扫描的结果
type SweepResult struct {
	Advanced map[string]int `json:"advanced"`
	Skipped  int            `json:"skipped"`
	Failed   int            `json:"failed"`
}

// Total 推进成功的订单数
func (r SweepResult) Total() int {
	total := 0
	for _, n := range r.Advanced {
		total += n
	}
	return total
}

// ProgressionService 订单后台推进
type ProgressionService struct {
	db           *gorm.DB
	orderRepo    repository.OrderRepository
	stateMachine *OrderStateMachine
	policy       ProgressionPolicy
	events       CacheEventPublisher
	tasks        orderTaskEnqueuer
	maxRetries   int
	now          func() time.Time
}

// NewProgressionService 创建订单推进服务
func NewProgressionService(db *gorm.DB, orderRepo repository.OrderRepository, stateMachine *OrderStateMachine, policy ProgressionPolicy, events CacheEventPublisher, tasks orderTaskEnqueuer, maxRetries int) *ProgressionService {
	return &ProgressionService{
		db:           db,
		orderRepo:    orderRepo,
		stateMachine: stateMachine,
		policy:       policy,
		events:       events,
		tasks:        tasks,
		maxRetries:   maxRetries,
		now:          time.Now,
	}
}

var sweepStatuses = []string{
	constants.OrderStatusPending,
	constants.OrderStatusConfirmed,
	constants.OrderStatusProcessing,
	constants.OrderStatusShipped,
}

// Sweep 推进所有到期订单，每单一个事务，同一轮内每单至多推进一步
// 与前台操作的竞争按跳过处理
func (s *ProgressionService) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	result := SweepResult{Advanced: map[string]int{}}
	advanced := make(map[uint]struct{})
	for _, status := range sweepStatuses {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		orders, err := s.orderRepo.ListDue(status, now, s.policy.BatchSize)
		if err != nil {
			return result, err
		}
		for i := range orders {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			order := &orders[i]
			if _, done := advanced[order.ID]; done {
				continue
			}
			from := order.Status
			dueBefore := now
			updated, err := s.advance(ctx, order, now, &dueBefore)
			switch {
			case err == nil:
				advanced[order.ID] = struct{}{}
				result.Advanced[from+"->"+updated.Status]++
			case errors.Is(err, ErrInvalidStateTransition):
				result.Skipped++
				logger.Infow("progression_advance_skipped",
					"order_id", order.ID,
					"from", order.Status,
					"error", err,
				)
			default:
				result.Failed++
				logger.Warnw("progression_advance_failed",
					"order_id", order.ID,
					"from", order.Status,
					"error", err,
				)
			}
		}
	}
	if total := result.Total(); total > 0 || result.Failed > 0 {
		logger.Infow("progression_sweep_done",
			"advanced", total,
			"skipped", result.Skipped,
			"failed", result.Failed,
		)
	}
	return result, nil
}

// AdvanceOrder 手动推进单个订单一步，不检查到期时间
func (s *ProgressionService) AdvanceOrder(ctx context.Context, orderID uint) (*models.Order, error) {
	order, err := s.orderRepo.GetByID(orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, &NotFoundError{Resource: "order", ID: orderID}
	}
	return s.advance(ctx, order, s.now(), nil)
}

func (s *ProgressionService) advance(ctx context.Context, order *models.Order, now time.Time, dueBefore *time.Time) (*models.Order, error) {
	next, ok := s.policy.NextStatus(order, now)
	if !ok {
		return nil, &InvalidStateTransitionError{From: order.Status, To: NextStepTarget}
	}
	updates := map[string]interface{}{}
	if next == constants.OrderStatusShipped {
		updates["tracking_number"] = GenerateTrackingNumber(now)
	}
	err := runInTx(ctx, s.db, s.maxRetries, func(tx *gorm.DB) error {
		return s.stateMachine.Transition(tx, TransitionInput{
			OrderID:   order.ID,
			From:      order.Status,
			To:        next,
			Updates:   updates,
			DueBefore: dueBefore,
			Now:       now,
		})
	})
	if err != nil {
		return nil, err
	}

	updated, err := s.orderRepo.GetByID(order.ID)
	if err != nil || updated == nil {
		logger.Warnw("progression_reload_failed", "order_id", order.ID, "error", err)
		copied := *order
		copied.Status = next
		updated = &copied
	}
	logger.Infow("order_progressed",
		"order_id", order.ID,
		"order_no", order.OrderNo,
		"from", order.Status,
		"to", next,
	)
	if s.events != nil {
		s.events.Publish(OrderChanged{OrderID: order.ID, UserID: order.UserID, Status: next})
	}
	enqueueStatusNotify(s.tasks, updated, "order_"+next)
	return updated, nil
}

// GenerateTrackingNumber 生成物流单号：TRK + 毫秒时间戳后 8 位 + 4 位随机字母数字
func GenerateTrackingNumber(now time.Time) string {
	millis := strconv.FormatInt(now.UnixMilli(), 10)
	if len(millis) > 8 {
		millis = millis[len(millis)-8:]
	}
	return "TRK" + millis + randomString(trackingAlphabet, 4)
}

func randomString(alphabet string, n int) string {
	buf := make([]byte, n)
	max := big.NewInt(int64(len(alphabet)))
	for i := range buf {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			buf[i] = alphabet[0]
			continue
		}
		buf[i] = alphabet[idx.Int64()]
	}
	return string(buf)
}

func enqueueStatusNotify(tasks orderTaskEnqueuer, order *models.Order, event string) {
	if tasks == nil || order == nil {
		return
	}
	err := tasks.EnqueueOrderStatusNotify(queue.OrderStatusNotifyPayload{
		OrderID: order.ID,
		OrderNo: order.OrderNo,
		UserID:  order.UserID,
		Event:   event,
		Status:  order.Status,
	})
	if err != nil {
		logger.Warnw("order_enqueue_status_notify_failed",
			"order_id", order.ID,
			"event", event,
			"error", err,
		)
	}
}

func positiveDuration(value, fallback time.Duration) time.Duration {
	if value > 0 {
		return value
	}
	return fallback
}

func positiveInt(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}
