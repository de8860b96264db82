package service

import (
	"context"

	"github.com/shopledger/internal/cache"
	"github.com/shopledger/internal/constants"
	"github.com/shopledger/internal/logger"
	"github.com/shopledger/internal/models"
	"github.com/shopledger/internal/repository"
)

const defaultRecentOrdersLimit = 10

// GetOrder 获取订单详情（读穿缓存）
func (s *OrderService) GetOrder(ctx context.Context, orderID uint) (*models.Order, error) {
	if orderID == 0 {
		return nil, &NotFoundError{Resource: "order", ID: orderID}
	}
	key := cache.OrderKey(orderID)
	if s.store != nil {
		var cached models.Order
		hit, err := s.store.GetJSON(ctx, key, &cached)
		if err != nil {
			logger.Warnw("order_cache_get_failed", "order_id", orderID, "error", err)
		} else if hit {
			return &cached, nil
		}
	}
	order, err := s.orderRepo.GetByID(orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, &NotFoundError{Resource: "order", ID: orderID}
	}
	if s.store != nil {
		if err := s.store.SetJSON(ctx, key, order, s.cacheCfg.OrderTTL); err != nil {
			logger.Warnw("order_cache_set_failed", "order_id", orderID, "error", err)
		}
	}
	return order, nil
}

// GetOrderForUser 获取用户本人的订单
func (s *OrderService) GetOrderForUser(orderID, userID uint) (*models.Order, error) {
	order, err := s.orderRepo.GetByIDAndUser(orderID, userID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, &NotFoundError{Resource: "order", ID: orderID}
	}
	return order, nil
}

// ListOrders 后台订单列表
func (s *OrderService) ListOrders(filter repository.OrderListFilter) ([]models.Order, int64, error) {
	if filter.Status != "" && !isKnownOrderStatus(filter.Status) {
		return nil, 0, newValidationError("status", "unknown value %q", filter.Status)
	}
	filter.Page, filter.PageSize = normalizePage(filter.Page, filter.PageSize)
	return s.orderRepo.ListAdmin(filter)
}

// ListUserOrders 用户订单列表
func (s *OrderService) ListUserOrders(userID uint, status string, page, pageSize int) ([]models.Order, int64, error) {
	if userID == 0 {
		return nil, 0, newValidationError("user_id", "is required")
	}
	if status != "" && !isKnownOrderStatus(status) {
		return nil, 0, newValidationError("status", "unknown value %q", status)
	}
	page, pageSize = normalizePage(page, pageSize)
	return s.orderRepo.ListByUser(repository.OrderListFilter{
		UserID:   userID,
		Status:   status,
		Page:     page,
		PageSize: pageSize,
	})
}

// RecentOrders 最近订单，默认条数走缓存
func (s *OrderService) RecentOrders(ctx context.Context, limit int) ([]models.Order, error) {
	if limit <= 0 {
		limit = defaultRecentOrdersLimit
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	cacheable := s.store != nil && limit == defaultRecentOrdersLimit
	if cacheable {
		var cached []models.Order
		hit, err := s.store.GetJSON(ctx, constants.CacheKeyOrdersRecent, &cached)
		if err != nil {
			logger.Warnw("recent_orders_cache_get_failed", "error", err)
		} else if hit {
			return cached, nil
		}
	}
	orders, err := s.orderRepo.ListRecent(limit)
	if err != nil {
		return nil, err
	}
	if cacheable {
		if err := s.store.SetJSON(ctx, constants.CacheKeyOrdersRecent, orders, s.cacheCfg.RecentOrdersTTL); err != nil {
			logger.Warnw("recent_orders_cache_set_failed", "error", err)
		}
	}
	return orders, nil
}

func isKnownOrderStatus(status string) bool {
	if _, ok := orderTransitions[status]; ok {
		return true
	}
	return IsTerminalOrderStatus(status)
}
