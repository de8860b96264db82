package service

import (
	"context"
	"time"

	"github.com/shopledger/internal/cache"
	"github.com/shopledger/internal/config"
	"github.com/shopledger/internal/constants"
	"github.com/shopledger/internal/logger"
	"github.com/shopledger/internal/models"
	"github.com/shopledger/internal/repository"

	"github.com/shopspring/decimal"
)

const (
	defaultAnalyticsTTL     = time.Hour
	defaultRecentOrdersTTL  = 30 * time.Minute
	analyticsWindowDays     = 30
	analyticsTopProducts    = 5
	analyticsRecentOrderCap = 10
)

// AnalyticsService 经营数据快照，由定时任务刷新并缓存
type AnalyticsService struct {
	repo      repository.DashboardRepository
	orderRepo repository.OrderRepository
	store     cache.Store
	cfg       config.CacheConfig
	lowStock  int
	now       func() time.Time
}

// NewAnalyticsService 创建统计服务
func NewAnalyticsService(repo repository.DashboardRepository, orderRepo repository.OrderRepository, store cache.Store, cfg config.CacheConfig, lowStockThreshold int) *AnalyticsService {
	return &AnalyticsService{
		repo:      repo,
		orderRepo: orderRepo,
		store:     store,
		cfg:       cfg,
		lowStock:  positiveInt(lowStockThreshold, constants.DefaultLowStockThreshold),
		now:       time.Now,
	}
}

// DashboardSnapshot 仪表盘快照
type DashboardSnapshot struct {
	GeneratedAt  time.Time                 `json:"generated_at"`
	From         string                    `json:"from"`
	To           string                    `json:"to"`
	Overview     DashboardOverview         `json:"overview"`
	StatusCounts map[string]int64          `json:"status_counts"`
	Trends       []DashboardTrendPoint     `json:"trends"`
	Stock        DashboardStock            `json:"stock"`
	TopProducts  []DashboardProductRanking `json:"top_products"`
}

// DashboardOverview 核心指标
type DashboardOverview struct {
	OrdersTotal     int64  `json:"orders_total"`
	ActiveOrders    int64  `json:"active_orders"`
	CancelledOrders int64  `json:"cancelled_orders"`
	RefundedOrders  int64  `json:"refunded_orders"`
	Revenue         string `json:"revenue"`
	RefundedAmount  string `json:"refunded_amount"`
	NewUsers        int64  `json:"new_users"`
	ActiveProducts  int64  `json:"active_products"`
}

// DashboardTrendPoint 按日趋势点
type DashboardTrendPoint struct {
	Date        string `json:"date"`
	OrdersTotal int64  `json:"orders_total"`
	Revenue     string `json:"revenue"`
}

// DashboardStock 库存概况
type DashboardStock struct {
	TotalProducts      int64  `json:"total_products"`
	TotalUnits         int64  `json:"total_units"`
	LowStockProducts   int64  `json:"low_stock_products"`
	OutOfStockProducts int64  `json:"out_of_stock_products"`
	InventoryValue     string `json:"inventory_value"`
}

// DashboardProductRanking 商品排行项
type DashboardProductRanking struct {
	ProductID   uint   `json:"product_id"`
	ProductName string `json:"product_name"`
	Orders      int64  `json:"orders"`
	Quantity    int64  `json:"quantity"`
	Amount      string `json:"amount"`
}

// Refresh 重新计算仪表盘快照与最近订单并写入缓存
func (s *AnalyticsService) Refresh(ctx context.Context) (*DashboardSnapshot, error) {
	snapshot, err := s.build()
	if err != nil {
		return nil, err
	}
	if s.store != nil {
		ttl := positiveDuration(s.cfg.AnalyticsTTL, defaultAnalyticsTTL)
		if err := s.store.SetJSON(ctx, constants.CacheKeyAnalyticsDash, snapshot, ttl); err != nil {
			logger.Warnw("analytics_cache_set_failed", "key", constants.CacheKeyAnalyticsDash, "error", err)
		}
		recent, err := s.orderRepo.ListRecent(analyticsRecentOrderCap)
		if err != nil {
			return snapshot, err
		}
		ttl = positiveDuration(s.cfg.RecentOrdersTTL, defaultRecentOrdersTTL)
		if err := s.store.SetJSON(ctx, constants.CacheKeyAnalyticsRecent, recent, ttl); err != nil {
			logger.Warnw("analytics_cache_set_failed", "key", constants.CacheKeyAnalyticsRecent, "error", err)
		}
	}
	logger.Infow("analytics_refreshed",
		"orders_total", snapshot.Overview.OrdersTotal,
		"revenue", snapshot.Overview.Revenue,
	)
	return snapshot, nil
}

// Dashboard 读取缓存快照，未命中或强制刷新时重新计算
func (s *AnalyticsService) Dashboard(ctx context.Context, forceRefresh bool) (*DashboardSnapshot, error) {
	if !forceRefresh && s.store != nil {
		var cached DashboardSnapshot
		hit, err := s.store.GetJSON(ctx, constants.CacheKeyAnalyticsDash, &cached)
		if err != nil {
			logger.Warnw("analytics_cache_get_failed", "error", err)
		} else if hit {
			return &cached, nil
		}
	}
	return s.Refresh(ctx)
}

// RecentOrders 读取缓存的最近订单
func (s *AnalyticsService) RecentOrders(ctx context.Context) ([]models.Order, error) {
	if s.store != nil {
		var cached []models.Order
		hit, err := s.store.GetJSON(ctx, constants.CacheKeyAnalyticsRecent, &cached)
		if err == nil && hit {
			return cached, nil
		}
	}
	return s.orderRepo.ListRecent(analyticsRecentOrderCap)
}

// CleanupInventoryCache 清理商品聚合列表缓存
func (s *AnalyticsService) CleanupInventoryCache(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	keys := cache.ProductListKeys()
	if err := s.store.Del(ctx, keys...); err != nil {
		return err
	}
	logger.Infow("inventory_cache_cleaned", "keys", len(keys))
	return nil
}

func (s *AnalyticsService) build() (*DashboardSnapshot, error) {
	now := s.now()
	endAt := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
	startAt := endAt.AddDate(0, 0, -analyticsWindowDays)

	overview, err := s.repo.GetOverview(startAt, endAt)
	if err != nil {
		return nil, err
	}
	statusRows, err := s.repo.GetOrderStatusCounts()
	if err != nil {
		return nil, err
	}
	trendRows, err := s.repo.GetOrderTrends(startAt, endAt)
	if err != nil {
		return nil, err
	}
	stock, err := s.repo.GetStockStats(s.lowStock)
	if err != nil {
		return nil, err
	}
	topRows, err := s.repo.GetTopProducts(startAt, endAt, analyticsTopProducts)
	if err != nil {
		return nil, err
	}

	statusCounts := make(map[string]int64, len(statusRows))
	for _, row := range statusRows {
		statusCounts[row.Status] = row.Total
	}
	trendMap := make(map[string]repository.DashboardOrderTrendRow, len(trendRows))
	for _, row := range trendRows {
		trendMap[row.Day] = row
	}
	points := make([]DashboardTrendPoint, 0, analyticsWindowDays)
	for cursor := startAt; cursor.Before(endAt); cursor = cursor.AddDate(0, 0, 1) {
		day := cursor.Format("2006-01-02")
		row := trendMap[day]
		points = append(points, DashboardTrendPoint{
			Date:        day,
			OrdersTotal: row.OrdersTotal,
			Revenue:     formatMoneyValue(row.Revenue),
		})
	}
	top := make([]DashboardProductRanking, 0, len(topRows))
	for _, row := range topRows {
		top = append(top, DashboardProductRanking{
			ProductID:   row.ProductID,
			ProductName: row.ProductName,
			Orders:      row.Orders,
			Quantity:    row.Quantity,
			Amount:      formatMoneyValue(row.Amount),
		})
	}

	return &DashboardSnapshot{
		GeneratedAt: now,
		From:        startAt.Format(time.RFC3339),
		To:          endAt.Add(-time.Second).Format(time.RFC3339),
		Overview: DashboardOverview{
			OrdersTotal:     overview.OrdersTotal,
			ActiveOrders:    overview.ActiveOrders,
			CancelledOrders: overview.CancelledOrders,
			RefundedOrders:  overview.RefundedOrders,
			Revenue:         formatMoneyValue(overview.Revenue),
			RefundedAmount:  formatMoneyValue(overview.RefundedAmount),
			NewUsers:        overview.NewUsers,
			ActiveProducts:  overview.ActiveProducts,
		},
		StatusCounts: statusCounts,
		Trends:       points,
		Stock: DashboardStock{
			TotalProducts:      stock.TotalProducts,
			TotalUnits:         stock.TotalUnits,
			LowStockProducts:   stock.LowStockProducts,
			OutOfStockProducts: stock.OutOfStockProducts,
			InventoryValue:     formatMoneyValue(stock.InventoryValue),
		},
		TopProducts: top,
	}, nil
}

func formatMoneyValue(value float64) string {
	return decimal.NewFromFloat(value).Round(2).StringFixed(2)
}
