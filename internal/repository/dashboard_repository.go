package repository

import (
	"fmt"
	"time"

	"github.com/shopledger/internal/constants"
	"github.com/shopledger/internal/models"

	"gorm.io/gorm"
)

// DashboardRepository 仪表盘聚合查询接口
// 说明：仅聚合统计数据，不承载业务规则。
type DashboardRepository interface {
	GetOverview(startAt, endAt time.Time) (DashboardOverviewRow, error)
	GetOrderStatusCounts() ([]DashboardStatusCountRow, error)
	GetOrderTrends(startAt, endAt time.Time) ([]DashboardOrderTrendRow, error)
	GetStockStats(lowStockThreshold int) (DashboardStockStatsRow, error)
	GetTopProducts(startAt, endAt time.Time, limit int) ([]DashboardProductRankingRow, error)
}

// DashboardOverviewRow 仪表盘总览原始统计结果
type DashboardOverviewRow struct {
	OrdersTotal     int64
	ActiveOrders    int64
	CancelledOrders int64
	RefundedOrders  int64
	Revenue         float64
	RefundedAmount  float64
	NewUsers        int64
	ActiveProducts  int64
}

// DashboardStatusCountRow 订单状态分布
type DashboardStatusCountRow struct {
	Status string
	Total  int64
}

// DashboardOrderTrendRow 订单趋势统计
type DashboardOrderTrendRow struct {
	Day         string
	OrdersTotal int64
	Revenue     float64
}

// DashboardStockStatsRow 库存统计
type DashboardStockStatsRow struct {
	TotalProducts      int64
	OutOfStockProducts int64
	LowStockProducts   int64
	TotalUnits         int64
	InventoryValue     float64
}

// DashboardProductRankingRow 商品排行原始行
type DashboardProductRankingRow struct {
	ProductID   uint
	ProductName string
	Orders      int64
	Quantity    int64
	Amount      float64
}

// GormDashboardRepository GORM 仪表盘聚合实现
type GormDashboardRepository struct {
	db *gorm.DB
}

// NewDashboardRepository 创建仪表盘仓库
func NewDashboardRepository(db *gorm.DB) *GormDashboardRepository {
	return &GormDashboardRepository{db: db}
}

func revenueOrderStatuses() []string {
	return []string{
		constants.OrderStatusPending,
		constants.OrderStatusConfirmed,
		constants.OrderStatusProcessing,
		constants.OrderStatusShipped,
		constants.OrderStatusDelivered,
	}
}

// GetOverview 获取总览统计
func (r *GormDashboardRepository) GetOverview(startAt, endAt time.Time) (DashboardOverviewRow, error) {
	result := DashboardOverviewRow{}

	orderBase := func() *gorm.DB {
		return r.db.Model(&models.Order{}).
			Where("created_at >= ? AND created_at < ?", startAt, endAt)
	}

	if err := orderBase().Count(&result.OrdersTotal).Error; err != nil {
		return result, err
	}
	if err := orderBase().Where("status IN ?", revenueOrderStatuses()).Count(&result.ActiveOrders).Error; err != nil {
		return result, err
	}
	if err := orderBase().Where("status = ?", constants.OrderStatusCancelled).Count(&result.CancelledOrders).Error; err != nil {
		return result, err
	}
	if err := orderBase().Where("status = ?", constants.OrderStatusRefunded).Count(&result.RefundedOrders).Error; err != nil {
		return result, err
	}
	if err := orderBase().
		Where("status IN ?", revenueOrderStatuses()).
		Select("COALESCE(SUM(total), 0)").
		Scan(&result.Revenue).Error; err != nil {
		return result, err
	}
	if err := orderBase().
		Where("status = ?", constants.OrderStatusRefunded).
		Select("COALESCE(SUM(refund_amount), 0)").
		Scan(&result.RefundedAmount).Error; err != nil {
		return result, err
	}

	if err := r.db.Model(&models.User{}).
		Where("created_at >= ? AND created_at < ?", startAt, endAt).
		Count(&result.NewUsers).Error; err != nil {
		return result, err
	}
	if err := r.db.Model(&models.Product{}).
		Where("is_active = ?", true).
		Count(&result.ActiveProducts).Error; err != nil {
		return result, err
	}
	return result, nil
}

// GetOrderStatusCounts 全量订单按状态计数
func (r *GormDashboardRepository) GetOrderStatusCounts() ([]DashboardStatusCountRow, error) {
	rows := make([]DashboardStatusCountRow, 0)
	if err := r.db.Model(&models.Order{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Order("status ASC").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// GetOrderTrends 获取订单趋势
func (r *GormDashboardRepository) GetOrderTrends(startAt, endAt time.Time) ([]DashboardOrderTrendRow, error) {
	dayExpr := dateBucketExpr(r.db, "created_at")
	rows := make([]DashboardOrderTrendRow, 0)
	if err := r.db.Model(&models.Order{}).
		Select(fmt.Sprintf(
			"%s AS day, COUNT(*) AS orders_total, COALESCE(SUM(CASE WHEN status IN ? THEN total ELSE 0 END), 0) AS revenue",
			dayExpr,
		), revenueOrderStatuses()).
		Where("created_at >= ? AND created_at < ?", startAt, endAt).
		Group(dayExpr).
		Order("day ASC").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// GetStockStats 获取库存统计
func (r *GormDashboardRepository) GetStockStats(lowStockThreshold int) (DashboardStockStatsRow, error) {
	if lowStockThreshold <= 0 {
		lowStockThreshold = constants.DefaultLowStockThreshold
	}
	result := DashboardStockStatsRow{}
	productBase := func() *gorm.DB {
		return r.db.Model(&models.Product{}).Where("is_active = ?", true)
	}
	if err := productBase().Count(&result.TotalProducts).Error; err != nil {
		return result, err
	}
	if err := productBase().Where("stock_quantity = 0").Count(&result.OutOfStockProducts).Error; err != nil {
		return result, err
	}
	if err := productBase().
		Where("stock_quantity > 0 AND stock_quantity <= ?", lowStockThreshold).
		Count(&result.LowStockProducts).Error; err != nil {
		return result, err
	}
	var agg struct {
		TotalUnits     int64
		InventoryValue float64
	}
	if err := productBase().
		Select("COALESCE(SUM(stock_quantity), 0) AS total_units, COALESCE(SUM(stock_quantity * COALESCE(cost_price, price)), 0) AS inventory_value").
		Scan(&agg).Error; err != nil {
		return result, err
	}
	result.TotalUnits = agg.TotalUnits
	result.InventoryValue = agg.InventoryValue
	return result, nil
}

// GetTopProducts 获取商品排行榜
func (r *GormDashboardRepository) GetTopProducts(startAt, endAt time.Time, limit int) ([]DashboardProductRankingRow, error) {
	if limit <= 0 {
		limit = 5
	}
	rows := make([]DashboardProductRankingRow, 0)
	if err := r.db.Model(&models.OrderItem{}).
		Select(`
			order_items.product_id AS product_id,
			MAX(order_items.product_name) AS product_name,
			COUNT(DISTINCT order_items.order_id) AS orders,
			COALESCE(SUM(order_items.quantity), 0) AS quantity,
			COALESCE(SUM(order_items.total_price), 0) AS amount
		`).
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Where("orders.created_at >= ? AND orders.created_at < ? AND orders.status IN ?", startAt, endAt, revenueOrderStatuses()).
		Group("order_items.product_id").
		Order("amount DESC, quantity DESC").
		Limit(limit).
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
