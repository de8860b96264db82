package repository

import "time"

// ProductListFilter 查询商品列表的过滤条件
type ProductListFilter struct {
	Page         int
	PageSize     int
	CategoryID   uint
	Search       string
	StockStatus  string // in_stock / low_stock / out_of_stock
	LowStockAt   int    // StockStatus=low_stock 时的阈值
	OnlyActive   bool
	OnlyFeatured bool
	WithCategory bool
}

// OrderListFilter 查询订单列表的过滤条件
type OrderListFilter struct {
	Page          int
	PageSize      int
	UserID        uint
	Status        string
	PaymentStatus string
	OrderNo       string
	CreatedFrom   *time.Time
	CreatedTo     *time.Time
}

// InventoryTransactionListFilter 查询库存流水的过滤条件
type InventoryTransactionListFilter struct {
	Page            int
	PageSize        int
	ProductID       uint
	TransactionType string
	ReferenceType   string
	ReferenceID     uint
	CreatedFrom     *time.Time
	CreatedTo       *time.Time
}

// UserListFilter 查询用户列表的过滤条件
type UserListFilter struct {
	Page     int
	PageSize int
	Keyword  string
	Status   string
}

// OrderStatusGuard 订单状态条件更新的前置条件
// 仅当订单仍处于 From 状态（且满足可选约束）时才会更新
type OrderStatusGuard struct {
	OrderID       uint
	From          string
	DueBefore     *time.Time // 非空时要求 next_action_at <= DueBefore
	PaymentStatus string     // 非空时要求支付状态一致
}
