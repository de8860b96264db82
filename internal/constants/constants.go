package constants

// 订单状态常量
const (
	OrderStatusPending    = "pending"
	OrderStatusConfirmed  = "confirmed"
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivered  = "delivered"
	OrderStatusCancelled  = "cancelled"
	OrderStatusRefunded   = "refunded"
)

// 订单支付状态常量
const (
	PaymentStatusUnpaid   = "unpaid"
	PaymentStatusPaid     = "paid"
	PaymentStatusRefunded = "refunded"
)

// 订单操作方常量
const (
	ActorTypeUser   = "user"
	ActorTypeAdmin  = "admin"
	ActorTypeSystem = "system"
)

// 库存流水类型常量
const (
	InventoryTxnTypeIn         = "IN"
	InventoryTxnTypeOut        = "OUT"
	InventoryTxnTypeAdjustment = "ADJUSTMENT"
	InventoryTxnTypeReturn     = "RETURN"
)

// 库存流水关联类型常量
const (
	InventoryRefTypeOrder  = "ORDER"
	InventoryRefTypeManual = "MANUAL"
	InventoryRefTypeReturn = "RETURN"
	InventoryRefTypeSystem = "SYSTEM"
)

// 商品库存状态常量
const (
	ProductStockStatusInStock    = "in_stock"
	ProductStockStatusLowStock   = "low_stock"
	ProductStockStatusOutOfStock = "out_of_stock"
)

// 低库存默认阈值
const DefaultLowStockThreshold = 10

// 队列名称常量
const (
	QueueDefault  = "default"
	QueueCritical = "critical"
)

// 异步任务类型常量
const (
	TaskOrderStatusNotify  = "order:status_notify"
	TaskOrderPaymentIntent = "order:payment_intent"
	TaskOrderPaymentRefund = "order:payment_refund"
	TaskCacheInvalidate    = "cache:invalidate"
)

// 缓存键常量
const (
	CacheKeyProductFmt       = "product:%d"
	CacheKeyProductsAll      = "products:all"
	CacheKeyProductsFeatured = "products:featured"
	CacheKeyProductsBest     = "products:bestsellers"
	CacheKeyCategoriesAll    = "categories:all"
	CacheKeyOrderFmt         = "order:%d"
	CacheKeyUserOrdersFmt    = "orders:user:%d"
	CacheKeyOrdersRecent     = "orders:recent"
	CacheKeyAnalyticsDash    = "analytics:dashboard"
	CacheKeyAnalyticsRecent  = "analytics:recent_orders"
)

// 用户状态常量
const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)
