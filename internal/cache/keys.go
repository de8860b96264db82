package cache

import (
	"fmt"

	"github.com/shopledger/internal/constants"
)

// ProductKey 单商品缓存键
func ProductKey(productID uint) string {
	return fmt.Sprintf(constants.CacheKeyProductFmt, productID)
}

// OrderKey 单订单缓存键
func OrderKey(orderID uint) string {
	return fmt.Sprintf(constants.CacheKeyOrderFmt, orderID)
}

// UserOrdersKey 用户订单列表缓存键
func UserOrdersKey(userID uint) string {
	return fmt.Sprintf(constants.CacheKeyUserOrdersFmt, userID)
}

// ProductListKeys 会反映库存变化的聚合列表键
func ProductListKeys() []string {
	return []string{
		constants.CacheKeyProductsAll,
		constants.CacheKeyProductsFeatured,
		constants.CacheKeyProductsBest,
		constants.CacheKeyCategoriesAll,
	}
}
