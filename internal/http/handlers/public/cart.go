package public

import (
	handlershared "github.com/shopledger/internal/http/handlers/shared"
	"github.com/shopledger/internal/http/response"

	"github.com/gin-gonic/gin"
)

// AddCartItemRequest 加入购物车请求
type AddCartItemRequest struct {
	ProductID uint `json:"product_id" binding:"required"`
	Quantity  int  `json:"quantity" binding:"omitempty,gt=0"`
}

// UpdateCartItemRequest 修改购物车数量请求
type UpdateCartItemRequest struct {
	Quantity int `json:"quantity" binding:"required,gt=0"`
}

// GetCart 获取购物车
func (h *Handler) GetCart(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	cart, err := h.CartService.Get(uid)
	if err != nil {
		respondServiceError(c, err, "cart fetch failed")
		return
	}
	response.Success(c, cart)
}

// GetCartSummary 购物车结算预览
func (h *Handler) GetCartSummary(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	summary, err := h.CartService.Summary(uid)
	if err != nil {
		respondServiceError(c, err, "cart fetch failed")
		return
	}
	response.Success(c, summary)
}

// AddCartItem 加入购物车，数量缺省为 1
func (h *Handler) AddCartItem(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	var req AddCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handlershared.RespondBindError(c, err)
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	item, err := h.CartService.AddItem(uid, req.ProductID, req.Quantity)
	if err != nil {
		respondServiceError(c, err, "cart update failed")
		return
	}
	response.Success(c, item)
}

// UpdateCartItem 修改购物车项数量
func (h *Handler) UpdateCartItem(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	productID, ok := handlershared.ParseIDParam(c, "product_id")
	if !ok {
		return
	}
	var req UpdateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handlershared.RespondBindError(c, err)
		return
	}
	item, err := h.CartService.UpdateItem(uid, productID, req.Quantity)
	if err != nil {
		respondServiceError(c, err, "cart update failed")
		return
	}
	response.Success(c, item)
}

// RemoveCartItem 移除购物车项
func (h *Handler) RemoveCartItem(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	productID, ok := handlershared.ParseIDParam(c, "product_id")
	if !ok {
		return
	}
	if err := h.CartService.RemoveItem(uid, productID); err != nil {
		respondServiceError(c, err, "cart update failed")
		return
	}
	response.Success(c, gin.H{"product_id": productID})
}

// ClearCart 清空购物车
func (h *Handler) ClearCart(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	removed, err := h.CartService.Clear(uid)
	if err != nil {
		respondServiceError(c, err, "cart clear failed")
		return
	}
	response.Success(c, gin.H{"removed": removed})
}
