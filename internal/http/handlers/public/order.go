package public

import (
	"strings"

	handlershared "github.com/shopledger/internal/http/handlers/shared"
	"github.com/shopledger/internal/http/response"
	"github.com/shopledger/internal/models"
	"github.com/shopledger/internal/service"

	"github.com/gin-gonic/gin"
)

// OrderItemRequest 订单项请求
type OrderItemRequest struct {
	ProductID uint `json:"product_id" binding:"required"`
	Quantity  int  `json:"quantity" binding:"required,gt=0"`
}

// CreateOrderRequest 创建订单请求
type CreateOrderRequest struct {
	Items           []OrderItemRequest `json:"items" binding:"required,min=1,dive"`
	ShippingAddress models.JSON        `json:"shipping_address"`
	Notes           string             `json:"notes" binding:"max=1000"`
}

// CancelOrderRequest 取消订单请求
type CancelOrderRequest struct {
	Reason string `json:"reason" binding:"max=255"`
}

// CreateOrder 下单
func (h *Handler) CreateOrder(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}

	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handlershared.RespondBindError(c, err)
		return
	}

	items := make([]service.CreateOrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, service.CreateOrderItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}

	order, err := h.OrderService.CreateOrder(c.Request.Context(), service.CreateOrderInput{
		UserID:          uid,
		Items:           items,
		ShippingAddress: req.ShippingAddress,
		Notes:           req.Notes,
	})
	if err != nil {
		respondServiceError(c, err, "order create failed")
		return
	}
	requestLog(c).Infow("order_created_via_api", "order_id", order.ID, "user_id", uid)
	response.Success(c, order)
}

// ListOrders 我的订单
func (h *Handler) ListOrders(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	page, pageSize := handlershared.PageQuery(c)
	orders, total, err := h.OrderService.ListUserOrders(uid, strings.TrimSpace(c.Query("status")), page, pageSize)
	if err != nil {
		respondServiceError(c, err, "order fetch failed")
		return
	}
	response.SuccessWithPage(c, orders, handlershared.BuildPagination(page, pageSize, total))
}

// GetOrder 我的订单详情
func (h *Handler) GetOrder(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	orderID, ok := handlershared.ParseIDParam(c, "id")
	if !ok {
		return
	}
	order, err := h.OrderService.GetOrderForUser(orderID, uid)
	if err != nil {
		respondServiceError(c, err, "order fetch failed")
		return
	}
	response.Success(c, order)
}

// CancelOrder 用户取消订单
func (h *Handler) CancelOrder(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	orderID, ok := handlershared.ParseIDParam(c, "id")
	if !ok {
		return
	}
	var req CancelOrderRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			handlershared.RespondBindError(c, err)
			return
		}
	}
	order, err := h.OrderService.CancelOrder(c.Request.Context(), orderID, service.UserActor(uid), req.Reason)
	if err != nil {
		respondServiceError(c, err, "order cancel failed")
		return
	}
	response.Success(c, order)
}
