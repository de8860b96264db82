package admin

import (
	"strings"

	handlershared "github.com/shopledger/internal/http/handlers/shared"
	"github.com/shopledger/internal/http/response"
	"github.com/shopledger/internal/repository"
	"github.com/shopledger/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// CancelOrderRequest 后台取消订单请求
type CancelOrderRequest struct {
	Reason string `json:"reason" binding:"max=255"`
}

// RefundOrderRequest 后台退款请求
type RefundOrderRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason" binding:"required,max=255"`
}

// ConfirmPaymentRequest 确认收款请求
type ConfirmPaymentRequest struct {
	PaymentRef string `json:"payment_ref" binding:"max=128"`
}

// AdminListOrders 管理端订单列表
func (h *Handler) AdminListOrders(c *gin.Context) {
	page, pageSize := handlershared.PageQuery(c)

	createdFrom, err := handlershared.ParseTimeNullable(c.Query("created_from"))
	if err != nil {
		respondError(c, response.CodeBadRequest, "invalid created_from", err)
		return
	}
	createdTo, err := handlershared.ParseTimeNullable(c.Query("created_to"))
	if err != nil {
		respondError(c, response.CodeBadRequest, "invalid created_to", err)
		return
	}

	orders, total, err := h.OrderService.ListOrders(repository.OrderListFilter{
		Page:          page,
		PageSize:      pageSize,
		UserID:        handlershared.QueryUint(c, "user_id"),
		Status:        strings.TrimSpace(c.Query("status")),
		PaymentStatus: strings.TrimSpace(c.Query("payment_status")),
		OrderNo:       strings.TrimSpace(c.Query("order_no")),
		CreatedFrom:   createdFrom,
		CreatedTo:     createdTo,
	})
	if err != nil {
		respondServiceError(c, err, "order fetch failed")
		return
	}
	response.SuccessWithPage(c, orders, handlershared.BuildPagination(page, pageSize, total))
}

// AdminGetOrder 管理端订单详情
func (h *Handler) AdminGetOrder(c *gin.Context) {
	id, ok := handlershared.ParseIDParam(c, "id")
	if !ok {
		return
	}
	order, err := h.OrderService.GetOrder(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err, "order fetch failed")
		return
	}
	response.Success(c, order)
}

// AdminCancelOrder 管理员取消订单（pending / confirmed / processing）
func (h *Handler) AdminCancelOrder(c *gin.Context) {
	adminID, ok := getAdminID(c)
	if !ok {
		return
	}
	id, ok := handlershared.ParseIDParam(c, "id")
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
	order, err := h.OrderService.CancelOrder(c.Request.Context(), id, service.AdminActor(adminID), req.Reason)
	if err != nil {
		respondServiceError(c, err, "order cancel failed")
		return
	}
	response.Success(c, order)
}

// AdminRefundOrder 已发货或已签收订单退款
func (h *Handler) AdminRefundOrder(c *gin.Context) {
	id, ok := handlershared.ParseIDParam(c, "id")
	if !ok {
		return
	}
	var req RefundOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handlershared.RespondBindError(c, err)
		return
	}
	order, err := h.OrderService.Refund(c.Request.Context(), service.RefundInput{
		OrderID: id,
		Amount:  req.Amount,
		Reason:  req.Reason,
	})
	if err != nil {
		respondServiceError(c, err, "order refund failed")
		return
	}
	requestLog(c).Infow("admin_order_refunded",
		"admin_id", currentAdminID(c),
		"order_id", order.ID,
		"amount", req.Amount.StringFixed(2),
	)
	response.Success(c, order)
}

// AdminAdvanceOrder 手动推进订单到下一状态
func (h *Handler) AdminAdvanceOrder(c *gin.Context) {
	id, ok := handlershared.ParseIDParam(c, "id")
	if !ok {
		return
	}
	order, err := h.ProgressionService.AdvanceOrder(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err, "order advance failed")
		return
	}
	response.Success(c, order)
}

// AdminConfirmPayment 线下确认收款
func (h *Handler) AdminConfirmPayment(c *gin.Context) {
	id, ok := handlershared.ParseIDParam(c, "id")
	if !ok {
		return
	}
	var req ConfirmPaymentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			handlershared.RespondBindError(c, err)
			return
		}
	}
	order, err := h.OrderService.ConfirmPayment(c.Request.Context(), id, req.PaymentRef)
	if err != nil {
		respondServiceError(c, err, "payment confirm failed")
		return
	}
	response.Success(c, order)
}

// AdminRecentOrders 最近订单
func (h *Handler) AdminRecentOrders(c *gin.Context) {
	orders, err := h.AnalyticsService.RecentOrders(c.Request.Context())
	if err != nil {
		respondServiceError(c, err, "order fetch failed")
		return
	}
	response.Success(c, orders)
}
