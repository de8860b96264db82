package admin

import (
	"strconv"
	"strings"

	handlershared "github.com/shopledger/internal/http/handlers/shared"
	"github.com/shopledger/internal/http/response"
	"github.com/shopledger/internal/models"
	"github.com/shopledger/internal/repository"
	"github.com/shopledger/internal/service"

	"github.com/gin-gonic/gin"
)

// AdjustStockRequest 人工调整库存请求
type AdjustStockRequest struct {
	ProductID uint          `json:"product_id" binding:"required"`
	Delta     int           `json:"delta" binding:"required,ne=0"`
	Reason    string        `json:"reason" binding:"required,max=255"`
	UnitCost  *models.Money `json:"unit_cost"`
}

// StockInRequest 采购入库请求
type StockInRequest struct {
	ProductID uint          `json:"product_id" binding:"required"`
	Quantity  int           `json:"quantity" binding:"required,gt=0"`
	UnitCost  *models.Money `json:"unit_cost"`
	Notes     string        `json:"notes" binding:"max=255"`
}

// AdjustStock 人工调整库存
func (h *Handler) AdjustStock(c *gin.Context) {
	var req AdjustStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handlershared.RespondBindError(c, err)
		return
	}
	txn, err := h.StockLedger.Adjust(c.Request.Context(), service.AdjustStockInput{
		ProductID: req.ProductID,
		Delta:     req.Delta,
		Reason:    req.Reason,
		UserID:    currentAdminID(c),
		UnitCost:  req.UnitCost,
	})
	if err != nil {
		respondServiceError(c, err, "inventory adjust failed")
		return
	}
	response.Success(c, txn)
}

// StockIn 采购入库
func (h *Handler) StockIn(c *gin.Context) {
	var req StockInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handlershared.RespondBindError(c, err)
		return
	}
	txn, err := h.StockLedger.StockIn(c.Request.Context(), service.StockInInput{
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		UnitCost:  req.UnitCost,
		Notes:     req.Notes,
		UserID:    currentAdminID(c),
	})
	if err != nil {
		respondServiceError(c, err, "stock in failed")
		return
	}
	response.Success(c, txn)
}

// GetInventoryHistory 商品库存流水
func (h *Handler) GetInventoryHistory(c *gin.Context) {
	id, ok := handlershared.ParseIDParam(c, "id")
	if !ok {
		return
	}
	page, pageSize := handlershared.PageQuery(c)
	txns, total, err := h.StockLedger.History(id, page, pageSize)
	if err != nil {
		respondServiceError(c, err, "inventory history fetch failed")
		return
	}
	response.SuccessWithPage(c, txns, handlershared.BuildPagination(page, pageSize, total))
}

// ListInventoryTransactions 全量流水查询
func (h *Handler) ListInventoryTransactions(c *gin.Context) {
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

	txns, total, err := h.StockLedger.ListTransactions(repository.InventoryTransactionListFilter{
		Page:            page,
		PageSize:        pageSize,
		ProductID:       handlershared.QueryUint(c, "product_id"),
		TransactionType: strings.TrimSpace(c.Query("transaction_type")),
		ReferenceType:   strings.TrimSpace(c.Query("reference_type")),
		ReferenceID:     handlershared.QueryUint(c, "reference_id"),
		CreatedFrom:     createdFrom,
		CreatedTo:       createdTo,
	})
	if err != nil {
		respondServiceError(c, err, "inventory transaction fetch failed")
		return
	}
	response.SuccessWithPage(c, txns, handlershared.BuildPagination(page, pageSize, total))
}

// GetLowStockProducts 低库存商品
func (h *Handler) GetLowStockProducts(c *gin.Context) {
	threshold, _ := strconv.Atoi(c.DefaultQuery("threshold", "0"))
	products, err := h.StockLedger.LowStock(threshold)
	if err != nil {
		respondServiceError(c, err, "low stock fetch failed")
		return
	}
	response.Success(c, products)
}

// GetInventoryStats 库存统计
func (h *Handler) GetInventoryStats(c *gin.Context) {
	stats, err := h.StockLedger.Stats()
	if err != nil {
		respondServiceError(c, err, "inventory stats fetch failed")
		return
	}
	response.Success(c, stats)
}

// ReconcileInventory 单商品台账对账
func (h *Handler) ReconcileInventory(c *gin.Context) {
	id, ok := handlershared.ParseIDParam(c, "id")
	if !ok {
		return
	}
	report, err := h.StockLedger.Reconcile(id)
	if err != nil {
		respondServiceError(c, err, "inventory reconcile failed")
		return
	}
	response.Success(c, report)
}
