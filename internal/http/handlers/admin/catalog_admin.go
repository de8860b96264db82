package admin

import (
	"strings"

	handlershared "github.com/shopledger/internal/http/handlers/shared"
	"github.com/shopledger/internal/http/response"
	"github.com/shopledger/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// CreateProductRequest 商品建档请求
type CreateProductRequest struct {
	CategoryID    uint             `json:"category_id"`
	SKU           string           `json:"sku" binding:"required,sku"`
	Name          string           `json:"name" binding:"required,max=255"`
	Description   string           `json:"description"`
	Price         decimal.Decimal  `json:"price"`
	SalePrice     *decimal.Decimal `json:"sale_price"`
	CostPrice     *decimal.Decimal `json:"cost_price"`
	InitialStock  int              `json:"initial_stock" binding:"gte=0"`
	MinStockLevel int              `json:"min_stock_level" binding:"gte=0"`
	IsActive      *bool            `json:"is_active"`
	IsFeatured    bool             `json:"is_featured"`
}

// CreateCategoryRequest 分类创建请求
type CreateCategoryRequest struct {
	Slug      string `json:"slug" binding:"required,max=64"`
	Name      string `json:"name" binding:"required,max=128"`
	SortOrder int    `json:"sort_order"`
}

// GetAdminProducts 后台商品列表（含下架）
func (h *Handler) GetAdminProducts(c *gin.Context) {
	page, pageSize := handlershared.PageQuery(c)
	products, total, err := h.ProductService.ListAdmin(
		handlershared.QueryUint(c, "category_id"),
		c.Query("search"),
		strings.TrimSpace(c.Query("stock_status")),
		page,
		pageSize,
	)
	if err != nil {
		respondServiceError(c, err, "product fetch failed")
		return
	}
	response.SuccessWithPage(c, products, handlershared.BuildPagination(page, pageSize, total))
}

// CreateProduct 商品建档，初始库存写入对账基准
func (h *Handler) CreateProduct(c *gin.Context) {
	var req CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handlershared.RespondBindError(c, err)
		return
	}
	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}
	product, err := h.ProductService.Create(service.CreateProductInput{
		CategoryID:    req.CategoryID,
		SKU:           req.SKU,
		Name:          req.Name,
		Description:   req.Description,
		Price:         req.Price,
		SalePrice:     req.SalePrice,
		CostPrice:     req.CostPrice,
		InitialStock:  req.InitialStock,
		MinStockLevel: req.MinStockLevel,
		IsActive:      isActive,
		IsFeatured:    req.IsFeatured,
	})
	if err != nil {
		respondServiceError(c, err, "product create failed")
		return
	}
	h.CacheCoordinator.Publish(service.StockChanged{ProductIDs: []uint{product.ID}})
	response.Success(c, product)
}

// GetAdminCategories 分类列表
func (h *Handler) GetAdminCategories(c *gin.Context) {
	categories, err := h.CategoryService.List(c.Request.Context())
	if err != nil {
		respondServiceError(c, err, "category fetch failed")
		return
	}
	response.Success(c, categories)
}

// CreateCategory 创建分类
func (h *Handler) CreateCategory(c *gin.Context) {
	var req CreateCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handlershared.RespondBindError(c, err)
		return
	}
	category, err := h.CategoryService.Create(service.CreateCategoryInput{
		Slug:      req.Slug,
		Name:      req.Name,
		SortOrder: req.SortOrder,
	})
	if err != nil {
		respondServiceError(c, err, "category create failed")
		return
	}
	response.Success(c, category)
}
