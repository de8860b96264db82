package public

import (
	"strings"

	handlershared "github.com/shopledger/internal/http/handlers/shared"
	"github.com/shopledger/internal/http/response"

	"github.com/gin-gonic/gin"
)

// GetProducts 公开商品列表
func (h *Handler) GetProducts(c *gin.Context) {
	page, pageSize := handlershared.PageQuery(c)
	products, total, err := h.ProductService.ListPublic(
		handlershared.QueryUint(c, "category_id"),
		strings.TrimSpace(c.Query("search")),
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

// GetProduct 商品详情
func (h *Handler) GetProduct(c *gin.Context) {
	id, ok := handlershared.ParseIDParam(c, "id")
	if !ok {
		return
	}
	product, err := h.ProductService.Get(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err, "product fetch failed")
		return
	}
	response.Success(c, product)
}

// GetFeaturedProducts 推荐商品
func (h *Handler) GetFeaturedProducts(c *gin.Context) {
	products, err := h.ProductService.Featured(c.Request.Context())
	if err != nil {
		respondServiceError(c, err, "product fetch failed")
		return
	}
	response.Success(c, products)
}

// GetBestsellers 热销商品
func (h *Handler) GetBestsellers(c *gin.Context) {
	products, err := h.ProductService.Bestsellers(c.Request.Context())
	if err != nil {
		respondServiceError(c, err, "product fetch failed")
		return
	}
	response.Success(c, products)
}

// GetCategories 分类列表
func (h *Handler) GetCategories(c *gin.Context) {
	categories, err := h.CategoryService.List(c.Request.Context())
	if err != nil {
		respondServiceError(c, err, "category fetch failed")
		return
	}
	response.Success(c, categories)
}
