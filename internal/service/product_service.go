package service

import (
	"context"
	"strings"
	"time"

	"github.com/shopledger/internal/cache"
	"github.com/shopledger/internal/config"
	"github.com/shopledger/internal/constants"
	"github.com/shopledger/internal/logger"
	"github.com/shopledger/internal/models"
	"github.com/shopledger/internal/repository"

	"github.com/shopspring/decimal"
)

const (
	defaultProductListTTL = 10 * time.Minute
	catalogListLimit      = 8
)

// ProductService 商品目录服务（只读视图 + 初始化建档）
type ProductService struct {
	repo     repository.ProductRepository
	store    cache.Store
	listTTL  time.Duration
	lowStock int
}

// NewProductService 创建商品服务
func NewProductService(repo repository.ProductRepository, store cache.Store, cfg config.CacheConfig, lowStockThreshold int) *ProductService {
	return &ProductService{
		repo:     repo,
		store:    store,
		listTTL:  positiveDuration(cfg.ProductListTTL, defaultProductListTTL),
		lowStock: positiveInt(lowStockThreshold, constants.DefaultLowStockThreshold),
	}
}

// CreateProductInput 建档输入，库存只能通过初始库存写入
type CreateProductInput struct {
	CategoryID    uint
	SKU           string
	Name          string
	Description   string
	Price         decimal.Decimal
	SalePrice     *decimal.Decimal
	CostPrice     *decimal.Decimal
	InitialStock  int
	MinStockLevel int
	IsActive      bool
	IsFeatured    bool
}

// ListPublic 获取公开商品列表
func (s *ProductService) ListPublic(categoryID uint, search, stockStatus string, page, pageSize int) ([]models.Product, int64, error) {
	return s.list(categoryID, search, stockStatus, page, pageSize, true)
}

// ListAdmin 后台商品列表，包含已下架商品
func (s *ProductService) ListAdmin(categoryID uint, search, stockStatus string, page, pageSize int) ([]models.Product, int64, error) {
	return s.list(categoryID, search, stockStatus, page, pageSize, false)
}

func (s *ProductService) list(categoryID uint, search, stockStatus string, page, pageSize int, onlyActive bool) ([]models.Product, int64, error) {
	switch stockStatus {
	case "", constants.ProductStockStatusInStock, constants.ProductStockStatusLowStock, constants.ProductStockStatusOutOfStock:
	default:
		return nil, 0, newValidationError("stock_status", "unknown value %q", stockStatus)
	}
	page, pageSize = normalizePage(page, pageSize)
	return s.repo.List(repository.ProductListFilter{
		Page:         page,
		PageSize:     pageSize,
		CategoryID:   categoryID,
		Search:       strings.TrimSpace(search),
		StockStatus:  stockStatus,
		LowStockAt:   s.lowStock,
		OnlyActive:   onlyActive,
		WithCategory: true,
	})
}

// Get 获取商品详情（缓存 product:{id}）
func (s *ProductService) Get(ctx context.Context, id uint) (*models.Product, error) {
	product, err := cachedFetch(ctx, s.store, cache.ProductKey(id), s.listTTL, func() (*models.Product, error) {
		return s.repo.GetByID(id)
	})
	if err != nil {
		return nil, err
	}
	if product == nil || !product.IsActive {
		return nil, &NotFoundError{Resource: "product", ID: id}
	}
	return product, nil
}

// Featured 推荐商品（缓存 products:featured）
func (s *ProductService) Featured(ctx context.Context) ([]models.Product, error) {
	return cachedFetch(ctx, s.store, constants.CacheKeyProductsFeatured, s.listTTL, func() ([]models.Product, error) {
		return s.repo.ListFeatured(catalogListLimit)
	})
}

// Bestsellers 热销商品（缓存 products:bestsellers）
func (s *ProductService) Bestsellers(ctx context.Context) ([]models.Product, error) {
	return cachedFetch(ctx, s.store, constants.CacheKeyProductsBest, s.listTTL, func() ([]models.Product, error) {
		return s.repo.ListBestsellers(catalogListLimit)
	})
}

// Create 商品建档，初始库存即对账基准
func (s *ProductService) Create(input CreateProductInput) (*models.Product, error) {
	sku := strings.ToUpper(strings.TrimSpace(input.SKU))
	if sku == "" {
		return nil, newValidationError("sku", "is required")
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, newValidationError("name", "is required")
	}
	if input.Price.IsNegative() {
		return nil, newValidationError("price", "must not be negative")
	}
	if input.InitialStock < 0 {
		return nil, newValidationError("initial_stock", "must not be negative")
	}
	if input.MinStockLevel < 0 {
		return nil, newValidationError("min_stock_level", "must not be negative")
	}
	existing, err := s.repo.GetBySKU(sku)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	product := &models.Product{
		CategoryID:    input.CategoryID,
		SKU:           sku,
		Name:          name,
		Description:   strings.TrimSpace(input.Description),
		Price:         models.NewMoneyFromDecimal(input.Price),
		StockQuantity: input.InitialStock,
		InitialStock:  input.InitialStock,
		MinStockLevel: input.MinStockLevel,
		IsActive:      input.IsActive,
		IsFeatured:    input.IsFeatured,
	}
	if input.SalePrice != nil {
		product.SalePrice = models.MoneyPtr(*input.SalePrice)
	}
	if input.CostPrice != nil {
		product.CostPrice = models.MoneyPtr(*input.CostPrice)
	}
	if err := s.repo.Create(product); err != nil {
		return nil, err
	}
	logger.Infow("product_created", "product_id", product.ID, "sku", product.SKU, "initial_stock", product.InitialStock)
	return product, nil
}

// cachedFetch 读穿缓存，缓存异常只记录日志
func cachedFetch[T any](ctx context.Context, store cache.Store, key string, ttl time.Duration, fetch func() (T, error)) (T, error) {
	if store != nil {
		var cached T
		hit, err := store.GetJSON(ctx, key, &cached)
		if err != nil {
			logger.Warnw("cache_get_failed", "key", key, "error", err)
		} else if hit {
			return cached, nil
		}
	}
	value, err := fetch()
	if err != nil {
		return value, err
	}
	if store != nil {
		if err := store.SetJSON(ctx, key, value, ttl); err != nil {
			logger.Warnw("cache_set_failed", "key", key, "error", err)
		}
	}
	return value, nil
}
