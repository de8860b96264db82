package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/shopledger/internal/constants"
	"github.com/shopledger/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProductRepository 商品数据访问接口
type ProductRepository interface {
	List(filter ProductListFilter) ([]models.Product, int64, error)
	GetByID(id uint) (*models.Product, error)
	GetBySKU(sku string) (*models.Product, error)
	GetByIDForUpdate(id uint) (*models.Product, error)
	ListByIDs(ids []uint) ([]models.Product, error)
	ListFeatured(limit int) ([]models.Product, error)
	ListBestsellers(limit int) ([]models.Product, error)
	ListLowStock(threshold int) ([]models.Product, error)
	Create(product *models.Product) error
	Update(product *models.Product) error
	GetStock(id uint) (int, bool, error)
	DecrementStock(id uint, quantity int) (int64, error)
	ApplyStockDelta(id uint, delta int) (int64, error)
	WithTx(tx *gorm.DB) ProductRepository
	Transaction(fn func(tx *gorm.DB) error) error
}

// GormProductRepository GORM 实现
type GormProductRepository struct {
	db *gorm.DB
}

// NewProductRepository 创建商品仓库
func NewProductRepository(db *gorm.DB) *GormProductRepository {
	return &GormProductRepository{db: db}
}

// WithTx 绑定事务
func (r *GormProductRepository) WithTx(tx *gorm.DB) ProductRepository {
	if tx == nil {
		return r
	}
	return &GormProductRepository{db: tx}
}

// Transaction 执行事务
func (r *GormProductRepository) Transaction(fn func(tx *gorm.DB) error) error {
	return r.db.Transaction(fn)
}

// List 商品列表
func (r *GormProductRepository) List(filter ProductListFilter) ([]models.Product, int64, error) {
	var products []models.Product

	query := r.db.Model(&models.Product{})
	if filter.WithCategory {
		query = query.Preload("Category")
	}
	if filter.OnlyActive {
		query = query.Where("is_active = ?", true)
	}
	if filter.OnlyFeatured {
		query = query.Where("is_featured = ?", true)
	}
	if filter.CategoryID != 0 {
		query = query.Where("category_id = ?", filter.CategoryID)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		condition, args := likeAny(r.db, search, "sku", "name")
		query = query.Where(condition, args...)
	}
	query = applyStockStatusFilter(query, strings.ToLower(strings.TrimSpace(filter.StockStatus)), filter.LowStockAt)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Scopes(paginate(filter.Page, filter.PageSize))

	if err := query.Order("created_at DESC, id DESC").Find(&products).Error; err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

func applyStockStatusFilter(query *gorm.DB, status string, threshold int) *gorm.DB {
	if threshold <= 0 {
		threshold = constants.DefaultLowStockThreshold
	}
	switch status {
	case constants.ProductStockStatusOutOfStock:
		return query.Where("stock_quantity = 0")
	case constants.ProductStockStatusLowStock:
		return query.Where("stock_quantity > 0 AND stock_quantity <= ?", threshold)
	case constants.ProductStockStatusInStock:
		return query.Where("stock_quantity > ?", threshold)
	default:
		return query
	}
}

// GetByID 根据 ID 获取商品
func (r *GormProductRepository) GetByID(id uint) (*models.Product, error) {
	var product models.Product
	if err := r.db.Preload("Category").First(&product, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &product, nil
}

// GetBySKU 根据商品编码获取商品
func (r *GormProductRepository) GetBySKU(sku string) (*models.Product, error) {
	var product models.Product
	if err := r.db.Where("sku = ?", strings.TrimSpace(sku)).First(&product).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &product, nil
}

// GetByIDForUpdate 加行锁读取商品（sqlite 忽略锁子句）
func (r *GormProductRepository) GetByIDForUpdate(id uint) (*models.Product, error) {
	var product models.Product
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&product, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &product, nil
}

// ListByIDs 批量获取商品，按 ID 升序返回
func (r *GormProductRepository) ListByIDs(ids []uint) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}
	var products []models.Product
	if err := r.db.Where("id IN ?", ids).Order("id ASC").Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

// ListFeatured 推荐商品
func (r *GormProductRepository) ListFeatured(limit int) ([]models.Product, error) {
	if limit <= 0 {
		limit = 8
	}
	var products []models.Product
	err := r.db.Where("is_active = ? AND is_featured = ?", true, true).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&products).Error
	if err != nil {
		return nil, err
	}
	return products, nil
}

type productSalesRow struct {
	ProductID uint
	Quantity  int64
}

// ListBestsellers 按有效订单销量排序的热销商品
func (r *GormProductRepository) ListBestsellers(limit int) ([]models.Product, error) {
	if limit <= 0 {
		limit = 8
	}
	var rows []productSalesRow
	err := r.db.Table("order_items AS oi").
		Select("oi.product_id AS product_id, COALESCE(SUM(oi.quantity), 0) AS quantity").
		Joins("JOIN orders o ON o.id = oi.order_id").
		Joins("JOIN products p ON p.id = oi.product_id AND p.deleted_at IS NULL").
		Where("o.status NOT IN ?", []string{constants.OrderStatusCancelled, constants.OrderStatusRefunded}).
		Where("p.is_active = ?", true).
		Group("oi.product_id").
		Order("quantity DESC, oi.product_id ASC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []models.Product{}, nil
	}
	ids := make([]uint, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ProductID)
	}
	products, err := r.ListByIDs(ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]models.Product, len(products))
	for _, product := range products {
		byID[product.ID] = product
	}
	ranked := make([]models.Product, 0, len(products))
	for _, id := range ids {
		if product, ok := byID[id]; ok {
			ranked = append(ranked, product)
		}
	}
	return ranked, nil
}

// ListLowStock 库存不高于阈值或最低库存线的上架商品，按库存升序
func (r *GormProductRepository) ListLowStock(threshold int) ([]models.Product, error) {
	if threshold <= 0 {
		threshold = constants.DefaultLowStockThreshold
	}
	var products []models.Product
	err := r.db.Where("is_active = ? AND (stock_quantity <= ? OR stock_quantity <= min_stock_level)", true, threshold).
		Order("stock_quantity ASC, id ASC").
		Find(&products).Error
	if err != nil {
		return nil, err
	}
	return products, nil
}

// Create 创建商品，初始库存作为对账基准
func (r *GormProductRepository) Create(product *models.Product) error {
	product.InitialStock = product.StockQuantity
	return r.db.Create(product).Error
}

// Update 更新商品资料（库存列不参与）
func (r *GormProductRepository) Update(product *models.Product) error {
	return r.db.Model(product).
		Select("category_id", "sku", "name", "description", "price", "sale_price", "cost_price",
			"min_stock_level", "is_active", "is_featured", "updated_at").
		Updates(product).Error
}

// GetStock 读取当前库存（包含已下架/软删除商品）
func (r *GormProductRepository) GetStock(id uint) (int, bool, error) {
	var product models.Product
	err := r.db.Unscoped().Select("id", "stock_quantity").First(&product, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return product.StockQuantity, true, nil
}

// DecrementStock 条件扣减库存，库存不足时影响行数为 0
func (r *GormProductRepository) DecrementStock(id uint, quantity int) (int64, error) {
	if id == 0 || quantity <= 0 {
		return 0, nil
	}
	result := r.db.Unscoped().Model(&models.Product{}).
		Where("id = ? AND stock_quantity >= ?", id, quantity).
		Updates(map[string]interface{}{
			"stock_quantity": gorm.Expr("stock_quantity - ?", quantity),
			"updated_at":     time.Now(),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// ApplyStockDelta 带符号调整库存，结果为负时影响行数为 0
func (r *GormProductRepository) ApplyStockDelta(id uint, delta int) (int64, error) {
	if id == 0 || delta == 0 {
		return 0, nil
	}
	result := r.db.Unscoped().Model(&models.Product{}).
		Where("id = ? AND stock_quantity + ? >= 0", id, delta).
		Updates(map[string]interface{}{
			"stock_quantity": gorm.Expr("stock_quantity + ?", delta),
			"updated_at":     time.Now(),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
