package repository

import (
	"time"

	"github.com/shopledger/internal/models"

	"gorm.io/gorm"
)

// CartRepository 购物车数据访问接口
type CartRepository interface {
	ListByUser(userID uint) ([]models.CartItem, error)
	GetByUserAndProduct(userID, productID uint) (*models.CartItem, error)
	Save(item *models.CartItem) error
	DeleteByUserAndProduct(userID, productID uint) (int64, error)
	ClearByUser(userID uint) (int64, error)
	WithTx(tx *gorm.DB) CartRepository
}

// GormCartRepository GORM 实现
type GormCartRepository struct {
	db *gorm.DB
}

// NewCartRepository 创建购物车仓库
func NewCartRepository(db *gorm.DB) *GormCartRepository {
	return &GormCartRepository{db: db}
}

// WithTx 绑定事务
func (r *GormCartRepository) WithTx(tx *gorm.DB) CartRepository {
	if tx == nil {
		return r
	}
	return &GormCartRepository{db: tx}
}

// ListByUser 获取用户购物车项，附带商品（含已下架/软删除）
func (r *GormCartRepository) ListByUser(userID uint) ([]models.CartItem, error) {
	items := make([]models.CartItem, 0)
	err := r.db.Preload("Product", func(db *gorm.DB) *gorm.DB {
		return db.Unscoped()
	}).Where("user_id = ?", userID).Order("updated_at DESC, id DESC").Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// GetByUserAndProduct 查询单个购物车项，不存在返回 nil
func (r *GormCartRepository) GetByUserAndProduct(userID, productID uint) (*models.CartItem, error) {
	return firstOrNil[models.CartItem](r.db.Where("user_id = ? AND product_id = ?", userID, productID))
}

// Save 新建或更新数量
func (r *GormCartRepository) Save(item *models.CartItem) error {
	if item == nil {
		return nil
	}
	if item.ID == 0 {
		return r.db.Create(item).Error
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = time.Now()
	}
	return r.db.Model(&models.CartItem{}).
		Where("id = ?", item.ID).
		Updates(map[string]interface{}{
			"quantity":   item.Quantity,
			"updated_at": item.UpdatedAt,
		}).Error
}

// DeleteByUserAndProduct 删除购物车项，返回受影响行数
func (r *GormCartRepository) DeleteByUserAndProduct(userID, productID uint) (int64, error) {
	result := r.db.Where("user_id = ? AND product_id = ?", userID, productID).Delete(&models.CartItem{})
	return result.RowsAffected, result.Error
}

// ClearByUser 清空购物车，返回删除行数
func (r *GormCartRepository) ClearByUser(userID uint) (int64, error) {
	result := r.db.Where("user_id = ?", userID).Delete(&models.CartItem{})
	return result.RowsAffected, result.Error
}
