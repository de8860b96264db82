package repository

import (
	"strings"

	"github.com/shopledger/internal/models"

	"gorm.io/gorm"
)

// InventoryTransactionRepository 库存流水数据访问接口（只追加）
type InventoryTransactionRepository interface {
	Create(txn *models.InventoryTransaction) error
	ListByProduct(productID uint, page, pageSize int) ([]models.InventoryTransaction, int64, error)
	List(filter InventoryTransactionListFilter) ([]models.InventoryTransaction, int64, error)
	ListByReference(referenceType string, referenceID uint) ([]models.InventoryTransaction, error)
	SumByProduct(productID uint) (InventoryLedgerSum, error)
	WithTx(tx *gorm.DB) InventoryTransactionRepository
}

// InventoryLedgerSum 单商品流水汇总
type InventoryLedgerSum struct {
	Count         int64
	QuantityTotal int64
}

// GormInventoryTransactionRepository GORM 实现
type GormInventoryTransactionRepository struct {
	db *gorm.DB
}

// NewInventoryTransactionRepository 创建库存流水仓库
func NewInventoryTransactionRepository(db *gorm.DB) *GormInventoryTransactionRepository {
	return &GormInventoryTransactionRepository{db: db}
}

// WithTx 绑定事务
func (r *GormInventoryTransactionRepository) WithTx(tx *gorm.DB) InventoryTransactionRepository {
	if tx == nil {
		return r
	}
	return &GormInventoryTransactionRepository{db: tx}
}

// Create 追加流水
func (r *GormInventoryTransactionRepository) Create(txn *models.InventoryTransaction) error {
	return r.db.Create(txn).Error
}

// ListByProduct 商品流水历史，按时间倒序
func (r *GormInventoryTransactionRepository) ListByProduct(productID uint, page, pageSize int) ([]models.InventoryTransaction, int64, error) {
	return r.List(InventoryTransactionListFilter{
		Page:      page,
		PageSize:  pageSize,
		ProductID: productID,
	})
}

// List 流水列表
func (r *GormInventoryTransactionRepository) List(filter InventoryTransactionListFilter) ([]models.InventoryTransaction, int64, error) {
	query := r.db.Model(&models.InventoryTransaction{})
	if filter.ProductID != 0 {
		query = query.Where("product_id = ?", filter.ProductID)
	}
	if txnType := strings.ToUpper(strings.TrimSpace(filter.TransactionType)); txnType != "" {
		query = query.Where("transaction_type = ?", txnType)
	}
	if refType := strings.ToUpper(strings.TrimSpace(filter.ReferenceType)); refType != "" {
		query = query.Where("reference_type = ?", refType)
	}
	if filter.ReferenceID != 0 {
		query = query.Where("reference_id = ?", filter.ReferenceID)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at <= ?", *filter.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Scopes(paginate(filter.Page, filter.PageSize))

	var txns []models.InventoryTransaction
	if err := query.Order("created_at DESC, id DESC").Find(&txns).Error; err != nil {
		return nil, 0, err
	}
	return txns, total, nil
}

// ListByReference 关联单据的全部流水，按写入顺序
func (r *GormInventoryTransactionRepository) ListByReference(referenceType string, referenceID uint) ([]models.InventoryTransaction, error) {
	var txns []models.InventoryTransaction
	err := r.db.Where("reference_type = ? AND reference_id = ?", strings.ToUpper(strings.TrimSpace(referenceType)), referenceID).
		Order("id ASC").
		Find(&txns).Error
	if err != nil {
		return nil, err
	}
	return txns, nil
}

// SumByProduct 汇总商品流水条数与带符号数量
func (r *GormInventoryTransactionRepository) SumByProduct(productID uint) (InventoryLedgerSum, error) {
	var sum InventoryLedgerSum
	err := r.db.Model(&models.InventoryTransaction{}).
		Select("COUNT(*) AS count, COALESCE(SUM(quantity), 0) AS quantity_total").
		Where("product_id = ?", productID).
		Scan(&sum).Error
	return sum, err
}
