package service

import (
	"context"
	"strings"

	"github.com/shopledger/internal/constants"
	"github.com/shopledger/internal/logger"
	"github.com/shopledger/internal/models"
	"github.com/shopledger/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StockReference 库存变动的关联信息
type StockReference struct {
	Type     models.ReferenceType
	ID       *uint
	UserID   *uint
	Notes    string
	UnitCost *models.Money
}

// AdjustStockInput 人工调整库存输入
type AdjustStockInput struct {
	ProductID uint
	Delta     int
	Reason    string
	UserID    *uint
	UnitCost  *models.Money
}

// StockInInput 入库输入
type StockInInput struct {
	ProductID uint
	Quantity  int
	UnitCost  *models.Money
	Notes     string
	UserID    *uint
}

// ReconcileReport 单商品对账结果
type ReconcileReport struct {
	ProductID        uint  `json:"product_id"`
	InitialStock     int   `json:"initial_stock"`
	LedgerTotal      int64 `json:"ledger_total"`
	TransactionCount int64 `json:"transaction_count"`
	ExpectedStock    int64 `json:"expected_stock"`
	CurrentStock     int   `json:"current_stock"`
	Consistent       bool  `json:"consistent"`
}

// InventoryStats 库存统计
type InventoryStats struct {
	TotalProducts      int64           `json:"total_products"`
	TotalUnits         int64           `json:"total_units"`
	LowStockProducts   int64           `json:"low_stock_products"`
	OutOfStockProducts int64           `json:"out_of_stock_products"`
	InventoryValue     decimal.Decimal `json:"inventory_value"`
	LowStockThreshold  int             `json:"low_stock_threshold"`
}

// StockLedger 库存台账，products.stock_quantity 的唯一写入口
type StockLedger struct {
	db                *gorm.DB
	productRepo       repository.ProductRepository
	txnRepo           repository.InventoryTransactionRepository
	dashboardRepo     repository.DashboardRepository
	events            CacheEventPublisher
	maxRetries        int
	lowStockThreshold int
}

// NewStockLedger 创建库存台账
func NewStockLedger(db *gorm.DB, productRepo repository.ProductRepository, txnRepo repository.InventoryTransactionRepository, dashboardRepo repository.DashboardRepository, events CacheEventPublisher, maxRetries, lowStockThreshold int) *StockLedger {
	if lowStockThreshold <= 0 {
		lowStockThreshold = constants.DefaultLowStockThreshold
	}
	return &StockLedger{
		db:                db,
		productRepo:       productRepo,
		txnRepo:           txnRepo,
		dashboardRepo:     dashboardRepo,
		events:            events,
		maxRetries:        maxRetries,
		lowStockThreshold: lowStockThreshold,
	}
}

// Decrement 在调用方事务内条件扣减库存并追加 OUT 流水
func (s *StockLedger) Decrement(tx *gorm.DB, productID uint, quantity int, ref StockReference) (*models.InventoryTransaction, error) {
	if quantity <= 0 {
		return nil, newValidationError("quantity", "must be positive")
	}
	productRepo := s.productRepo.WithTx(tx)
	affected, err := productRepo.DecrementStock(productID, quantity)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		available, found, err := productRepo.GetStock(productID)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, &NotFoundError{Resource: "product", ID: productID}
		}
		return nil, &InsufficientStockError{ProductID: productID, Requested: quantity, Available: available}
	}
	return s.appendTransaction(tx, productID, -quantity, models.TransactionTypeOut, ref)
}

// Increment 在调用方事务内增加库存并追加流水（RETURN / IN / ADJUSTMENT）
func (s *StockLedger) Increment(tx *gorm.DB, productID uint, quantity int, ref StockReference, txnType models.TransactionType) (*models.InventoryTransaction, error) {
	if quantity <= 0 {
		return nil, newValidationError("quantity", "must be positive")
	}
	if !txnType.Valid() || txnType == models.TransactionTypeOut {
		return nil, newValidationError("transaction_type", "%q is not an increment type", txnType)
	}
	return s.applyDelta(tx, productID, quantity, txnType, ref)
}

func (s *StockLedger) applyDelta(tx *gorm.DB, productID uint, delta int, txnType models.TransactionType, ref StockReference) (*models.InventoryTransaction, error) {
	productRepo := s.productRepo.WithTx(tx)
	affected, err := productRepo.ApplyStockDelta(productID, delta)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		current, found, err := productRepo.GetStock(productID)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, &NotFoundError{Resource: "product", ID: productID}
		}
		return nil, &NegativeStockError{ProductID: productID, Current: current, Delta: delta}
	}
	return s.appendTransaction(tx, productID, delta, txnType, ref)
}

// appendTransaction 条件更新成功后读取新库存，推导变动前库存并写流水
func (s *StockLedger) appendTransaction(tx *gorm.DB, productID uint, delta int, txnType models.TransactionType, ref StockReference) (*models.InventoryTransaction, error) {
	productRepo := s.productRepo.WithTx(tx)
	newStock, _, err := productRepo.GetStock(productID)
	if err != nil {
		return nil, err
	}
	refType := ref.Type
	if refType == "" {
		refType = models.ReferenceTypeSystem
	}
	unitCost := models.Money{}
	if ref.UnitCost != nil {
		unitCost = models.NewMoneyFromDecimal(ref.UnitCost.Decimal)
	} else if product, err := productRepo.GetByID(productID); err == nil && product != nil {
		unitCost = product.UnitCost()
	}
	abs := delta
	if abs < 0 {
		abs = -abs
	}
	txn := &models.InventoryTransaction{
		ProductID:       productID,
		UserID:          ref.UserID,
		TransactionType: txnType,
		Quantity:        delta,
		PreviousStock:   newStock - delta,
		NewStock:        newStock,
		ReferenceType:   refType,
		ReferenceID:     ref.ID,
		UnitCost:        unitCost,
		TotalValue:      unitCost.MulInt(abs),
		Notes:           strings.TrimSpace(ref.Notes),
	}
	if err := s.txnRepo.WithTx(tx).Create(txn); err != nil {
		return nil, err
	}
	return txn, nil
}

// Adjust 人工调整库存（带符号），独立事务
func (s *StockLedger) Adjust(ctx context.Context, input AdjustStockInput) (*models.InventoryTransaction, error) {
	if input.ProductID == 0 {
		return nil, newValidationError("product_id", "is required")
	}
	if input.Delta == 0 {
		return nil, newValidationError("delta", "must not be zero")
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, newValidationError("reason", "is required")
	}

	var txn *models.InventoryTransaction
	err := runInTx(ctx, s.db, s.maxRetries, func(tx *gorm.DB) error {
		product, err := s.productRepo.WithTx(tx).GetByIDForUpdate(input.ProductID)
		if err != nil {
			return err
		}
		if product == nil {
			return &NotFoundError{Resource: "product", ID: input.ProductID}
		}
		unitCost := input.UnitCost
		if unitCost == nil {
			cost := product.UnitCost()
			unitCost = &cost
		}
		txn, err = s.applyDelta(tx, product.ID, input.Delta, models.TransactionTypeAdjustment, StockReference{
			Type:     models.ReferenceTypeManual,
			UserID:   input.UserID,
			Notes:    reason,
			UnitCost: unitCost,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	logger.Infow("inventory_adjusted",
		"product_id", input.ProductID,
		"delta", input.Delta,
		"new_stock", txn.NewStock,
	)
	s.publishStockChanged(input.ProductID)
	return txn, nil
}

// StockIn 采购入库
func (s *StockLedger) StockIn(ctx context.Context, input StockInInput) (*models.InventoryTransaction, error) {
	if input.ProductID == 0 {
		return nil, newValidationError("product_id", "is required")
	}
	if input.Quantity <= 0 {
		return nil, newValidationError("quantity", "must be positive")
	}
	if input.UnitCost != nil && input.UnitCost.IsNegative() {
		return nil, newValidationError("unit_cost", "must not be negative")
	}

	var txn *models.InventoryTransaction
	err := runInTx(ctx, s.db, s.maxRetries, func(tx *gorm.DB) error {
		product, err := s.productRepo.WithTx(tx).GetByIDForUpdate(input.ProductID)
		if err != nil {
			return err
		}
		if product == nil {
			return &NotFoundError{Resource: "product", ID: input.ProductID}
		}
		unitCost := input.UnitCost
		if unitCost == nil {
			cost := product.UnitCost()
			unitCost = &cost
		}
		txn, err = s.Increment(tx, product.ID, input.Quantity, StockReference{
			Type:     models.ReferenceTypeManual,
			UserID:   input.UserID,
			Notes:    input.Notes,
			UnitCost: unitCost,
		}, models.TransactionTypeIn)
		return err
	})
	if err != nil {
		return nil, err
	}
	logger.Infow("inventory_stock_in",
		"product_id", input.ProductID,
		"quantity", input.Quantity,
		"new_stock", txn.NewStock,
	)
	s.publishStockChanged(input.ProductID)
	return txn, nil
}

// History 商品流水历史（按时间倒序分页）
func (s *StockLedger) History(productID uint, page, pageSize int) ([]models.InventoryTransaction, int64, error) {
	product, err := s.productRepo.GetByID(productID)
	if err != nil {
		return nil, 0, err
	}
	if product == nil {
		return nil, 0, &NotFoundError{Resource: "product", ID: productID}
	}
	page, pageSize = normalizePage(page, pageSize)
	return s.txnRepo.ListByProduct(productID, page, pageSize)
}

// ListTransactions 流水列表
func (s *StockLedger) ListTransactions(filter repository.InventoryTransactionListFilter) ([]models.InventoryTransaction, int64, error) {
	if raw := strings.TrimSpace(filter.TransactionType); raw != "" {
		t, err := models.ParseTransactionType(raw)
		if err != nil {
			return nil, 0, newValidationError("transaction_type", "unknown value %q", raw)
		}
		filter.TransactionType = string(t)
	}
	if raw := strings.TrimSpace(filter.ReferenceType); raw != "" {
		r, err := models.ParseReferenceType(raw)
		if err != nil {
			return nil, 0, newValidationError("reference_type", "unknown value %q", raw)
		}
		filter.ReferenceType = string(r)
	}
	filter.Page, filter.PageSize = normalizePage(filter.Page, filter.PageSize)
	return s.txnRepo.List(filter)
}

// Reconcile 核对 current == initial + Σquantity
func (s *StockLedger) Reconcile(productID uint) (*ReconcileReport, error) {
	product, err := s.productRepo.GetByID(productID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, &NotFoundError{Resource: "product", ID: productID}
	}
	sum, err := s.txnRepo.SumByProduct(productID)
	if err != nil {
		return nil, err
	}
	expected := int64(product.InitialStock) + sum.QuantityTotal
	report := &ReconcileReport{
		ProductID:        productID,
		InitialStock:     product.InitialStock,
		LedgerTotal:      sum.QuantityTotal,
		TransactionCount: sum.Count,
		ExpectedStock:    expected,
		CurrentStock:     product.StockQuantity,
		Consistent:       expected == int64(product.StockQuantity),
	}
	if !report.Consistent {
		logger.Errorw("inventory_reconcile_mismatch",
			"product_id", productID,
			"expected", expected,
			"current", product.StockQuantity,
		)
	}
	return report, nil
}

// LowStock 低库存预警
func (s *StockLedger) LowStock(threshold int) ([]models.Product, error) {
	if threshold <= 0 {
		threshold = s.lowStockThreshold
	}
	return s.productRepo.ListLowStock(threshold)
}

// Stats 库存统计
func (s *StockLedger) Stats() (*InventoryStats, error) {
	row, err := s.dashboardRepo.GetStockStats(s.lowStockThreshold)
	if err != nil {
		return nil, err
	}
	return &InventoryStats{
		TotalProducts:      row.TotalProducts,
		TotalUnits:         row.TotalUnits,
		LowStockProducts:   row.LowStockProducts,
		OutOfStockProducts: row.OutOfStockProducts,
		InventoryValue:     decimal.NewFromFloat(row.InventoryValue).Round(2),
		LowStockThreshold:  s.lowStockThreshold,
	}, nil
}

func (s *StockLedger) publishStockChanged(productIDs ...uint) {
	if s.events == nil || len(productIDs) == 0 {
		return
	}
	s.events.Publish(StockChanged{ProductIDs: productIDs})
}
