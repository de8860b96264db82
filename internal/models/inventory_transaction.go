package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopledger/internal/constants"

	"gorm.io/gorm"
)

var (
	// ErrInventoryTxnImmutable 库存流水只允许追加
	ErrInventoryTxnImmutable = errors.New("inventory transaction is append-only")
	// ErrInvalidTransactionType 非法流水类型
	ErrInvalidTransactionType = errors.New("invalid inventory transaction type")
	// ErrInvalidReferenceType 非法关联类型
	ErrInvalidReferenceType = errors.New("invalid inventory reference type")
)

// TransactionType 库存流水类型
type TransactionType string

const (
	TransactionTypeIn         TransactionType = constants.InventoryTxnTypeIn
	TransactionTypeOut        TransactionType = constants.InventoryTxnTypeOut
	TransactionTypeAdjustment TransactionType = constants.InventoryTxnTypeAdjustment
	TransactionTypeReturn     TransactionType = constants.InventoryTxnTypeReturn
)

// ParseTransactionType 解析流水类型，只接受预定义取值
func ParseTransactionType(raw string) (TransactionType, error) {
	t := TransactionType(strings.ToUpper(strings.TrimSpace(raw)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidTransactionType, raw)
	}
	return t, nil
}

// Valid 判断流水类型是否合法
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeIn, TransactionTypeOut, TransactionTypeAdjustment, TransactionTypeReturn:
		return true
	default:
		return false
	}
}

// ReferenceType 库存流水关联类型
type ReferenceType string

const (
	ReferenceTypeOrder  ReferenceType = constants.InventoryRefTypeOrder
	ReferenceTypeManual ReferenceType = constants.InventoryRefTypeManual
	ReferenceTypeReturn ReferenceType = constants.InventoryRefTypeReturn
	ReferenceTypeSystem ReferenceType = constants.InventoryRefTypeSystem
)

// ParseReferenceType 解析关联类型，只接受预定义取值
func ParseReferenceType(raw string) (ReferenceType, error) {
	r := ReferenceType(strings.ToUpper(strings.TrimSpace(raw)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidReferenceType, raw)
	}
	return r, nil
}

// Valid 判断关联类型是否合法
func (r ReferenceType) Valid() bool {
	switch r {
	case ReferenceTypeOrder, ReferenceTypeManual, ReferenceTypeReturn, ReferenceTypeSystem:
		return true
	default:
		return false
	}
}

// InventoryTransaction 库存流水表（只追加，不更新不删除）
type InventoryTransaction struct {
	ID              uint            `gorm:"primarykey" json:"id"`                                                          // 主键
	ProductID       uint            `gorm:"index:idx_inventory_txn_product_created,priority:1;not null" json:"product_id"` // 商品ID
	UserID          *uint           `gorm:"index" json:"user_id"`                                                          // 操作人（系统事件为空）
	TransactionType TransactionType `gorm:"type:varchar(20);index;not null" json:"transaction_type"`                       // 流水类型
	Quantity        int             `gorm:"not null" json:"quantity"`                                                      // 带符号变动数量
	PreviousStock   int             `gorm:"not null" json:"previous_stock"`                                                // 变动前库存
	NewStock        int             `gorm:"not null" json:"new_stock"`                                                     // 变动后库存
	ReferenceType   ReferenceType   `gorm:"type:varchar(20);index;not null" json:"reference_type"`                         // 关联类型
	ReferenceID     *uint           `gorm:"index" json:"reference_id"`                                                     // 关联ID
	UnitCost        Money           `gorm:"type:decimal(20,2);not null;default:0" json:"unit_cost"`                        // 单位成本
	TotalValue      Money           `gorm:"type:decimal(20,2);not null;default:0" json:"total_value"`                      // 变动货值
	Notes           string          `gorm:"type:varchar(500)" json:"notes,omitempty"`                                      // 备注
	CreatedAt       time.Time       `gorm:"index:idx_inventory_txn_product_created,priority:2" json:"created_at"`          // 创建时间

	Product *Product `gorm:"foreignKey:ProductID" json:"product,omitempty"` // 商品信息
}

// TableName 指定表名
func (InventoryTransaction) TableName() string {
	return "inventory_transactions"
}

// BeforeCreate 写入前校验类型与数量关系
func (t *InventoryTransaction) BeforeCreate(_ *gorm.DB) error {
	if !t.TransactionType.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidTransactionType, t.TransactionType)
	}
	if !t.ReferenceType.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidReferenceType, t.ReferenceType)
	}
	if t.NewStock-t.PreviousStock != t.Quantity {
		return fmt.Errorf("inventory transaction quantity mismatch: previous=%d new=%d quantity=%d",
			t.PreviousStock, t.NewStock, t.Quantity)
	}
	return nil
}

// BeforeUpdate 禁止更新流水
func (t *InventoryTransaction) BeforeUpdate(_ *gorm.DB) error {
	return ErrInventoryTxnImmutable
}

// BeforeDelete 禁止删除流水
func (t *InventoryTransaction) BeforeDelete(_ *gorm.DB) error {
	return ErrInventoryTxnImmutable
}
