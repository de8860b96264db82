package models

import (
	"time"

	"gorm.io/gorm"
)

// Product 商品表
// stock_quantity 只允许通过库存台账修改
type Product struct {
	ID            uint           `gorm:"primarykey" json:"id"`                                               // 主键
	CategoryID    uint           `gorm:"index" json:"category_id"`                                           // 分类ID
	SKU           string         `gorm:"uniqueIndex;type:varchar(64);not null" json:"sku"`                   // 商品编码
	Name          string         `gorm:"type:varchar(255);not null" json:"name"`                             // 商品名称
	Description   string         `gorm:"type:text" json:"description"`                                       // 商品描述
	Price         Money          `gorm:"type:decimal(20,2);not null;default:0" json:"price"`                 // 售价
	SalePrice     *Money         `gorm:"type:decimal(20,2)" json:"sale_price"`                               // 促销价（为空表示无促销）
	CostPrice     *Money         `gorm:"type:decimal(20,2)" json:"cost_price,omitempty"`                     // 成本价
	StockQuantity int            `gorm:"not null;default:0;check:stock_quantity >= 0" json:"stock_quantity"` // 当前库存
	InitialStock  int            `gorm:"not null;default:0" json:"initial_stock"`                            // 建档时的初始库存（对账基准）
	MinStockLevel int            `gorm:"not null;default:0" json:"min_stock_level"`                          // 最低库存预警线
	IsActive      bool           `gorm:"not null;index" json:"is_active"`                                    // 是否上架
	IsFeatured    bool           `gorm:"default:false;index" json:"is_featured"`                             // 是否推荐
	CreatedAt     time.Time      `gorm:"index" json:"created_at"`                                            // 创建时间
	UpdatedAt     time.Time      `json:"updated_at"`                                                         // 更新时间
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`                                                     // 软删除时间

	// 关联
	Category *Category `gorm:"foreignKey:CategoryID" json:"category,omitempty"` // 分类信息
}

// TableName 指定表名
func (Product) TableName() string {
	return "products"
}

// EffectivePrice 返回下单使用的单价：有促销价时取促销价
func (p *Product) EffectivePrice() Money {
	if p == nil {
		return Money{}
	}
	if p.SalePrice != nil && p.SalePrice.IsPositive() {
		return NewMoneyFromDecimal(p.SalePrice.Decimal)
	}
	return NewMoneyFromDecimal(p.Price.Decimal)
}

// UnitCost 返回库存流水使用的单位成本
func (p *Product) UnitCost() Money {
	if p == nil {
		return Money{}
	}
	if p.CostPrice != nil {
		return NewMoneyFromDecimal(p.CostPrice.Decimal)
	}
	return NewMoneyFromDecimal(p.Price.Decimal)
}
