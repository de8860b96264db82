package models

import (
	"time"
)

// Order 订单表
// 金额字段在创建后不可变，退款字段除外
type Order struct {
	ID              uint       `gorm:"primarykey" json:"id"`                                    // 主键
	OrderNo         string     `gorm:"uniqueIndex;type:varchar(32);not null" json:"order_no"`   // 订单编号
	UserID          uint       `gorm:"index;not null" json:"user_id"`                           // 用户ID
	Status          string     `gorm:"index;type:varchar(20);not null" json:"status"`           // 订单状态
	PaymentStatus   string     `gorm:"index;type:varchar(20);not null" json:"payment_status"`   // 支付状态
	PaymentRef      string     `gorm:"type:varchar(128)" json:"payment_ref,omitempty"`          // 支付网关流水号
	Currency        string     `gorm:"type:varchar(8);not null" json:"currency"`                // 币种
	Subtotal        Money      `gorm:"type:decimal(20,2);not null;default:0" json:"subtotal"`   // 商品小计
	Tax             Money      `gorm:"type:decimal(20,2);not null;default:0" json:"tax"`        // 税费
	Shipping        Money      `gorm:"type:decimal(20,2);not null;default:0" json:"shipping"`   // 运费
	Discount        Money      `gorm:"type:decimal(20,2);not null;default:0" json:"discount"`   // 优惠金额
	Total           Money      `gorm:"type:decimal(20,2);not null;default:0" json:"total"`      // 应付总额
	ShippingAddress JSON       `gorm:"type:json" json:"shipping_address,omitempty"`             // 收货地址快照
	Notes           string     `gorm:"type:text" json:"notes,omitempty"`                        // 买家备注
	TrackingNumber  string     `gorm:"type:varchar(64);index" json:"tracking_number,omitempty"` // 物流单号
	NextActionAt    *time.Time `gorm:"index" json:"next_action_at"`                             // 下一次自动推进时间
	ConfirmedAt     *time.Time `json:"confirmed_at"`                                            // 确认时间
	ShippedAt       *time.Time `json:"shipped_at"`                                              // 发货时间
	DeliveredAt     *time.Time `json:"delivered_at"`                                            // 签收时间
	CanceledAt      *time.Time `json:"canceled_at"`                                             // 取消时间
	CancelReason    string     `gorm:"type:varchar(255)" json:"cancel_reason,omitempty"`        // 取消原因
	CanceledBy      string     `gorm:"type:varchar(32)" json:"canceled_by,omitempty"`           // 取消操作方
	RefundAmount    *Money     `gorm:"type:decimal(20,2)" json:"refund_amount"`                 // 退款金额
	RefundReason    string     `gorm:"type:varchar(500)" json:"refund_reason,omitempty"`        // 退款原因
	RefundedAt      *time.Time `json:"refunded_at"`                                             // 退款时间
	CreatedAt       time.Time  `gorm:"index" json:"created_at"`                                 // 创建时间
	UpdatedAt       time.Time  `gorm:"index" json:"updated_at"`                                 // 更新时间

	Items []OrderItem `gorm:"foreignKey:OrderID" json:"items,omitempty"` // 订单项
}

// TableName 指定表名
func (Order) TableName() string {
	return "orders"
}

// ProductIDs 返回订单涉及的商品ID（去重）
func (o *Order) ProductIDs() []uint {
	if o == nil || len(o.Items) == 0 {
		return nil
	}
	seen := make(map[uint]struct{}, len(o.Items))
	ids := make([]uint, 0, len(o.Items))
	for _, item := range o.Items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	return ids
}
