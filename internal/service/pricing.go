package service

import (
	"strings"

	"github.com/shopledger/internal/config"
	"github.com/shopledger/internal/models"

	"github.com/shopspring/decimal"
)

const defaultCurrency = "USD"

var (
	defaultTaxRate               = decimal.RequireFromString("0.10")
	defaultFreeShippingThreshold = decimal.NewFromInt(100)
	defaultShippingFee           = decimal.NewFromInt(10)
)

// PricingPolicy 下单计价规则
type PricingPolicy struct {
	TaxRate               decimal.Decimal
	FreeShippingThreshold decimal.Decimal
	ShippingFee           decimal.Decimal
	Currency              string
}

// NewPricingPolicy 根据订单配置生成计价规则，无法解析的值回落默认
func NewPricingPolicy(cfg config.OrderConfig) PricingPolicy {
	currency := strings.ToUpper(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = defaultCurrency
	}
	return PricingPolicy{
		TaxRate:               parseDecimalOr(cfg.TaxRate, defaultTaxRate),
		FreeShippingThreshold: parseDecimalOr(cfg.FreeShippingThreshold, defaultFreeShippingThreshold),
		ShippingFee:           parseDecimalOr(cfg.ShippingFee, defaultShippingFee),
		Currency:              currency,
	}
}

// pricedLine 计价行（商品快照 + 数量）
type pricedLine struct {
	Product  *models.Product
	Quantity int
}

// OrderQuote 计价结果
type OrderQuote struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Shipping decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
	Currency string
	Items    []models.OrderItem
}

// Quote 计算小计、税费、运费与总额
func (p PricingPolicy) Quote(lines []pricedLine) OrderQuote {
	quote := OrderQuote{
		Subtotal: decimal.Zero,
		Discount: decimal.Zero,
		Currency: p.Currency,
		Items:    make([]models.OrderItem, 0, len(lines)),
	}
	for _, line := range lines {
		unit := line.Product.EffectivePrice()
		lineTotal := unit.MulInt(line.Quantity)
		quote.Subtotal = quote.Subtotal.Add(lineTotal.Decimal)
		quote.Items = append(quote.Items, models.OrderItem{
			ProductID:   line.Product.ID,
			SKU:         line.Product.SKU,
			ProductName: line.Product.Name,
			UnitPrice:   unit,
			Quantity:    line.Quantity,
			TotalPrice:  lineTotal,
		})
	}
	quote.Subtotal = quote.Subtotal.Round(2)
	quote.Tax = quote.Subtotal.Mul(p.TaxRate).Round(2)
	if quote.Subtotal.GreaterThanOrEqual(p.FreeShippingThreshold) {
		quote.Shipping = decimal.Zero
	} else {
		quote.Shipping = p.ShippingFee.Round(2)
	}
	quote.Total = quote.Subtotal.Add(quote.Tax).Add(quote.Shipping).Sub(quote.Discount).Round(2)
	return quote
}

// freshItems 每次事务尝试使用新的订单项副本
func (q OrderQuote) freshItems() []models.OrderItem {
	items := make([]models.OrderItem, len(q.Items))
	copy(items, q.Items)
	return items
}

func parseDecimalOr(raw string, fallback decimal.Decimal) decimal.Decimal {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || d.IsNegative() {
		return fallback
	}
	return d
}
