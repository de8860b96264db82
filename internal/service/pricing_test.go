package service

import (
	"testing"

	"github.com/shopledger/internal/config"
	"github.com/shopledger/internal/models"

	"github.com/shopspring/decimal"
)

func pricedProduct(id uint, price string, sale string) *models.Product {
	product := &models.Product{
		ID:    id,
		SKU:   "SKU",
		Name:  "item",
		Price: models.NewMoneyFromDecimal(decimal.RequireFromString(price)),
	}
	if sale != "" {
		product.SalePrice = models.MoneyPtr(decimal.RequireFromString(sale))
	}
	return product
}

func TestQuoteBelowFreeShipping(t *testing.T) {
	policy := NewPricingPolicy(config.OrderConfig{})
	quote := policy.Quote([]pricedLine{{Product: pricedProduct(1, "25.00", ""), Quantity: 2}})

	if quote.Subtotal.StringFixed(2) != "50.00" {
		t.Fatalf("unexpected subtotal: %s", quote.Subtotal)
	}
	if quote.Tax.StringFixed(2) != "5.00" {
		t.Fatalf("unexpected tax: %s", quote.Tax)
	}
	if quote.Shipping.StringFixed(2) != "10.00" {
		t.Fatalf("unexpected shipping: %s", quote.Shipping)
	}
	if quote.Total.StringFixed(2) != "65.00" {
		t.Fatalf("unexpected total: %s", quote.Total)
	}
	if quote.Currency != "USD" {
		t.Fatalf("unexpected currency: %s", quote.Currency)
	}
	if len(quote.Items) != 1 || quote.Items[0].TotalPrice.String() != "50.00" {
		t.Fatalf("unexpected items: %+v", quote.Items)
	}
}

func TestQuoteFreeShippingAtThreshold(t *testing.T) {
	policy := NewPricingPolicy(config.OrderConfig{})
	quote := policy.Quote([]pricedLine{
		{Product: pricedProduct(1, "60.00", ""), Quantity: 1},
		{Product: pricedProduct(2, "50.00", "40.00"), Quantity: 1},
	})
	if quote.Subtotal.StringFixed(2) != "100.00" {
		t.Fatalf("sale price not applied: %s", quote.Subtotal)
	}
	if !quote.Shipping.IsZero() {
		t.Fatalf("expected free shipping, got %s", quote.Shipping)
	}
	if quote.Total.StringFixed(2) != "110.00" {
		t.Fatalf("unexpected total: %s", quote.Total)
	}
	if quote.Items[1].UnitPrice.String() != "40.00" {
		t.Fatalf("unexpected unit price snapshot: %s", quote.Items[1].UnitPrice)
	}
}

func TestQuoteRoundsTax(t *testing.T) {
	policy := NewPricingPolicy(config.OrderConfig{TaxRate: "0.0825", Currency: " eur "})
	quote := policy.Quote([]pricedLine{{Product: pricedProduct(1, "19.99", ""), Quantity: 1}})
	if quote.Tax.StringFixed(2) != "1.65" {
		t.Fatalf("unexpected tax: %s", quote.Tax)
	}
	if quote.Currency != "EUR" {
		t.Fatalf("unexpected currency: %s", quote.Currency)
	}
}

func TestNewPricingPolicyFallsBackOnInvalidConfig(t *testing.T) {
	policy := NewPricingPolicy(config.OrderConfig{TaxRate: "abc", ShippingFee: "-1"})
	if !policy.TaxRate.Equal(defaultTaxRate) {
		t.Fatalf("invalid tax rate should fall back, got %s", policy.TaxRate)
	}
	if !policy.ShippingFee.Equal(defaultShippingFee) {
		t.Fatalf("negative shipping fee should fall back, got %s", policy.ShippingFee)
	}
}

func TestFreshItemsCopiesSlice(t *testing.T) {
	policy := NewPricingPolicy(config.OrderConfig{})
	quote := policy.Quote([]pricedLine{{Product: pricedProduct(1, "1.00", ""), Quantity: 1}})
	items := quote.freshItems()
	items[0].OrderID = 42
	if quote.Items[0].OrderID != 0 {
		t.Fatalf("freshItems should not alias quote items")
	}
}
