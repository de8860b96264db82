package repository

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopledger/internal/constants"
	"github.com/shopledger/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func openRepositoryTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db failed: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		t.Fatalf("migrate models failed: %v", err)
	}
	return db
}

func createTestProduct(t *testing.T, db *gorm.DB, sku string, stock int, price int64) *models.Product {
	t.Helper()
	product := &models.Product{
		SKU:           sku,
		Name:          "商品 " + sku,
		Price:         models.NewMoneyFromDecimal(decimal.NewFromInt(price)),
		StockQuantity: stock,
		IsActive:      true,
	}
	if err := NewProductRepository(db).Create(product); err != nil {
		t.Fatalf("create product failed: %v", err)
	}
	return product
}

func createTestOrder(t *testing.T, db *gorm.DB, orderNo string, userID uint, status string, items ...models.OrderItem) *models.Order {
	t.Helper()
	total := decimal.Zero
	for i := range items {
		items[i].TotalPrice = items[i].UnitPrice.MulInt(items[i].Quantity)
		total = total.Add(items[i].TotalPrice.Decimal)
	}
	order := &models.Order{
		OrderNo:       orderNo,
		UserID:        userID,
		Status:        status,
		PaymentStatus: constants.PaymentStatusUnpaid,
		Currency:      "USD",
		Subtotal:      models.NewMoneyFromDecimal(total),
		Total:         models.NewMoneyFromDecimal(total),
	}
	if err := NewOrderRepository(db).Create(order, items); err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	return order
}

func orderItemFor(product *models.Product, quantity int) models.OrderItem {
	return models.OrderItem{
		ProductID:   product.ID,
		SKU:         product.SKU,
		ProductName: product.Name,
		UnitPrice:   product.EffectivePrice(),
		Quantity:    quantity,
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}
