package main

import (
	"github.com/shopledger/internal/config"
	"github.com/shopledger/internal/logger"
	"github.com/shopledger/internal/models"
	"github.com/shopledger/internal/provider"
	"github.com/shopledger/internal/service"

	"github.com/shopspring/decimal"
)

type seedProduct struct {
	category string
	input    service.CreateProductInput
}

func main() {
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()

	// 连接数据库
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}, models.DBLogConfig{
		Level:               cfg.Database.LogLevel,
		SlowThresholdMillis: cfg.Database.SlowThresholdMillis,
	}); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	// 种子数据不写缓存
	c := provider.NewContainerWithDB(cfg, models.DB, nil)

	if _, created, err := c.AuthService.EnsureAdmin("admin", "admin123", true); err != nil {
		stdLog.Printf("Failed to ensure admin: %v", err)
	} else if created {
		stdLog.Printf("Created admin: admin / admin123")
	}

	categories := []service.CreateCategoryInput{
		{Slug: "electronics", Name: "Electronics", SortOrder: 30},
		{Slug: "lifestyle", Name: "Lifestyle", SortOrder: 20},
		{Slug: "accessories", Name: "Accessories", SortOrder: 10},
	}
	categoryIDs := make(map[string]uint, len(categories))
	for _, input := range categories {
		category, err := c.CategoryService.Create(input)
		if err != nil {
			stdLog.Printf("Failed to create category %s: %v", input.Slug, err)
			continue
		}
		categoryIDs[category.Slug] = category.ID
	}

	salePrice := decimal.RequireFromString("79.99")
	products := []seedProduct{
		{category: "electronics", input: service.CreateProductInput{
			SKU:           "EAR-BT-001",
			Name:          "Wireless Bluetooth Earphones",
			Description:   "High quality sound, long battery life, comfortable to wear",
			Price:         decimal.RequireFromString("99.99"),
			SalePrice:     &salePrice,
			CostPrice:     decimalPtr("45.00"),
			InitialStock:  120,
			MinStockLevel: 20,
			IsActive:      true,
			IsFeatured:    true,
		}},
		{category: "electronics", input: service.CreateProductInput{
			SKU:           "WATCH-S-002",
			Name:          "Smart Watch",
			Description:   "Health monitoring, fitness tracking, message notifications",
			Price:         decimal.RequireFromString("199.99"),
			CostPrice:     decimalPtr("110.00"),
			InitialStock:  40,
			MinStockLevel: 10,
			IsActive:      true,
		}},
		{category: "accessories", input: service.CreateProductInput{
			SKU:           "PWR-10K-003",
			Name:          "Portable Power Bank",
			Description:   "10000mAh, dual USB output",
			Price:         decimal.RequireFromString("39.99"),
			CostPrice:     decimalPtr("15.50"),
			InitialStock:  8,
			MinStockLevel: 10,
			IsActive:      true,
		}},
		{category: "lifestyle", input: service.CreateProductInput{
			SKU:           "MUG-TH-004",
			Name:          "Thermal Mug",
			Description:   "Keeps drinks hot for 12 hours",
			Price:         decimal.RequireFromString("24.00"),
			CostPrice:     decimalPtr("6.80"),
			InitialStock:  0,
			MinStockLevel: 5,
			IsActive:      true,
		}},
	}

	for _, item := range products {
		item.input.CategoryID = categoryIDs[item.category]
		product, err := c.ProductService.Create(item.input)
		if err != nil {
			stdLog.Printf("Failed to create product %s: %v", item.input.SKU, err)
			continue
		}
		stdLog.Printf("Product ready: %s (id=%d, stock=%d)", product.SKU, product.ID, product.StockQuantity)
	}

	stdLog.Println("Seed data initialized successfully!")
}

func decimalPtr(raw string) *decimal.Decimal {
	value := decimal.RequireFromString(raw)
	return &value
}
