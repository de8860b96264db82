package service

import (
	"time"

	"github.com/shopledger/internal/config"
	"github.com/shopledger/internal/logger"
	"github.com/shopledger/internal/models"
	"github.com/shopledger/internal/repository"
)

// CartLine 购物车行（用于响应）
type CartLine struct {
	ProductID     uint            `json:"product_id"`
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	Quantity      int             `json:"quantity"`
	UnitPrice     models.Money    `json:"unit_price"`
	LineTotal     models.Money    `json:"line_total"`
	StockQuantity int             `json:"stock_quantity"`
	InStock       bool            `json:"in_stock"`
	Product       *models.Product `json:"-"`
}

// CartView 购物车内容
type CartView struct {
	Items      []CartLine   `json:"items"`
	TotalItems int          `json:"total_items"`
	Subtotal   models.Money `json:"subtotal"`
	Currency   string       `json:"currency"`
}

// CartSummary 购物车结算预览，计价规则与下单一致
type CartSummary struct {
	ItemCount  int          `json:"item_count"`
	TotalItems int          `json:"total_items"`
	Subtotal   models.Money `json:"subtotal"`
	Tax        models.Money `json:"tax"`
	Shipping   models.Money `json:"shipping"`
	Discount   models.Money `json:"discount"`
	Total      models.Money `json:"total"`
	Currency   string       `json:"currency"`
}

// CartService 购物车服务
type CartService struct {
	cartRepo    repository.CartRepository
	productRepo repository.ProductRepository
	pricing     PricingPolicy
	maxItems    int
	now         func() time.Time
}

// NewCartService 创建购物车服务
func NewCartService(cartRepo repository.CartRepository, productRepo repository.ProductRepository, cfg config.OrderConfig) *CartService {
	return &CartService{
		cartRepo:    cartRepo,
		productRepo: productRepo,
		pricing:     NewPricingPolicy(cfg),
		maxItems:    positiveInt(cfg.MaxItems, defaultMaxOrderItems),
		now:         time.Now,
	}
}

// Get 获取用户购物车，已下架或删除的商品会被移出
func (s *CartService) Get(userID uint) (*CartView, error) {
	lines, err := s.lines(userID)
	if err != nil {
		return nil, err
	}
	quote := s.pricing.Quote(toPricedLines(lines))
	view := &CartView{
		Items:    lines,
		Subtotal: models.NewMoneyFromDecimal(quote.Subtotal),
		Currency: quote.Currency,
	}
	for _, line := range lines {
		view.TotalItems += line.Quantity
	}
	return view, nil
}

// Summary 购物车结算预览
func (s *CartService) Summary(userID uint) (*CartSummary, error) {
	lines, err := s.lines(userID)
	if err != nil {
		return nil, err
	}
	quote := s.pricing.Quote(toPricedLines(lines))
	summary := &CartSummary{
		ItemCount: len(lines),
		Subtotal:  models.NewMoneyFromDecimal(quote.Subtotal),
		Tax:       models.NewMoneyFromDecimal(quote.Tax),
		Shipping:  models.NewMoneyFromDecimal(quote.Shipping),
		Discount:  models.NewMoneyFromDecimal(quote.Discount),
		Total:     models.NewMoneyFromDecimal(quote.Total),
		Currency:  quote.Currency,
	}
	for _, line := range lines {
		summary.TotalItems += line.Quantity
	}
	return summary, nil
}

// AddItem 加入购物车，已存在时累加数量；累加后的数量不得超过当前库存
func (s *CartService) AddItem(userID, productID uint, quantity int) (*models.CartItem, error) {
	if err := validateCartInput(userID, productID); err != nil {
		return nil, err
	}
	if quantity <= 0 {
		return nil, newValidationError("quantity", "must be positive")
	}
	if err := s.requireActiveProduct(productID); err != nil {
		return nil, err
	}

	item, err := s.cartRepo.GetByUserAndProduct(userID, productID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		existing, err := s.cartRepo.ListByUser(userID)
		if err != nil {
			return nil, err
		}
		if len(existing) >= s.maxItems {
			return nil, newValidationError("items", "at most %d distinct products per cart", s.maxItems)
		}
		item = &models.CartItem{UserID: userID, ProductID: productID}
	}
	requested := item.Quantity + quantity
	if err := s.checkStock(productID, requested); err != nil {
		return nil, err
	}
	item.Quantity = requested
	item.UpdatedAt = s.now()
	if err := s.cartRepo.Save(item); err != nil {
		return nil, err
	}
	logger.Infow("cart_item_added",
		"user_id", userID,
		"product_id", productID,
		"quantity", item.Quantity,
	)
	return item, nil
}

// UpdateItem 设置购物车项数量
func (s *CartService) UpdateItem(userID, productID uint, quantity int) (*models.CartItem, error) {
	if err := validateCartInput(userID, productID); err != nil {
		return nil, err
	}
	if quantity <= 0 {
		return nil, newValidationError("quantity", "must be positive")
	}
	item, err := s.cartRepo.GetByUserAndProduct(userID, productID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, &NotFoundError{Resource: "cart_item", ID: productID}
	}
	if err := s.requireActiveProduct(productID); err != nil {
		return nil, err
	}
	if err := s.checkStock(productID, quantity); err != nil {
		return nil, err
	}
	item.Quantity = quantity
	item.UpdatedAt = s.now()
	if err := s.cartRepo.Save(item); err != nil {
		return nil, err
	}
	logger.Infow("cart_item_updated",
		"user_id", userID,
		"product_id", productID,
		"quantity", quantity,
	)
	return item, nil
}

// RemoveItem 移除购物车项
func (s *CartService) RemoveItem(userID, productID uint) error {
	if err := validateCartInput(userID, productID); err != nil {
		return err
	}
	affected, err := s.cartRepo.DeleteByUserAndProduct(userID, productID)
	if err != nil {
		return err
	}
	if affected == 0 {
		return &NotFoundError{Resource: "cart_item", ID: productID}
	}
	logger.Infow("cart_item_removed", "user_id", userID, "product_id", productID)
	return nil
}

// Clear 清空购物车，返回移除的行数
func (s *CartService) Clear(userID uint) (int64, error) {
	if userID == 0 {
		return 0, newValidationError("user_id", "is required")
	}
	removed, err := s.cartRepo.ClearByUser(userID)
	if err != nil {
		return 0, err
	}
	logger.Infow("cart_cleared", "user_id", userID, "removed", removed)
	return removed, nil
}

func (s *CartService) lines(userID uint) ([]CartLine, error) {
	if userID == 0 {
		return nil, newValidationError("user_id", "is required")
	}
	items, err := s.cartRepo.ListByUser(userID)
	if err != nil {
		return nil, err
	}
	lines := make([]CartLine, 0, len(items))
	for _, item := range items {
		product := item.Product
		if product == nil || !product.IsActive || product.DeletedAt.Valid {
			if _, err := s.cartRepo.DeleteByUserAndProduct(userID, item.ProductID); err != nil {
				logger.Warnw("cart_drop_unavailable_failed", "user_id", userID, "product_id", item.ProductID, "error", err)
			}
			continue
		}
		unit := product.EffectivePrice()
		lines = append(lines, CartLine{
			ProductID:     product.ID,
			SKU:           product.SKU,
			Name:          product.Name,
			Quantity:      item.Quantity,
			UnitPrice:     unit,
			LineTotal:     unit.MulInt(item.Quantity),
			StockQuantity: product.StockQuantity,
			InStock:       item.Quantity <= product.StockQuantity,
			Product:       product,
		})
	}
	return lines, nil
}

func (s *CartService) requireActiveProduct(productID uint) error {
	product, err := s.productRepo.GetByID(productID)
	if err != nil {
		return err
	}
	if product == nil || !product.IsActive {
		return &NotFoundError{Resource: "product", ID: productID}
	}
	return nil
}

func (s *CartService) checkStock(productID uint, requested int) error {
	stock, found, err := s.productRepo.GetStock(productID)
	if err != nil {
		return err
	}
	if !found {
		return &NotFoundError{Resource: "product", ID: productID}
	}
	if requested > stock {
		return &InsufficientStockError{ProductID: productID, Requested: requested, Available: stock}
	}
	return nil
}

func validateCartInput(userID, productID uint) error {
	if userID == 0 {
		return newValidationError("user_id", "is required")
	}
	if productID == 0 {
		return newValidationError("product_id", "is required")
	}
	return nil
}

func toPricedLines(lines []CartLine) []pricedLine {
	priced := make([]pricedLine, 0, len(lines))
	for _, line := range lines {
		priced = append(priced, pricedLine{Product: line.Product, Quantity: line.Quantity})
	}
	return priced
}
