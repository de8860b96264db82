package provider

import (
	"time"

	"github.com/shopledger/internal/authz"
	"github.com/shopledger/internal/cache"
	"github.com/shopledger/internal/config"
	"github.com/shopledger/internal/logger"
	"github.com/shopledger/internal/models"
	"github.com/shopledger/internal/queue"
	"github.com/shopledger/internal/repository"
	"github.com/shopledger/internal/service"

	"gorm.io/gorm"
)

const defaultCategoryTTL = 30 * time.Minute

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	DB          *gorm.DB
	Store       cache.Store
	QueueClient *queue.Client

	// Repositories
	AdminRepo        repository.AdminRepository
	UserRepo         repository.UserRepository
	CategoryRepo     repository.CategoryRepository
	ProductRepo      repository.ProductRepository
	OrderRepo        repository.OrderRepository
	CartRepo         repository.CartRepository
	InventoryTxnRepo repository.InventoryTransactionRepository
	DashboardRepo    repository.DashboardRepository

	// Services
	AuthzService        *authz.Service
	AuthService         *service.AuthService
	UserAuthService     *service.UserAuthService
	CacheCoordinator    *service.CacheCoordinator
	StockLedger         *service.StockLedger
	OrderStateMachine   *service.OrderStateMachine
	OrderService        *service.OrderService
	CartService         *service.CartService
	ProgressionService  *service.ProgressionService
	ProductService      *service.ProductService
	CategoryService     *service.CategoryService
	AnalyticsService    *service.AnalyticsService
	NotificationService *service.NotificationService
	PaymentGateway      service.PaymentGateway
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}
	var store cache.Store
	if redisStore := cache.Default(); redisStore.Enabled() {
		store = redisStore
	}

	// 初始化队列客户端，未启用时为空实现
	queueClient, err := queue.NewClient(&cfg.Queue)
	if err != nil {
		logger.Errorw("provider_init_queue_client_failed", "error", err)
		queueClient, _ = queue.NewClient(nil)
	}

	c := &Container{
		Config:      cfg,
		DB:          models.DB,
		Store:       store,
		QueueClient: queueClient,
	}

	// 1. 初始化 Repositories
	c.initRepositories()

	// 2. 初始化 Services
	c.initServices()

	return c
}

// NewContainerWithDB 使用指定数据库与缓存构建容器，不依赖 Redis 与队列
func NewContainerWithDB(cfg *config.Config, db *gorm.DB, store cache.Store) *Container {
	queueClient, _ := queue.NewClient(nil)
	c := &Container{
		Config:      cfg,
		DB:          db,
		Store:       store,
		QueueClient: queueClient,
	}
	c.initRepositories()
	c.initServices()
	return c
}

func (c *Container) initRepositories() {
	db := c.DB
	c.AdminRepo = repository.NewAdminRepository(db)
	c.UserRepo = repository.NewUserRepository(db)
	c.CategoryRepo = repository.NewCategoryRepository(db)
	c.ProductRepo = repository.NewProductRepository(db)
	c.OrderRepo = repository.NewOrderRepository(db)
	c.CartRepo = repository.NewCartRepository(db)
	c.InventoryTxnRepo = repository.NewInventoryTransactionRepository(db)
	c.DashboardRepo = repository.NewDashboardRepository(db)
}

func (c *Container) initServices() {
	authzService, err := authz.NewService(c.DB)
	if err != nil {
		logger.Errorw("provider_init_authz_failed", "error", err)
		panic(err)
	}
	c.AuthzService = authzService
	if err := c.AuthzService.BootstrapBuiltinRoles(); err != nil {
		logger.Errorw("provider_bootstrap_builtin_roles_failed", "error", err)
		panic(err)
	}

	cfg := c.Config
	c.AuthService = service.NewAuthService(cfg.JWT, c.AdminRepo)
	c.UserAuthService = service.NewUserAuthService(cfg.UserJWT, c.UserRepo)

	c.CacheCoordinator = service.NewCacheCoordinator(c.Store, c.QueueClient, cfg.Cache.InvalidationBuffer)
	policy := service.NewProgressionPolicy(cfg.Progression)
	c.StockLedger = service.NewStockLedger(
		c.DB,
		c.ProductRepo,
		c.InventoryTxnRepo,
		c.DashboardRepo,
		c.CacheCoordinator,
		cfg.Order.MaxConflictRetries,
		cfg.Order.LowStockThreshold,
	)
	c.OrderStateMachine = service.NewOrderStateMachine(c.OrderRepo, policy)
	c.OrderService = service.NewOrderService(service.OrderServiceOptions{
		DB:           c.DB,
		OrderRepo:    c.OrderRepo,
		ProductRepo:  c.ProductRepo,
		CartRepo:     c.CartRepo,
		Ledger:       c.StockLedger,
		StateMachine: c.OrderStateMachine,
		Policy:       policy,
		Events:       c.CacheCoordinator,
		Tasks:        c.QueueClient,
		Store:        c.Store,
		OrderConfig:  cfg.Order,
		CacheConfig:  cfg.Cache,
	})
	c.CartService = service.NewCartService(c.CartRepo, c.ProductRepo, cfg.Order)
	c.ProgressionService = service.NewProgressionService(
		c.DB,
		c.OrderRepo,
		c.OrderStateMachine,
		policy,
		c.CacheCoordinator,
		c.QueueClient,
		cfg.Order.MaxConflictRetries,
	)
	c.ProductService = service.NewProductService(c.ProductRepo, c.Store, cfg.Cache, cfg.Order.LowStockThreshold)
	c.CategoryService = service.NewCategoryService(c.CategoryRepo, c.Store, defaultCategoryTTL)
	c.AnalyticsService = service.NewAnalyticsService(c.DashboardRepo, c.OrderRepo, c.Store, cfg.Cache, cfg.Order.LowStockThreshold)
	c.NotificationService = service.NewNotificationService(service.LogNotifier{})
	c.PaymentGateway = service.ManualGateway{}
}
