package router

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/shopledger/internal/authz"
	"github.com/shopledger/internal/cache"
	"github.com/shopledger/internal/config"
	adminhandlers "github.com/shopledger/internal/http/handlers/admin"
	publichandlers "github.com/shopledger/internal/http/handlers/public"
	"github.com/shopledger/internal/http/response"
	"github.com/shopledger/internal/logger"
	"github.com/shopledger/internal/provider"
	"github.com/shopledger/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var skuPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{1,63}$`)

// SetupRouter 初始化路由，scheduler 为空时后台任务接口不可用
func SetupRouter(cfg *config.Config, c *provider.Container, scheduler *worker.Scheduler) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	registerValidators()
	r := gin.New()

	publicHandler := publichandlers.New(c)
	adminHandler := adminhandlers.New(c, scheduler)
	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "sl"
	}
	redisClient := cache.Default().Client()
	loginRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:login", redisPrefix),
		WindowSeconds: cfg.Security.LoginRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.LoginRateLimit.MaxAttempts,
		Message:       "too many login attempts, please retry later",
	}
	adminLoginRule := loginRule
	adminLoginRule.Prefix = fmt.Sprintf("%s:rate:admin_login", redisPrefix)

	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))

	apiV1 := r.Group("/api/v1")
	{
		// 公开接口
		public := apiV1.Group("/public")
		{
			public.GET("/products", publicHandler.GetProducts)
			public.GET("/products/featured", publicHandler.GetFeaturedProducts)
			public.GET("/products/bestsellers", publicHandler.GetBestsellers)
			public.GET("/products/:id", publicHandler.GetProduct)
			public.GET("/categories", publicHandler.GetCategories)
		}

		// 用户认证接口
		auth := apiV1.Group("/auth")
		{
			auth.POST("/register", publicHandler.Register)
			auth.POST("/login", RateLimitMiddleware(redisClient, loginRule, KeyByIPAndJSONField("email")), publicHandler.Login)
		}

		// 用户接口（需鉴权）
		user := apiV1.Group("")
		user.Use(UserJWTAuthMiddleware(cfg.UserJWT.SecretKey, c.UserRepo))
		{
			user.GET("/me", publicHandler.GetCurrentUser)
			user.POST("/orders", publicHandler.CreateOrder)
			user.GET("/orders", publicHandler.ListOrders)
			user.GET("/orders/:id", publicHandler.GetOrder)
			user.POST("/orders/:id/cancel", publicHandler.CancelOrder)
			user.GET("/cart", publicHandler.GetCart)
			user.GET("/cart/summary", publicHandler.GetCartSummary)
			user.POST("/cart/items", publicHandler.AddCartItem)
			user.PUT("/cart/items/:product_id", publicHandler.UpdateCartItem)
			user.DELETE("/cart/items/:product_id", publicHandler.RemoveCartItem)
			user.DELETE("/cart", publicHandler.ClearCart)
		}

		// 管理员接口
		admin := apiV1.Group("/admin")
		{
			admin.POST("/login", RateLimitMiddleware(redisClient, adminLoginRule, KeyByIP), adminHandler.AdminLogin)

			authorized := admin.Use(JWTAuthMiddleware(cfg.JWT.SecretKey, c.AdminRepo), AdminRBACMiddleware(c.AuthzService))
			{
				// 仪表盘与缓存
				authorized.GET("/dashboard", adminHandler.GetDashboard)
				authorized.GET("/cache/stats", adminHandler.GetCacheStats)

				// 订单
				authorized.GET("/orders", adminHandler.AdminListOrders)
				authorized.GET("/orders/recent", adminHandler.AdminRecentOrders)
				authorized.GET("/orders/:id", adminHandler.AdminGetOrder)
				authorized.POST("/orders/:id/cancel", adminHandler.AdminCancelOrder)
				authorized.POST("/orders/:id/refund", adminHandler.AdminRefundOrder)
				authorized.POST("/orders/:id/advance", adminHandler.AdminAdvanceOrder)
				authorized.POST("/orders/:id/confirm-payment", adminHandler.AdminConfirmPayment)

				// 商品与分类
				authorized.GET("/products", adminHandler.GetAdminProducts)
				authorized.POST("/products", adminHandler.CreateProduct)
				authorized.GET("/products/:id/inventory", adminHandler.GetInventoryHistory)
				authorized.GET("/products/:id/reconcile", adminHandler.ReconcileInventory)
				authorized.GET("/categories", adminHandler.GetAdminCategories)
				authorized.POST("/categories", adminHandler.CreateCategory)

				// 库存台账
				authorized.POST("/inventory/adjust", adminHandler.AdjustStock)
				authorized.POST("/inventory/stock-in", adminHandler.StockIn)
				authorized.GET("/inventory/transactions", adminHandler.ListInventoryTransactions)
				authorized.GET("/inventory/low-stock", adminHandler.GetLowStockProducts)
				authorized.GET("/inventory/stats", adminHandler.GetInventoryStats)

				// 用户管理
				authorized.GET("/users", adminHandler.AdminListUsers)
				authorized.PUT("/users/:id/status", adminHandler.AdminUpdateUserStatus)

				// 后台任务
				authorized.GET("/jobs", adminHandler.ListJobs)
				authorized.POST("/jobs/:name/run", adminHandler.RunJob)

				// 权限管理
				authorized.GET("/authz/me", adminHandler.GetAuthzMe)
				authorized.GET("/authz/roles", adminHandler.ListAuthzRoles)
				authorized.POST("/authz/roles", adminHandler.CreateAuthzRole)
				authorized.DELETE("/authz/roles/:role", adminHandler.DeleteAuthzRole)
				authorized.GET("/authz/roles/:role/policies", adminHandler.GetAuthzRolePolicies)
				authorized.POST("/authz/policies", adminHandler.GrantAuthzPolicy)
				authorized.DELETE("/authz/policies", adminHandler.RevokeAuthzPolicy)
				authorized.GET("/authz/admins", adminHandler.ListAuthzAdmins)
				authorized.GET("/authz/admins/:id/roles", adminHandler.GetAuthzAdminRoles)
				authorized.PUT("/authz/admins/:id/roles", adminHandler.SetAuthzAdminRoles)
				authorized.GET("/authz/permissions/catalog", func(ctx *gin.Context) {
					response.Success(ctx, buildAdminPermissionCatalog(r))
				})
			}
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}

// registerValidators 注册自定义校验 tag
func registerValidators() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	if err := v.RegisterValidation("sku", validateSKU); err != nil {
		logger.Warnw("router_register_validator_failed", "tag", "sku", "error", err)
	}
}

func validateSKU(fl validator.FieldLevel) bool {
	return skuPattern.MatchString(strings.TrimSpace(fl.Field().String()))
}

type adminPermissionCatalogItem struct {
	Module     string `json:"module"`
	Method     string `json:"method"`
	Object     string `json:"object"`
	Permission string `json:"permission"`
}

func buildAdminPermissionCatalog(engine *gin.Engine) []adminPermissionCatalogItem {
	if engine == nil {
		return []adminPermissionCatalogItem{}
	}

	routes := engine.Routes()
	seen := make(map[string]struct{}, len(routes))
	items := make([]adminPermissionCatalogItem, 0, len(routes))
	for _, item := range routes {
		method := strings.ToUpper(strings.TrimSpace(item.Method))
		if method == "" || method == "OPTIONS" || method == "HEAD" {
			continue
		}
		if !strings.HasPrefix(item.Path, "/api/v1/admin/") || item.Path == "/api/v1/admin/login" {
			continue
		}
		object := authz.NormalizeObject(item.Path)
		permission := method + ":" + object
		if _, exists := seen[permission]; exists {
			continue
		}
		seen[permission] = struct{}{}
		items = append(items, adminPermissionCatalogItem{
			Module:     deriveAdminPermissionModule(object),
			Method:     method,
			Object:     object,
			Permission: permission,
		})
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Module == items[j].Module {
			if items[i].Object == items[j].Object {
				return items[i].Method < items[j].Method
			}
			return items[i].Object < items[j].Object
		}
		return items[i].Module < items[j].Module
	})
	return items
}

func deriveAdminPermissionModule(object string) string {
	segments := strings.Split(strings.TrimPrefix(strings.TrimSpace(object), "/"), "/")
	if len(segments) < 2 || segments[0] != "admin" {
		if segments[0] == "" {
			return "system"
		}
		return segments[0]
	}
	return segments[1]
}
