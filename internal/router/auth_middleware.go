package router

import (
	"strings"

	"github.com/shopledger/internal/authz"
	"github.com/shopledger/internal/constants"
	"github.com/shopledger/internal/http/response"
	"github.com/shopledger/internal/logger"
	"github.com/shopledger/internal/repository"
	"github.com/shopledger/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	adminIDContextKey      = "admin_id"
	adminIsSuperContextKey = "admin_is_super"
	userIDContextKey       = "user_id"
)

var hs256Parser = jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

// bearerToken 解析 Authorization: Bearer <token>
func bearerToken(c *gin.Context) (string, string) {
	authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
	if authHeader == "" {
		return "", "missing authorization header"
	}
	scheme, token, found := strings.Cut(authHeader, " ")
	token = strings.TrimSpace(token)
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", "invalid authorization header"
	}
	return token, ""
}

func abortUnauthorized(c *gin.Context, msg string) {
	response.Unauthorized(c, msg)
	c.Abort()
}

// parseBearerClaims 读取并校验 HS256 令牌，失败时已写入 401 响应
func parseBearerClaims[T jwt.Claims](c *gin.Context, secretKey string, claims T) bool {
	if secretKey == "" {
		abortUnauthorized(c, "jwt secret not configured")
		return false
	}
	tokenString, problem := bearerToken(c)
	if problem != "" {
		abortUnauthorized(c, problem)
		return false
	}
	token, err := hs256Parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secretKey), nil
	})
	if err != nil || !token.Valid {
		abortUnauthorized(c, "invalid token")
		return false
	}
	return true
}

// JWTAuthMiddleware 管理员鉴权，管理员被删除后旧令牌立即失效
func JWTAuthMiddleware(secretKey string, adminRepo repository.AdminRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := &service.JWTClaims{}
		if !parseBearerClaims(c, secretKey, claims) {
			return
		}
		if claims.AdminID == 0 || adminRepo == nil {
			abortUnauthorized(c, "invalid token")
			return
		}
		admin, err := adminRepo.GetByID(claims.AdminID)
		if err != nil {
			logger.Errorw("admin_auth_lookup_failed", "admin_id", claims.AdminID, "error", err)
		}
		if err != nil || admin == nil {
			abortUnauthorized(c, "invalid token")
			return
		}

		c.Set(adminIDContextKey, admin.ID)
		c.Set("username", admin.Username)
		c.Set(adminIsSuperContextKey, admin.IsSuper)
		c.Next()
	}
}

// AdminRBACMiddleware 按路由模板鉴权，超级管理员直接放行
func AdminRBACMiddleware(authzService *authz.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if authzService == nil {
			logger.Errorw("admin_rbac_service_unavailable")
			abortUnauthorized(c, "unauthorized")
			return
		}
		if c.GetBool(adminIsSuperContextKey) {
			c.Next()
			return
		}
		adminID := c.GetUint(adminIDContextKey)
		if adminID == 0 {
			abortUnauthorized(c, "unauthorized")
			return
		}

		resource := c.FullPath()
		if strings.TrimSpace(resource) == "" {
			resource = c.Request.URL.Path
		}
		allowed, err := authzService.EnforceAdmin(adminID, resource, c.Request.Method)
		if err != nil {
			logger.Errorw("admin_rbac_enforce_failed",
				"admin_id", adminID,
				"method", c.Request.Method,
				"resource", resource,
				"error", err,
			)
			abortUnauthorized(c, "unauthorized")
			return
		}
		if !allowed {
			logger.Warnw("admin_rbac_permission_denied",
				"admin_id", adminID,
				"method", c.Request.Method,
				"resource", authz.NormalizeObject(resource),
			)
			response.Forbidden(c, "forbidden")
			c.Abort()
			return
		}
		c.Next()
	}
}

// UserJWTAuthMiddleware 顾客鉴权，停用账号返回 403
func UserJWTAuthMiddleware(secretKey string, userRepo repository.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := &service.UserJWTClaims{}
		if !parseBearerClaims(c, secretKey, claims) {
			return
		}
		if claims.UserID == 0 || userRepo == nil {
			abortUnauthorized(c, "invalid token")
			return
		}
		user, err := userRepo.GetByID(claims.UserID)
		if err != nil {
			logger.Errorw("user_auth_lookup_failed", "user_id", claims.UserID, "error", err)
		}
		if err != nil || user == nil {
			abortUnauthorized(c, "invalid token")
			return
		}
		if !strings.EqualFold(strings.TrimSpace(user.Status), constants.UserStatusActive) {
			response.Forbidden(c, service.ErrAccountDisabled.Error())
			c.Abort()
			return
		}

		c.Set(userIDContextKey, user.ID)
		c.Set("user_email", user.Email)
		c.Next()
	}
}
