package admin

import (
	"errors"
	"net/url"
	"strings"

	"github.com/shopledger/internal/authz"
	handlershared "github.com/shopledger/internal/http/handlers/shared"
	"github.com/shopledger/internal/http/response"
	"github.com/shopledger/internal/models"

	"github.com/gin-gonic/gin"
)

type authzRolePayload struct {
	Role string `json:"role" binding:"required,max=64"`
}

type authzPolicyPayload struct {
	Role   string `json:"role" binding:"required"`
	Object string `json:"object" binding:"required"`
	Action string `json:"action" binding:"required"`
}

type authzSetAdminRolesPayload struct {
	Roles []string `json:"roles"`
}

// GetAuthzMe 当前管理员权限快照
func (h *Handler) GetAuthzMe(c *gin.Context) {
	adminID, ok := getAdminID(c)
	if !ok {
		return
	}
	roles, err := h.AuthzService.GetAdminRoles(adminID)
	if err != nil {
		respondAuthzError(c, err)
		return
	}
	policies, err := h.AuthzService.GetAdminPolicies(adminID)
	if err != nil {
		respondAuthzError(c, err)
		return
	}
	response.Success(c, gin.H{
		"admin_id": adminID,
		"is_super": c.GetBool("admin_is_super"),
		"roles":    roles,
		"policies": policies,
	})
}

// ListAuthzRoles 角色列表
func (h *Handler) ListAuthzRoles(c *gin.Context) {
	roles, err := h.AuthzService.ListRoles()
	if err != nil {
		respondAuthzError(c, err)
		return
	}
	items := make([]gin.H, 0, len(roles))
	for _, role := range roles {
		items = append(items, gin.H{
			"role":    role,
			"builtin": authz.IsBuiltinRole(role),
		})
	}
	response.Success(c, items)
}

// ListAuthzAdmins 管理员及其角色
func (h *Handler) ListAuthzAdmins(c *gin.Context) {
	admins, err := h.AdminRepo.List()
	if err != nil {
		respondError(c, response.CodeInternal, "admin fetch failed", err)
		return
	}
	type adminWithRoles struct {
		models.Admin
		Roles []string `json:"roles"`
	}
	items := make([]adminWithRoles, 0, len(admins))
	for _, admin := range admins {
		roles, err := h.AuthzService.GetAdminRoles(admin.ID)
		if err != nil {
			respondAuthzError(c, err)
			return
		}
		items = append(items, adminWithRoles{Admin: admin, Roles: roles})
	}
	response.Success(c, items)
}

// CreateAuthzRole 创建角色
func (h *Handler) CreateAuthzRole(c *gin.Context) {
	var req authzRolePayload
	if err := c.ShouldBindJSON(&req); err != nil {
		handlershared.RespondBindError(c, err)
		return
	}
	role, err := h.AuthzService.EnsureRole(req.Role)
	if err != nil {
		respondAuthzError(c, err)
		return
	}
	requestLog(c).Infow("admin_authz_role_created", "operator_admin_id", currentAdminID(c), "role", role)
	response.Success(c, gin.H{"role": role})
}

// DeleteAuthzRole 删除自定义角色
func (h *Handler) DeleteAuthzRole(c *gin.Context) {
	role := decodeRoleParam(c.Param("role"))
	if err := h.AuthzService.DeleteRole(role); err != nil {
		respondAuthzError(c, err)
		return
	}
	requestLog(c).Infow("admin_authz_role_deleted", "operator_admin_id", currentAdminID(c), "role", role)
	response.Success(c, gin.H{"role": role})
}

// GetAuthzRolePolicies 角色策略
func (h *Handler) GetAuthzRolePolicies(c *gin.Context) {
	policies, err := h.AuthzService.GetRolePolicies(decodeRoleParam(c.Param("role")))
	if err != nil {
		respondAuthzError(c, err)
		return
	}
	response.Success(c, policies)
}

// GrantAuthzPolicy 授予角色策略
func (h *Handler) GrantAuthzPolicy(c *gin.Context) {
	h.changeAuthzPolicy(c, "admin_authz_policy_granted", h.AuthzService.GrantRolePolicy)
}

// RevokeAuthzPolicy 撤销角色策略
func (h *Handler) RevokeAuthzPolicy(c *gin.Context) {
	h.changeAuthzPolicy(c, "admin_authz_policy_revoked", h.AuthzService.RevokeRolePolicy)
}

func (h *Handler) changeAuthzPolicy(c *gin.Context, event string, apply func(role, object, action string) error) {
	var req authzPolicyPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		handlershared.RespondBindError(c, err)
		return
	}
	if err := apply(req.Role, req.Object, req.Action); err != nil {
		respondAuthzError(c, err)
		return
	}
	policy := authz.Policy{Subject: req.Role, Object: authz.NormalizeObject(req.Object), Action: authz.NormalizeAction(req.Action)}
	requestLog(c).Infow(event, "operator_admin_id", currentAdminID(c), "policy", policy)
	response.Success(c, policy)
}

// GetAuthzAdminRoles 管理员角色
func (h *Handler) GetAuthzAdminRoles(c *gin.Context) {
	adminID, ok := handlershared.ParseIDParam(c, "id")
	if !ok {
		return
	}
	roles, err := h.AuthzService.GetAdminRoles(adminID)
	if err != nil {
		respondAuthzError(c, err)
		return
	}
	response.Success(c, gin.H{"admin_id": adminID, "roles": roles})
}

// SetAuthzAdminRoles 覆盖设置管理员角色
func (h *Handler) SetAuthzAdminRoles(c *gin.Context) {
	adminID, ok := handlershared.ParseIDParam(c, "id")
	if !ok {
		return
	}
	var req authzSetAdminRolesPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		handlershared.RespondBindError(c, err)
		return
	}
	admin, err := h.AdminRepo.GetByID(adminID)
	if err != nil {
		respondError(c, response.CodeInternal, "admin fetch failed", err)
		return
	}
	if admin == nil {
		response.NotFound(c, "admin not found")
		return
	}
	if err := h.AuthzService.SetAdminRoles(adminID, req.Roles); err != nil {
		respondAuthzError(c, err)
		return
	}
	roles, err := h.AuthzService.GetAdminRoles(adminID)
	if err != nil {
		respondAuthzError(c, err)
		return
	}
	requestLog(c).Infow("admin_authz_roles_assigned",
		"operator_admin_id", currentAdminID(c),
		"target_admin_id", adminID,
		"roles", roles,
	)
	response.Success(c, gin.H{"admin_id": adminID, "roles": roles})
}

func respondAuthzError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, authz.ErrInvalidInput):
		response.Error(c, response.CodeBadRequest, err.Error())
	case errors.Is(err, authz.ErrReservedRole):
		response.Forbidden(c, err.Error())
	default:
		respondError(c, response.CodeInternal, "authz operation failed", err)
	}
}

// decodeRoleParam 角色名可能含 role: 前缀，路径参数需反转义
func decodeRoleParam(raw string) string {
	if decoded, err := url.PathUnescape(raw); err == nil {
		raw = decoded
	}
	return strings.TrimSpace(raw)
}
