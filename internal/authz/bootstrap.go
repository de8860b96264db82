package authz

import (
	"fmt"

	"github.com/shopledger/internal/logger"
)

// builtinRole 预置角色，均不可删除
type builtinRole struct {
	name     string
	parent   string
	policies []Policy
}

// 业务岗位角色均继承只读审计权限
var builtinRoles = []builtinRole{
	{
		name:     "readonly_auditor",
		policies: []Policy{{Object: "/admin/*", Action: "GET"}},
	},
	{
		name:   "inventory_manager",
		parent: "readonly_auditor",
		policies: []Policy{
			{Object: "/admin/products", Action: "POST"},
			{Object: "/admin/categories", Action: "POST"},
			{Object: "/admin/inventory/adjust", Action: "POST"},
			{Object: "/admin/inventory/stock-in", Action: "POST"},
		},
	},
	{
		name:   "order_operator",
		parent: "readonly_auditor",
		policies: []Policy{
			{Object: "/admin/orders/:id/cancel", Action: "POST"},
			{Object: "/admin/orders/:id/advance", Action: "POST"},
		},
	},
	{
		name:   "finance",
		parent: "readonly_auditor",
		policies: []Policy{
			{Object: "/admin/orders/:id/refund", Action: "POST"},
			{Object: "/admin/orders/:id/confirm-payment", Action: "POST"},
		},
	},
}

// IsBuiltinRole 是否为预置角色
func IsBuiltinRole(role string) bool {
	name, err := NormalizeRole(role)
	if err != nil {
		return false
	}
	for _, item := range builtinRoles {
		if rolePrefix+item.name == name {
			return true
		}
	}
	return false
}

// BootstrapBuiltinRoles 写入预置角色、继承关系与默认策略，可重复执行
func (s *Service) BootstrapBuiltinRoles() error {
	if err := s.ready(); err != nil {
		return err
	}
	var added int
	track := func(ok bool, err error) error {
		if ok {
			added++
		}
		return err
	}
	for _, item := range builtinRoles {
		role := rolePrefix + item.name
		if err := track(s.enforcer.AddNamedGroupingPolicy("g", role, roleAnchor)); err != nil {
			return fmt.Errorf("create builtin role %s failed: %w", item.name, err)
		}
		if item.parent != "" {
			if err := track(s.enforcer.AddNamedGroupingPolicy("g", role, rolePrefix+item.parent)); err != nil {
				return fmt.Errorf("link builtin role %s failed: %w", item.name, err)
			}
		}
		for _, policy := range item.policies {
			if err := track(s.enforcer.AddPolicy(role, NormalizeObject(policy.Object), NormalizeAction(policy.Action))); err != nil {
				return fmt.Errorf("add builtin policy for %s failed: %w", item.name, err)
			}
		}
	}
	if added > 0 {
		logger.Infow("authz_builtin_roles_seeded", "roles", len(builtinRoles), "rules_added", added)
	}
	return nil
}
