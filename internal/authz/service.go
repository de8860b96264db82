package authz

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/casbin/casbin/v3"
	"github.com/casbin/casbin/v3/model"
	"github.com/casbin/casbin/v3/util"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"gorm.io/gorm"
)

//go:embed rbac_model.conf
var rbacModel string

// Service 后台接口 RBAC，策略持久化在 casbin_rule 表
type Service struct {
	enforcer *casbin.SyncedEnforcer
}

// NewService 基于 gorm 连接创建授权服务并加载已有策略
func NewService(db *gorm.DB) (*Service, error) {
	if db == nil {
		return nil, fmt.Errorf("authz db is nil")
	}
	adapter, err := gormadapter.NewAdapterByDBUseTableName(db, "", "casbin_rule")
	if err != nil {
		return nil, fmt.Errorf("create authz adapter failed: %w", err)
	}
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("load authz model failed: %w", err)
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, fmt.Errorf("init authz enforcer failed: %w", err)
	}
	enforcer.AddFunction("keyMatch2", util.KeyMatch2Func)
	enforcer.EnableAutoSave(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, fmt.Errorf("load authz policy failed: %w", err)
	}
	return &Service{enforcer: enforcer}, nil
}

func (s *Service) ready() error {
	if s == nil || s.enforcer == nil {
		return ErrUnavailable
	}
	return nil
}

// EnforceAdmin 判断管理员能否以 act 访问 obj
func (s *Service) EnforceAdmin(adminID uint, obj, act string) (bool, error) {
	if err := s.ready(); err != nil {
		return false, err
	}
	return s.enforcer.Enforce(SubjectForAdmin(adminID), NormalizeObject(obj), NormalizeAction(act))
}

// EnsureRole 角色挂到锚点上即视为存在
func (s *Service) EnsureRole(role string) (string, error) {
	name, err := NormalizeRole(role)
	if err != nil {
		return "", err
	}
	if name == roleAnchor {
		return "", ErrReservedRole
	}
	if err := s.ready(); err != nil {
		return "", err
	}
	if _, err := s.enforcer.AddNamedGroupingPolicy("g", name, roleAnchor); err != nil {
		return "", fmt.Errorf("create role failed: %w", err)
	}
	return name, nil
}

// ListRoles 全部角色，含预置角色
func (s *Service) ListRoles() ([]string, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rules, err := s.enforcer.GetFilteredNamedGroupingPolicy("g", 0)
	if err != nil {
		return nil, fmt.Errorf("list roles failed: %w", err)
	}
	var names []string
	for _, rule := range rules {
		names = append(names, rule...)
	}
	return uniqueRoles(names), nil
}

// DeleteRole 删除自定义角色、其策略与成员关系
func (s *Service) DeleteRole(role string) error {
	name, err := NormalizeRole(role)
	if err != nil {
		return err
	}
	if name == roleAnchor || IsBuiltinRole(name) {
		return ErrReservedRole
	}
	if err := s.ready(); err != nil {
		return err
	}
	if _, err := s.enforcer.RemoveFilteredPolicy(0, name); err != nil {
		return fmt.Errorf("remove role policy failed: %w", err)
	}
	// 角色自身的继承关系与指向该角色的成员关系
	for _, field := range []int{0, 1} {
		if _, err := s.enforcer.RemoveFilteredNamedGroupingPolicy("g", field, name); err != nil {
			return fmt.Errorf("remove role links failed: %w", err)
		}
	}
	return nil
}

// GrantRolePolicy 授权，角色不存在时创建
func (s *Service) GrantRolePolicy(role, object, action string) error {
	act, err := requireAction(action)
	if err != nil {
		return err
	}
	name, err := s.EnsureRole(role)
	if err != nil {
		return err
	}
	if _, err := s.enforcer.AddPolicy(name, NormalizeObject(object), act); err != nil {
		return fmt.Errorf("grant policy failed: %w", err)
	}
	return nil
}

// RevokeRolePolicy 撤销授权
func (s *Service) RevokeRolePolicy(role, object, action string) error {
	act, err := requireAction(action)
	if err != nil {
		return err
	}
	name, err := NormalizeRole(role)
	if err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if _, err := s.enforcer.RemovePolicy(name, NormalizeObject(object), act); err != nil {
		return fmt.Errorf("revoke policy failed: %w", err)
	}
	return nil
}

// GetRolePolicies 角色直接持有的策略
func (s *Service) GetRolePolicies(role string) ([]Policy, error) {
	name, err := NormalizeRole(role)
	if err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	rules, err := s.enforcer.GetFilteredPolicy(0, name)
	if err != nil {
		return nil, fmt.Errorf("get role policies failed: %w", err)
	}
	return collectPolicies(rules), nil
}

// SetAdminRoles 用 roles 覆盖管理员现有角色
func (s *Service) SetAdminRoles(adminID uint, roles []string) error {
	if err := requireAdminID(adminID); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	subject := SubjectForAdmin(adminID)
	if _, err := s.enforcer.RemoveFilteredNamedGroupingPolicy("g", 0, subject); err != nil {
		return fmt.Errorf("clear admin roles failed: %w", err)
	}
	for _, role := range roles {
		name, err := s.EnsureRole(role)
		if err != nil {
			return err
		}
		if _, err := s.enforcer.AddNamedGroupingPolicy("g", subject, name); err != nil {
			return fmt.Errorf("assign admin role failed: %w", err)
		}
	}
	return nil
}

// GetAdminRoles 管理员直接分配的角色
func (s *Service) GetAdminRoles(adminID uint) ([]string, error) {
	if err := requireAdminID(adminID); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	roles, err := s.enforcer.GetRolesForUser(SubjectForAdmin(adminID))
	if err != nil {
		return nil, fmt.Errorf("get admin roles failed: %w", err)
	}
	return uniqueRoles(roles), nil
}

// GetAdminPolicies 管理员生效策略，包含继承而来的部分
func (s *Service) GetAdminPolicies(adminID uint) ([]Policy, error) {
	if err := requireAdminID(adminID); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	rules, err := s.enforcer.GetImplicitPermissionsForUser(SubjectForAdmin(adminID))
	if err != nil {
		return nil, fmt.Errorf("get admin policies failed: %w", err)
	}
	policies := collectPolicies(rules)
	sort.Slice(policies, func(i, j int) bool { return policies[i].less(policies[j]) })
	return policies, nil
}

// collectPolicies 转换并去重
func collectPolicies(rules [][]string) []Policy {
	seen := make(map[Policy]struct{}, len(rules))
	policies := make([]Policy, 0, len(rules))
	for _, rule := range rules {
		policy, ok := policyFromRule(rule)
		if !ok {
			continue
		}
		if _, dup := seen[policy]; dup {
			continue
		}
		seen[policy] = struct{}{}
		policies = append(policies, policy)
	}
	return policies
}

func uniqueRoles(names []string) []string {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if isRoleName(name) {
			set[name] = struct{}{}
		}
	}
	roles := make([]string, 0, len(set))
	for name := range set {
		roles = append(roles, name)
	}
	sort.Strings(roles)
	return roles
}
