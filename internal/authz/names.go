package authz

import (
	"errors"
	"fmt"
	"strings"
)

const (
	apiPrefix   = "/api/v1"
	rolePrefix  = "role:"
	roleAnchor  = "role:__anchor__"
	adminPrefix = "admin:"
)

var (
	// ErrUnavailable 授权服务未初始化
	ErrUnavailable = errors.New("authz service unavailable")
	// ErrReservedRole 保留角色或预置角色不可修改
	ErrReservedRole = errors.New("role is reserved")
	// ErrInvalidInput 角色、对象或动作为空
	ErrInvalidInput = errors.New("invalid authz input")
)

// Policy 一条 p 规则
type Policy struct {
	Subject string `json:"subject"`
	Object  string `json:"object"`
	Action  string `json:"action"`
}

func (p Policy) less(other Policy) bool {
	if p.Object != other.Object {
		return p.Object < other.Object
	}
	if p.Action != other.Action {
		return p.Action < other.Action
	}
	return p.Subject < other.Subject
}

func policyFromRule(rule []string) (Policy, bool) {
	if len(rule) < 3 {
		return Policy{}, false
	}
	return Policy{
		Subject: strings.TrimSpace(rule[0]),
		Object:  NormalizeObject(rule[1]),
		Action:  NormalizeAction(rule[2]),
	}, true
}

// SubjectForAdmin 管理员在策略中的主体名
func SubjectForAdmin(adminID uint) string {
	return fmt.Sprintf("%s%d", adminPrefix, adminID)
}

// NormalizeRole 空格转下划线并补齐 role: 前缀
func NormalizeRole(role string) (string, error) {
	name := strings.TrimPrefix(strings.ReplaceAll(strings.TrimSpace(role), " ", "_"), rolePrefix)
	if name == "" {
		return "", fmt.Errorf("%w: role is required", ErrInvalidInput)
	}
	return rolePrefix + name, nil
}

// NormalizeObject 资源路径统一为不带 /api/v1 的绝对路径
func NormalizeObject(object string) string {
	path := strings.TrimSpace(object)
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	switch {
	case path == apiPrefix:
		return "/"
	case strings.HasPrefix(path, apiPrefix+"/"):
		return path[len(apiPrefix):]
	}
	return path
}

// NormalizeAction HTTP 方法大写
func NormalizeAction(action string) string {
	return strings.ToUpper(strings.TrimSpace(action))
}

func isRoleName(name string) bool {
	return strings.HasPrefix(name, rolePrefix) && name != roleAnchor
}

func requireAdminID(adminID uint) error {
	if adminID == 0 {
		return fmt.Errorf("%w: admin id is required", ErrInvalidInput)
	}
	return nil
}

func requireAction(action string) (string, error) {
	act := NormalizeAction(action)
	if act == "" {
		return "", fmt.Errorf("%w: action is required", ErrInvalidInput)
	}
	return act, nil
}
