package permission

import (
	"strings"

	"github.com/pkg/errors"
)

// ScopeRules 用户类型到默认数据权限的映射，在既无用户覆盖也无角色数据权限时生效
type ScopeRules struct {
	rules    map[string]DataScope
	fallback DataScope
}

// NewScopeRules 构造规则表，用户类型匹配忽略大小写。fallback 为空时取 SELF。
func NewScopeRules(rules map[string]string, fallback string) (*ScopeRules, error) {
	sr := &ScopeRules{rules: make(map[string]DataScope, len(rules)), fallback: DataScopeSelf}
	for userType, value := range rules {
		ds, ok := ParseDataScope(value)
		if !ok {
			return nil, errors.Errorf("invalid data scope %q for user type %q", value, userType)
		}
		sr.rules[normalizeUserType(userType)] = ds
	}
	if fallback != "" {
		ds, ok := ParseDataScope(fallback)
		if !ok {
			return nil, errors.Errorf("invalid default data scope %q", fallback)
		}
		sr.fallback = ds
	}
	return sr, nil
}

// DefaultScopeRules manager 本部门及以下，leader 本部门，其余仅本人
func DefaultScopeRules() *ScopeRules {
	return &ScopeRules{
		rules: map[string]DataScope{
			"manager": DataScopeDeptAndChild,
			"leader":  DataScopeDept,
		},
		fallback: DataScopeSelf,
	}
}

func (r *ScopeRules) For(userType string) DataScope {
	if ds, ok := r.rules[normalizeUserType(userType)]; ok {
		return ds
	}
	return r.fallback
}

func normalizeUserType(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
