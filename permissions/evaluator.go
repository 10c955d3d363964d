// Package permissions answers role and permission questions about the
// signed-in user. It holds no state of its own.
package permissions

import (
	"strings"

	"github.com/jrsteele09/go-session-client/authmodel"
)

const (
	RoleAdmin      = "ROLE_ADMIN"
	RoleSuperAdmin = "ROLE_SUPERADMIN"
)

// ProfileSource exposes the current user. The session coordinator and the
// token store both satisfy it.
type ProfileSource interface {
	User() *authmodel.UserProfile
	IsAuthenticated() bool
}

// Access names a feature and, optionally, an action on it.
type Access struct {
	Feature string `json:"feature" yaml:"feature"`
	Action  string `json:"action,omitempty" yaml:"action,omitempty"`
}

// Permission is the permission string granting the access: FEATURE_ACTION.
func (a Access) Permission() string {
	return strings.ToUpper(a.Feature + "_" + a.Action)
}

// Rule bundles the checks guarding a resource. Set parts are combined with
// AND; an empty rule only requires an authenticated session.
type Rule struct {
	Roles       *Check  `json:"roles,omitempty" yaml:"roles,omitempty"`
	Permissions *Check  `json:"permissions,omitempty" yaml:"permissions,omitempty"`
	Access      *Access `json:"access,omitempty" yaml:"access,omitempty"`
}

type Evaluator struct {
	source ProfileSource
}

func NewEvaluator(source ProfileSource) *Evaluator {
	return &Evaluator{source: source}
}

func (e *Evaluator) profile() *authmodel.UserProfile {
	if !e.source.IsAuthenticated() {
		return nil
	}
	return e.source.User()
}

func (e *Evaluator) HasRole(check Check) bool {
	user := e.profile()
	return user != nil && check.Matches(user.Roles)
}

func (e *Evaluator) HasPermission(check Check) bool {
	user := e.profile()
	return user != nil && check.Matches(user.Permissions)
}

// CanAccess tests FEATURE_ACTION membership, or any FEATURE_ prefixed
// permission when no action is given. Unauthenticated sessions are denied.
func (e *Evaluator) CanAccess(access Access) bool {
	user := e.profile()
	if user == nil || access.Feature == "" {
		return false
	}
	if access.Action != "" {
		return user.HasPermission(access.Permission())
	}
	prefix := strings.ToUpper(access.Feature) + "_"
	for _, p := range user.Permissions {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

// Can is CanAccess with the arguments in reading order: Can("read", "cases").
func (e *Evaluator) Can(action, feature string) bool {
	return e.CanAccess(Access{Feature: feature, Action: action})
}

func (e *Evaluator) CheckRule(rule Rule) bool {
	if e.profile() == nil {
		return false
	}
	if rule.Roles != nil && !e.HasRole(*rule.Roles) {
		return false
	}
	if rule.Permissions != nil && !e.HasPermission(*rule.Permissions) {
		return false
	}
	if rule.Access != nil && !e.CanAccess(*rule.Access) {
		return false
	}
	return true
}

func (e *Evaluator) IsAdmin() bool {
	return e.HasRole(Is(RoleAdmin))
}

func (e *Evaluator) IsSuperAdmin() bool {
	return e.HasRole(Is(RoleSuperAdmin))
}
