package authz

import "strings"

// Engine evaluates whether a role set satisfies a requested capability
// set against the static role policy. Administrator roles bypass the
// policy table entirely: they are omnipotent by declaration, not by
// accumulated grants.
type Engine struct {
	adminRoles map[string]struct{}
	policy     Policy
}

// NewEngine constructs an Engine from the configured administrator
// role list and the static role policy. Both are normalized once here;
// the engine itself is immutable afterwards.
func NewEngine(adminRoles []string, policy Policy) *Engine {
	admins := make(map[string]struct{}, len(adminRoles))
	for _, r := range adminRoles {
		r = strings.ToLower(strings.TrimSpace(r))
		if r == "" {
			continue
		}
		admins[r] = struct{}{}
	}
	normalized := make(Policy, len(policy))
	for role, stmts := range policy {
		role = strings.ToLower(strings.TrimSpace(role))
		if role == "" {
			continue
		}
		granted := make(Statements, len(stmts))
		for resource, actions := range stmts {
			granted[strings.ToLower(strings.TrimSpace(resource))] = append([]string(nil), actions...)
		}
		normalized[role] = granted
	}
	return &Engine{adminRoles: admins, policy: normalized}
}

// Authorize reports whether the role set grants every resource/action
// pair in the request. It never returns an error: unknown resources or
// actions are simply ungranted. Evaluation is two independent steps:
// the administrator bypass, then AND across requested pairs with OR
// across the actor's roles per pair.
func (e *Engine) Authorize(rawRoles string, request AccessRequest) bool {
	roles := ParseRoles(rawRoles)
	if e.isAdmin(roles) {
		return true
	}
	for resource, actions := range request {
		for _, action := range actions {
			if !e.granted(roles, resource, action) {
				return false
			}
		}
	}
	return true
}

// IsAdmin reports whether any identifier in the role string is a
// member of the configured administrator-roles set.
func (e *Engine) IsAdmin(rawRoles string) bool {
	return e.isAdmin(ParseRoles(rawRoles))
}

func (e *Engine) isAdmin(roles []string) bool {
	for _, r := range roles {
		if _, ok := e.adminRoles[r]; ok {
			return true
		}
	}
	return false
}

// granted reports whether at least one of the roles is granted the
// exact resource/action pair by the policy.
func (e *Engine) granted(roles []string, resource, action string) bool {
	resource = strings.ToLower(strings.TrimSpace(resource))
	for _, role := range roles {
		stmts, ok := e.policy[role]
		if !ok {
			continue
		}
		for _, a := range stmts[resource] {
			if a == action {
				return true
			}
		}
	}
	return false
}
