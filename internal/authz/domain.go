package authz

import (
	"sort"
	"strings"
)

// RoleDelimiter joins multiple role identifiers into the single role
// column stored on a user record.
const RoleDelimiter = ","

// Statements maps a resource name to the actions granted (or defined)
// for it, e.g. {"user": ["list", "ban"]}.
type Statements map[string][]string

// Policy maps a role identifier to the statements that role is granted.
// A role missing from the policy grants nothing by itself.
type Policy map[string]Statements

// AccessRequest is a single authorization question: does the actor's
// role set grant ALL of these resource/action pairs?
type AccessRequest map[string][]string

// DefaultStatements is the full capability schema: every resource this
// service knows about and the finite set of actions defined for it.
func DefaultStatements() Statements {
	return Statements{
		"user": {
			"create",
			"list",
			"set-role",
			"ban",
			"impersonate",
			"delete",
			"set-password",
			"update",
		},
		"session": {
			"list",
			"revoke",
			"delete",
		},
	}
}

// ParseRoles splits a delimiter-joined role string into a normalized
// role set: trimmed, lowercased, deduplicated and sorted. Raw role
// strings are never compared directly.
func ParseRoles(raw string) []string {
	parts := strings.Split(raw, RoleDelimiter)
	seen := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		seen[p] = struct{}{}
	}
	roles := make([]string, 0, len(seen))
	for r := range seen {
		roles = append(roles, r)
	}
	sort.Strings(roles)
	return roles
}

// JoinRoles serializes a role set back into the stored representation.
func JoinRoles(roles []string) string {
	return strings.Join(ParseRoles(strings.Join(roles, RoleDelimiter)), RoleDelimiter)
}
