package app

import (
	"strings"

	"classboard/pkg/types"
)

// routeRule maps a path prefix to an access requirement.
type routeRule struct {
	prefix string
	role   types.Role
	public bool
}

// RouteTable is the client's route surface: public marketing and login
// entry points plus the two role-gated dashboard roots.
type RouteTable struct {
	rules []routeRule
}

// NewRouteTable builds the default route surface.
func NewRouteTable() *RouteTable {
	return &RouteTable{rules: []routeRule{
		{prefix: "/", public: true},
		{prefix: "/login", public: true},
		{prefix: "/setup", public: true},
		{prefix: "/instructor", role: types.RoleInstructor},
		{prefix: "/student", role: types.RoleStudent},
	}}
}

// Match resolves a path to its access requirement by longest matching
// prefix. Unknown paths fall through to the public landing surface.
func (rt *RouteTable) Match(path string) (types.Role, bool) {
	var best *routeRule
	for i := range rt.rules {
		rule := &rt.rules[i]
		if !matchesPrefix(path, rule.prefix) {
			continue
		}
		if best == nil || len(rule.prefix) > len(best.prefix) {
			best = rule
		}
	}
	if best == nil || best.public {
		return "", true
	}
	return best.role, false
}

func matchesPrefix(path, prefix string) bool {
	if prefix == "/" {
		return true
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
