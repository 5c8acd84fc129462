// Package roles maps the role names attached to a session to the route a
// user lands on after signing in.
package roles

import "strings"

// Prefix is the authority prefix used by the backing service.
const Prefix = "ROLE_"

// Defaults.
const (
	DefaultAdminRoute     = "/admin-dashboard"
	DefaultDashboardRoute = "/dashboard"
	DefaultAdminRole      = "ROLE_ADMIN"
)

// Router decides the landing route for a role set. The zero value routes
// ROLE_ADMIN to /admin-dashboard and everything else to /dashboard.
type Router struct {
	AdminRoles     []string
	AdminRoute     string
	DashboardRoute string
}

// NewRouter returns a Router with adminRoles normalized.
func NewRouter(adminRoles []string, adminRoute, dashboardRoute string) Router {
	r := Router{AdminRoute: adminRoute, DashboardRoute: dashboardRoute}
	for _, role := range adminRoles {
		if n := Normalize(role); n != "" {
			r.AdminRoles = append(r.AdminRoles, n)
		}
	}
	return r
}

// Normalize returns the upper-case, ROLE_-prefixed form of role, or "" for
// a blank name. "admin", "ADMIN" and "ROLE_ADMIN" all normalize to ROLE_ADMIN.
func Normalize(role string) string {
	role = strings.ToUpper(strings.TrimSpace(role))
	if role == "" || role == Prefix {
		return ""
	}
	if strings.HasPrefix(role, Prefix) {
		return role
	}
	return Prefix + role
}

// NormalizeAll normalizes every role and drops blanks and duplicates.
func NormalizeAll(roles []string) []string {
	if len(roles) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(roles))
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		n := Normalize(r)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// IsAdmin reports whether any of roles is an administrative role.
func (r Router) IsAdmin(roles []string) bool {
	admin := r.AdminRoles
	if len(admin) == 0 {
		admin = []string{DefaultAdminRole}
	}
	for _, role := range roles {
		n := Normalize(role)
		if n == "" {
			continue
		}
		for _, a := range admin {
			if n == Normalize(a) {
				return true
			}
		}
	}
	return false
}

// LandingFor returns the admin route when roles contains an administrative
// role and the dashboard route otherwise. It has no side effects.
func (r Router) LandingFor(roles []string) string {
	if r.IsAdmin(roles) {
		if r.AdminRoute != "" {
			return r.AdminRoute
		}
		return DefaultAdminRoute
	}
	if r.DashboardRoute != "" {
		return r.DashboardRoute
	}
	return DefaultDashboardRoute
}
