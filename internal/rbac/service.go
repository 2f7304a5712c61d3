package rbac

import (
	"errors"
	"sort"
	"strings"
)

// ErrNotFound indicates that the requested role does not exist.
var ErrNotFound = errors.New("rbac: not found")

// Service resolves roles to permission sets.
type Service struct {
	roles map[string]Role
}

// NewService constructs a Service over the given catalogue. An empty
// catalogue falls back to DefaultRoles.
func NewService(roles ...Role) *Service {
	if len(roles) == 0 {
		roles = DefaultRoles()
	}
	s := &Service{roles: make(map[string]Role, len(roles))}
	for _, role := range roles {
		role.Name = strings.ToLower(strings.TrimSpace(role.Name))
		role.Permissions = normalizePermissions(role.Permissions)
		s.roles[role.Name] = role
	}
	return s
}

// ListRoles returns all roles ordered by name.
func (s *Service) ListRoles() []Role {
	roles := make([]Role, 0, len(s.roles))
	for _, role := range s.roles {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
	return roles
}

// GetRole fetches a role by name.
func (s *Service) GetRole(name string) (Role, error) {
	role, ok := s.roles[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Role{}, ErrNotFound
	}
	return role, nil
}

// EffectivePermissions returns deduplicated permission names for a role
// plus any per-user grants.
func (s *Service) EffectivePermissions(role string, extra ...string) []string {
	perms := append([]string{}, extra...)
	if r, err := s.GetRole(role); err == nil {
		perms = append(perms, r.Permissions...)
	}
	return normalizePermissions(perms)
}
