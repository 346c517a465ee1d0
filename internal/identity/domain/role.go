package domain

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Role is a member of the closed set of operator roles.
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleOpColis Role = "OP_COLIS"
	RoleOpStock Role = "OP_STOCK"
)

// ErrUnknownRole is returned by ParseRole for names outside the enumeration.
var ErrUnknownRole = errors.New("unknown role")

// AllRoles lists every role in canonical order.
var AllRoles = []Role{RoleAdmin, RoleOpColis, RoleOpStock}

// ParseRole is the only way raw role strings become Roles: it trims, upper-cases and
// checks membership.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !slices.Contains(AllRoles, r) {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
	return r, nil
}

// RoleSet is an order-independent set of roles.
type RoleSet map[Role]struct{}

// NewRoleSet builds a set from already-canonical roles.
func NewRoleSet(roles ...Role) RoleSet {
	s := make(RoleSet, len(roles))
	for _, r := range roles {
		s[r] = struct{}{}
	}
	return s
}

// ParseRoles parses every name with ParseRole. Duplicates collapse.
func ParseRoles(names []string) (RoleSet, error) {
	s := make(RoleSet, len(names))
	for _, n := range names {
		r, err := ParseRole(n)
		if err != nil {
			return nil, err
		}
		s[r] = struct{}{}
	}
	return s, nil
}

// ParseRoleList parses a comma-separated list such as "ADMIN,op_stock". Empty items are skipped.
func ParseRoleList(csv string) (RoleSet, error) {
	var names []string
	for _, part := range strings.Split(csv, ",") {
		if strings.TrimSpace(part) != "" {
			names = append(names, part)
		}
	}
	return ParseRoles(names)
}

func (s RoleSet) Has(r Role) bool {
	_, ok := s[r]
	return ok
}

// Intersects reports whether s and other share at least one role.
func (s RoleSet) Intersects(other RoleSet) bool {
	small, large := s, other
	if len(small) > len(large) {
		small, large = large, small
	}
	for r := range small {
		if large.Has(r) {
			return true
		}
	}
	return false
}

func (s RoleSet) Equal(other RoleSet) bool {
	if len(s) != len(other) {
		return false
	}
	for r := range s {
		if !other.Has(r) {
			return false
		}
	}
	return true
}

// Roles returns the members in sorted order.
func (s RoleSet) Roles() []Role {
	out := make([]Role, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	slices.Sort(out)
	return out
}

// Strings returns the members as sorted strings, the form embedded in tokens.
func (s RoleSet) Strings() []string {
	out := make([]string, 0, len(s))
	for _, r := range s.Roles() {
		out = append(out, string(r))
	}
	return out
}
