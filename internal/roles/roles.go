// Package roles holds the closed role enumeration and the pure policy
// check used to gate privileged status transitions.
package roles

import "strings"

type Role string

const (
	RoleAdmin       Role = "ADMIN"
	RoleApprover    Role = "APPROVER"
	RoleContributor Role = "CONTRIBUTOR"
	RoleReader      Role = "READER"
)

// PublishRoles is the set allowed to move an article into PUBLISHED or
// DEPRECATED, and to restore prior versions.
var PublishRoles = NewSet(RoleAdmin, RoleApprover)

// WriteRoles is the set allowed to create or edit content.
var WriteRoles = NewSet(RoleAdmin, RoleApprover, RoleContributor)

// Set is an unordered collection of roles.
type Set map[Role]struct{}

func NewSet(members ...Role) Set {
	set := make(Set, len(members))
	for _, role := range members {
		set[role] = struct{}{}
	}
	return set
}

// Parse converts raw role names into a Set, dropping anything outside the
// enumeration. Unknown names never grant access.
func Parse(names []string) Set {
	set := make(Set, len(names))
	for _, name := range names {
		switch role := Role(strings.ToUpper(strings.TrimSpace(name))); role {
		case RoleAdmin, RoleApprover, RoleContributor, RoleReader:
			set[role] = struct{}{}
		}
	}
	return set
}

// Valid reports whether name is a member of the enumeration.
func Valid(name string) bool {
	switch Role(name) {
	case RoleAdmin, RoleApprover, RoleContributor, RoleReader:
		return true
	}
	return false
}

func (s Set) Names() []string {
	names := make([]string, 0, len(s))
	for _, role := range []Role{RoleAdmin, RoleApprover, RoleContributor, RoleReader} {
		if _, ok := s[role]; ok {
			names = append(names, string(role))
		}
	}
	return names
}

// Authorize reports whether the actor holds at least one of the required
// roles. Pure set intersection, no I/O.
func Authorize(actorRoles, requiredAnyOf Set) bool {
	for role := range requiredAnyOf {
		if _, ok := actorRoles[role]; ok {
			return true
		}
	}
	return false
}
