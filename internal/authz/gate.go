package authz

import (
	"fmt"
	"strings"

	"ministry-hr/internal/models"
)

type Decision int

const (
	Allowed Decision = iota
	Denied
	AuthenticationRequired
)

func (d Decision) String() string {
	switch d {
	case Allowed:
		return "allowed"
	case Denied:
		return "denied"
	case AuthenticationRequired:
		return "authentication_required"
	default:
		return "unknown"
	}
}

// Outcome is the result of a gate check. Reason is set for Denied and
// AuthenticationRequired.
type Outcome struct {
	Decision Decision
	Reason   string
}

func (o Outcome) Allowed() bool {
	return o.Decision == Allowed
}

// Requirement describes who may pass the gate. The zero value requires only
// an authenticated user.
type Requirement struct {
	roles           []models.Role
	departmentChief bool
}

func None() Requirement {
	return Requirement{}
}

func RequireRole(role models.Role) Requirement {
	return Requirement{roles: []models.Role{role}}
}

func AnyOf(roles ...models.Role) Requirement {
	return Requirement{roles: append([]models.Role(nil), roles...)}
}

// DepartmentChief admits any role of the CHIEF_<department> family.
func DepartmentChief() Requirement {
	return Requirement{departmentChief: true}
}

func (r Requirement) OrDepartmentChief() Requirement {
	r.roles = append([]models.Role(nil), r.roles...)
	r.departmentChief = true
	return r
}

// IsEmpty reports whether the requirement admits every authenticated user.
func (r Requirement) IsEmpty() bool {
	return len(r.roles) == 0 && !r.departmentChief
}

// Admits reports whether role satisfies the requirement, ignoring session state.
func (r Requirement) Admits(role models.Role) bool {
	if r.IsEmpty() {
		return true
	}
	for _, candidate := range r.roles {
		if candidate == role {
			return true
		}
	}
	return r.departmentChief && models.IsDepartmentChief(role)
}

func (r Requirement) String() string {
	parts := make([]string, 0, len(r.roles)+1)
	for _, role := range r.roles {
		parts = append(parts, string(role))
	}
	if r.departmentChief {
		parts = append(parts, "a department chief")
	}
	if len(parts) == 0 {
		return "any authenticated user"
	}
	return strings.Join(parts, " or ")
}

// ApproverRequirement admits HR administrators and every department chief.
func ApproverRequirement() Requirement {
	return RequireRole(models.RoleAdminHR).OrDepartmentChief()
}

// Authorize decides whether the session may access something guarded by req.
// It reads state and nothing else.
func Authorize(state models.SessionState, req Requirement) Outcome {
	switch state.Phase {
	case models.PhaseUninitialized, models.PhaseRestoring:
		return Outcome{Decision: AuthenticationRequired, Reason: "authentication pending"}
	}
	user, ok := state.User()
	if !ok {
		return Outcome{Decision: AuthenticationRequired, Reason: "not logged in"}
	}
	if req.Admits(user.Role) {
		return Outcome{Decision: Allowed}
	}
	return Outcome{
		Decision: Denied,
		Reason:   fmt.Sprintf("role %s does not satisfy requirement: %s", user.Role, req),
	}
}
