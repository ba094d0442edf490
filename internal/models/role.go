package models

import "fmt"

type Role string

const (
	RoleAdminHR             Role = "ADMIN_HR"
	RoleEmployee            Role = "EMPLOYEE"
	RoleChiefTeaching       Role = "CHIEF_TEACHING"
	RoleChiefExams          Role = "CHIEF_EXAMS"
	RoleChiefFinance        Role = "CHIEF_FINANCE"
	RoleChiefPlanning       Role = "CHIEF_PLANNING"
	RoleChiefAdministration Role = "CHIEF_ADMINISTRATION"
)

var departmentChiefs = map[Role]string{
	RoleChiefTeaching:       "teaching",
	RoleChiefExams:          "exams",
	RoleChiefFinance:        "finance",
	RoleChiefPlanning:       "planning",
	RoleChiefAdministration: "administration",
}

// ParseRole accepts only the exact role names above.
func ParseRole(value string) (Role, error) {
	role := Role(value)
	if !role.Valid() {
		return "", fmt.Errorf("unknown role %q", value)
	}
	return role, nil
}

func (r Role) Valid() bool {
	switch r {
	case RoleAdminHR, RoleEmployee:
		return true
	}
	_, ok := departmentChiefs[r]
	return ok
}

// IsDepartmentChief reports whether the role belongs to the CHIEF_<department> family.
func IsDepartmentChief(r Role) bool {
	_, ok := departmentChiefs[r]
	return ok
}

// Department returns the department a chief role heads, or "" for other roles.
func (r Role) Department() string {
	return departmentChiefs[r]
}
