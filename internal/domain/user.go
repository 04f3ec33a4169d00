package domain

import "time"

// Role enumerates platform roles. APPROVER grants signing authority for the
// user's department; ADMIN additionally manages templates and departments.
type Role string

const (
	RoleEmployee Role = "EMPLOYEE"
	RoleApprover Role = "APPROVER"
	RoleAdmin    Role = "ADMIN"
)

// User is the single principal model: requesters, approvers and admins.
type User struct {
	ID           string
	Name         string
	Email        string
	EmployeeCode string
	PasswordHash string
	Role         Role
	DepartmentID *string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CanApprove reports whether the user holds department-level signing
// authority for the given department. A nil department means the step
// accepts any active approver.
func (u *User) CanApprove(departmentID *string) bool {
	if u == nil || !u.Active {
		return false
	}
	if u.Role != RoleApprover && u.Role != RoleAdmin {
		return false
	}
	if departmentID == nil {
		return true
	}
	return u.DepartmentID != nil && *u.DepartmentID == *departmentID
}
