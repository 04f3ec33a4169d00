package domain

import "time"

// Department is an organizational unit; workflow steps may require an
// approver from a specific department.
type Department struct {
	ID          string
	Name        string
	Description string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
