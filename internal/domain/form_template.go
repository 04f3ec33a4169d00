package domain

import "time"

// FormTemplate describes a request form plus its ordered approval workflow.
// Steps are loaded separately; a template with live approval instances is
// immutable.
type FormTemplate struct {
	ID          string
	Name        string
	Description string
	FormSchema  map[string]any
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Steps []WorkflowStep
}
