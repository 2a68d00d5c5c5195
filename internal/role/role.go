// Package role stores project roles and converts them to and from the
// editable permission form.
package role

import (
	"time"

	"secrets-backend/internal/permission"
)

type Role struct {
	ID          string            `json:"id"`
	Slug        string            `json:"slug"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Permissions []permission.Rule `json:"permissions"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// Form is the editable representation of a role.
type Form struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Slug        string          `json:"slug"`
	Permissions permission.Form `json:"permissions"`
}

// FormFor renders a stored role as an editable form.
func FormFor(r *Role) Form {
	return Form{
		Name:        r.Name,
		Description: r.Description,
		Slug:        r.Slug,
		Permissions: permission.RulesToForm(r.Permissions),
	}
}
