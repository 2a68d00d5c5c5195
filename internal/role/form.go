package role

import (
	"strings"

	"secrets-backend/internal/permission"
)

// ReservedSlug cannot name a role; it marks ad-hoc permission sets.
const ReservedSlug = "custom"

const MsgReservedSlug = "Cannot use custom as its a keyword"

// Normalize trims the text fields and lower-cases the slug.
func (f *Form) Normalize() {
	f.Name = strings.TrimSpace(f.Name)
	f.Description = strings.TrimSpace(f.Description)
	f.Slug = strings.ToLower(strings.TrimSpace(f.Slug))
	if f.Permissions == nil {
		f.Permissions = permission.Form{}
	}
}

// Validate reports every problem with a normalized form.
func (f *Form) Validate() []permission.ErrorDetail {
	var errs []permission.ErrorDetail
	if f.Name == "" {
		errs = append(errs, permission.ErrorDetail{Field: "name", Rule: "required", Message: "name is required"})
	}
	switch f.Slug {
	case "":
		errs = append(errs, permission.ErrorDetail{Field: "slug", Rule: "required", Message: "slug is required"})
	case ReservedSlug:
		errs = append(errs, permission.ErrorDetail{Field: "slug", Rule: "reserved", Message: MsgReservedSlug})
	}
	return append(errs, f.Permissions.Validate()...)
}

// Role builds the role the form describes. Identity and timestamps are left
// for the store to fill.
func (f *Form) Role() *Role {
	return &Role{
		Slug:        f.Slug,
		Name:        f.Name,
		Description: f.Description,
		Permissions: permission.FormToRules(f.Permissions),
	}
}
