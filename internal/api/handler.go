// Package api serves the read side of the permission model: the subject
// taxonomy, the rule/form converters, condition validation and role lookups.
package api

import (
	"github.com/gofiber/fiber/v2"

	"secrets-backend/internal/apperror"
	"secrets-backend/internal/instrument"
	"secrets-backend/internal/permission"
	"secrets-backend/internal/role"
)

type Handler struct {
	registry *role.Registry
}

func NewHandler(reg *role.Registry) *Handler {
	return &Handler{registry: reg}
}

// RegisterRoutes mounts the read routes behind the given middleware. The
// middleware is attached per route so it never leaks onto sibling groups.
func RegisterRoutes(app *fiber.App, h *Handler, middleware ...fiber.Handler) {
	with := func(handler fiber.Handler) []fiber.Handler {
		return append(append([]fiber.Handler{}, middleware...), handler)
	}

	api := app.Group("/api")
	api.Get("/permissions/subjects", with(h.Subjects)...)
	api.Post("/permissions/conditions/validate", with(h.ValidateConditions)...)
	api.Post("/permissions/to-form", with(h.ToForm)...)
	api.Post("/permissions/to-rules", with(h.ToRules)...)

	api.Get("/roles", with(h.ListRoles)...)
	api.Get("/roles/:slug", with(h.GetRole)...)
	api.Get("/roles/:slug/form", with(h.GetRoleForm)...)
}

// Subjects handles GET /api/permissions/subjects.
func (h *Handler) Subjects(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": permission.Taxonomy()})
}

type conditionsBody struct {
	Conditions []permission.Condition `json:"conditions"`
}

// ValidateConditions handles POST /api/permissions/conditions/validate.
// A valid list answers 200; problems come back as a 422 with one detail each.
func (h *Handler) ValidateConditions(c *fiber.Ctx) error {
	var body conditionsBody
	if err := c.BodyParser(&body); err != nil {
		return apperror.InvalidPayload("Invalid JSON body")
	}

	_, span := instrument.Start(c.UserContext(), "permission", "validate_conditions")
	defer span.End()
	span.SetMetadata("conditions", len(body.Conditions))

	if errs := permission.ValidateConditions(body.Conditions); len(errs) > 0 {
		span.SetStatus("error")
		return apperror.Validation(errs)
	}
	span.SetStatus("ok")
	return c.JSON(fiber.Map{"data": fiber.Map{"valid": true}})
}

type rulesBody struct {
	Permissions []permission.Rule `json:"permissions"`
}

// ToForm handles POST /api/permissions/to-form.
func (h *Handler) ToForm(c *fiber.Ctx) error {
	var body rulesBody
	if err := c.BodyParser(&body); err != nil {
		return apperror.InvalidPayload(err.Error())
	}

	_, span := instrument.Start(c.UserContext(), "permission", "to_form")
	defer span.End()
	span.SetMetadata("rules", len(body.Permissions))

	form := permission.RulesToForm(body.Permissions)
	span.SetStatus("ok")
	return c.JSON(fiber.Map{"data": form})
}

type formBody struct {
	Permissions permission.Form `json:"permissions"`
}

// ToRules handles POST /api/permissions/to-rules. The form is validated
// before it is converted.
func (h *Handler) ToRules(c *fiber.Ctx) error {
	var body formBody
	if err := c.BodyParser(&body); err != nil {
		return apperror.InvalidPayload(err.Error())
	}

	_, span := instrument.Start(c.UserContext(), "permission", "to_rules")
	defer span.End()

	if errs := body.Permissions.Validate(); len(errs) > 0 {
		span.SetStatus("error")
		return apperror.Validation(errs)
	}
	rules := permission.FormToRules(body.Permissions)
	span.SetMetadata("rules", len(rules))
	span.SetStatus("ok")
	return c.JSON(fiber.Map{"data": rules})
}

// ListRoles handles GET /api/roles.
func (h *Handler) ListRoles(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.registry.All()})
}

// GetRole handles GET /api/roles/:slug.
func (h *Handler) GetRole(c *fiber.Ctx) error {
	r, err := h.role(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": r})
}

// GetRoleForm handles GET /api/roles/:slug/form.
func (h *Handler) GetRoleForm(c *fiber.Ctx) error {
	r, err := h.role(c)
	if err != nil {
		return err
	}

	_, span := instrument.Start(c.UserContext(), "permission", "to_form")
	defer span.End()
	span.SetSubject("role", r.Slug)

	form := role.FormFor(r)
	span.SetStatus("ok")
	return c.JSON(fiber.Map{"data": form})
}

func (h *Handler) role(c *fiber.Ctx) (*role.Role, error) {
	slug := c.Params("slug")
	r := h.registry.Get(slug)
	if r == nil {
		return nil, apperror.NotFound("Role", slug)
	}
	return r, nil
}
