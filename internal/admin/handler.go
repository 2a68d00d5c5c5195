// Package admin serves the write side: role management and the KMIP server
// certificate store. Every route here requires an admin.
package admin

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"secrets-backend/internal/apperror"
	"secrets-backend/internal/certificate"
	"secrets-backend/internal/instrument"
	"secrets-backend/internal/role"
)

type Handler struct {
	roles    *role.Store
	registry *role.Registry
	certs    *certificate.Service
	certRepo *certificate.Repository
}

func NewHandler(roles *role.Store, reg *role.Registry, certs *certificate.Service, certRepo *certificate.Repository) *Handler {
	return &Handler{roles: roles, registry: reg, certs: certs, certRepo: certRepo}
}

func RegisterAdminRoutes(app *fiber.App, h *Handler, middleware ...fiber.Handler) {
	with := func(handler fiber.Handler) []fiber.Handler {
		return append(append([]fiber.Handler{}, middleware...), handler)
	}

	api := app.Group("/api")
	api.Post("/roles", with(h.CreateRole)...)
	api.Put("/roles/:slug", with(h.UpdateRole)...)
	api.Delete("/roles/:slug", with(h.DeleteRole)...)

	api.Get("/certificates", with(h.ListCertificates)...)
	api.Get("/certificates/:id", with(h.GetCertificate)...)
	api.Get("/certificates/:id/bundle", with(h.GetCertificateBundle)...)
	api.Post("/certificates", with(h.ImportCertificate)...)
	api.Put("/certificates/:id", with(h.ReplaceCertificate)...)
	api.Delete("/certificates/:id", with(h.DeleteCertificate)...)
}

// --- Role Endpoints ---

func (h *Handler) CreateRole(c *fiber.Ctx) error {
	form, err := parseRoleForm(c)
	if err != nil {
		return err
	}

	ctx, span := instrument.Start(c.UserContext(), "role", "create")
	defer span.End()
	span.SetSubject("role", form.Slug)

	r := form.Role()
	if err := h.roles.Create(ctx, r); err != nil {
		span.SetStatus("error")
		if errors.Is(err, role.ErrSlugTaken) {
			return apperror.Conflict("Role already exists: " + form.Slug)
		}
		return fmt.Errorf("create role: %w", err)
	}
	span.SetStatus("ok")

	if err := role.Reload(ctx, h.roles, h.registry); err != nil {
		return fmt.Errorf("reload roles: %w", err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": r})
}

func (h *Handler) UpdateRole(c *fiber.Ctx) error {
	slug := c.Params("slug")
	form, err := parseRoleForm(c)
	if err != nil {
		return err
	}

	ctx, span := instrument.Start(c.UserContext(), "role", "update")
	defer span.End()
	span.SetSubject("role", slug)

	r := form.Role()
	if err := h.roles.Update(ctx, slug, r); err != nil {
		span.SetStatus("error")
		switch {
		case errors.Is(err, role.ErrNotFound):
			return apperror.NotFound("Role", slug)
		case errors.Is(err, role.ErrSlugTaken):
			return apperror.Conflict("Role already exists: " + form.Slug)
		}
		return fmt.Errorf("update role %s: %w", slug, err)
	}
	span.SetStatus("ok")

	if err := role.Reload(ctx, h.roles, h.registry); err != nil {
		return fmt.Errorf("reload roles: %w", err)
	}
	return c.JSON(fiber.Map{"data": r})
}

func (h *Handler) DeleteRole(c *fiber.Ctx) error {
	slug := c.Params("slug")

	ctx, span := instrument.Start(c.UserContext(), "role", "delete")
	defer span.End()
	span.SetSubject("role", slug)

	if err := h.roles.Delete(ctx, slug); err != nil {
		span.SetStatus("error")
		if errors.Is(err, role.ErrNotFound) {
			return apperror.NotFound("Role", slug)
		}
		return fmt.Errorf("delete role %s: %w", slug, err)
	}
	span.SetStatus("ok")

	if err := role.Reload(ctx, h.roles, h.registry); err != nil {
		return fmt.Errorf("reload roles: %w", err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"slug": slug}})
}

// parseRoleForm decodes, normalizes and validates a role form body.
func parseRoleForm(c *fiber.Ctx) (*role.Form, error) {
	var form role.Form
	if err := c.BodyParser(&form); err != nil {
		return nil, apperror.InvalidPayload(err.Error())
	}
	form.Normalize()
	if errs := form.Validate(); len(errs) > 0 {
		return nil, apperror.Validation(errs)
	}
	return &form, nil
}

// --- Certificate Endpoints ---

func (h *Handler) ListCertificates(c *fiber.Ctx) error {
	var filter certificate.ListFilter
	if v := c.Query("expiring_before"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return apperror.InvalidPayload("expiring_before must be an RFC 3339 timestamp")
		}
		filter.ExpiringBefore = &t
	}

	ctx, span := instrument.Start(c.UserContext(), "certificate", "list")
	defer span.End()

	certs, err := h.certRepo.List(ctx, filter)
	if err != nil {
		span.SetStatus("error")
		return fmt.Errorf("list certificates: %w", err)
	}
	span.SetStatus("ok")
	span.SetMetadata("count", len(certs))
	return c.JSON(fiber.Map{"data": certs})
}

func (h *Handler) GetCertificate(c *fiber.Ctx) error {
	id := c.Params("id")
	cert, err := h.certRepo.GetByID(c.UserContext(), id)
	if err != nil {
		return certificateError(err, id)
	}
	return c.JSON(fiber.Map{"data": cert})
}

func (h *Handler) GetCertificateBundle(c *fiber.Ctx) error {
	id := c.Params("id")

	ctx, span := instrument.Start(c.UserContext(), "certificate", "open")
	defer span.End()
	span.SetSubject("certificate", id)

	bundle, err := h.certs.Open(ctx, id)
	if err != nil {
		span.SetStatus("error")
		return certificateError(err, id)
	}
	span.SetStatus("ok")
	return c.JSON(fiber.Map{"data": bundle})
}

func (h *Handler) ImportCertificate(c *fiber.Ctx) error {
	var in certificate.ImportInput
	if err := c.BodyParser(&in); err != nil {
		return apperror.InvalidPayload("Invalid JSON body")
	}

	ctx, span := instrument.Start(c.UserContext(), "certificate", "import")
	defer span.End()

	cert, err := h.certs.Import(ctx, in)
	if err != nil {
		span.SetStatus("error")
		return certificateError(err, "")
	}
	span.SetSubject("certificate", cert.ID)
	span.SetStatus("ok")
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": cert})
}

func (h *Handler) ReplaceCertificate(c *fiber.Ctx) error {
	id := c.Params("id")
	var in certificate.ImportInput
	if err := c.BodyParser(&in); err != nil {
		return apperror.InvalidPayload("Invalid JSON body")
	}

	ctx, span := instrument.Start(c.UserContext(), "certificate", "replace")
	defer span.End()
	span.SetSubject("certificate", id)

	cert, err := h.certs.Replace(ctx, id, in)
	if err != nil {
		span.SetStatus("error")
		return certificateError(err, id)
	}
	span.SetStatus("ok")
	return c.JSON(fiber.Map{"data": cert})
}

func (h *Handler) DeleteCertificate(c *fiber.Ctx) error {
	id := c.Params("id")

	ctx, span := instrument.Start(c.UserContext(), "certificate", "delete")
	defer span.End()
	span.SetSubject("certificate", id)

	if err := h.certRepo.Delete(ctx, id); err != nil {
		span.SetStatus("error")
		return certificateError(err, id)
	}
	span.SetStatus("ok")
	return c.JSON(fiber.Map{"data": fiber.Map{"id": id}})
}

func certificateError(err error, id string) error {
	switch {
	case errors.Is(err, certificate.ErrNotFound):
		return apperror.NotFound("Certificate", id)
	case errors.Is(err, certificate.ErrInvalidPEM):
		return apperror.Validation([]apperror.ErrorDetail{{Field: "certificate", Rule: "invalid_pem", Message: err.Error()}})
	}
	return err
}
