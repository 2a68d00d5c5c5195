package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"secrets-backend/internal/apperror"
	"secrets-backend/internal/store"
)

// Handler serves the /api/auth endpoints.
type Handler struct {
	store     *store.Store
	jwtSecret string
}

func NewHandler(s *store.Store, jwtSecret string) *Handler {
	return &Handler{store: s, jwtSecret: jwtSecret}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshBody struct {
	RefreshToken string `json:"refresh_token"`
}

// Login handles POST /api/auth/login.
func (h *Handler) Login(c *fiber.Ctx) error {
	var body credentials
	if err := c.BodyParser(&body); err != nil {
		return apperror.InvalidPayload("Invalid request body")
	}
	if body.Email == "" || body.Password == "" {
		return apperror.Unauthorized("Email and password are required")
	}

	ctx := c.UserContext()
	row, err := h.queryUser(ctx, "email", body.Email)
	if errors.Is(err, store.ErrNotFound) {
		return apperror.Unauthorized("Invalid email or password")
	}
	if err != nil {
		return err
	}
	if !store.Bool(row["active"]) {
		return apperror.Unauthorized("Account is disabled")
	}
	if !CheckPassword(body.Password, store.String(row["password_hash"])) {
		return apperror.Unauthorized("Invalid email or password")
	}

	user, err := h.userFromRow(row)
	if err != nil {
		return err
	}
	pair, err := h.issue(ctx, user)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": pair})
}

// Refresh handles POST /api/auth/refresh. Refresh tokens are single use.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	var body refreshBody
	if err := c.BodyParser(&body); err != nil {
		return apperror.InvalidPayload("Invalid request body")
	}
	if body.RefreshToken == "" {
		return apperror.Unauthorized("Refresh token is required")
	}

	ctx := c.UserContext()
	pb := h.store.Dialect.NewParamBuilder()
	row, err := store.QueryRow(ctx, h.store.DB,
		"SELECT id, user_id, expires_at FROM _refresh_tokens WHERE token = "+pb.Add(body.RefreshToken),
		pb.Params()...)
	if errors.Is(err, store.ErrNotFound) {
		return apperror.Unauthorized("Invalid refresh token")
	}
	if err != nil {
		return err
	}

	if err := h.deleteToken(ctx, "id", store.String(row["id"])); err != nil {
		return err
	}

	expiresAt, err := store.Time(row["expires_at"])
	if err != nil {
		return err
	}
	if time.Now().After(expiresAt) {
		return apperror.Unauthorized("Refresh token expired")
	}

	userRow, err := h.queryUser(ctx, "id", store.String(row["user_id"]))
	if errors.Is(err, store.ErrNotFound) {
		return apperror.Unauthorized("Invalid refresh token")
	}
	if err != nil {
		return err
	}
	if !store.Bool(userRow["active"]) {
		return apperror.Unauthorized("Account is disabled")
	}

	user, err := h.userFromRow(userRow)
	if err != nil {
		return err
	}
	pair, err := h.issue(ctx, user)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": pair})
}

// Logout handles POST /api/auth/logout.
func (h *Handler) Logout(c *fiber.Ctx) error {
	var body refreshBody
	if err := c.BodyParser(&body); err != nil {
		return apperror.InvalidPayload("Invalid request body")
	}
	if body.RefreshToken == "" {
		return apperror.Unauthorized("Refresh token is required")
	}
	if err := h.deleteToken(c.UserContext(), "token", body.RefreshToken); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Logged out"})
}

// RegisterRoutes mounts the unauthenticated auth routes.
func RegisterRoutes(app *fiber.App, h *Handler) {
	g := app.Group("/api/auth")
	g.Post("/login", h.Login)
	g.Post("/refresh", h.Refresh)
	g.Post("/logout", h.Logout)
}

// column is always one of the fixed names used in this file.
func (h *Handler) queryUser(ctx context.Context, column, value string) (map[string]any, error) {
	pb := h.store.Dialect.NewParamBuilder()
	return store.QueryRow(ctx, h.store.DB,
		fmt.Sprintf("SELECT id, email, password_hash, roles, active FROM _users WHERE %s = %s", column, pb.Add(value)),
		pb.Params()...)
}

func (h *Handler) deleteToken(ctx context.Context, column, value string) error {
	pb := h.store.Dialect.NewParamBuilder()
	_, err := store.Exec(ctx, h.store.DB,
		fmt.Sprintf("DELETE FROM _refresh_tokens WHERE %s = %s", column, pb.Add(value)),
		pb.Params()...)
	return err
}

func (h *Handler) userFromRow(row map[string]any) (*User, error) {
	roles, err := h.store.Dialect.ScanArray(row["roles"])
	if err != nil {
		return nil, fmt.Errorf("user roles: %w", err)
	}
	return &User{ID: store.String(row["id"]), Email: store.String(row["email"]), Roles: roles}, nil
}

func (h *Handler) issue(ctx context.Context, user *User) (*TokenPair, error) {
	access, err := GenerateAccessToken(user, h.jwtSecret)
	if err != nil {
		log.Printf("ERROR: %v", err)
		return nil, apperror.New("INTERNAL_ERROR", fiber.StatusInternalServerError, "Failed to generate access token")
	}

	refresh := GenerateRefreshToken()
	d := h.store.Dialect
	pb := d.NewParamBuilder()
	query := fmt.Sprintf("INSERT INTO _refresh_tokens (id, user_id, token, expires_at, created_at) VALUES (%s, %s, %s, %s, %s)",
		pb.Add(uuid.NewString()), pb.Add(user.ID), pb.Add(refresh),
		pb.Add(d.TimeParam(time.Now().Add(RefreshTokenTTL))), pb.Add(d.TimeParam(time.Now())))
	if _, err := store.Exec(ctx, h.store.DB, query, pb.Params()...); err != nil {
		log.Printf("ERROR: store refresh token: %v", err)
		return nil, apperror.New("INTERNAL_ERROR", fiber.StatusInternalServerError, "Failed to store refresh token")
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
