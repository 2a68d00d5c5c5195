package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"secrets-backend/internal/apperror"
	"secrets-backend/internal/instrument"
)

const userKey = "user"

// Middleware validates the bearer token and stores the caller on the request.
func Middleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if header == "" {
			return apperror.Unauthorized("Missing auth token")
		}

		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return apperror.Unauthorized("Invalid auth header format")
		}

		claims, err := ParseAccessToken(strings.TrimSpace(token), secret)
		if err != nil {
			return apperror.Unauthorized("Invalid or expired token")
		}

		c.Locals(userKey, &User{ID: claims.Subject, Email: claims.Email, Roles: claims.Roles})
		c.SetUserContext(instrument.WithUserID(c.UserContext(), claims.Subject))
		return c.Next()
	}
}

// RequireAdmin rejects callers without the admin role.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := GetUser(c)
		if user == nil {
			return apperror.Unauthorized("Missing auth token")
		}
		if !user.IsAdmin() {
			return apperror.Forbidden("Admin access required")
		}
		return c.Next()
	}
}

// GetUser returns the caller set by Middleware, or nil.
func GetUser(c *fiber.Ctx) *User {
	user, _ := c.Locals(userKey).(*User)
	return user
}
