package apperror

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func TestHandler(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: Handler})
	app.Get("/validation", func(c *fiber.Ctx) error {
		return fmt.Errorf("wrapped: %w", Validation([]ErrorDetail{{Field: "slug", Rule: "reserved", Message: "nope"}}))
	})
	app.Get("/boom", func(c *fiber.Ctx) error {
		return errors.New("database exploded")
	})

	tests := []struct {
		path       string
		wantStatus int
		wantCode   string
	}{
		{"/validation", 422, "VALIDATION_FAILED"},
		{"/boom", 500, "INTERNAL_ERROR"},
		{"/missing", 404, "HTTP_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest("GET", tt.path, nil), -1)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, resp.StatusCode)
			}
			body, _ := io.ReadAll(resp.Body)
			var out ErrorResponse
			if err := json.Unmarshal(body, &out); err != nil {
				t.Fatalf("decode %s: %v", body, err)
			}
			if out.Error == nil || out.Error.Code != tt.wantCode {
				t.Fatalf("expected code %s, got %s", tt.wantCode, body)
			}
		})
	}
}
