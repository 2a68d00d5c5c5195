package instrument

import (
	"errors"
	"math/rand"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"secrets-backend/internal/apperror"
	"secrets-backend/internal/config"
)

const TraceHeader = "X-Trace-ID"

// Middleware opens a root span per request and puts the tracer on the request
// context. The trace id is taken from X-Trace-ID when present and echoed back.
func Middleware(cfg config.InstrumentationConfig, buffer *EventBuffer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !cfg.Enabled || buffer == nil {
			return c.Next()
		}
		if cfg.SamplingRate < 1.0 && rand.Float64() >= cfg.SamplingRate {
			return c.Next()
		}

		traceID := c.Get(TraceHeader)
		if traceID == "" {
			traceID = uuid.NewString()
		}
		tracer := NewTracer(buffer)
		ctx := WithInstrumenter(WithTraceID(c.UserContext(), traceID), tracer)

		ctx, span := tracer.StartSpan(ctx, "http", "handler", "request")
		span.SetMetadata("method", c.Method())
		span.SetMetadata("path", c.Path())
		c.SetUserContext(ctx)
		c.Set(TraceHeader, traceID)

		err := c.Next()

		if uid := getUserID(c.UserContext()); uid != nil {
			span.SetMetadata("user_id", *uid)
		}
		status := c.Response().StatusCode()
		if err != nil {
			status = statusOf(err)
		}
		span.SetMetadata("status_code", status)
		if status >= 400 {
			span.SetStatus("error")
		} else {
			span.SetStatus("ok")
		}
		span.End()
		return err
	}
}

// statusOf predicts the status the error handler will write for err.
func statusOf(err error) int {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fiberErr.Code
	}
	return fiber.StatusInternalServerError
}
