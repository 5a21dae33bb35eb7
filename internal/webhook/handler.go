package webhook

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Header names the provider signs webhooks with.
const (
	HeaderSignature = "X-Signature"
	HeaderTimestamp = "X-Timestamp"
)

// Handler exposes the provider webhook endpoint.
type Handler struct {
	validator *Validator
	router    *Router
	logger    *slog.Logger
}

// NewHandler constructs the webhook handler.
func NewHandler(validator *Validator, router *Router, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{validator: validator, router: router, logger: logger}
}

// Receive validates and routes an incoming provider webhook. Rejections are a
// generic 401 so callers cannot probe which gate tripped; the stage is logged
// server-side.
func (h *Handler) Receive(c *fiber.Ctx) error {
	raw := c.Body()
	signature := c.Get(HeaderSignature)
	timestamp := c.Get(HeaderTimestamp)
	source := c.IP()

	outcome, err := h.validator.Validate(c.UserContext(), raw, signature, timestamp, source)
	if err != nil {
		var secErr *SecurityError
		if errors.As(err, &secErr) {
			h.logger.Warn("webhook rejected", "stage", secErr.Stage, "reason", secErr.Reason, "source", source)
			return fiber.NewError(http.StatusUnauthorized, "webhook validation failed")
		}
		h.logger.Error("webhook validation error", "error", err, "source", source)
		return fiber.NewError(http.StatusInternalServerError, "webhook validation failed")
	}

	if outcome.Duplicate {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":               "duplicate",
			"event":                outcome.Event.Event,
			"webhookId":            outcome.Event.WebhookID,
			"securityChecksPassed": true,
		})
	}

	if err := h.router.Dispatch(c.UserContext(), outcome.Event); err != nil {
		h.logger.Error("webhook routing failed", "event", outcome.Event.Event,
			"webhook_id", outcome.Event.WebhookID, "error", err)
		// Not committed to the dedup store, so the provider's retry gets a
		// fresh attempt once the replay guard expires.
		return fiber.NewError(http.StatusInternalServerError, "webhook processing failed")
	}

	if err := h.validator.Commit(c.UserContext(), outcome.Event.WebhookID); err != nil {
		h.logger.Error("webhook dedup commit failed", "webhook_id", outcome.Event.WebhookID, "error", err)
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"status":               "processed",
		"event":                outcome.Event.Event,
		"webhookId":            outcome.Event.WebhookID,
		"securityChecksPassed": true,
	})
}
