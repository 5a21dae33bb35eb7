package reconcile

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/stratocard/stratocard/internal/card"
)

// BatchRequest lists the cards to reconcile.
type BatchRequest struct {
	CardIDs []string `json:"card_ids"`
}

// CardResponse reports the outcome of reconciling one card.
type CardResponse struct {
	CardID     string `json:"card_id"`
	Changed    bool   `json:"changed"`
	Terminated bool   `json:"terminated"`
	Refunded   int64  `json:"refunded"`
	Drift      int64  `json:"drift"`
}

// SummaryResponse aggregates a batch run.
type SummaryResponse struct {
	Total      int `json:"total"`
	Changed    int `json:"changed"`
	Terminated int `json:"terminated"`
	Errored    int `json:"errored"`
}

// Handler exposes on-demand reconciliation endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a reconcile handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Card reconciles a single card against provider truth.
func (h *Handler) Card(c *fiber.Ctx) error {
	result, err := h.service.ReconcileCard(c.UserContext(), c.Params("cardId"))
	if err != nil {
		var drift *DriftError
		switch {
		case errors.Is(err, card.ErrNotFound):
			return fiber.NewError(http.StatusNotFound, "card not found")
		case errors.As(err, &drift):
			return fiber.NewError(http.StatusConflict, drift.Error())
		default:
			return fiber.NewError(http.StatusBadGateway, err.Error())
		}
	}
	return c.Status(http.StatusOK).JSON(CardResponse{
		CardID:     result.CardID,
		Changed:    result.Changed,
		Terminated: result.Terminated,
		Refunded:   result.Refunded,
		Drift:      result.Drift,
	})
}

// Batch reconciles many cards with a bounded provider fan-out.
func (h *Handler) Batch(c *fiber.Ctx) error {
	var req BatchRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if len(req.CardIDs) == 0 {
		return fiber.NewError(http.StatusBadRequest, "card_ids is required")
	}

	summary, err := h.service.ReconcileBatch(c.UserContext(), req.CardIDs)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(SummaryResponse{
		Total:      summary.Total,
		Changed:    summary.Changed,
		Terminated: summary.Terminated,
		Errored:    summary.Errored,
	})
}
