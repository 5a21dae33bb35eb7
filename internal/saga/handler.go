package saga

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/stratocard/stratocard/internal/card"
	"github.com/stratocard/stratocard/internal/provider"
	"github.com/stratocard/stratocard/internal/wallet"
)

// Handler exposes the card funds-movement endpoints.
type Handler struct {
	service *Service
	cards   *card.Service
}

// NewHandler constructs a saga handler.
func NewHandler(service *Service, cards *card.Service) *Handler {
	return &Handler{service: service, cards: cards}
}

// Issue runs the card issuance saga.
func (h *Handler) Issue(c *fiber.Ctx) error {
	var req IssueRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	result, err := h.service.IssueCard(c.UserContext(), IssueInput{
		CompanyID:      req.CompanyID,
		CustomerID:     req.CustomerID,
		WalletID:       req.WalletID,
		Currency:       req.Currency,
		Brand:          req.Brand,
		NameOnCard:     req.NameOnCard,
		InitialBalance: req.InitialBalance,
		IssuanceFee:    req.IssuanceFee,
	})
	if err != nil {
		return mapSagaError(err)
	}

	return c.Status(http.StatusCreated).JSON(IssueResponse{
		Card:          toCardResponse(result.Card),
		TransactionID: result.TransactionID,
		FeeSource:     string(result.FeeSource),
	})
}

// Get returns a card by id.
func (h *Handler) Get(c *fiber.Ctx) error {
	cd, err := h.cards.Get(c.UserContext(), c.Params("cardId"))
	if err != nil {
		if errors.Is(err, card.ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, "card not found")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(toCardResponse(cd))
}

// Fund moves funds from the card's wallet onto the card.
func (h *Handler) Fund(c *fiber.Ctx) error {
	var req AmountRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	result, err := h.service.Fund(c.UserContext(), c.Params("cardId"), req.Amount)
	if err != nil {
		return mapSagaError(err)
	}

	return c.Status(http.StatusOK).JSON(MovementResponse{
		TransactionID: result.TransactionID,
		WalletBalance: result.WalletBalance,
		CardBalance:   result.CardBalance,
	})
}

// Withdraw moves funds off the card back into its wallet.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	var req AmountRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	result, err := h.service.Withdraw(c.UserContext(), c.Params("cardId"), req.Amount)
	if err != nil {
		return mapSagaError(err)
	}

	return c.Status(http.StatusOK).JSON(MovementResponse{
		TransactionID: result.TransactionID,
		WalletBalance: result.WalletBalance,
		CardBalance:   result.CardBalance,
	})
}

// Freeze suspends spending on the card.
func (h *Handler) Freeze(c *fiber.Ctx) error {
	cd, err := h.service.Freeze(c.UserContext(), c.Params("cardId"))
	if err != nil {
		return mapSagaError(err)
	}
	return c.Status(http.StatusOK).JSON(toCardResponse(cd))
}

// Unfreeze resumes spending on the card.
func (h *Handler) Unfreeze(c *fiber.Ctx) error {
	cd, err := h.service.Unfreeze(c.UserContext(), c.Params("cardId"))
	if err != nil {
		return mapSagaError(err)
	}
	return c.Status(http.StatusOK).JSON(toCardResponse(cd))
}

// Terminate closes the card and refunds its remaining balance.
func (h *Handler) Terminate(c *fiber.Ctx) error {
	result, err := h.service.Terminate(c.UserContext(), c.Params("cardId"))
	if err != nil {
		return mapSagaError(err)
	}
	return c.Status(http.StatusOK).JSON(TerminateResponse{
		TransactionID: result.TransactionID,
		Refunded:      result.Refunded,
		WalletBalance: result.WalletBalance,
	})
}

func mapSagaError(err error) error {
	var pe *provider.Error
	switch {
	case errors.Is(err, card.ErrNotFound):
		return fiber.NewError(http.StatusNotFound, "card not found")
	case errors.Is(err, wallet.ErrNotFound):
		return fiber.NewError(http.StatusNotFound, "wallet not found")
	case errors.Is(err, wallet.ErrInsufficientBalance):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, wallet.ErrInactive):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, card.ErrInvalidTransition):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.As(err, &pe):
		return fiber.NewError(http.StatusBadGateway, "provider call failed")
	default:
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
}
